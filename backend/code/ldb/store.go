// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package ldb

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/Fantom-foundation/mvcode/backend/code"
	"github.com/Fantom-foundation/mvcode/common"
	"github.com/inconshreveable/log15"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var logger = log15.New("module", "ldb")

// Store is a LevelDB backed code.Store implementation.
type Store struct {
	db    *leveldb.DB
	table code.TableSpace
	mf    *common.MemoryFootprint
}

var _ code.Store = (*Store)(nil)

// Options configures the LevelDB instance backing a store.
type Options struct {
	// BlockCacheCapacity is the size of the block cache in bytes.
	BlockCacheCapacity int
	// OpenFilesCacheCapacity is the number of files kept open.
	OpenFilesCacheCapacity int
	// WriteBuffer is the size of the memory buffer for writes in bytes.
	WriteBuffer int
}

func (o Options) toLevelDbOptions() *opt.Options {
	return &opt.Options{
		BlockCacheCapacity:     o.BlockCacheCapacity,
		OpenFilesCacheCapacity: o.OpenFilesCacheCapacity,
		WriteBuffer:            o.WriteBuffer,
	}
}

// OpenStore opens the LevelDB database in the given directory, creating it
// if needed. The returned store owns the database.
func OpenStore(path string, options Options) (*Store, error) {
	ldbOptions := options.toLevelDbOptions()
	db, err := leveldb.OpenFile(path, ldbOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB in %s: %w", path, err)
	}
	logger.Debug("Opened module store", "path", path)
	mf := common.NewMemoryFootprint(0)
	mf.AddChild("writeBuffer", common.NewMemoryFootprint(uintptr(ldbOptions.GetWriteBuffer())))
	return &Store{
		db:    db,
		table: code.ModuleCodeKey,
		mf:    mf,
	}, nil
}

func (s *Store) Set(key common.ModuleKey, code []byte) error {
	return s.db.Put(s.table.ToDBKey(key), code, nil)
}

func (s *Store) SetAll(modules map[common.ModuleKey][]byte) error {
	batch := new(leveldb.Batch)
	for key, code := range modules {
		batch.Put(s.table.ToDBKey(key), code)
	}
	return s.db.Write(batch, nil)
}

// Get returns the code of the module (or nil if not defined).
func (s *Store) Get(key common.ModuleKey) ([]byte, error) {
	res, err := s.db.Get(s.table.ToDBKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = []byte{}
	}
	return res, nil
}

func (s *Store) GetModule(key common.ModuleKey) ([]byte, error) {
	return s.Get(key)
}

func (s *Store) Has(key common.ModuleKey) (bool, error) {
	return s.db.Has(s.table.ToDBKey(key), nil)
}

// Keys lists all modules of the table space. LevelDB iterates in key order,
// which matches common.CompareModuleKeys.
func (s *Store) Keys() ([]common.ModuleKey, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{byte(s.table)}), nil)
	defer iter.Release()

	var res []common.ModuleKey
	for iter.Next() {
		key, err := s.table.FromDBKey(iter.Key())
		if err != nil {
			return nil, err
		}
		res = append(res, key)
	}
	return res, iter.Error()
}

func (s *Store) Flush() error {
	return nil // writes are persisted by the LevelDB journal
}

func (s *Store) Close() error {
	return errors.Join(s.Flush(), s.db.Close())
}

// GetMemoryFootprint provides the size of the store in memory in bytes.
func (s *Store) GetMemoryFootprint() *common.MemoryFootprint {
	var stats leveldb.DBStats
	if err := s.db.Stats(&stats); err != nil {
		panic(fmt.Errorf("failed to get LevelDB stats; %s", err))
	}
	mf := common.NewMemoryFootprint(unsafe.Sizeof(*s))
	mf.AddChild("writeBuffer", s.mf.GetChild("writeBuffer"))
	mf.AddChild("blockCache", common.NewMemoryFootprint(uintptr(stats.BlockCacheSize)))
	return mf
}
