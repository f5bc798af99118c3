// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package moduledb

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/Fantom-foundation/mvcode/backend/code"
	"github.com/Fantom-foundation/mvcode/backend/code/cache"
	"github.com/Fantom-foundation/mvcode/backend/code/ldb"
	"github.com/Fantom-foundation/mvcode/backend/code/memory"
	"github.com/Fantom-foundation/mvcode/common"
	"github.com/Fantom-foundation/mvcode/config"
	"github.com/Fantom-foundation/mvcode/framework"
	"github.com/Fantom-foundation/mvcode/module"
	"github.com/Fantom-foundation/mvcode/mvcc"
	"github.com/inconshreveable/log15"
)

var logger = log15.New("module", "moduledb")

const (
	ErrBlockInProgress = common.ConstError("concurrent block context already open")
	ErrBlockClosed     = common.ConstError("block context is closed")
	// ErrUnfinishedPublish is reported by Commit for modules whose publish
	// was started but neither completed nor aborted.
	ErrUnfinishedPublish = common.ConstError("module publish not finished")
)

// Database combines a durable base module store with a versioned module
// storage for executing the transactions of one block at a time in
// parallel. Modules published by a block become part of the base store when
// the block is committed.
type Database struct {
	config    config.Config
	store     code.Store
	fetcher   *module.Fetcher
	framework *framework.Cache
	modules   *module.Storage

	blockInUse atomic.Bool
}

// Open creates a database according to the given configuration. Any
// database successfully opened by this function must be eventually closed.
func Open(cfg config.Config) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	db, err := newDatabase(cfg, store)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	return db, nil
}

func openStore(cfg config.Config) (code.Store, error) {
	var store code.Store
	switch cfg.Backend {
	case config.MemoryBackend:
		store = memory.NewStore()
	case config.LevelDbBackend:
		ldbStore, err := ldb.OpenStore(cfg.Directory, ldb.Options{
			BlockCacheCapacity:     cfg.LevelDb.BlockCacheCapacity,
			OpenFilesCacheCapacity: cfg.LevelDb.OpenFilesCacheCapacity,
			WriteBuffer:            cfg.LevelDb.WriteBuffer,
		})
		if err != nil {
			return nil, err
		}
		store = ldbStore
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
	if cfg.CacheCapacity > 0 {
		store = cache.NewStore(store, cfg.CacheCapacity)
	}
	return store, nil
}

// newDatabase builds a database on top of the given store. The framework
// cache is loaded from the store's current content.
func newDatabase(cfg config.Config, store code.Store) (*Database, error) {
	keys, err := cfg.FrameworkKeys()
	if err != nil {
		return nil, err
	}
	fetcher := module.NewFetcher(store, module.SizeVerifier{MaxSize: cfg.MaxModuleSize})
	frameworkCache, err := framework.Load(fetcher.FetchAndVerify, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Info("Opened module database", "config", cfg.Name, "backend", cfg.Backend, "framework", frameworkCache.Len())
	return &Database{
		config:    cfg,
		store:     store,
		fetcher:   fetcher,
		framework: frameworkCache,
		modules:   module.NewStorage(cfg.NumShards, frameworkCache),
	}, nil
}

// BeginBlock starts a new block context. Only one block may be processed at
// a time; the context must be committed or aborted.
func (db *Database) BeginBlock(block uint64) (*BlockContext, error) {
	if !db.blockInUse.CompareAndSwap(false, true) {
		return nil, ErrBlockInProgress
	}
	return &BlockContext{db: db, block: block}, nil
}

// AddBlock runs the given function in a new block context. The block is
// committed unless the function returns an error, in which case it is
// aborted.
func (db *Database) AddBlock(block uint64, run func(*BlockContext) error) error {
	ctxt, err := db.BeginBlock(block)
	if err != nil {
		return fmt.Errorf("failed to start block %d: %w", block, err)
	}
	if err := run(ctxt); err != nil {
		return errors.Join(
			fmt.Errorf("error while processing block %d: %w", block, err),
			ctxt.Abort(),
		)
	}
	return ctxt.Commit()
}

// ImportModules adds modules to the base store directly. Imported framework
// modules are not visible through the framework cache before the database
// is reopened.
func (db *Database) ImportModules(modules map[common.ModuleKey][]byte) error {
	if db.blockInUse.Load() {
		return fmt.Errorf("can not import modules: %w", ErrBlockInProgress)
	}
	for key, code := range modules {
		if _, err := db.fetcher.Verify(module.NewEntry(key, code)); err != nil {
			return fmt.Errorf("failed to import module: %w", err)
		}
	}
	return db.store.SetAll(modules)
}

// GetModule reads a module from the base store, ignoring any block in
// progress.
func (db *Database) GetModule(key common.ModuleKey) ([]byte, error) {
	return db.store.Get(key)
}

// ModuleKeys lists all modules of the base store.
func (db *Database) ModuleKeys() ([]common.ModuleKey, error) {
	return db.store.Keys()
}

// Framework returns the framework cache of this database.
func (db *Database) Framework() *framework.Cache {
	return db.framework
}

// Stats returns the counters of the versioned module storage.
func (db *Database) Stats() mvcc.Stats {
	return db.modules.Stats()
}

func (db *Database) GetMemoryFootprint() *common.MemoryFootprint {
	mf := common.NewMemoryFootprint(unsafe.Sizeof(*db))
	mf.AddChild("store", db.store.GetMemoryFootprint())
	mf.AddChild("framework", db.framework.GetMemoryFootprint())
	mf.AddChild("modules", db.modules.GetMemoryFootprint())
	return mf
}

func (db *Database) Flush() error {
	if db.blockInUse.Load() {
		return fmt.Errorf("can not flush while there is an open block context")
	}
	return db.store.Flush()
}

func (db *Database) Close() error {
	return errors.Join(
		db.Flush(),
		db.store.Close(),
	)
}
