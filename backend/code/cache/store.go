// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package cache

import (
	"sync"
	"unsafe"

	"github.com/Fantom-foundation/mvcode/backend/code"
	"github.com/Fantom-foundation/mvcode/common"
)

// Store is a code.Store caching the code of recently read modules of a
// wrapped store.
type Store struct {
	store code.Store
	mutex sync.Mutex
	cache *common.LruCache[common.ModuleKey, []byte]
}

var _ code.Store = (*Store)(nil)

// NewStore constructs a new Store instance, caching access to the wrapped
// store. The wrapped store is owned by the new store.
func NewStore(wrapped code.Store, capacity int) *Store {
	return &Store{
		store: wrapped,
		cache: common.NewLruCache[common.ModuleKey, []byte](capacity),
	}
}

func (s *Store) Set(key common.ModuleKey, code []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.cache.Remove(key)
	return s.store.Set(key, code)
}

func (s *Store) SetAll(modules map[common.ModuleKey][]byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for key := range modules {
		s.cache.Remove(key)
	}
	return s.store.SetAll(modules)
}

// Get returns the code of the module (or nil if not defined). Only existing
// modules are cached.
func (s *Store) Get(key common.ModuleKey) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if res, found := s.cache.Get(key); found {
		return clone(res), nil
	}
	res, err := s.store.Get(key)
	if err != nil || res == nil {
		return res, err
	}
	s.cache.Set(key, clone(res))
	return res, nil
}

func (s *Store) GetModule(key common.ModuleKey) ([]byte, error) {
	return s.Get(key)
}

func (s *Store) Has(key common.ModuleKey) (bool, error) {
	s.mutex.Lock()
	_, found := s.cache.Get(key)
	s.mutex.Unlock()
	if found {
		return true, nil
	}
	return s.store.Has(key)
}

func (s *Store) Keys() ([]common.ModuleKey, error) {
	return s.store.Keys()
}

func (s *Store) Flush() error {
	return s.store.Flush()
}

func (s *Store) Close() error {
	return s.store.Close()
}

// GetMemoryFootprint provides the size of the store in memory in bytes
func (s *Store) GetMemoryFootprint() *common.MemoryFootprint {
	mf := common.NewMemoryFootprint(unsafe.Sizeof(*s))
	s.mutex.Lock()
	mf.AddChild("cache", s.cache.GetDynamicMemoryFootprint(func(value []byte) uintptr {
		return uintptr(len(value))
	}))
	s.mutex.Unlock()
	mf.AddChild("sourceStore", s.store.GetMemoryFootprint())
	return mf
}

func clone(code []byte) []byte {
	res := make([]byte, len(code))
	copy(res, code)
	return res
}
