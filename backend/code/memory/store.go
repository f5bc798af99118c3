// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package memory

import (
	"sort"
	"sync"
	"unsafe"

	"github.com/Fantom-foundation/mvcode/backend/code"
	"github.com/Fantom-foundation/mvcode/common"
	"golang.org/x/exp/maps"
)

// Store is an in-memory code.Store implementation.
type Store struct {
	mutex   sync.RWMutex
	modules map[common.ModuleKey][]byte
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{modules: map[common.ModuleKey][]byte{}}
}

var _ code.Store = (*Store)(nil)

func (s *Store) Set(key common.ModuleKey, code []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.modules[key] = clone(code)
	return nil
}

func (s *Store) SetAll(modules map[common.ModuleKey][]byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for key, code := range modules {
		s.modules[key] = clone(code)
	}
	return nil
}

func (s *Store) Get(key common.ModuleKey) ([]byte, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return clone(s.modules[key]), nil
}

func (s *Store) GetModule(key common.ModuleKey) ([]byte, error) {
	return s.Get(key)
}

func (s *Store) Has(key common.ModuleKey) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, found := s.modules[key]
	return found, nil
}

func (s *Store) Keys() ([]common.ModuleKey, error) {
	s.mutex.RLock()
	keys := maps.Keys(s.modules)
	s.mutex.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		return common.CompareModuleKeys(keys[i], keys[j]) < 0
	})
	return keys, nil
}

func (s *Store) Flush() error {
	return nil
}

func (s *Store) Close() error {
	return nil // no-op for in-memory store
}

// GetMemoryFootprint provides the size of the store in memory in bytes.
func (s *Store) GetMemoryFootprint() *common.MemoryFootprint {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	size := uintptr(0)
	for key, code := range s.modules {
		size += unsafe.Sizeof(key) + uintptr(len(key.Name)) + uintptr(len(code))
	}
	mf := common.NewMemoryFootprint(unsafe.Sizeof(*s))
	mf.AddChild("modules", common.NewMemoryFootprint(size))
	return mf
}

func clone(code []byte) []byte {
	if code == nil {
		return nil
	}
	res := make([]byte, len(code))
	copy(res, code)
	return res
}
