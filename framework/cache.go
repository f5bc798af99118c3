// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package framework

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/Fantom-foundation/mvcode/common"
	"github.com/Fantom-foundation/mvcode/module"
	"github.com/Fantom-foundation/mvcode/mvcc"
	"github.com/inconshreveable/log15"
	"golang.org/x/exp/maps"
)

var logger = log15.New("module", "framework")

// FetchFunc loads and verifies a module from the base storage.
type FetchFunc func(key common.ModuleKey) (*module.Entry, bool, error)

// Cache is an immutable set of verified framework modules resolved against
// the base storage before a block is executed. It is safe for concurrent
// use without synchronization.
type Cache struct {
	entries map[common.ModuleKey]*module.Entry
}

var _ mvcc.FrameworkCache[common.ModuleKey, *module.Entry] = (*Cache)(nil)

var emptyCache = &Cache{entries: map[common.ModuleKey]*module.Entry{}}

// Load resolves the given keys and creates a cache of all modules that
// exist in the base storage. Missing modules are skipped, failures abort
// the loading.
func Load(fetch FetchFunc, keys []common.ModuleKey) (*Cache, error) {
	entries := make(map[common.ModuleKey]*module.Entry, len(keys))
	for _, key := range keys {
		entry, exists, err := fetch(key)
		if err != nil {
			return nil, fmt.Errorf("failed to load framework module %v: %w", key, err)
		}
		if !exists {
			logger.Debug("Framework module not found", "key", key)
			continue
		}
		if !entry.IsVerified() {
			logger.Warn("Skipping unverified framework module", "key", key)
			continue
		}
		entries[key] = entry
	}
	logger.Info("Loaded framework modules", "requested", len(keys), "cached", len(entries))
	return &Cache{entries: entries}, nil
}

// Get returns the cached module for the key. A nil cache is empty.
func (c *Cache) Get(key common.ModuleKey) (*module.Entry, bool) {
	if c == nil {
		return nil, false
	}
	entry, found := c.entries[key]
	return entry, found
}

// Len returns the number of cached modules.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Keys returns the keys of all cached modules in ascending order.
func (c *Cache) Keys() []common.ModuleKey {
	if c == nil {
		return nil
	}
	keys := maps.Keys(c.entries)
	sort.Slice(keys, func(i, j int) bool {
		return common.CompareModuleKeys(keys[i], keys[j]) < 0
	})
	return keys
}

// GetMemoryFootprint provides the size of the cache including its modules.
func (c *Cache) GetMemoryFootprint() *common.MemoryFootprint {
	if c == nil {
		return common.NewMemoryFootprint(0)
	}
	mf := common.NewMemoryFootprint(unsafe.Sizeof(*c))
	var size uintptr
	for _, entry := range c.entries {
		size += entry.GetMemoryFootprint().Total()
	}
	mf.AddChild("modules", common.NewMemoryFootprint(size))
	mf.SetNote(fmt.Sprintf("modules: %d", len(c.entries)))
	return mf
}

var (
	initMutex sync.Mutex
	global    atomic.Pointer[Cache]
)

// Initialize loads the process-wide framework cache. Only the first
// successful call loads modules; later calls return the installed cache.
// A failed load leaves the cache uninstalled so that it can be retried.
func Initialize(fetch FetchFunc, keys []common.ModuleKey) (*Cache, error) {
	if cache := global.Load(); cache != nil {
		return cache, nil
	}
	initMutex.Lock()
	defer initMutex.Unlock()
	if cache := global.Load(); cache != nil {
		return cache, nil
	}
	cache, err := Load(fetch, keys)
	if err != nil {
		return nil, err
	}
	global.Store(cache)
	return cache, nil
}

// Default returns the process-wide framework cache, or an empty cache if
// Initialize was not called yet.
func Default() *Cache {
	if cache := global.Load(); cache != nil {
		return cache
	}
	return emptyCache
}

// IsInitialized is true once the process-wide cache is installed.
func IsInitialized() bool {
	return global.Load() != nil
}
