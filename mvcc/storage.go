// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package mvcc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/Fantom-foundation/mvcode/common"
	"github.com/inconshreveable/log15"
)

var logger = log15.New("module", "mvcc")

// FetchFunc loads and verifies a module from the base storage. It reports
// whether the module exists. It is invoked at most once per key and block.
type FetchFunc[E Entry] func() (entry E, exists bool, err error)

// FrameworkCache is an immutable set of modules consulted before the
// versioned histories. Modules found in it are read as base storage
// versions by every transaction.
//
// Framework modules must not be republished within a block: a write to a
// cached module is recorded but stays invisible to readers.
type FrameworkCache[K comparable, E Entry] interface {
	Get(key K) (E, bool)
}

// Stats summarizes the read activity of a store.
type Stats struct {
	FrameworkHits uint64
	BaseFetches   uint64
}

// VersionedModuleStorage keeps a versioned history of module writes for
// each key, allowing transactions of a block to be executed speculatively
// and in parallel while each of them observes the modules as of its own
// position in the block.
//
// Histories of different keys are independent and never block each other.
// Mutations of a single history are serialized.
type VersionedModuleStorage[K Key, E Entry] struct {
	histories     *shardedMap[K, *history[E]]
	framework     FrameworkCache[K, E]
	frameworkHits atomic.Uint64
	baseFetches   atomic.Uint64
}

type history[E Entry] struct {
	mutex    sync.RWMutex
	versions *VersionedEntry[E]
}

func newHistory[E Entry]() *history[E] {
	return &history[E]{versions: NewVersionedEntry[E]()}
}

// NewVersionedModuleStorage creates an empty store with the given number of
// shards. The framework cache is optional and may be nil.
func NewVersionedModuleStorage[K Key, E Entry](numShards int, framework FrameworkCache[K, E]) *VersionedModuleStorage[K, E] {
	return &VersionedModuleStorage[K, E]{
		histories: newShardedMap[K, *history[E]](numShards),
		framework: framework,
	}
}

// Get returns the module visible to the transaction at idx. Pending writes
// below idx as well as keys without any recorded version are reported as
// non-existing modules; use GetOrInit to fall back to the base storage.
func (s *VersionedModuleStorage[K, E]) Get(key K, idx TxnIndex) ModuleStorageRead[E] {
	read, _ := s.get(key, idx)
	return read
}

// GetOrInit is like Get, but if no version is recorded for the transaction
// at idx, the base storage version is fetched and recorded. The fetch is
// performed at most once per key, also under concurrent access; a missing
// module is recorded as well. Errors of the fetch are returned unchanged
// and nothing is recorded.
func (s *VersionedModuleStorage[K, E]) GetOrInit(key K, idx TxnIndex, fetch FetchFunc[E]) (ModuleStorageRead[E], error) {
	if read, found := s.get(key, idx); found {
		return read, nil
	}

	h := s.histories.getOrCreate(key, newHistory[E])
	h.mutex.Lock()
	defer h.mutex.Unlock()

	// The base version may have been installed while waiting for the lock.
	if read, found := h.versions.Get(idx); found {
		return read, nil
	}

	entry, exists, err := fetch()
	if err != nil {
		return DoesNotExist[E](), err
	}
	s.baseFetches.Add(1)
	h.versions.InsertBase(entry, exists)
	if !exists {
		return DoesNotExist[E](), nil
	}
	return StorageVersion(entry), nil
}

func (s *VersionedModuleStorage[K, E]) get(key K, idx TxnIndex) (ModuleStorageRead[E], bool) {
	if s.framework != nil {
		if entry, found := s.framework.Get(key); found {
			s.frameworkHits.Add(1)
			return StorageVersion(entry), true
		}
	}
	h, found := s.histories.get(key)
	if !found {
		return DoesNotExist[E](), false
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.versions.Get(idx)
}

// WritePending marks a module publish of the transaction at idx as in
// progress. Transactions after idx observe the module as non-existing until
// the write is published or removed.
func (s *VersionedModuleStorage[K, E]) WritePending(key K, idx TxnIndex) {
	if s.framework != nil {
		if _, found := s.framework.Get(key); found {
			logger.Warn("Write to cached framework module", "key", key, "txn", idx)
		}
	}
	h := s.histories.getOrCreate(key, newHistory[E])
	h.mutex.Lock()
	h.versions.InsertPending(idx)
	h.mutex.Unlock()
}

// WritePublished publishes the module written by the transaction at idx,
// making it visible to all later transactions. WritePending must have been
// called for the same key and index before.
func (s *VersionedModuleStorage[K, E]) WritePublished(key K, idx TxnIndex, entry E) {
	h := s.mustGetHistory(key)
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.versions.InsertPublished(idx, entry)
}

// Remove retracts the write of the transaction at idx, e.g. when the
// transaction is re-executed. The write must exist.
func (s *VersionedModuleStorage[K, E]) Remove(key K, idx TxnIndex) {
	h := s.mustGetHistory(key)
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.versions.Remove(idx)
}

// UpgradeIfUnverified replaces the module at the given version by a verified
// one unless the stored module is verified already. Once verified, a module
// is never replaced again. It returns true if the entry was replaced.
func (s *VersionedModuleStorage[K, E]) UpgradeIfUnverified(key K, version ModuleVersion, entry E) bool {
	h := s.mustGetHistory(key)
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.versions.UpgradeIfUnverified(version, entry)
}

// HasPendingWrites is true if a write of the module was started by
// WritePending but neither published nor removed.
func (s *VersionedModuleStorage[K, E]) HasPendingWrites(key K) bool {
	h, found := s.histories.get(key)
	if !found {
		return false
	}
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.versions.HasPending()
}

func (s *VersionedModuleStorage[K, E]) mustGetHistory(key K) *history[E] {
	h, found := s.histories.get(key)
	if !found {
		panic(fmt.Errorf("%w: %v", ErrMissingHistory, key))
	}
	return h
}

// Reset drops all recorded histories, preparing the store for the next
// block. The framework cache is retained.
func (s *VersionedModuleStorage[K, E]) Reset() {
	logger.Debug("Resetting versioned module storage", "keys", s.histories.size())
	s.histories.clear()
}

// Keys returns all keys with at least one recorded version, in no
// particular order.
func (s *VersionedModuleStorage[K, E]) Keys() []K {
	res := []K{}
	s.histories.forEach(func(key K, h *history[E]) {
		h.mutex.RLock()
		empty := h.versions.Len() == 0
		h.mutex.RUnlock()
		if !empty {
			res = append(res, key)
		}
	})
	return res
}

// Stats returns counters of framework cache hits and base storage fetches.
func (s *VersionedModuleStorage[K, E]) Stats() Stats {
	return Stats{
		FrameworkHits: s.frameworkHits.Load(),
		BaseFetches:   s.baseFetches.Load(),
	}
}

// treeNodeSize approximates the per-slot overhead of the ordered map.
const treeNodeSize = 64

// GetMemoryFootprint estimates the memory used by the recorded histories.
// Module entries are shared with readers and not included.
func (s *VersionedModuleStorage[K, E]) GetMemoryFootprint() *common.MemoryFootprint {
	var keySize K
	var slotSize slot[E]
	var historySize history[E]
	var versionsSize VersionedEntry[E]
	perHistory := unsafe.Sizeof(keySize) + unsafe.Sizeof(historySize) + unsafe.Sizeof(versionsSize)
	perSlot := unsafe.Sizeof(slotSize) + treeNodeSize

	var histories, slots uintptr
	s.histories.forEach(func(_ K, h *history[E]) {
		h.mutex.RLock()
		slots += uintptr(h.versions.Len())
		h.mutex.RUnlock()
		histories++
	})

	mf := common.NewMemoryFootprint(unsafe.Sizeof(*s))
	mf.AddChild("shards", common.NewMemoryFootprint(uintptr(len(s.histories.shards))*unsafe.Sizeof(s.histories.shards[0])))
	mf.AddChild("histories", common.NewMemoryFootprint(histories*perHistory+slots*perSlot))
	stats := s.Stats()
	mf.SetNote(fmt.Sprintf("keys: %d, slots: %d, framework hits: %d, base fetches: %d", histories, slots, stats.FrameworkHits, stats.BaseFetches))
	return mf
}
