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
	"sync"

	"golang.org/x/sys/cpu"
)

// DefaultNumShards is the number of shards used if none is configured.
const DefaultNumShards = 64

// Key is the constraint of keys of the versioned store. The hash selects
// the shard a key is kept in.
type Key interface {
	comparable
	Hash() uint64
}

// shardedMap is a concurrent map partitioning its keys into independently
// locked shards, so that accesses to unrelated keys rarely contend.
type shardedMap[K Key, V any] struct {
	shards []shard[K, V]
}

type shard[K comparable, V any] struct {
	mutex sync.RWMutex
	items map[K]V
	_     cpu.CacheLinePad
}

func newShardedMap[K Key, V any](numShards int) *shardedMap[K, V] {
	if numShards <= 0 {
		numShards = DefaultNumShards
	}
	shards := make([]shard[K, V], numShards)
	for i := range shards {
		shards[i].items = map[K]V{}
	}
	return &shardedMap[K, V]{shards: shards}
}

func (m *shardedMap[K, V]) shardFor(key K) *shard[K, V] {
	return &m.shards[key.Hash()%uint64(len(m.shards))]
}

func (m *shardedMap[K, V]) get(key K) (V, bool) {
	s := m.shardFor(key)
	s.mutex.RLock()
	value, found := s.items[key]
	s.mutex.RUnlock()
	return value, found
}

// getOrCreate returns the value stored for the key. If there is none, the
// result of create is stored and returned. Concurrent callers for the same
// key all receive the same value.
func (m *shardedMap[K, V]) getOrCreate(key K, create func() V) V {
	s := m.shardFor(key)
	s.mutex.RLock()
	value, found := s.items[key]
	s.mutex.RUnlock()
	if found {
		return value
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if value, found := s.items[key]; found {
		return value
	}
	value = create()
	s.items[key] = value
	return value
}

// forEach visits all entries. Each shard is visited under its read lock, so
// the callback must not access the map.
func (m *shardedMap[K, V]) forEach(callback func(K, V)) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mutex.RLock()
		for key, value := range s.items {
			callback(key, value)
		}
		s.mutex.RUnlock()
	}
}

func (m *shardedMap[K, V]) size() int {
	res := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mutex.RLock()
		res += len(s.items)
		s.mutex.RUnlock()
	}
	return res
}

func (m *shardedMap[K, V]) clear() {
	for i := range m.shards {
		s := &m.shards[i]
		s.mutex.Lock()
		s.items = map[K]V{}
		s.mutex.Unlock()
	}
}
