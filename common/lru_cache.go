// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import "unsafe"

// LruCache implements a bounded key-value map evicting the least recently
// used entry. It is not safe for concurrent use.
type LruCache[K comparable, V any] struct {
	cache    map[K]*entry[K, V]
	capacity int
	head     *entry[K, V]
	tail     *entry[K, V]
}

// NewLruCache returns a new instance
func NewLruCache[K comparable, V any](capacity int) *LruCache[K, V] {
	return &LruCache[K, V]{
		cache:    make(map[K]*entry[K, V], capacity),
		capacity: capacity,
	}
}

// Get returns a value from the cache or false. If the value exists, it is
// marked as most recently used.
func (c *LruCache[K, V]) Get(key K) (V, bool) {
	var val V
	item, exists := c.cache[key]
	if exists {
		val = item.val
		c.touch(item)
	}
	return val, exists
}

// Set associates a value to the key and marks it as most recently used. If
// the capacity is exceeded, the least recently used entry is evicted and
// returned.
func (c *LruCache[K, V]) Set(key K, val V) (evictedKey K, evictedValue V, evicted bool) {
	if item, exists := c.cache[key]; exists {
		item.val = val
		c.touch(item)
		return
	}

	var item *entry[K, V]
	if len(c.cache) >= c.capacity && c.tail != nil {
		item = c.dropLast() // reuse evicted object for the new entry
		evictedKey, evictedValue, evicted = item.key, item.val, true
	} else {
		item = new(entry[K, V])
	}
	item.key = key
	item.val = val
	c.cache[key] = item
	c.pushFront(item)
	return
}

// Remove deletes the key from the cache and returns the deleted value.
func (c *LruCache[K, V]) Remove(key K) (original V, exists bool) {
	item, exists := c.cache[key]
	if !exists {
		return original, false
	}
	delete(c.cache, key)
	c.unlink(item)
	return item.val, true
}

// Size returns the number of cached entries.
func (c *LruCache[K, V]) Size() int {
	return len(c.cache)
}

// Clear removes all entries.
func (c *LruCache[K, V]) Clear() {
	c.cache = make(map[K]*entry[K, V], c.capacity)
	c.head = nil
	c.tail = nil
}

// GetDynamicMemoryFootprint provides the size of the cache in memory in
// bytes, using the given function to size the dynamic part of values.
func (c *LruCache[K, V]) GetDynamicMemoryFootprint(valueSizeProvider func(V) uintptr) *MemoryFootprint {
	size := unsafe.Sizeof(*c)
	var e entry[K, V]
	size += uintptr(len(c.cache)) * (unsafe.Sizeof(e) + unsafe.Sizeof(&e))
	for _, item := range c.cache {
		size += valueSizeProvider(item.val)
	}
	return NewMemoryFootprint(size)
}

func (c *LruCache[K, V]) touch(item *entry[K, V]) {
	if item == c.head {
		return
	}
	c.unlink(item)
	c.pushFront(item)
}

func (c *LruCache[K, V]) pushFront(item *entry[K, V]) {
	item.prev = nil
	item.next = c.head
	if c.head != nil {
		c.head.prev = item
	}
	c.head = item
	if c.tail == nil {
		c.tail = item
	}
}

func (c *LruCache[K, V]) unlink(item *entry[K, V]) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		c.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		c.tail = item.prev
	}
	item.prev = nil
	item.next = nil
}

func (c *LruCache[K, V]) dropLast() *entry[K, V] {
	item := c.tail
	delete(c.cache, item.key)
	c.unlink(item)
	return item
}

// entry is a cache item wrapping a key, a value and references to the
// previous and next elements.
type entry[K comparable, V any] struct {
	key  K
	val  V
	prev *entry[K, V]
	next *entry[K, V]
}
