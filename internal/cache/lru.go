// Brewline - Coffee Chat Marketplace Messaging Engine
// Copyright 2026 Brewline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/brewline/brewline

// Package cache provides a thread-safe LRU cache with TTL, used to cap
// lookups against the external profile directory on hot DTO-enrichment
// paths.
package cache

import (
	"sync"
	"time"
)

type lruEntry struct {
	key       string
	value     interface{}
	prev      *lruEntry
	next      *lruEntry
	expiresAt time.Time
}

// LRU is a thread-safe least-recently-used cache with lazy TTL expiration.
// Get, Add and eviction are all O(1): a doubly-linked list keeps recency
// order, a map gives direct lookup.
type LRU struct {
	mu sync.RWMutex

	capacity int
	ttl      time.Duration

	items map[string]*lruEntry

	// head.next is most recently used, tail.prev least recently used.
	head *lruEntry
	tail *lruEntry

	hits   int64
	misses int64
}

// NewLRU creates a cache with the given capacity and TTL. Non-positive
// arguments fall back to 10000 entries and 5 minutes.
func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c := &LRU{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*lruEntry, capacity),
		head:     &lruEntry{},
		tail:     &lruEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns the cached value for key, promoting it to most recently used.
// Expired entries are removed on access.
func (c *LRU) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.removeLocked(entry)
		c.misses++
		return nil, false
	}

	c.promoteLocked(entry)
	c.hits++
	return entry.value, true
}

// Add inserts or refreshes a value, evicting the least recently used entry
// when the cache is full.
func (c *LRU) Add(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.items[key]; ok {
		entry.value = value
		entry.expiresAt = time.Now().Add(c.ttl)
		c.promoteLocked(entry)
		return
	}

	if len(c.items) >= c.capacity {
		c.removeLocked(c.tail.prev)
	}

	entry := &lruEntry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.items[key] = entry
	c.insertFrontLocked(entry)
}

// Remove deletes an entry. Used to invalidate a profile after an update.
func (c *LRU) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.items[key]; ok {
		c.removeLocked(entry)
	}
}

// Len returns the number of entries, including not-yet-expired ones.
func (c *LRU) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns cumulative hit and miss counts.
func (c *LRU) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func (c *LRU) promoteLocked(entry *lruEntry) {
	c.unlinkLocked(entry)
	c.insertFrontLocked(entry)
}

func (c *LRU) insertFrontLocked(entry *lruEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *LRU) unlinkLocked(entry *lruEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
}

func (c *LRU) removeLocked(entry *lruEntry) {
	c.unlinkLocked(entry)
	delete(c.items, entry.key)
}
