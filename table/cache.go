// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package table

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/swiss"
)

// cacheKey identifies one block: the table's identity (an xxhash of its
// footer CRC and total size, see TableIdentity) plus the block's absolute
// file offset.
type cacheKey struct {
	table  uint64
	offset int64
}

// Cache is an optional, size-bounded block cache shared across Readers
// (SPEC_FULL.md §9). It never affects correctness: a cache miss always
// falls back to reading the block source directly. Eviction is a plain
// random-replacement policy, which the swiss map's unordered iteration
// gives for free and which is adequate for the intended "reopen the same
// stack of tables repeatedly" workload.
type Cache struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	entries  *swiss.Map[cacheKey, []byte]
}

// NewCache creates a cache that holds up to maxBytes of block payloads.
func NewCache(maxBytes int64) *Cache {
	return &Cache{
		maxBytes: maxBytes,
		entries:  swiss.New[cacheKey, []byte](64),
	}
}

// TableIdentity derives a cache-table identity from a table's footer CRC
// and total size, stable for the lifetime of one sealed file.
func TableIdentity(footerCRC uint32, size int64) uint64 {
	var buf [12]byte
	buf[0] = byte(footerCRC)
	buf[1] = byte(footerCRC >> 8)
	buf[2] = byte(footerCRC >> 16)
	buf[3] = byte(footerCRC >> 24)
	for i := 0; i < 8; i++ {
		buf[4+i] = byte(size >> (8 * i))
	}
	return xxhash.Sum64(buf[:])
}

// Get returns the cached block payload for (table, offset), if present.
func (c *Cache) Get(table uint64, offset int64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries.Get(cacheKey{table, offset})
	return v, ok
}

// Put inserts a block payload, evicting arbitrary entries until the cache
// fits within its byte budget.
func (c *Cache) Put(table uint64, offset int64, block []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{table, offset}
	if _, exists := c.entries.Get(key); exists {
		return
	}
	for c.curBytes+int64(len(block)) > c.maxBytes && c.entries.Len() > 0 {
		var victim cacheKey
		c.entries.All(func(k cacheKey, v []byte) bool {
			victim = k
			return false
		})
		if v, ok := c.entries.Get(victim); ok {
			c.curBytes -= int64(len(v))
			c.entries.Delete(victim)
		}
	}
	if int64(len(block)) > c.maxBytes {
		return
	}
	c.entries.Put(key, block)
	c.curBytes += int64(len(block))
}
