// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package ttlcache contains a small concurrent map whose entries expire after a fixed TTL.
package ttlcache

import (
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type entry[V any] struct {
	value   V
	expires int64
}

// Cache is a concurrent map whose entries expire a fixed duration after they were last stored.
//
// Expired entries are dropped lazily on access and swept in bulk at most once per TTL period.
type Cache[K comparable, V any] struct {
	data      *xsync.MapOf[K, entry[V]]
	ttl       time.Duration
	lastSweep atomic.Int64
}

func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		data: xsync.NewMapOf[K, entry[V]](),
		ttl:  ttl,
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.maybeSweep()
	ent, ok := c.data.Load(key)
	if !ok || time.Now().UnixNano() > ent.expires {
		var zero V
		return zero, false
	}
	return ent.value, true
}

func (c *Cache[K, V]) Put(key K, value V) {
	c.maybeSweep()
	c.data.Store(key, entry[V]{value: value, expires: time.Now().Add(c.ttl).UnixNano()})
}

func (c *Cache[K, V]) Delete(key K) {
	c.data.Delete(key)
}

func (c *Cache[K, V]) Len() int {
	c.maybeSweep()
	return c.data.Size()
}

func (c *Cache[K, V]) maybeSweep() {
	now := time.Now().UnixNano()
	last := c.lastSweep.Load()
	if now-last < int64(c.ttl) || !c.lastSweep.CompareAndSwap(last, now) {
		return
	}
	c.data.Range(func(key K, ent entry[V]) bool {
		if now > ent.expires {
			c.data.Delete(key)
		}
		return true
	})
}
