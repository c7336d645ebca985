// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package ttlcache

import (
	"testing"
	"time"
)

func TestCacheExpiry(t *testing.T) {
	c := New[string, int](50 * time.Millisecond)
	c.Put("meow", 1)
	if val, ok := c.Get("meow"); !ok || val != 1 {
		t.Fatalf("Get() = %d, %t, expected 1, true", val, ok)
	}
	time.Sleep(100 * time.Millisecond)
	if _, ok := c.Get("meow"); ok {
		t.Errorf("entry did not expire after TTL")
	}
}

func TestCacheOverwriteResetsTTL(t *testing.T) {
	c := New[string, int](80 * time.Millisecond)
	c.Put("meow", 1)
	time.Sleep(50 * time.Millisecond)
	c.Put("meow", 2)
	time.Sleep(50 * time.Millisecond)
	if val, ok := c.Get("meow"); !ok || val != 2 {
		t.Errorf("Get() after overwrite = %d, %t, expected 2, true", val, ok)
	}
}

func TestCacheSweep(t *testing.T) {
	c := New[string, int](30 * time.Millisecond)
	for _, key := range []string{"a", "b", "c"} {
		c.Put(key, 1)
	}
	time.Sleep(80 * time.Millisecond)
	// Any access past the sweep interval drops the expired entries.
	c.Put("d", 1)
	if size := c.Len(); size != 1 {
		t.Errorf("Len() after sweep = %d, expected 1", size)
	}
}

func TestCacheDelete(t *testing.T) {
	c := New[string, int](time.Minute)
	c.Put("meow", 1)
	c.Delete("meow")
	if _, ok := c.Get("meow"); ok {
		t.Errorf("entry still present after Delete()")
	}
}
