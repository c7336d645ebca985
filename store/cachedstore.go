// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	waLog "github.com/Kunboruto20/borutowaileys-library/util/log"
	"github.com/Kunboruto20/borutowaileys-library/util/ttlcache"
)

// Commit retry parameters for CachedKeyStore transactions.
const (
	maxCommitRetries       = 5
	initialCommitRetryWait = 100 * time.Millisecond
)

const keyCacheTTL = 1 * time.Hour

type txnKey struct{}

type keyTxn struct {
	// pending holds uncommitted writes. A present entry with a nil value is a pending delete.
	pending KeyMap
	depth   int
}

// CachedKeyStore wraps a SignalKeyStore with a read-through TTL cache and
// nestable write transactions.
//
// Several protocol operations (pre-key upload, retry requests with a fresh
// pre-key, pairing completion) must advance multiple rows and counters
// together. Wrapping them in a transaction turns the individual writes into
// one atomic PutKeys batch, committed with retries at the outermost level.
type CachedKeyStore struct {
	backing SignalKeyStore
	log     waLog.Logger

	caches     map[KeyType]*ttlcache.Cache[string, []byte]
	cachesLock sync.Mutex

	// txnLock serializes transactions so their commits can't interleave.
	txnLock sync.Mutex
}

// NewCachedKeyStore wraps the given backing store.
func NewCachedKeyStore(backing SignalKeyStore, log waLog.Logger) *CachedKeyStore {
	if log == nil {
		log = waLog.Noop
	}
	return &CachedKeyStore{
		backing: backing,
		log:     log,
		caches:  make(map[KeyType]*ttlcache.Cache[string, []byte]),
	}
}

func (s *CachedKeyStore) cache(typ KeyType) *ttlcache.Cache[string, []byte] {
	s.cachesLock.Lock()
	defer s.cachesLock.Unlock()
	cache, ok := s.caches[typ]
	if !ok {
		cache = ttlcache.New[string, []byte](keyCacheTTL)
		s.caches[typ] = cache
	}
	return cache
}

func txnFromContext(ctx context.Context) *keyTxn {
	txn, _ := ctx.Value(txnKey{}).(*keyTxn)
	return txn
}

// Transaction runs the given function with all writes collected into a single
// batch, committed when the outermost transaction returns successfully.
// Nested calls join the ongoing transaction. Reads inside the transaction see
// the uncommitted writes. If the commit fails after all retries, none of the
// writes are applied.
func (s *CachedKeyStore) Transaction(ctx context.Context, fn func(context.Context) error) error {
	if txn := txnFromContext(ctx); txn != nil {
		txn.depth++
		err := fn(ctx)
		txn.depth--
		return err
	}
	s.txnLock.Lock()
	defer s.txnLock.Unlock()
	txn := &keyTxn{pending: make(KeyMap)}
	err := fn(context.WithValue(ctx, txnKey{}, txn))
	if err != nil {
		return err
	}
	if len(txn.pending) == 0 {
		return nil
	}
	return s.commit(ctx, txn.pending)
}

func (s *CachedKeyStore) commit(ctx context.Context, data KeyMap) error {
	var err error
	wait := initialCommitRetryWait
	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		if attempt > 0 {
			s.log.Warnf("Retrying key store commit in %v (attempt %d): %v", wait, attempt+1, err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			wait *= 2
		}
		err = s.backing.PutKeys(ctx, data)
		if err == nil {
			s.updateCaches(data)
			return nil
		}
	}
	return fmt.Errorf("key store commit failed after %d attempts: %w", maxCommitRetries, err)
}

func (s *CachedKeyStore) updateCaches(data KeyMap) {
	for typ, rows := range data {
		cache := s.cache(typ)
		for id, value := range rows {
			if value == nil {
				cache.Delete(id)
			} else {
				cache.Put(id, value)
			}
		}
	}
}

// GetKey returns a single row, or nil if the row doesn't exist.
func (s *CachedKeyStore) GetKey(ctx context.Context, typ KeyType, id string) ([]byte, error) {
	res, err := s.GetKeys(ctx, typ, []string{id})
	if err != nil {
		return nil, err
	}
	return res[id], nil
}

// GetKeys returns the requested rows, reading through the cache. Rows that
// don't exist are absent from the result map.
func (s *CachedKeyStore) GetKeys(ctx context.Context, typ KeyType, ids []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(ids))
	var missing []string
	txn := txnFromContext(ctx)
	cache := s.cache(typ)
	for _, id := range ids {
		if txn != nil {
			if value, ok := txn.pending[typ][id]; ok {
				if value != nil {
					result[id] = value
				}
				continue
			}
		}
		if value, ok := cache.Get(id); ok {
			result[id] = value
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		fetched, err := s.backing.GetKeys(ctx, typ, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s keys: %w", typ, err)
		}
		for id, value := range fetched {
			if value != nil {
				cache.Put(id, value)
				result[id] = value
			}
		}
	}
	return result, nil
}

// PutKey writes a single row. Outside a transaction this commits immediately.
func (s *CachedKeyStore) PutKey(ctx context.Context, typ KeyType, id string, value []byte) error {
	return s.PutKeys(ctx, KeyMap{typ: {id: value}})
}

// DeleteKey removes a single row.
func (s *CachedKeyStore) DeleteKey(ctx context.Context, typ KeyType, id string) error {
	return s.PutKeys(ctx, KeyMap{typ: {id: nil}})
}

// PutKeys writes a batch of rows. Inside a transaction the writes are queued
// for the outermost commit; outside they're committed immediately.
func (s *CachedKeyStore) PutKeys(ctx context.Context, data KeyMap) error {
	if txn := txnFromContext(ctx); txn != nil {
		for typ, rows := range data {
			pendingRows, ok := txn.pending[typ]
			if !ok {
				pendingRows = make(map[string][]byte, len(rows))
				txn.pending[typ] = pendingRows
			}
			for id, value := range rows {
				pendingRows[id] = value
			}
		}
		return nil
	}
	s.txnLock.Lock()
	defer s.txnLock.Unlock()
	return s.commit(ctx, data)
}

// DeleteAll flushes the caches and wipes the backing store.
func (s *CachedKeyStore) DeleteAll(ctx context.Context) error {
	s.cachesLock.Lock()
	s.caches = make(map[KeyType]*ttlcache.Cache[string, []byte])
	s.cachesLock.Unlock()
	return s.backing.DeleteAllKeys(ctx)
}
