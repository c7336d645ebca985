// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type flakyKeyStore struct {
	*MemoryKeyStore
	failPuts int
	putCalls int
}

func (f *flakyKeyStore) PutKeys(ctx context.Context, data KeyMap) error {
	f.putCalls++
	if f.failPuts > 0 {
		f.failPuts--
		return errors.New("synthetic backing store failure")
	}
	return f.MemoryKeyStore.PutKeys(ctx, data)
}

func TestCachedKeyStoreTransactionVisibility(t *testing.T) {
	backing := NewMemoryKeyStore()
	s := NewCachedKeyStore(backing, nil)
	ctx := context.Background()

	err := s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.PutKey(ctx, KeyTypeSession, "addr.1", []byte("inside")); err != nil {
			return err
		}
		val, err := s.GetKey(ctx, KeyTypeSession, "addr.1")
		if err != nil {
			return err
		}
		if !bytes.Equal(val, []byte("inside")) {
			t.Errorf("read inside transaction got %q, want %q", val, "inside")
		}
		// The write must not reach the backing store before commit.
		committed, err := backing.GetKeys(ctx, KeyTypeSession, []string{"addr.1"})
		if err != nil {
			return err
		}
		if len(committed) != 0 {
			t.Errorf("uncommitted write leaked to backing store: %v", committed)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	val, err := s.GetKey(ctx, KeyTypeSession, "addr.1")
	if err != nil {
		t.Fatalf("read after commit failed: %v", err)
	}
	if !bytes.Equal(val, []byte("inside")) {
		t.Errorf("read after commit got %q, want %q", val, "inside")
	}
}

func TestCachedKeyStoreTransactionRollback(t *testing.T) {
	s := NewCachedKeyStore(NewMemoryKeyStore(), nil)
	ctx := context.Background()

	wantErr := errors.New("abort")
	err := s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.PutKey(ctx, KeyTypePreKey, "1", []byte("discarded")); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("transaction returned %v, want %v", err, wantErr)
	}

	val, err := s.GetKey(ctx, KeyTypePreKey, "1")
	if err != nil {
		t.Fatalf("read after rollback failed: %v", err)
	}
	if val != nil {
		t.Errorf("write survived rollback: %q", val)
	}
}

func TestCachedKeyStoreNestedTransaction(t *testing.T) {
	backing := &flakyKeyStore{MemoryKeyStore: NewMemoryKeyStore()}
	s := NewCachedKeyStore(backing, nil)
	ctx := context.Background()

	err := s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.PutKey(ctx, KeyTypeSenderKey, "g1::a", []byte("outer")); err != nil {
			return err
		}
		return s.Transaction(ctx, func(ctx context.Context) error {
			return s.PutKey(ctx, KeyTypeSenderKey, "g1::b", []byte("inner"))
		})
	})
	if err != nil {
		t.Fatalf("nested transaction failed: %v", err)
	}
	if backing.putCalls != 1 {
		t.Errorf("nested transaction made %d commits, want 1", backing.putCalls)
	}
	res, err := s.GetKeys(ctx, KeyTypeSenderKey, []string{"g1::a", "g1::b"})
	if err != nil {
		t.Fatalf("read after nested commit failed: %v", err)
	}
	if len(res) != 2 {
		t.Errorf("got %d rows after nested commit, want 2", len(res))
	}
}

func TestCachedKeyStoreCommitRetry(t *testing.T) {
	backing := &flakyKeyStore{MemoryKeyStore: NewMemoryKeyStore(), failPuts: 2}
	s := NewCachedKeyStore(backing, nil)
	ctx := context.Background()

	err := s.Transaction(ctx, func(ctx context.Context) error {
		return s.PutKey(ctx, KeyTypeAppStateSyncKey, "k", []byte("v"))
	})
	if err != nil {
		t.Fatalf("transaction failed despite retries: %v", err)
	}
	if backing.putCalls != 3 {
		t.Errorf("commit took %d attempts, want 3", backing.putCalls)
	}
}

func TestCachedKeyStoreDeleteInTransaction(t *testing.T) {
	s := NewCachedKeyStore(NewMemoryKeyStore(), nil)
	ctx := context.Background()

	if err := s.PutKey(ctx, KeyTypePreKey, "5", []byte("consumable")); err != nil {
		t.Fatalf("setup write failed: %v", err)
	}
	err := s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.DeleteKey(ctx, KeyTypePreKey, "5"); err != nil {
			return err
		}
		val, err := s.GetKey(ctx, KeyTypePreKey, "5")
		if err != nil {
			return err
		}
		if val != nil {
			t.Errorf("pending delete not visible inside transaction: %q", val)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
	val, err := s.GetKey(ctx, KeyTypePreKey, "5")
	if err != nil {
		t.Fatalf("read after delete failed: %v", err)
	}
	if val != nil {
		t.Errorf("delete didn't commit: %q", val)
	}
}

func TestCachedKeyStoreConcurrentTransactions(t *testing.T) {
	backing := &flakyKeyStore{MemoryKeyStore: NewMemoryKeyStore()}
	s := NewCachedKeyStore(backing, nil)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Transaction(ctx, func(ctx context.Context) error {
				return s.PutKey(ctx, KeyTypeSession, fmt.Sprintf("addr.%d", i), []byte{byte(i)})
			})
			if err != nil {
				t.Errorf("worker %d transaction failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	ids := make([]string, workers)
	for i := range ids {
		ids[i] = fmt.Sprintf("addr.%d", i)
	}
	res, err := s.GetKeys(ctx, KeyTypeSession, ids)
	if err != nil {
		t.Fatalf("read after concurrent writes failed: %v", err)
	}
	if len(res) != workers {
		t.Errorf("got %d rows after concurrent transactions, want %d", len(res), workers)
	}
	if backing.putCalls != workers {
		t.Errorf("backing store saw %d commits, want %d", backing.putCalls, workers)
	}
}

func TestDevicePreKeyLifecycle(t *testing.T) {
	device := NewDevice(NewMemoryKeyStore(), NoopContainer{}, nil)
	ctx := context.Background()

	batch, err := device.GetOrGenPreKeys(ctx, 10)
	if err != nil {
		t.Fatalf("GetOrGenPreKeys failed: %v", err)
	}
	if len(batch) != 10 {
		t.Fatalf("got %d pre-keys, want 10", len(batch))
	}
	if batch[0].KeyID != 1 {
		t.Errorf("first pre-key ID is %d, want 1", batch[0].KeyID)
	}
	if device.NextPreKeyID != 11 {
		t.Errorf("NextPreKeyID is %d after generating 10, want 11", device.NextPreKeyID)
	}

	// Asking again before upload returns the same batch.
	again, err := device.GetOrGenPreKeys(ctx, 10)
	if err != nil {
		t.Fatalf("second GetOrGenPreKeys failed: %v", err)
	}
	if len(again) != 10 || again[0].KeyID != batch[0].KeyID || !bytes.Equal(again[0].Priv[:], batch[0].Priv[:]) {
		t.Error("unuploaded pre-keys were regenerated instead of reused")
	}

	if err = device.MarkPreKeysAsUploaded(ctx, 10); err != nil {
		t.Fatalf("MarkPreKeysAsUploaded failed: %v", err)
	}
	if device.FirstUnuploadedPreKeyID != 11 {
		t.Errorf("FirstUnuploadedPreKeyID is %d after upload, want 11", device.FirstUnuploadedPreKeyID)
	}

	key, err := device.GetPreKey(ctx, 3)
	if err != nil {
		t.Fatalf("GetPreKey failed: %v", err)
	}
	if key == nil || key.KeyID != 3 {
		t.Fatalf("GetPreKey(3) returned %v", key)
	}
	device.RemovePreKey(3)
	key, err = device.GetPreKey(ctx, 3)
	if err != nil {
		t.Fatalf("GetPreKey after removal failed: %v", err)
	}
	if key != nil {
		t.Error("pre-key still present after removal")
	}
}
