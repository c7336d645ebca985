// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"sync"
)

// MemoryKeyStore is a reference SignalKeyStore implementation that keeps
// everything in memory. Useful for tests and throwaway sessions.
type MemoryKeyStore struct {
	lock sync.RWMutex
	data map[KeyType]map[string][]byte
}

// NewMemoryKeyStore creates an empty in-memory key store.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{data: make(map[KeyType]map[string][]byte)}
}

func (m *MemoryKeyStore) GetKeys(_ context.Context, typ KeyType, ids []string) (map[string][]byte, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	rows := m.data[typ]
	result := make(map[string][]byte, len(ids))
	for _, id := range ids {
		if value, ok := rows[id]; ok {
			valCopy := make([]byte, len(value))
			copy(valCopy, value)
			result[id] = valCopy
		}
	}
	return result, nil
}

func (m *MemoryKeyStore) PutKeys(_ context.Context, data KeyMap) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	for typ, rows := range data {
		stored, ok := m.data[typ]
		if !ok {
			stored = make(map[string][]byte, len(rows))
			m.data[typ] = stored
		}
		for id, value := range rows {
			if value == nil {
				delete(stored, id)
			} else {
				valCopy := make([]byte, len(value))
				copy(valCopy, value)
				stored[id] = valCopy
			}
		}
	}
	return nil
}

func (m *MemoryKeyStore) DeleteAllKeys(_ context.Context) error {
	m.lock.Lock()
	m.data = make(map[KeyType]map[string][]byte)
	m.lock.Unlock()
	return nil
}

var _ SignalKeyStore = (*MemoryKeyStore)(nil)

// NoopContainer is a DeviceContainer that doesn't persist anything.
type NoopContainer struct{}

func (NoopContainer) PutDevice(context.Context, *Device) error    { return nil }
func (NoopContainer) DeleteDevice(context.Context, *Device) error { return nil }

var _ DeviceContainer = NoopContainer{}
