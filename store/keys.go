// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"context"
)

// KeyType is the type of a row in a SignalKeyStore.
type KeyType string

// The key types the client stores.
const (
	KeyTypePreKey              KeyType = "pre-key"
	KeyTypeSession             KeyType = "session"
	KeyTypeSenderKey           KeyType = "sender-key"
	KeyTypeSenderKeyMemory     KeyType = "sender-key-memory"
	KeyTypeAppStateSyncKey     KeyType = "app-state-sync-key"
	KeyTypeAppStateSyncVersion KeyType = "app-state-sync-version"
)

// AllKeyTypes lists every key type, for store implementations that keep them in separate tables.
var AllKeyTypes = []KeyType{
	KeyTypePreKey,
	KeyTypeSession,
	KeyTypeSenderKey,
	KeyTypeSenderKeyMemory,
	KeyTypeAppStateSyncKey,
	KeyTypeAppStateSyncVersion,
}

// KeyMap is a batch of rows grouped by type. A nil value means the row should be deleted.
type KeyMap = map[KeyType]map[string][]byte

// SignalKeyStore is the application-provided persistence layer for Signal key material.
//
// Implementations must make PutKeys atomic: either all rows in the batch are
// written, or none are. The cached store on top of this interface relies on
// that to keep multi-row protocol operations consistent.
type SignalKeyStore interface {
	// GetKeys returns the requested rows. Missing rows are simply absent from the result map.
	GetKeys(ctx context.Context, typ KeyType, ids []string) (map[string][]byte, error)
	// PutKeys writes a batch of rows atomically. Rows with a nil value are deleted.
	PutKeys(ctx context.Context, data KeyMap) error
	// DeleteAllKeys wipes all rows of all types.
	DeleteAllKeys(ctx context.Context) error
}

// DeviceContainer is the application-provided persistence layer for device credentials.
type DeviceContainer interface {
	// PutDevice saves the mutable credential fields of the device.
	PutDevice(ctx context.Context, device *Device) error
	// DeleteDevice removes the device credentials entirely.
	DeleteDevice(ctx context.Context, device *Device) error
}
