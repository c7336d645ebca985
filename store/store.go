// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package store contains the Device struct with the client's credentials,
// the interfaces for persisting them, and the Signal protocol store adapter.
package store

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.mau.fi/util/random"

	waProto "github.com/Kunboruto20/borutowaileys-library/binary/proto"
	"github.com/Kunboruto20/borutowaileys-library/types"
	"github.com/Kunboruto20/borutowaileys-library/util/keys"
	waLog "github.com/Kunboruto20/borutowaileys-library/util/log"
)

// AccountSettings contains the settings synced from the primary device.
type AccountSettings struct {
	UnarchiveChats bool
}

// Device contains the credentials of one linked device and handles to its key stores.
//
// The key pairs and the registration ID are created once by NewDevice and
// never change. ID, LID, Account and the pre-key counters are filled in and
// advanced over the lifetime of the pairing.
type Device struct {
	Log waLog.Logger

	NoiseKey       *keys.KeyPair
	IdentityKey    *keys.KeyPair
	SignedPreKey   *keys.PreKey
	RegistrationID uint32
	AdvSecretKey   []byte

	// PairingEphemeralKeyPair is only used during phone-number pairing.
	PairingEphemeralKeyPair *keys.KeyPair

	ID       *types.JID
	LID      types.JID
	Account  *waProto.ADVSignedDeviceIdentity
	Platform string
	// BusinessName and PushName mirror the "me" contact info on the primary device.
	BusinessName string
	PushName     string

	// NextPreKeyID is the ID the next generated pre-key will get.
	// FirstUnuploadedPreKeyID marks the start of the generated-but-not-uploaded batch,
	// so NextPreKeyID > FirstUnuploadedPreKeyID always holds.
	NextPreKeyID            uint32
	FirstUnuploadedPreKeyID uint32

	Registered   bool
	RoutingInfo  []byte
	LastPropHash string
	Settings     AccountSettings

	Keys      *CachedKeyStore
	Container DeviceContainer
}

// NewDevice creates a new device with fresh credentials, wired to the given stores.
func NewDevice(keyStore SignalKeyStore, container DeviceContainer, log waLog.Logger) *Device {
	if log == nil {
		log = waLog.Noop
	}
	device := &Device{
		Log: log,

		NoiseKey:                keys.NewKeyPair(),
		IdentityKey:             keys.NewKeyPair(),
		RegistrationID:          binary.BigEndian.Uint32(random.Bytes(4))%16380 + 1,
		AdvSecretKey:            random.Bytes(32),
		PairingEphemeralKeyPair: keys.NewKeyPair(),

		NextPreKeyID:            1,
		FirstUnuploadedPreKeyID: 1,

		Keys:      NewCachedKeyStore(keyStore, log.Sub("Keys")),
		Container: container,
	}
	device.SignedPreKey = device.IdentityKey.CreateSignedPreKey(1)
	return device
}

// Initialized returns true if the device has an identity, i.e. it was either
// freshly created or loaded from the container.
func (device *Device) Initialized() bool {
	return device != nil && device.NoiseKey != nil && device.IdentityKey != nil
}

// GetJID returns the JID of the device, or an empty JID if it's not paired yet.
func (device *Device) GetJID() types.JID {
	if device == nil || device.ID == nil {
		return types.EmptyJID
	}
	return *device.ID
}

// Save persists the mutable credential fields through the container.
func (device *Device) Save(ctx context.Context) error {
	if device.Container == nil {
		return nil
	}
	err := device.Container.PutDevice(ctx, device)
	if err != nil {
		return fmt.Errorf("failed to save device: %w", err)
	}
	return nil
}

// Delete wipes the device credentials and all key rows. Used after logout.
func (device *Device) Delete(ctx context.Context) error {
	if err := device.Keys.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	if device.Container != nil {
		if err := device.Container.DeleteDevice(ctx, device); err != nil {
			return fmt.Errorf("failed to delete device: %w", err)
		}
	}
	device.ID = nil
	device.Account = nil
	return nil
}
