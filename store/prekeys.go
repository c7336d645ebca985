// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Kunboruto20/borutowaileys-library/util/keys"
)

// WantedPreKeyCount is the number of pre-keys the server should have available for this device.
const WantedPreKeyCount = 30

func preKeyID(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

func serializePreKey(key *keys.PreKey) []byte {
	data := make([]byte, 64)
	copy(data[:32], key.Priv[:])
	copy(data[32:], key.Pub[:])
	return data
}

func deserializePreKey(id uint32, data []byte) (*keys.PreKey, error) {
	if len(data) != 64 {
		return nil, fmt.Errorf("unexpected pre-key data length %d", len(data))
	}
	var priv [32]byte
	copy(priv[:], data[:32])
	return &keys.PreKey{
		KeyPair: *keys.NewKeyPairFromPrivateKey(priv),
		KeyID:   id,
	}, nil
}

// GetPreKey returns the pre-key with the given ID, or nil if it has been consumed.
func (device *Device) GetPreKey(ctx context.Context, id uint32) (*keys.PreKey, error) {
	data, err := device.Keys.GetKey(ctx, KeyTypePreKey, preKeyID(id))
	if err != nil {
		return nil, err
	} else if data == nil {
		return nil, nil
	}
	return deserializePreKey(id, data)
}

// GetOrGenPreKeys returns the batch of pre-keys that haven't been uploaded to
// the server yet, generating new ones as needed to reach the wanted count.
// The new keys and the advanced counter are committed in one transaction.
func (device *Device) GetOrGenPreKeys(ctx context.Context, count uint32) ([]*keys.PreKey, error) {
	var result []*keys.PreKey
	err := device.Keys.Transaction(ctx, func(ctx context.Context) error {
		existingIDs := make([]string, 0, device.NextPreKeyID-device.FirstUnuploadedPreKeyID)
		for id := device.FirstUnuploadedPreKeyID; id < device.NextPreKeyID; id++ {
			existingIDs = append(existingIDs, preKeyID(id))
		}
		existing, err := device.Keys.GetKeys(ctx, KeyTypePreKey, existingIDs)
		if err != nil {
			return fmt.Errorf("failed to get unuploaded pre-keys: %w", err)
		}
		for id := device.FirstUnuploadedPreKeyID; id < device.NextPreKeyID; id++ {
			if data, ok := existing[preKeyID(id)]; ok {
				key, err := deserializePreKey(id, data)
				if err != nil {
					return err
				}
				result = append(result, key)
			}
		}
		if uint32(len(result)) >= count {
			result = result[:count]
			return nil
		}
		newRows := make(map[string][]byte)
		for uint32(len(result)) < count {
			key := keys.NewPreKey(device.NextPreKeyID)
			device.NextPreKeyID++
			newRows[preKeyID(key.KeyID)] = serializePreKey(key)
			result = append(result, key)
		}
		if err = device.Keys.PutKeys(ctx, KeyMap{KeyTypePreKey: newRows}); err != nil {
			return fmt.Errorf("failed to store new pre-keys: %w", err)
		}
		return device.Save(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GenOnePreKey generates and stores a single new pre-key, for attaching to retry receipts.
func (device *Device) GenOnePreKey(ctx context.Context) (*keys.PreKey, error) {
	var key *keys.PreKey
	err := device.Keys.Transaction(ctx, func(ctx context.Context) error {
		key = keys.NewPreKey(device.NextPreKeyID)
		device.NextPreKeyID++
		err := device.Keys.PutKey(ctx, KeyTypePreKey, preKeyID(key.KeyID), serializePreKey(key))
		if err != nil {
			return fmt.Errorf("failed to store new pre-key: %w", err)
		}
		return device.Save(ctx)
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

// MarkPreKeysAsUploaded advances the uploaded marker after a successful upload iq.
func (device *Device) MarkPreKeysAsUploaded(ctx context.Context, upToID uint32) error {
	if upToID >= device.FirstUnuploadedPreKeyID {
		device.FirstUnuploadedPreKeyID = upToID + 1
	}
	return device.Save(ctx)
}
