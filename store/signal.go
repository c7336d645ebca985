// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"context"
	"fmt"

	"go.mau.fi/libsignal/ecc"
	groupRecord "go.mau.fi/libsignal/groups/state/record"
	"go.mau.fi/libsignal/keys/identity"
	"go.mau.fi/libsignal/protocol"
	"go.mau.fi/libsignal/serialize"
	"go.mau.fi/libsignal/state/record"
	"go.mau.fi/libsignal/state/store"
)

// SignalProtobufSerializer is the serializer used for all Signal protocol records.
var SignalProtobufSerializer = serialize.NewProtoBufSerializer()

// The libsignal store interfaces predate contexts and don't return errors, so
// the adapter methods below log store failures and return empty values. A
// failed session or sender key load then surfaces as a normal decrypt failure,
// which the message pipeline already handles with a retry receipt.

func (device *Device) GetIdentityKeyPair() *identity.KeyPair {
	return identity.NewKeyPair(
		identity.NewKey(ecc.NewDjbECPublicKey(*device.IdentityKey.Pub)),
		ecc.NewDjbECPrivateKey(*device.IdentityKey.Priv),
	)
}

func (device *Device) GetLocalRegistrationId() uint32 {
	return device.RegistrationID
}

func (device *Device) SaveIdentity(address *protocol.SignalAddress, identityKey *identity.Key) {
	// Identity changes are accepted: the server is the authority on pairing,
	// and rejecting the new identity would just make every message from the
	// re-paired device undecryptable.
	device.Log.Debugf("Saving identity for %s", address.String())
}

func (device *Device) IsTrustedIdentity(address *protocol.SignalAddress, identityKey *identity.Key) bool {
	return true
}

func (device *Device) LoadPreKey(id uint32) *record.PreKey {
	preKey, err := device.GetPreKey(context.TODO(), id)
	if err != nil {
		device.Log.Errorf("Failed to load pre-key %d: %v", id, err)
		return nil
	} else if preKey == nil {
		return nil
	}
	return record.NewPreKey(preKey.KeyID, ecc.NewECKeyPair(
		ecc.NewDjbECPublicKey(*preKey.Pub),
		ecc.NewDjbECPrivateKey(*preKey.Priv),
	), nil)
}

func (device *Device) RemovePreKey(id uint32) {
	err := device.Keys.DeleteKey(context.TODO(), KeyTypePreKey, fmt.Sprintf("%d", id))
	if err != nil {
		device.Log.Errorf("Failed to remove pre-key %d: %v", id, err)
	}
}

func (device *Device) StorePreKey(preKeyID uint32, preKey *record.PreKey) {
	// Pre-keys are generated and stored by GetOrGenPreKeys, never by libsignal.
}

func (device *Device) ContainsPreKey(preKeyID uint32) bool {
	preKey, err := device.GetPreKey(context.TODO(), preKeyID)
	if err != nil {
		device.Log.Errorf("Failed to check if pre-key %d exists: %v", preKeyID, err)
		return false
	}
	return preKey != nil
}

func (device *Device) LoadSession(address *protocol.SignalAddress) *record.Session {
	rawSess, err := device.Keys.GetKey(context.TODO(), KeyTypeSession, address.String())
	if err != nil {
		device.Log.Errorf("Failed to load session with %s: %v", address.String(), err)
		return record.NewSession(SignalProtobufSerializer.Session, SignalProtobufSerializer.State)
	} else if rawSess == nil {
		return record.NewSession(SignalProtobufSerializer.Session, SignalProtobufSerializer.State)
	}
	sess, err := record.NewSessionFromBytes(rawSess, SignalProtobufSerializer.Session, SignalProtobufSerializer.State)
	if err != nil {
		device.Log.Errorf("Failed to deserialize session with %s: %v", address.String(), err)
		return record.NewSession(SignalProtobufSerializer.Session, SignalProtobufSerializer.State)
	}
	return sess
}

func (device *Device) GetSubDeviceSessions(name string) []uint32 {
	return nil
}

func (device *Device) StoreSession(address *protocol.SignalAddress, session *record.Session) {
	err := device.Keys.PutKey(context.TODO(), KeyTypeSession, address.String(), session.Serialize())
	if err != nil {
		device.Log.Errorf("Failed to store session with %s: %v", address.String(), err)
	}
}

func (device *Device) ContainsSession(remoteAddress *protocol.SignalAddress) bool {
	rawSess, err := device.Keys.GetKey(context.TODO(), KeyTypeSession, remoteAddress.String())
	if err != nil {
		device.Log.Errorf("Failed to check if session with %s exists: %v", remoteAddress.String(), err)
		return false
	}
	return rawSess != nil
}

func (device *Device) DeleteSession(remoteAddress *protocol.SignalAddress) {
	err := device.Keys.DeleteKey(context.TODO(), KeyTypeSession, remoteAddress.String())
	if err != nil {
		device.Log.Errorf("Failed to delete session with %s: %v", remoteAddress.String(), err)
	}
}

func (device *Device) DeleteAllSessions() {
	// Not used: sessions are only removed wholesale when the whole store is wiped.
}

func (device *Device) LoadSignedPreKey(signedPreKeyID uint32) *record.SignedPreKey {
	if device.SignedPreKey == nil || signedPreKeyID != device.SignedPreKey.KeyID {
		return nil
	}
	return record.NewSignedPreKey(signedPreKeyID, 0, ecc.NewECKeyPair(
		ecc.NewDjbECPublicKey(*device.SignedPreKey.Pub),
		ecc.NewDjbECPrivateKey(*device.SignedPreKey.Priv),
	), *device.SignedPreKey.Signature, nil)
}

func (device *Device) LoadSignedPreKeys() []*record.SignedPreKey {
	if device.SignedPreKey == nil {
		return nil
	}
	return []*record.SignedPreKey{device.LoadSignedPreKey(device.SignedPreKey.KeyID)}
}

func (device *Device) StoreSignedPreKey(signedPreKeyID uint32, record *record.SignedPreKey) {
	// The signed pre-key is only replaced wholesale through the credentials.
}

func (device *Device) ContainsSignedPreKey(signedPreKeyID uint32) bool {
	return device.SignedPreKey != nil && signedPreKeyID == device.SignedPreKey.KeyID
}

func (device *Device) RemoveSignedPreKey(signedPreKeyID uint32) {
}

func (device *Device) StoreSenderKey(senderKeyName *protocol.SenderKeyName, keyRecord *groupRecord.SenderKey) {
	err := device.Keys.PutKey(context.TODO(), KeyTypeSenderKey, senderKeyAddress(senderKeyName), keyRecord.Serialize())
	if err != nil {
		device.Log.Errorf("Failed to store sender key from %s: %v", senderKeyAddress(senderKeyName), err)
	}
}

func (device *Device) LoadSenderKey(senderKeyName *protocol.SenderKeyName) *groupRecord.SenderKey {
	raw, err := device.Keys.GetKey(context.TODO(), KeyTypeSenderKey, senderKeyAddress(senderKeyName))
	if err != nil {
		device.Log.Errorf("Failed to load sender key from %s: %v", senderKeyAddress(senderKeyName), err)
		return groupRecord.NewSenderKey(SignalProtobufSerializer.SenderKeyRecord, SignalProtobufSerializer.SenderKeyState)
	} else if raw == nil {
		return groupRecord.NewSenderKey(SignalProtobufSerializer.SenderKeyRecord, SignalProtobufSerializer.SenderKeyState)
	}
	key, err := groupRecord.NewSenderKeyFromBytes(raw, SignalProtobufSerializer.SenderKeyRecord, SignalProtobufSerializer.SenderKeyState)
	if err != nil {
		device.Log.Errorf("Failed to deserialize sender key from %s: %v", senderKeyAddress(senderKeyName), err)
		return groupRecord.NewSenderKey(SignalProtobufSerializer.SenderKeyRecord, SignalProtobufSerializer.SenderKeyState)
	}
	return key
}

// senderKeyAddress builds the store row ID for a sender key: groupID::sender address.
func senderKeyAddress(senderKeyName *protocol.SenderKeyName) string {
	return fmt.Sprintf("%s::%s", senderKeyName.GroupID(), senderKeyName.Sender().String())
}

var _ store.SignalProtocol = (*Device)(nil)
