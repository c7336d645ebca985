// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package socket

import (
	"bytes"
	"testing"

	"github.com/Kunboruto20/borutowaileys-library/util/keys"
)

// runHandshakePair runs both sides of a Noise XX handshake in-process and
// returns the two handshake states, which should have mirrored keys.
func runHandshakePair(t *testing.T) (*NoiseHandshake, *NoiseHandshake) {
	t.Helper()
	clientEphemeral := keys.NewKeyPair()
	serverEphemeral := keys.NewKeyPair()
	serverStatic := keys.NewKeyPair()

	client := NewNoiseHandshake()
	client.Start(NoiseStartPattern, WAConnHeader)
	client.Authenticate(clientEphemeral.Pub[:])

	server := NewNoiseHandshake()
	server.Start(NoiseStartPattern, WAConnHeader)
	server.Authenticate(clientEphemeral.Pub[:])

	// e <-
	client.Authenticate(serverEphemeral.Pub[:])
	server.Authenticate(serverEphemeral.Pub[:])
	if err := client.MixSharedSecretIntoKey(*clientEphemeral.Priv, *serverEphemeral.Pub); err != nil {
		t.Fatalf("client ee mix failed: %v", err)
	}
	if err := server.MixSharedSecretIntoKey(*serverEphemeral.Priv, *clientEphemeral.Pub); err != nil {
		t.Fatalf("server ee mix failed: %v", err)
	}

	// s <- (encrypted static)
	encStatic := server.Encrypt(serverStatic.Pub[:])
	decStatic, err := client.Decrypt(encStatic)
	if err != nil {
		t.Fatalf("client failed to decrypt server static: %v", err)
	}
	if !bytes.Equal(decStatic, serverStatic.Pub[:]) {
		t.Fatalf("server static key changed in transit")
	}
	if err := client.MixSharedSecretIntoKey(*clientEphemeral.Priv, *serverStatic.Pub); err != nil {
		t.Fatalf("client es mix failed: %v", err)
	}
	if err := server.MixSharedSecretIntoKey(*serverStatic.Priv, *clientEphemeral.Pub); err != nil {
		t.Fatalf("server es mix failed: %v", err)
	}
	return client, server
}

func TestNoiseHandshakeSymmetry(t *testing.T) {
	client, server := runHandshakePair(t)

	payload := []byte("handshake payload")
	encrypted := server.Encrypt(payload)
	decrypted, err := client.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("failed to decrypt payload: %v", err)
	}
	if !bytes.Equal(decrypted, payload) {
		t.Errorf("payload changed in transit: %q != %q", decrypted, payload)
	}
}

func TestNoiseHandshakeMACFailure(t *testing.T) {
	client, server := runHandshakePair(t)

	encrypted := server.Encrypt([]byte("payload"))
	encrypted[0] ^= 0xFF
	if _, err := client.Decrypt(encrypted); err == nil {
		t.Errorf("expected decryption of tampered ciphertext to fail")
	}
}
