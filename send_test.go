// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Kunboruto20/borutowaileys-library/store"
	"github.com/Kunboruto20/borutowaileys-library/types"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	device := store.NewDevice(store.NewMemoryKeyStore(), store.NoopContainer{}, nil)
	return NewClient(device, nil)
}

func TestPadMessageRoundtrip(t *testing.T) {
	plaintext := []byte("hello world")
	for i := 0; i < 64; i++ {
		padded := padMessage(append([]byte(nil), plaintext...))
		padLen := int(padded[len(padded)-1])
		if padLen < 1 || padLen > 0xf {
			t.Fatalf("pad length %d out of range", padLen)
		}
		if len(padded) != len(plaintext)+padLen {
			t.Fatalf("padded length %d, want %d+%d", len(padded), len(plaintext), padLen)
		}
		unpadded, err := unpadMessage(padded)
		if err != nil {
			t.Fatalf("unpadMessage failed: %v", err)
		}
		if !bytes.Equal(unpadded, plaintext) {
			t.Fatalf("roundtrip mismatch: %q != %q", unpadded, plaintext)
		}
	}
}

func TestUnpadMessageInvalid(t *testing.T) {
	if _, err := unpadMessage([]byte{}); err == nil {
		t.Error("expected error for empty plaintext")
	}
	// Last byte claims 3 bytes of padding, but they're not all 0x03.
	if _, err := unpadMessage([]byte{'h', 'i', 1, 2, 3}); err == nil {
		t.Error("expected error for inconsistent padding")
	}
}

func TestIsValidPadding(t *testing.T) {
	if !isValidPadding([]byte{'h', 'i', 2, 2}) {
		t.Error("expected valid padding")
	}
	if isValidPadding([]byte{'h', 'i', 1, 2}) {
		t.Error("expected invalid padding")
	}
}

func TestGenerateMessageID(t *testing.T) {
	cli := newTestClient(t)
	seen := make(map[types.MessageID]bool)
	for i := 0; i < 100; i++ {
		id := cli.GenerateMessageID()
		if len(id) != 24 {
			t.Fatalf("message ID %q has length %d, want 24", id, len(id))
		}
		if !strings.HasPrefix(id, "3EB0") {
			t.Fatalf("message ID %q doesn't start with 3EB0", id)
		}
		for _, c := range id[4:] {
			if !strings.ContainsRune("0123456789ABCDEF", c) {
				t.Fatalf("message ID %q contains non-hex character %c", id, c)
			}
		}
		if seen[id] {
			t.Fatalf("duplicate message ID %q", id)
		}
		seen[id] = true
	}
}

func TestParticipantListHashV2(t *testing.T) {
	a := types.NewJID("1234567890", types.DefaultUserServer)
	b := types.NewJID("9876543210", types.DefaultUserServer)
	c := types.JID{User: "1234567890", Device: 3, Server: types.DefaultUserServer}

	hash := participantListHashV2([]types.JID{a, b, c})
	if !strings.HasPrefix(hash, "2:") {
		t.Errorf("hash %q doesn't start with 2:", hash)
	}
	// 6 bytes of SHA-256 output in unpadded base64.
	if len(hash) != 2+8 {
		t.Errorf("hash %q has length %d, want 10", hash, len(hash))
	}
	// Order must not matter.
	if reordered := participantListHashV2([]types.JID{c, a, b}); reordered != hash {
		t.Errorf("hash depends on participant order: %q != %q", reordered, hash)
	}
	if other := participantListHashV2([]types.JID{a, b}); other == hash {
		t.Errorf("different participant lists produced the same hash %q", hash)
	}
}

func TestSendMessageValidation(t *testing.T) {
	cli := newTestClient(t)
	ctx := context.Background()

	_, err := cli.SendMessage(ctx, types.JID{User: "123", Device: 5, Server: types.DefaultUserServer}, nil)
	if err != ErrRecipientADJID {
		t.Errorf("expected ErrRecipientADJID for device JID, got %v", err)
	}
	// Not paired yet, so any valid recipient fails with ErrNotLoggedIn.
	_, err = cli.SendMessage(ctx, types.NewJID("123", types.DefaultUserServer), nil)
	if err != ErrNotLoggedIn {
		t.Errorf("expected ErrNotLoggedIn, got %v", err)
	}
}
