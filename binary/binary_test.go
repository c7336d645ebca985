// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package binary

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/Kunboruto20/borutowaileys-library/binary/token"
	"github.com/Kunboruto20/borutowaileys-library/types"
)

func roundtrip(t *testing.T, n Node) *Node {
	t.Helper()
	data, err := Marshal(n)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	unpacked, err := Unpack(data)
	if err != nil {
		t.Fatalf("Unpack() error: %v", err)
	}
	decoded, err := Unmarshal(unpacked)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	return decoded
}

func TestRoundtripSimple(t *testing.T) {
	n := Node{
		Tag: "iq",
		Attrs: Attrs{
			"id":    "123.456-789",
			"type":  "get",
			"xmlns": "w:p",
			"to":    types.ServerJID,
		},
		Content: []Node{{Tag: "ping"}},
	}
	decoded := roundtrip(t, n)
	if !reflect.DeepEqual(*decoded, n) {
		t.Errorf("roundtrip mismatch: %s != %s", decoded.XMLString(), n.XMLString())
	}
}

func TestRoundtripNumericJID(t *testing.T) {
	jid, err := types.ParseJID("40712345678@s.whatsapp.net")
	if err != nil {
		t.Fatalf("ParseJID() error: %v", err)
	}
	n := Node{
		Tag:     "message",
		Attrs:   Attrs{"to": jid, "id": "3EB0AABBCC", "type": "text"},
		Content: []Node{{Tag: "enc", Attrs: Attrs{"v": "2", "type": "pkmsg"}, Content: []byte{0x33, 0x08, 0x01}}},
	}
	decoded := roundtrip(t, n)
	if !reflect.DeepEqual(*decoded, n) {
		t.Errorf("roundtrip mismatch: %s != %s", decoded.XMLString(), n.XMLString())
	}
	if decoded.Attrs["to"].(types.JID) != jid {
		t.Errorf("JID changed in roundtrip: %v != %v", decoded.Attrs["to"], jid)
	}
}

func TestRoundtripADJID(t *testing.T) {
	jid := types.NewADJID("40712345678", 0, 13)
	n := Node{Tag: "receipt", Attrs: Attrs{"from": jid, "type": "retry"}}
	decoded := roundtrip(t, n)
	decodedJID := decoded.Attrs["from"].(types.JID)
	if decodedJID != jid {
		t.Errorf("AD JID changed in roundtrip: %v != %v", decodedJID, jid)
	}
	if decodedJID.Device != 13 {
		t.Errorf("device lost in roundtrip: %d", decodedJID.Device)
	}
}

func TestRoundtripUntokenizedStrings(t *testing.T) {
	n := Node{
		Tag:     "custom-unknown-tag",
		Attrs:   Attrs{"weird attribute": "with a value that is definitely not a token"},
		Content: []byte("hello world"),
	}
	decoded := roundtrip(t, n)
	if !reflect.DeepEqual(*decoded, n) {
		t.Errorf("roundtrip mismatch: %s != %s", decoded.XMLString(), n.XMLString())
	}
}

func TestRoundtripNibblePacking(t *testing.T) {
	// All-digit strings (plus - and .) should be nibble-packed into half the bytes.
	n := Node{Tag: "ack", Attrs: Attrs{"id": "1234567890"}}
	data, err := Marshal(n)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if bytes.Contains(data, []byte("1234567890")) {
		t.Errorf("numeric attribute was not packed: %x", data)
	}
	decoded := roundtrip(t, n)
	if decoded.Attrs["id"] != "1234567890" {
		t.Errorf("nibble-packed value changed in roundtrip: %v", decoded.Attrs["id"])
	}
}

func TestRoundtripDoubleByteToken(t *testing.T) {
	n := Node{Tag: "notification", Attrs: Attrs{"type": "reaction"}}
	data, err := Marshal(n)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	decoded := roundtrip(t, n)
	if decoded.Attrs["type"] != "reaction" {
		t.Errorf("double-byte token changed in roundtrip: %v", decoded.Attrs["type"])
	}
	// token + dictionary marker is 2 bytes instead of 9
	if bytes.Contains(data, []byte("reaction")) {
		t.Errorf("double-byte token was written inline: %x", data)
	}
}

func TestRoundtripLowercaseHex(t *testing.T) {
	// Unpacking hex always yields uppercase, so lowercase hex strings must be
	// written as plain strings to survive a roundtrip.
	n := Node{Tag: "iq", Attrs: Attrs{"sid": "abc123def"}}
	decoded := roundtrip(t, n)
	if decoded.Attrs["sid"] != "abc123def" {
		t.Errorf("lowercase hex changed in roundtrip: %v", decoded.Attrs["sid"])
	}

	// Uppercase hex still gets packed into half the bytes.
	packed := Node{Tag: "iq", Attrs: Attrs{"sid": "AABB12CCDD"}}
	data, err := Marshal(packed)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if bytes.Contains(data, []byte("AABB12CCDD")) {
		t.Errorf("uppercase hex attribute was not packed: %x", data)
	}
	decoded = roundtrip(t, packed)
	if decoded.Attrs["sid"] != "AABB12CCDD" {
		t.Errorf("uppercase hex changed in roundtrip: %v", decoded.Attrs["sid"])
	}
}

func TestUnpackEmpty(t *testing.T) {
	if _, err := Unpack(nil); err == nil {
		t.Error("Unpack(nil) didn't return an error")
	}
	if _, err := Unpack([]byte{}); err == nil {
		t.Error("Unpack of empty frame didn't return an error")
	}
}

func TestUnmarshalInvalidToken(t *testing.T) {
	// List8 with size 2, then an unassigned token byte as the tag.
	data := []byte{token.List8, 2, 235, 0}
	_, err := Unmarshal(data)
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestUnmarshalTruncated(t *testing.T) {
	n := Node{Tag: "message", Attrs: Attrs{"id": "abc"}, Content: []byte{1, 2, 3, 4}}
	data, err := Marshal(n)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	unpacked, _ := Unpack(data)
	for i := 1; i < len(unpacked); i++ {
		if _, err := Unmarshal(unpacked[:i]); err == nil {
			t.Errorf("expected error unmarshaling %d/%d bytes", i, len(unpacked))
		}
	}
}

func TestRoundtripNested(t *testing.T) {
	n := Node{
		Tag:   "usync",
		Attrs: Attrs{"sid": "abc", "mode": "query", "context": "message"},
		Content: []Node{
			{Tag: "query", Content: []Node{{Tag: "devices", Attrs: Attrs{"version": "2"}}}},
			{Tag: "list", Content: []Node{
				{Tag: "user", Attrs: Attrs{"jid": types.NewJID("1234", types.DefaultUserServer)}},
				{Tag: "user", Attrs: Attrs{"jid": types.NewJID("5678", types.DefaultUserServer)}},
			}},
		},
	}
	decoded := roundtrip(t, n)
	if !reflect.DeepEqual(*decoded, n) {
		t.Errorf("roundtrip mismatch: %s != %s", decoded.XMLString(), n.XMLString())
	}
}
