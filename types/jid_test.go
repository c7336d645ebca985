// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"testing"
)

func TestParseJID(t *testing.T) {
	tests := []struct {
		input    string
		expected JID
	}{
		{"1234567890@s.whatsapp.net", JID{User: "1234567890", Server: DefaultUserServer}},
		{"1234567890:5@s.whatsapp.net", JID{User: "1234567890", Device: 5, Server: DefaultUserServer}},
		{"1234567890.1:5@s.whatsapp.net", JID{User: "1234567890", RawAgent: 1, Device: 5, Server: DefaultUserServer}},
		{"123456789012345678@g.us", JID{User: "123456789012345678", Server: GroupServer}},
		{"9876543210@lid", JID{User: "9876543210", Server: HiddenUserServer}},
		{"1234567890.2:31@hosted", JID{User: "1234567890", RawAgent: 2, Device: 31, Server: HostedServer}},
		{"status@broadcast", StatusBroadcastJID},
		{"s.whatsapp.net", ServerJID},
	}
	for _, test := range tests {
		parsed, err := ParseJID(test.input)
		if err != nil {
			t.Errorf("ParseJID(%q) returned error: %v", test.input, err)
		} else if parsed != test.expected {
			t.Errorf("ParseJID(%q) = %#v, expected %#v", test.input, parsed, test.expected)
		}
	}
}

func TestParseJIDInvalid(t *testing.T) {
	inputs := []string{
		"1234567890:x@s.whatsapp.net",
		"1234567890.1:@s.whatsapp.net",
		"1234567890:99999999@s.whatsapp.net",
	}
	for _, input := range inputs {
		if _, err := ParseJID(input); err == nil {
			t.Errorf("ParseJID(%q) didn't return an error", input)
		}
	}
}

func TestJIDStringRoundtrip(t *testing.T) {
	jids := []JID{
		{User: "1234567890", Server: DefaultUserServer},
		{User: "1234567890", Device: 31, Server: DefaultUserServer},
		{User: "1234567890", RawAgent: 2, Device: 31, Server: HostedServer},
		{User: "123456789012345678", Server: GroupServer},
		NewJID("", GroupServer),
	}
	for _, jid := range jids {
		parsed, err := ParseJID(jid.String())
		if err != nil {
			t.Errorf("ParseJID(%q) returned error: %v", jid.String(), err)
		} else if parsed != jid {
			t.Errorf("ParseJID(%q) = %#v, expected %#v", jid.String(), parsed, jid)
		}
	}
}

func TestToNonAD(t *testing.T) {
	jid := JID{User: "1234567890", Device: 5, Server: DefaultUserServer}
	nonAD := jid.ToNonAD()
	if nonAD.Device != 0 || nonAD.User != jid.User || nonAD.Server != jid.Server {
		t.Errorf("ToNonAD() = %#v", nonAD)
	}
	if plain := NewJID("1234567890", DefaultUserServer); plain.ToNonAD() != plain {
		t.Errorf("ToNonAD() modified a non-AD JID")
	}
}

func TestSignalAddress(t *testing.T) {
	jid := JID{User: "1234567890", Device: 5, Server: DefaultUserServer}
	if addr := jid.SignalAddress().String(); addr != "1234567890:5" {
		t.Errorf("SignalAddress() = %q, expected %q", addr, "1234567890:5")
	}
	lid := JID{User: "9876543210", Device: 2, Server: HiddenUserServer}
	if addr := lid.SignalAddress().String(); addr != "9876543210_1:2" {
		t.Errorf("SignalAddress() = %q, expected %q", addr, "9876543210_1:2")
	}
}
