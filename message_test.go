// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"fmt"
	"testing"

	"go.mau.fi/libsignal/signalerror"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
	"github.com/Kunboruto20/borutowaileys-library/types"
	"github.com/Kunboruto20/borutowaileys-library/types/events"
)

func TestShouldIgnoreJIDFilter(t *testing.T) {
	cli := newTestClient(t)
	var consulted []types.JID
	cli.ShouldIgnoreJID = func(jid types.JID) bool {
		consulted = append(consulted, jid)
		return true
	}

	sender := types.NewJID("1234567890", types.DefaultUserServer)
	cli.handleEncryptedMessage(&waBinary.Node{
		Tag:   "message",
		Attrs: waBinary.Attrs{"from": sender, "id": "3EB0AABBCC", "t": "1700000000"},
	})
	if len(consulted) != 1 || consulted[0] != sender {
		t.Errorf("ShouldIgnoreJID consulted for %v, want exactly [%v]", consulted, sender)
	}

	// Notices from the bare server JID are exempt from the filter.
	consulted = nil
	cli.handleEncryptedMessage(&waBinary.Node{
		Tag:   "message",
		Attrs: waBinary.Attrs{"from": types.ServerJID, "id": "3EB0AABBCD", "t": "1700000000"},
	})
	if len(consulted) != 0 {
		t.Errorf("ShouldIgnoreJID consulted for server notice: %v", consulted)
	}
}

func TestIsMissingKeysError(t *testing.T) {
	missing := []error{
		signalerror.ErrNoValidSessions,
		signalerror.ErrNoSessionForUser,
		signalerror.ErrNoSenderKeyForUser,
		signalerror.ErrNoSenderKeyStatesInRecord,
	}
	for _, sentinel := range missing {
		wrapped := fmt.Errorf("failed to decrypt group message: %w", sentinel)
		if !isMissingKeysError(wrapped) {
			t.Errorf("%v not recognized as missing keys", sentinel)
		}
	}
	recoverable := []error{
		fmt.Errorf("failed to parse normal message: %w", signalerror.ErrIncompleteMessage),
		fmt.Errorf("failed to decrypt normal message: %w", signalerror.ErrBadMAC),
		fmt.Errorf("plaintext doesn't have expected padding"),
	}
	for _, err := range recoverable {
		if isMissingKeysError(err) {
			t.Errorf("%v incorrectly recognized as missing keys", err)
		}
	}
}

func TestUnavailableMessagePlaceholder(t *testing.T) {
	cli := newTestClient(t)
	var received []interface{}
	cli.AddEventHandler(func(evt interface{}) { received = append(received, evt) })

	sender := types.NewJID("1234567890", types.DefaultUserServer)
	cli.handleEncryptedMessage(&waBinary.Node{
		Tag:     "message",
		Attrs:   waBinary.Attrs{"from": sender, "id": "3EB0MISSING", "t": "1700000000"},
		Content: []waBinary.Node{{Tag: "unavailable", Attrs: waBinary.Attrs{"type": "view_once"}}},
	})
	if len(received) != 1 {
		t.Fatalf("got %d events, want 1", len(received))
	}
	evt, ok := received[0].(*events.UndecryptableMessage)
	if !ok {
		t.Fatalf("got %T, want UndecryptableMessage", received[0])
	}
	if !evt.IsUnavailable {
		t.Error("placeholder message not marked unavailable")
	}
	if evt.UnavailableType != events.UnavailableType("view_once") {
		t.Errorf("unavailable type = %q, want view_once", evt.UnavailableType)
	}
	if evt.Info.ID != "3EB0MISSING" {
		t.Errorf("message ID = %q, want 3EB0MISSING", evt.Info.ID)
	}
}
