// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"testing"
	"time"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
	"github.com/Kunboruto20/borutowaileys-library/types"
)

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	if cfg.ConnectTimeout != 20*time.Second {
		t.Errorf("ConnectTimeout = %v, want 20s", cfg.ConnectTimeout)
	}
	if cfg.KeepAliveInterval != 25*time.Second {
		t.Errorf("KeepAliveInterval = %v, want 25s", cfg.KeepAliveInterval)
	}
	if cfg.DefaultQueryTimeout != 60*time.Second {
		t.Errorf("DefaultQueryTimeout = %v, want 60s", cfg.DefaultQueryTimeout)
	}
	if cfg.MaxMsgRetryCount != 5 {
		t.Errorf("MaxMsgRetryCount = %d, want 5", cfg.MaxMsgRetryCount)
	}
	if cfg.MaxReconnectAttempts != 5 {
		t.Errorf("MaxReconnectAttempts = %d, want 5", cfg.MaxReconnectAttempts)
	}
	if cfg.FloodThreshold != 50 {
		t.Errorf("FloodThreshold = %d, want 50", cfg.FloodThreshold)
	}
	if cfg.FloodWindow != 10*time.Second {
		t.Errorf("FloodWindow = %v, want 10s", cfg.FloodWindow)
	}
}

func TestEnqueueNodeRouting(t *testing.T) {
	cli := newTestClient(t)

	live := &waBinary.Node{Tag: "message", Attrs: waBinary.Attrs{"id": "live"}}
	cli.enqueueNode(live)
	select {
	case got := <-cli.handlerQueue:
		if got != live {
			t.Error("handler queue returned wrong node")
		}
	default:
		t.Fatal("live node not in handler queue")
	}
	select {
	case <-cli.offlineQueue:
		t.Fatal("live node ended up in offline queue")
	default:
	}

	offline := &waBinary.Node{Tag: "message", Attrs: waBinary.Attrs{"id": "buffered", "offline": "1"}}
	cli.enqueueNode(offline)
	select {
	case got := <-cli.offlineQueue:
		if got != offline {
			t.Error("offline queue returned wrong node")
		}
	default:
		t.Fatal("offline node not in offline queue")
	}
	cli.offlineSync.Lock()
	if cli.pendingOffline != 1 {
		t.Errorf("pendingOffline = %d, want 1", cli.pendingOffline)
	}
	if cli.offlineSeenCount != 1 {
		t.Errorf("offlineSeenCount = %d, want 1", cli.offlineSeenCount)
	}
	cli.offlineSync.Unlock()
}

func TestCheckFlood(t *testing.T) {
	cli := newTestClient(t)
	cli.Config.FloodThreshold = 3
	cli.Config.FloodWindow = time.Minute

	sender := types.NewJID("1234567890", types.DefaultUserServer)
	for i := 0; i < 3; i++ {
		if cli.checkFlood(sender) {
			t.Fatalf("message %d flagged as flood below threshold", i+1)
		}
	}
	if !cli.checkFlood(sender) {
		t.Error("message above threshold not flagged as flood")
	}
	// An AD JID of the same user shares the window.
	if !cli.checkFlood(types.JID{User: "1234567890", Device: 2, Server: types.DefaultUserServer}) {
		t.Error("flood window not shared across devices of the same user")
	}
	// Other senders are unaffected.
	if cli.checkFlood(types.NewJID("9876543210", types.DefaultUserServer)) {
		t.Error("unrelated sender flagged as flood")
	}
}

func TestCheckFloodDisabled(t *testing.T) {
	cli := newTestClient(t)
	cli.Config.FloodThreshold = 0

	sender := types.NewJID("1234567890", types.DefaultUserServer)
	for i := 0; i < 100; i++ {
		if cli.checkFlood(sender) {
			t.Fatal("flood check triggered while disabled")
		}
	}
}

func TestAddRemoveEventHandler(t *testing.T) {
	cli := newTestClient(t)
	var calls int
	id := cli.AddEventHandler(func(interface{}) { calls++ })
	cli.dispatchEvent("test")
	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}
	if !cli.RemoveEventHandler(id) {
		t.Fatal("RemoveEventHandler returned false for existing handler")
	}
	cli.dispatchEvent("test")
	if calls != 1 {
		t.Errorf("handler called after removal")
	}
	if cli.RemoveEventHandler(id) {
		t.Error("RemoveEventHandler returned true for already-removed handler")
	}
}

func TestExpectedDisconnect(t *testing.T) {
	cli := newTestClient(t)
	if cli.isExpectedDisconnect() {
		t.Error("fresh client expects a disconnect")
	}
	cli.expectDisconnect()
	if !cli.isExpectedDisconnect() {
		t.Error("expectDisconnect didn't stick")
	}
	cli.resetExpectedDisconnect()
	if cli.isExpectedDisconnect() {
		t.Error("resetExpectedDisconnect didn't clear the flag")
	}
}
