// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestDispatchEventImmediate(t *testing.T) {
	cli := newTestClient(t)
	var received []interface{}
	cli.AddEventHandler(func(evt interface{}) { received = append(received, evt) })

	cli.dispatchEvent("one")
	if len(received) != 1 || received[0] != "one" {
		t.Errorf("event not delivered immediately outside a stanza frame: %v", received)
	}
}

func TestDispatchEventBuffered(t *testing.T) {
	cli := newTestClient(t)
	var received []interface{}
	cli.AddEventHandler(func(evt interface{}) { received = append(received, evt) })

	cli.eventBuffer.begin()
	cli.dispatchEvent("first")
	cli.dispatchEvent("second")
	if len(received) != 0 {
		t.Fatalf("events delivered while buffer active: %v", received)
	}
	cli.flushEventBuffer()
	if len(received) != 2 || received[0] != "first" || received[1] != "second" {
		t.Errorf("flushed events wrong or out of order: %v", received)
	}

	// After the flush, dispatch goes straight through again.
	cli.dispatchEvent("third")
	if len(received) != 3 || received[2] != "third" {
		t.Errorf("event not delivered after flush: %v", received)
	}
}

func TestDispatchEventConcurrent(t *testing.T) {
	cli := newTestClient(t)
	var received atomic.Int64
	cli.AddEventHandler(func(interface{}) { received.Add(1) })

	// Background goroutines dispatch events while the stanza goroutine opens
	// and flushes buffer frames. Nothing may get lost either way.
	const workers = 8
	const perWorker = 200
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < perWorker; j++ {
				cli.dispatchEvent("background")
			}
		}()
	}
	close(start)
	for i := 0; i < 100; i++ {
		cli.eventBuffer.begin()
		cli.dispatchEvent("stanza")
		cli.flushEventBuffer()
	}
	wg.Wait()
	cli.flushEventBuffer()

	want := int64(workers*perWorker + 100)
	if got := received.Load(); got != want {
		t.Errorf("delivered %d events, want %d", got, want)
	}
}

func TestDeliverEventPanicRecovery(t *testing.T) {
	cli := newTestClient(t)
	var reported string
	cli.OnUnexpectedError = func(err error, context string) { reported = context }
	cli.AddEventHandler(func(interface{}) { panic("boom") })

	cli.dispatchEvent("trigger")
	if reported == "" {
		t.Error("panic in event handler was not reported through OnUnexpectedError")
	}
}
