// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"fmt"
	"runtime/debug"
	"sync"
)

// eventBuffer collects events emitted while one stanza is being handled, so
// listeners see them dispatched together and in emission order after the
// handler returns. Background goroutines dispatch events concurrently with
// stanza handling, so all access goes through the lock.
type eventBuffer struct {
	lock    sync.Mutex
	active  bool
	pending []interface{}
}

func (buf *eventBuffer) begin() {
	buf.lock.Lock()
	buf.active = true
	buf.pending = buf.pending[:0]
	buf.lock.Unlock()
}

func (buf *eventBuffer) end() []interface{} {
	buf.lock.Lock()
	events := buf.pending
	buf.active = false
	buf.pending = nil
	buf.lock.Unlock()
	return events
}

// add buffers the event if a stanza frame is active. Returns false if the
// caller should deliver the event directly instead.
func (buf *eventBuffer) add(evt interface{}) bool {
	buf.lock.Lock()
	defer buf.lock.Unlock()
	if !buf.active {
		return false
	}
	buf.pending = append(buf.pending, evt)
	return true
}

// dispatchEvent sends the event to registered handlers. Inside a stanza
// handler the event is buffered until the handler returns; outside one it is
// delivered immediately.
func (cli *Client) dispatchEvent(evt interface{}) {
	if cli.eventBuffer.add(evt) {
		return
	}
	cli.deliverEvent(evt)
}

func (cli *Client) flushEventBuffer() {
	for _, evt := range cli.eventBuffer.end() {
		cli.deliverEvent(evt)
	}
}

func (cli *Client) deliverEvent(evt interface{}) {
	t := cli.eventHandlersLock.RLock()
	defer func() {
		cli.eventHandlersLock.RUnlock(t)
		if err := recover(); err != nil {
			cli.Log.Errorf("Event handler panicked while handling a %T: %v\n%s", evt, err, debug.Stack())
			cli.unexpectedError(fmt.Errorf("panic: %v", err), fmt.Sprintf("event handler for %T", evt))
		}
	}()
	for _, handler := range cli.eventHandlers {
		handler.fn(evt)
	}
}
