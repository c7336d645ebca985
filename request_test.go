// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"strings"
	"testing"
	"time"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
)

func TestGenerateRequestID(t *testing.T) {
	cli := newTestClient(t)
	first := cli.generateRequestID()
	second := cli.generateRequestID()
	if first == second {
		t.Errorf("consecutive request IDs are equal: %q", first)
	}
	if !strings.HasPrefix(second, cli.uniqueID) {
		t.Errorf("request ID %q doesn't start with unique prefix %q", second, cli.uniqueID)
	}
}

func TestReceiveResponseCorrelation(t *testing.T) {
	cli := newTestClient(t)

	ch := cli.waitResponse("test-id")
	resp := &waBinary.Node{Tag: "iq", Attrs: waBinary.Attrs{"id": "test-id", "type": "result"}}
	if !cli.receiveResponse(resp) {
		t.Fatal("receiveResponse didn't claim node with registered ID")
	}
	select {
	case got := <-ch:
		if got != resp {
			t.Error("received different node than was fed in")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response on channel")
	}

	// A second node with the same ID has no waiter anymore.
	if cli.receiveResponse(resp) {
		t.Error("receiveResponse claimed node after waiter was consumed")
	}
}

func TestReceiveResponseIgnoresOtherNodes(t *testing.T) {
	cli := newTestClient(t)
	cli.waitResponse("wanted")

	if cli.receiveResponse(&waBinary.Node{Tag: "iq", Attrs: waBinary.Attrs{"id": "unwanted"}}) {
		t.Error("receiveResponse claimed node with unknown ID")
	}
	if cli.receiveResponse(&waBinary.Node{Tag: "message", Attrs: waBinary.Attrs{"id": "wanted"}}) {
		t.Error("receiveResponse claimed non-iq node")
	}
}

func TestCancelResponse(t *testing.T) {
	cli := newTestClient(t)
	ch := cli.waitResponse("cancelled")
	cli.cancelResponse("cancelled", ch)
	if cli.receiveResponse(&waBinary.Node{Tag: "iq", Attrs: waBinary.Attrs{"id": "cancelled"}}) {
		t.Error("receiveResponse claimed node after waiter was cancelled")
	}
}

func TestFindNodeHandlerSpecificity(t *testing.T) {
	cli := newTestClient(t)
	var called string
	cli.registerNodeHandler("testnode", nil, func(*waBinary.Node) { called = "generic" })
	cli.registerNodeHandler("testnode", waBinary.Attrs{"type": "special"}, func(*waBinary.Node) { called = "special" })
	cli.registerNodeHandler("testnode", waBinary.Attrs{"type": "special", "mode": "extra"}, func(*waBinary.Node) { called = "extra" })

	run := func(node *waBinary.Node) string {
		called = ""
		handler := cli.findNodeHandler(node)
		if handler != nil {
			handler(node)
		}
		return called
	}

	if got := run(&waBinary.Node{Tag: "testnode"}); got != "generic" {
		t.Errorf("plain node hit %q, want generic", got)
	}
	if got := run(&waBinary.Node{Tag: "testnode", Attrs: waBinary.Attrs{"type": "special"}}); got != "special" {
		t.Errorf("typed node hit %q, want special", got)
	}
	if got := run(&waBinary.Node{Tag: "testnode", Attrs: waBinary.Attrs{"type": "special", "mode": "extra"}}); got != "extra" {
		t.Errorf("double-attr node hit %q, want extra", got)
	}
	if got := run(&waBinary.Node{Tag: "testnode", Attrs: waBinary.Attrs{"type": "other"}}); got != "generic" {
		t.Errorf("mismatched node hit %q, want generic", got)
	}
	if handler := cli.findNodeHandler(&waBinary.Node{Tag: "unknownnode"}); handler != nil {
		t.Error("found handler for unregistered tag")
	}
}

func TestIsDisconnectNode(t *testing.T) {
	if !isDisconnectNode(xmlStreamEndNode) {
		t.Error("xmlstreamend node not recognized as disconnect")
	}
	if isDisconnectNode(&waBinary.Node{Tag: "iq"}) {
		t.Error("iq node recognized as disconnect")
	}
}
