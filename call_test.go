// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"testing"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
	"github.com/Kunboruto20/borutowaileys-library/types"
	"github.com/Kunboruto20/borutowaileys-library/types/events"
)

func TestCallFlagInheritance(t *testing.T) {
	cli := newTestClient(t)
	var received []interface{}
	cli.AddEventHandler(func(evt interface{}) { received = append(received, evt) })

	caller := types.NewJID("1234567890", types.DefaultUserServer)
	cli.handleCallEvent(&waBinary.Node{
		Tag:   "call",
		Attrs: waBinary.Attrs{"from": caller, "t": "1700000000"},
		Content: []waBinary.Node{{
			Tag:     "offer",
			Attrs:   waBinary.Attrs{"call-creator": caller, "call-id": "A1B2C3"},
			Content: []waBinary.Node{{Tag: "video"}},
		}},
	})
	if len(received) != 1 {
		t.Fatalf("got %d events after offer, want 1", len(received))
	}
	offer, ok := received[0].(*events.CallOffer)
	if !ok {
		t.Fatalf("got %T, want CallOffer", received[0])
	}
	if !offer.IsVideo || offer.IsGroup {
		t.Errorf("offer flags = video:%v group:%v, want video:true group:false", offer.IsVideo, offer.IsGroup)
	}

	// Later stanzas of the same call don't repeat the flags; they come from
	// the cached offer.
	cli.handleCallEvent(&waBinary.Node{
		Tag:   "call",
		Attrs: waBinary.Attrs{"from": caller, "t": "1700000010"},
		Content: []waBinary.Node{{
			Tag:   "accept",
			Attrs: waBinary.Attrs{"call-creator": caller, "call-id": "A1B2C3"},
		}},
	})
	if len(received) != 2 {
		t.Fatalf("got %d events after accept, want 2", len(received))
	}
	accept, ok := received[1].(*events.CallAccept)
	if !ok {
		t.Fatalf("got %T, want CallAccept", received[1])
	}
	if !accept.IsVideo {
		t.Error("accept did not inherit the video flag from the offer")
	}

	// Unknown calls have nothing to inherit.
	cli.handleCallEvent(&waBinary.Node{
		Tag:   "call",
		Attrs: waBinary.Attrs{"from": caller, "t": "1700000020"},
		Content: []waBinary.Node{{
			Tag:   "terminate",
			Attrs: waBinary.Attrs{"call-creator": caller, "call-id": "OTHER", "reason": "timeout"},
		}},
	})
	terminate, ok := received[2].(*events.CallTerminate)
	if !ok {
		t.Fatalf("got %T, want CallTerminate", received[2])
	}
	if terminate.IsVideo || terminate.IsGroup {
		t.Error("terminate for unknown call inherited flags from an unrelated offer")
	}
}
