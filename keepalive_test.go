// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"testing"
)

func TestServerTrafficTrackedPerClient(t *testing.T) {
	active := newTestClient(t)
	idle := newTestClient(t)

	active.markServerTraffic()
	if active.lastDataReceived.Load() == 0 {
		t.Error("markServerTraffic didn't record a timestamp")
	}
	if idle.lastDataReceived.Load() != 0 {
		t.Error("traffic on one client leaked into another client's staleness tracking")
	}
}
