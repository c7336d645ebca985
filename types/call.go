// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"time"
)

// BasicCallMeta contains basic metadata about a call.
type BasicCallMeta struct {
	From        JID
	Timestamp   time.Time
	CallCreator JID
	CallID      string
	// IsVideo and IsGroup come from the call offer. Later stanzas of the same
	// call don't repeat them, so they're filled in from the cached offer.
	IsVideo bool
	IsGroup bool
}

// CallRemoteMeta contains remote platform metadata about a call.
type CallRemoteMeta struct {
	RemotePlatform string // The platform of the remote caller
	RemoteVersion  string // The version of the remote caller
}
