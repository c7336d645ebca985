// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package socket

import "errors"

// Errors returned by FrameSocket and NoiseSocket.
var (
	ErrFrameTooLarge    = errors.New("frame too large")
	ErrSocketClosed     = errors.New("frame socket is closed")
	ErrSocketAlreadyOpen = errors.New("frame socket is already open")
)
