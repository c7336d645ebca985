// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package socket implements a websocket connection to the WhatsApp servers
// and the Noise handshake and encryption layers on top of it.
package socket

import (
	"github.com/Kunboruto20/borutowaileys-library/binary/token"
)

const (
	// URL is the websocket URL for the WhatsApp multidevice protocol.
	URL = "wss://web.whatsapp.com/ws/chat"
	// Origin is the Origin header for all websocket connections.
	Origin = "https://web.whatsapp.com"

	// NoiseStartPattern is the Noise protocol pattern name used by the WhatsApp servers.
	NoiseStartPattern = "Noise_XX_25519_AESGCM_SHA256\x00\x00\x00\x00"

	// WAMagicValue is the magic number in the websocket connection header.
	WAMagicValue = 6
)

// WAConnHeader is the websocket connection header, containing the magic value and the
// version of the binary XML token dictionary.
var WAConnHeader = []byte{'W', 'A', WAMagicValue, token.DictVersion}

const (
	// FrameMaxSize is the maximum size of a frame on the wire.
	FrameMaxSize = 2 << 23
	// FrameLengthSize is the number of bytes in the big-endian length prefix of each frame.
	FrameLengthSize = 3
)
