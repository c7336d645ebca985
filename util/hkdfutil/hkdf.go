// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package hkdfutil contains a simple wrapper for golang.org/x/crypto/hkdf that reads a specified number of bytes.
package hkdfutil

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

func SHA256(data, salt, info []byte, length uint8) []byte {
	output := make([]byte, length)
	reader := hkdf.New(sha256.New, data, salt, info)
	n, err := io.ReadFull(reader, output)
	if err != nil {
		// This should never happen
		panic(fmt.Errorf("failed to expand key: %w", err))
	} else if uint8(n) != length {
		// This should also never happen
		panic(fmt.Errorf("didn't read enough bytes when expanding key: %d != %d", n, length))
	}
	return output
}
