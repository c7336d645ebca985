// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package socket

import (
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"sync/atomic"

	"golang.org/x/crypto/curve25519"

	"github.com/Kunboruto20/borutowaileys-library/util/gcmutil"
	"github.com/Kunboruto20/borutowaileys-library/util/hkdfutil"
)

// NoiseHandshake is the state of a Noise XX handshake in progress.
type NoiseHandshake struct {
	hash    []byte
	salt    []byte
	key     cipher.AEAD
	counter uint32
}

func NewNoiseHandshake() *NoiseHandshake {
	return &NoiseHandshake{}
}

func sha256Slice(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// Start initializes the handshake state with the given pattern and mixes in the connection header.
func (nh *NoiseHandshake) Start(pattern string, header []byte) {
	data := []byte(pattern)
	if len(data) == 32 {
		nh.hash = data
	} else {
		nh.hash = sha256Slice(data)
	}
	nh.salt = nh.hash
	var err error
	nh.key, err = gcmutil.Prepare(nh.hash)
	if err != nil {
		panic(fmt.Errorf("failed to create GCM cipher from Noise hash: %w", err))
	}
	nh.Authenticate(header)
}

// Authenticate mixes the given data into the handshake hash.
func (nh *NoiseHandshake) Authenticate(data []byte) {
	nh.hash = sha256Slice(append(nh.hash, data...))
}

func (nh *NoiseHandshake) postIncrementCounter() uint32 {
	count := atomic.AddUint32(&nh.counter, 1)
	return count - 1
}

// Encrypt encrypts the given plaintext with the current handshake key and mixes the ciphertext into the hash.
func (nh *NoiseHandshake) Encrypt(plaintext []byte) []byte {
	ciphertext := nh.key.Seal(nil, generateIV(nh.postIncrementCounter()), plaintext, nh.hash)
	nh.Authenticate(ciphertext)
	return ciphertext
}

// Decrypt decrypts the given ciphertext with the current handshake key and mixes the ciphertext into the hash.
func (nh *NoiseHandshake) Decrypt(ciphertext []byte) (plaintext []byte, err error) {
	plaintext, err = nh.key.Open(nil, generateIV(nh.postIncrementCounter()), ciphertext, nh.hash)
	if err == nil {
		nh.Authenticate(ciphertext)
	}
	return
}

// MixSharedSecretIntoKey computes the X25519 shared secret of the given keys and mixes it into the handshake key.
func (nh *NoiseHandshake) MixSharedSecretIntoKey(priv, pub [32]byte) error {
	secret, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return fmt.Errorf("failed to do x25519 scalar multiplication: %w", err)
	}
	return nh.MixIntoKey(secret)
}

// MixIntoKey mixes the given data into the handshake key with a HKDF round.
func (nh *NoiseHandshake) MixIntoKey(data []byte) error {
	nh.counter = 0
	write, read, err := nh.extractAndExpand(nh.salt, data)
	if err != nil {
		return fmt.Errorf("failed to extract and expand: %w", err)
	}
	nh.salt = write
	nh.key, err = gcmutil.Prepare(read)
	if err != nil {
		return fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return nil
}

// Finish derives the final send and receive keys and wraps the frame socket in a NoiseSocket.
func (nh *NoiseHandshake) Finish(fs *FrameSocket, frameHandler FrameHandler, disconnectHandler DisconnectHandler) (*NoiseSocket, error) {
	write, read, err := nh.extractAndExpand(nh.salt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to extract and expand: %w", err)
	}
	writeKey, err := gcmutil.Prepare(write)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher for writing: %w", err)
	}
	readKey, err := gcmutil.Prepare(read)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher for reading: %w", err)
	}
	ns := newNoiseSocket(fs, writeKey, readKey, frameHandler, disconnectHandler)
	return ns, nil
}

func (nh *NoiseHandshake) extractAndExpand(salt, data []byte) (write, read []byte, err error) {
	key := hkdfutil.SHA256(data, salt, nil, 64)
	write = key[:32]
	read = key[32:]
	return
}
