// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package socket

import (
	"context"
	"crypto/cipher"
	"encoding/binary"
	"sync"
	"sync/atomic"
)

type FrameHandler func([]byte)
type DisconnectHandler func(socket *NoiseSocket, remote bool)

// NoiseSocket wraps a FrameSocket with the post-handshake AEAD encryption layer.
type NoiseSocket struct {
	fs           *FrameSocket
	onFrame      FrameHandler
	writeKey     cipher.AEAD
	readKey      cipher.AEAD
	writeCounter uint32
	readCounter  uint32
	writeLock    sync.Mutex
	destroyed    uint32
	stopConsumer chan struct{}
}

func newNoiseSocket(fs *FrameSocket, writeKey, readKey cipher.AEAD, frameHandler FrameHandler, disconnectHandler DisconnectHandler) *NoiseSocket {
	ns := &NoiseSocket{
		fs:           fs,
		writeKey:     writeKey,
		readKey:      readKey,
		onFrame:      frameHandler,
		stopConsumer: make(chan struct{}),
	}
	fs.OnDisconnect = func(remote bool) {
		disconnectHandler(ns, remote)
	}
	fs.OnFrame = ns.receiveEncryptedFrame
	return ns
}

func generateIV(count uint32) []byte {
	iv := make([]byte, 12)
	binary.BigEndian.PutUint32(iv[8:], count)
	return iv
}

// Context returns a context that is alive as long as the underlying socket connection.
func (ns *NoiseSocket) Context() context.Context {
	return ns.fs.Context()
}

// Stop closes the socket. If disconnect is true, the disconnect handler is called.
func (ns *NoiseSocket) Stop(disconnect bool) {
	if atomic.CompareAndSwapUint32(&ns.destroyed, 0, 1) {
		close(ns.stopConsumer)
		if !disconnect {
			ns.fs.OnDisconnect = nil
		}
		ns.fs.Close(0)
	}
}

// SendFrame encrypts the given plaintext and sends it on the underlying frame socket.
func (ns *NoiseSocket) SendFrame(plaintext []byte) error {
	ns.writeLock.Lock()
	ciphertext := ns.writeKey.Seal(nil, generateIV(ns.writeCounter), plaintext, nil)
	ns.writeCounter++
	err := ns.fs.SendFrame(ciphertext)
	ns.writeLock.Unlock()
	return err
}

func (ns *NoiseSocket) receiveEncryptedFrame(ciphertext []byte) {
	count := atomic.AddUint32(&ns.readCounter, 1) - 1
	plaintext, err := ns.readKey.Open(nil, generateIV(count), ciphertext, nil)
	if err != nil {
		// A failed MAC means the stream keys are out of sync, which is not
		// recoverable. Drop the connection so the client can restart it.
		ns.fs.log.Warnf("Failed to decrypt frame: %v", err)
		ns.Stop(true)
		return
	}
	ns.onFrame(plaintext)
}

// IsConnected returns true if the underlying websocket is connected.
func (ns *NoiseSocket) IsConnected() bool {
	return ns.fs.IsConnected()
}
