// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package socket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"

	waLog "github.com/Kunboruto20/borutowaileys-library/util/log"
)

// Proxy is an alias for the function type that http.Transport and websocket.Dialer use for proxies.
type Proxy = func(*http.Request) (*url.URL, error)

// FrameSocket is a websocket connection that implements WhatsApp's
// length-prefixed framing on top of the binary websocket messages.
type FrameSocket struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel func()
	log    waLog.Logger
	lock   sync.Mutex

	// OnFrame is called for each full frame received from the socket.
	OnFrame func([]byte)
	// OnDisconnect is called when the socket is closed. The boolean is true
	// if the disconnection was initiated by the server.
	OnDisconnect func(remote bool)

	// Header is written in front of the first frame sent on the socket.
	Header []byte

	// WriteTimeout is the timeout for websocket write operations.
	WriteTimeout time.Duration

	incomingLength int
	receivedLength int
	incoming       []byte
	partialHeader  []byte

	proxy  Proxy
	dialer proxy.Dialer
}

// NewFrameSocket creates a new disconnected FrameSocket.
func NewFrameSocket(log waLog.Logger, proxy Proxy) *FrameSocket {
	return &FrameSocket{
		log:    log,
		proxy:  proxy,
		Header: WAConnHeader,

		WriteTimeout: 30 * time.Second,
	}
}

// SetSOCKSProxy makes the socket dial through the given SOCKS5 proxy dialer instead of an HTTP proxy.
func (fs *FrameSocket) SetSOCKSProxy(dialer proxy.Dialer) {
	fs.dialer = dialer
}

// IsConnected returns true if the websocket is connected.
func (fs *FrameSocket) IsConnected() bool {
	return fs.conn != nil
}

// Context returns a context that is alive as long as the socket connection.
func (fs *FrameSocket) Context() context.Context {
	return fs.ctx
}

// Close closes the websocket. If code is non-zero, a close frame with the given
// code is sent to the server before closing.
func (fs *FrameSocket) Close(code int) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.conn == nil {
		return
	}

	if code > 0 {
		message := websocket.FormatCloseMessage(code, "")
		err := fs.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		if err != nil {
			fs.log.Warnf("Error sending close message: %v", err)
		}
	}

	err := fs.conn.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		fs.log.Errorf("Error closing websocket: %v", err)
	}
	fs.conn = nil
	fs.cancel()
	if fs.OnDisconnect != nil {
		go fs.OnDisconnect(code == 0)
	}
}

// Connect opens the websocket connection and starts the frame reader loop.
func (fs *FrameSocket) Connect() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.conn != nil {
		return ErrSocketAlreadyOpen
	}
	ctx, cancel := context.WithCancel(context.Background())
	fs.ctx, fs.cancel = ctx, cancel

	dialer := websocket.Dialer{}
	if fs.dialer != nil {
		dialer.NetDial = fs.dialer.Dial
	} else if fs.proxy != nil {
		dialer.Proxy = fs.proxy
	}
	headers := http.Header{"Origin": []string{Origin}}
	fs.log.Debugf("Dialing %s", URL)
	var err error
	fs.conn, _, err = dialer.DialContext(ctx, URL, headers)
	if err != nil {
		cancel()
		return fmt.Errorf("couldn't dial whatsapp web websocket: %w", err)
	}

	fs.conn.SetCloseHandler(func(code int, text string) error {
		fs.log.Debugf("Server closed websocket with status %d/%s", code, text)
		cancel()
		// from default CloseHandler
		message := websocket.FormatCloseMessage(code, "")
		_ = fs.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		return nil
	})

	go fs.readPump(fs.conn, ctx)
	return nil
}

func (fs *FrameSocket) onFrame(frame []byte) {
	if fs.OnFrame != nil {
		fs.OnFrame(frame)
	} else {
		fs.log.Warnf("No handler defined for frame (%d bytes)", len(frame))
	}
}

// SendFrame adds the length prefix (and the connection header for the first
// frame) to the given data and sends it on the websocket.
func (fs *FrameSocket) SendFrame(data []byte) error {
	conn := fs.conn
	if conn == nil {
		return ErrSocketClosed
	}
	dataLength := len(data)
	if dataLength >= FrameMaxSize {
		return fmt.Errorf("%w (got %d bytes, max %d bytes)", ErrFrameTooLarge, len(data), FrameMaxSize)
	}

	headerLength := len(fs.Header)
	// Whole frame is header + 3 bytes for length + data
	wholeFrame := make([]byte, headerLength+FrameLengthSize+dataLength)

	// Copy the header if it's there
	if fs.Header != nil {
		copy(wholeFrame[:headerLength], fs.Header)
		// We only want to send the header once
		fs.Header = nil
	}

	// Encode length of frame
	wholeFrame[headerLength] = byte(dataLength >> 16)
	wholeFrame[headerLength+1] = byte(dataLength >> 8)
	wholeFrame[headerLength+2] = byte(dataLength)

	// Copy actual frame data
	copy(wholeFrame[headerLength+FrameLengthSize:], data)

	if fs.WriteTimeout > 0 {
		err := conn.SetWriteDeadline(time.Now().Add(fs.WriteTimeout))
		if err != nil {
			fs.log.Warnf("Failed to set write deadline: %v", err)
		}
	}
	return conn.WriteMessage(websocket.BinaryMessage, wholeFrame)
}

func (fs *FrameSocket) frameComplete() {
	data := fs.incoming
	fs.incoming = nil
	fs.partialHeader = nil
	fs.incomingLength = 0
	fs.receivedLength = 0
	fs.onFrame(data)
}

func (fs *FrameSocket) processData(msg []byte) {
	for len(msg) > 0 {
		// This probably doesn't happen a lot (if at all), so the code is unoptimized
		if fs.partialHeader != nil {
			msg = append(fs.partialHeader, msg...)
			fs.partialHeader = nil
		}
		if fs.incoming == nil {
			if len(msg) >= FrameLengthSize {
				length := (int(msg[0]) << 16) + (int(msg[1]) << 8) + int(msg[2])
				fs.incomingLength = length
				fs.receivedLength = len(msg)
				msg = msg[FrameLengthSize:]
				if len(msg) >= length {
					fs.incoming = msg[:length]
					msg = msg[length:]
					fs.frameComplete()
				} else {
					fs.incoming = make([]byte, 0, length)
					fs.incoming = append(fs.incoming, msg...)
					msg = nil
				}
			} else {
				fs.log.Warnf("Received partial header (report if this happens often)")
				fs.partialHeader = msg
				msg = nil
			}
		} else {
			if len(fs.incoming)+len(msg) >= fs.incomingLength {
				copyLength := fs.incomingLength - len(fs.incoming)
				fs.incoming = append(fs.incoming, msg[:copyLength]...)
				msg = msg[copyLength:]
				fs.frameComplete()
			} else {
				fs.incoming = append(fs.incoming, msg...)
				msg = nil
			}
		}
	}
}

func (fs *FrameSocket) readPump(conn *websocket.Conn, ctx context.Context) {
	fs.log.Debugf("Frame websocket read pump starting %p", fs)
	defer func() {
		fs.log.Debugf("Frame websocket read pump exiting %p", fs)
		go fs.Close(0)
	}()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			// Ignore the error if the context has been closed
			if !errors.Is(ctx.Err(), context.Canceled) {
				fs.log.Errorf("Error reading from websocket: %v", err)
			}
			return
		} else if msgType != websocket.BinaryMessage {
			fs.log.Warnf("Got unexpected websocket message type %d", msgType)
			continue
		}
		fs.processData(data)
	}
}
