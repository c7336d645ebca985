// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package waProto

// HandshakeClientHello is the first Noise XX handshake message sent by the client.
type HandshakeClientHello struct {
	Ephemeral []byte // 1
	Static    []byte // 2
	Payload   []byte // 3
}

func (m *HandshakeClientHello) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendBytes(b, 1, m.Ephemeral)
	b = appendBytes(b, 2, m.Static)
	b = appendBytes(b, 3, m.Payload)
	return b
}

// HandshakeServerHello is the Noise XX handshake response from the server.
type HandshakeServerHello struct {
	Ephemeral []byte // 1
	Static    []byte // 2
	Payload   []byte // 3
}

func (m *HandshakeServerHello) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendBytes(b, 1, m.Ephemeral)
	b = appendBytes(b, 2, m.Static)
	b = appendBytes(b, 3, m.Payload)
	return b
}

func (m *HandshakeServerHello) unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.Ephemeral = s.bytes()
		case 2:
			m.Static = s.bytes()
		case 3:
			m.Payload = s.bytes()
		}
	}
	return s.finish("HandshakeServerHello")
}

// HandshakeClientFinish is the final Noise XX handshake message sent by the client.
type HandshakeClientFinish struct {
	Static  []byte // 1
	Payload []byte // 2
}

func (m *HandshakeClientFinish) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendBytes(b, 1, m.Static)
	b = appendBytes(b, 2, m.Payload)
	return b
}

// HandshakeMessage wraps the individual Noise handshake messages on the wire.
type HandshakeMessage struct {
	ClientHello  *HandshakeClientHello  // 2
	ServerHello  *HandshakeServerHello  // 3
	ClientFinish *HandshakeClientFinish // 4
}

func (m *HandshakeMessage) Marshal() ([]byte, error) {
	var b []byte
	b = appendMessage(b, 2, m.ClientHello)
	b = appendMessage(b, 3, m.ServerHello)
	b = appendMessage(b, 4, m.ClientFinish)
	return b, nil
}

func (m *HandshakeMessage) Unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 3:
			m.ServerHello = &HandshakeServerHello{}
			if err := m.ServerHello.unmarshal(s.val); err != nil {
				return err
			}
		}
	}
	return s.finish("HandshakeMessage")
}

func (m *HandshakeMessage) GetServerHello() *HandshakeServerHello {
	if m == nil {
		return nil
	}
	return m.ServerHello
}

// nil-safe helpers for interchangeability with pointer-heavy generated code

func (m *HandshakeServerHello) GetEphemeral() []byte {
	if m == nil {
		return nil
	}
	return m.Ephemeral
}

func (m *HandshakeServerHello) GetStatic() []byte {
	if m == nil {
		return nil
	}
	return m.Static
}

func (m *HandshakeServerHello) GetPayload() []byte {
	if m == nil {
		return nil
	}
	return m.Payload
}
