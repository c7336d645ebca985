// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package waProto contains hand-maintained structs for the protobuf payloads used in the
// WhatsApp web protocol, along with their wire format marshaling code.
//
// Only the messages and fields that the client actually sends or reads are defined here.
// Unknown fields are skipped on decode, so partial definitions stay compatible with
// whatever else the server includes.
package waProto

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// String returns a pointer to the given string, for use in optional proto fields.
func String(s string) *string { return &s }

// Uint32 returns a pointer to the given uint32, for use in optional proto fields.
func Uint32(v uint32) *uint32 { return &v }

// Uint64 returns a pointer to the given uint64, for use in optional proto fields.
func Uint64(v uint64) *uint64 { return &v }

// Int32 returns a pointer to the given int32, for use in optional proto fields.
func Int32(v int32) *int32 { return &v }

// Int64 returns a pointer to the given int64, for use in optional proto fields.
func Int64(v int64) *int64 { return &v }

// Bool returns a pointer to the given bool, for use in optional proto fields.
func Bool(v bool) *bool { return &v }

func appendBytes(b []byte, num protowire.Number, val []byte) []byte {
	if val == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, val)
}

func appendString(b []byte, num protowire.Number, val *string) []byte {
	if val == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, *val)
}

func appendUint32(b []byte, num protowire.Number, val *uint32) []byte {
	if val == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(*val))
}

func appendUint64(b []byte, num protowire.Number, val *uint64) []byte {
	if val == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, *val)
}

func appendInt32(b []byte, num protowire.Number, val *int32) []byte {
	if val == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(uint32(*val)))
}

func appendInt64(b []byte, num protowire.Number, val *int64) []byte {
	if val == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(*val))
}

func appendBool(b []byte, num protowire.Number, val *bool) []byte {
	if val == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	if *val {
		return protowire.AppendVarint(b, 1)
	}
	return protowire.AppendVarint(b, 0)
}

func appendSfixed32(b []byte, num protowire.Number, val *int32) []byte {
	if val == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, uint32(*val))
}

type submessage interface {
	marshal(b []byte) []byte
}

func appendMessage(b []byte, num protowire.Number, msg submessage) []byte {
	if msg == nil {
		return b
	}
	// marshal methods return their input unchanged for nil receivers, so a typed nil
	// pointer behind the interface produces no output here either.
	inner := msg.marshal(nil)
	if inner == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

// protoScanner iterates over the fields of a single encoded message.
type protoScanner struct {
	data []byte
	err  error

	num protowire.Number
	typ protowire.Type
	// val holds the raw value for length-delimited fields, uval for varint and fixed fields.
	val  []byte
	uval uint64
}

func (s *protoScanner) next() bool {
	if s.err != nil || len(s.data) == 0 {
		return false
	}
	num, typ, n := protowire.ConsumeTag(s.data)
	if n < 0 {
		s.err = protowire.ParseError(n)
		return false
	}
	s.data = s.data[n:]
	s.num, s.typ = num, typ
	switch typ {
	case protowire.VarintType:
		s.uval, n = protowire.ConsumeVarint(s.data)
	case protowire.Fixed32Type:
		var v32 uint32
		v32, n = protowire.ConsumeFixed32(s.data)
		s.uval = uint64(v32)
	case protowire.Fixed64Type:
		s.uval, n = protowire.ConsumeFixed64(s.data)
	case protowire.BytesType:
		s.val, n = protowire.ConsumeBytes(s.data)
	default:
		n = protowire.ConsumeFieldValue(num, typ, s.data)
	}
	if n < 0 {
		s.err = protowire.ParseError(n)
		return false
	}
	s.data = s.data[n:]
	return true
}

func (s *protoScanner) finish(what string) error {
	if s.err != nil {
		return fmt.Errorf("failed to parse %s: %w", what, s.err)
	}
	return nil
}

func (s *protoScanner) bytes() []byte {
	out := make([]byte, len(s.val))
	copy(out, s.val)
	return out
}

func (s *protoScanner) string() *string {
	val := string(s.val)
	return &val
}

func (s *protoScanner) uint32() *uint32 {
	val := uint32(s.uval)
	return &val
}

func (s *protoScanner) uint64() *uint64 {
	val := s.uval
	return &val
}

func (s *protoScanner) int32() *int32 {
	val := int32(s.uval)
	return &val
}

func (s *protoScanner) int64() *int64 {
	val := int64(s.uval)
	return &val
}

func (s *protoScanner) bool() *bool {
	val := s.uval != 0
	return &val
}
