// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"errors"
	"fmt"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
)

// Miscellaneous errors
var (
	ErrClientIsNil     = errors.New("client is nil")
	ErrNoSession       = errors.New("can't encrypt message for device: no signal session established")
	ErrIQTimedOut      = errors.New("info query timed out")
	ErrNotConnected    = errors.New("websocket not connected")
	ErrNotLoggedIn     = errors.New("the store doesn't contain a device JID")
	ErrAlreadyConnected = errors.New("websocket is already connected")
	ErrNoPushName      = errors.New("can't send presence without PushName set")

	ErrMessageTimedOut = errors.New("timed out waiting for message send response")

	ErrConnectionClosed = errors.New("connection closed")

	// ErrProfilePictureUnauthorized is returned by GetProfilePictureInfo when the user has hidden their profile picture from you.
	ErrProfilePictureUnauthorized = errors.New("the user has hidden their profile picture from you")

	// ErrIQDisconnected is a subclass of DisconnectedError for info queries.
	ErrIQDisconnected = &DisconnectedError{Action: "info query"}
)

// Errors that happen while confirming device pairing
var (
	ErrPairInvalidDeviceIdentityHMAC = errors.New("invalid device identity HMAC in pair success message")
	ErrPairInvalidDeviceSignature    = errors.New("invalid device signature in pair success message")
	ErrPairRejectedLocally           = errors.New("local PrePairCallback rejected pairing")
)

// Errors that happen while sending messages
var (
	ErrBroadcastListUnsupported = errors.New("sending to non-status broadcast lists is not yet supported")
	ErrUnknownServer            = errors.New("can't send message to unknown server")
	ErrRecipientADJID           = errors.New("message recipient must be a user JID with no device part")
	ErrServerReturnedError      = errors.New("server returned error")
	ErrInvalidInlineBotID       = errors.New("invalid inline bot ID")
)

// Errors that happen while fetching group metadata
var (
	ErrGroupNotFound    = errors.New("that group does not exist")
	ErrNotInGroup       = errors.New("you're not participating in that group")
	ErrGroupInviteLinkUnauthorized = errors.New("you don't have the permission to get the group's invite link")
)

// ErrorKind classifies errors the way the rest of the protocol engine handles
// them: transport errors cause reconnects, crypto errors cause retry receipts,
// auth errors require clearing credentials, and so on.
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindTransport
	ErrorKindTimeout
	ErrorKindProtocol
	ErrorKindCrypto
	ErrorKindAuth
	ErrorKindRate
	ErrorKindUser
)

func (ek ErrorKind) String() string {
	switch ek {
	case ErrorKindTransport:
		return "transport"
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindProtocol:
		return "protocol"
	case ErrorKindCrypto:
		return "crypto"
	case ErrorKindAuth:
		return "auth"
	case ErrorKindRate:
		return "rate"
	case ErrorKindUser:
		return "user"
	default:
		return "unknown"
	}
}

// KindOf returns the ErrorKind of any error produced by this library.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindUnknown
	case errors.Is(err, ErrIQTimedOut), errors.Is(err, ErrMessageTimedOut):
		return ErrorKindTimeout
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrConnectionClosed), errors.Is(err, ErrAlreadyConnected):
		return ErrorKindTransport
	case errors.Is(err, ErrNoSession):
		return ErrorKindCrypto
	case errors.Is(err, ErrNotLoggedIn), errors.Is(err, ErrPairInvalidDeviceIdentityHMAC), errors.Is(err, ErrPairInvalidDeviceSignature):
		return ErrorKindAuth
	case errors.Is(err, ErrBroadcastListUnsupported), errors.Is(err, ErrUnknownServer), errors.Is(err, ErrRecipientADJID):
		return ErrorKindUser
	}
	var iqErr *IQError
	if errors.As(err, &iqErr) {
		switch iqErr.Code {
		case 401, 403, 419, 428:
			return ErrorKindAuth
		case 429:
			return ErrorKindRate
		default:
			return ErrorKindProtocol
		}
	}
	var disconnected *DisconnectedError
	if errors.As(err, &disconnected) {
		return ErrorKindTransport
	}
	var missing *ElementMissingError
	if errors.As(err, &missing) {
		return ErrorKindProtocol
	}
	return ErrorKindUnknown
}

// DisconnectedError is returned if the websocket disconnects before an action completes.
type DisconnectedError struct {
	Action string
	Node   string
}

func (err *DisconnectedError) Error() string {
	return fmt.Sprintf("websocket disconnected before %s returned response", err.Action)
}

func (err *DisconnectedError) Is(other error) bool {
	otherDisc, ok := other.(*DisconnectedError)
	if !ok {
		return false
	}
	return otherDisc.Action == err.Action
}

// Standard IQ error codes, as both sentinel errors and the codes the server uses.
var (
	ErrIQBadRequest          error = &IQError{Code: 400, Text: "bad-request"}
	ErrIQNotAuthorized       error = &IQError{Code: 401, Text: "not-authorized"}
	ErrIQForbidden           error = &IQError{Code: 403, Text: "forbidden"}
	ErrIQNotFound            error = &IQError{Code: 404, Text: "item-not-found"}
	ErrIQNotAllowed          error = &IQError{Code: 405, Text: "not-allowed"}
	ErrIQNotAcceptable       error = &IQError{Code: 406, Text: "not-acceptable"}
	ErrIQGone                error = &IQError{Code: 410, Text: "gone"}
	ErrIQResourceLimit       error = &IQError{Code: 419, Text: "resource-limit"}
	ErrIQLocked              error = &IQError{Code: 423, Text: "locked"}
	ErrIQRateOverLimit       error = &IQError{Code: 429, Text: "rate-overlimit"}
	ErrIQInternalServerError error = &IQError{Code: 500, Text: "internal-server-error"}
	ErrIQServiceUnavailable  error = &IQError{Code: 503, Text: "service-unavailable"}
	ErrIQPartialServerError  error = &IQError{Code: 530, Text: "partial-server-error"}
)

// IQError is a generic error container for info queries
type IQError struct {
	Code      int
	Text      string
	ErrorNode *waBinary.Node
	RawNode   *waBinary.Node
}

func parseIQError(node *waBinary.Node) error {
	var err IQError
	err.RawNode = node
	val, ok := node.GetOptionalChildByTag("error")
	if ok {
		err.ErrorNode = &val
		ag := val.AttrGetter()
		err.Code = ag.OptionalInt("code")
		err.Text = ag.OptionalString("text")
	}
	return &err
}

func (iqe *IQError) Error() string {
	if iqe.Code == 0 {
		if iqe.ErrorNode != nil {
			return fmt.Sprintf("info query returned unknown error: %s", iqe.ErrorNode.XMLString())
		} else if iqe.RawNode != nil {
			return fmt.Sprintf("info query returned unexpected response: %s", iqe.RawNode.XMLString())
		} else {
			return "unknown info query error"
		}
	}
	return fmt.Sprintf("info query returned status %d: %s", iqe.Code, iqe.Text)
}

func (iqe *IQError) Is(other error) bool {
	otherIQE, ok := other.(*IQError)
	if !ok {
		return false
	}
	if iqe.Code != 0 {
		return otherIQE.Code == iqe.Code && otherIQE.Text == iqe.Text
	}
	return otherIQE.Code == 0
}

// ElementMissingError is returned by various functions that parse XML elements when a required element is missing.
type ElementMissingError struct {
	Tag string
	In  string
}

func (eme *ElementMissingError) Error() string {
	return fmt.Sprintf("missing <%s> element in %s", eme.Tag, eme.In)
}
