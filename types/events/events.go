// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package events contains all the events that client.AddEventHandler can dispatch.
package events

import (
	"fmt"
	"time"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
	waProto "github.com/Kunboruto20/borutowaileys-library/binary/proto"
	"github.com/Kunboruto20/borutowaileys-library/types"
)

// QR is emitted after connecting when there's no session data in the device store.
//
// The QR codes are available in the Codes slice. You should render the strings as QR codes one by
// one, switching to the next one whenever enough time has passed. WhatsApp web seems to show the
// first code for 60 seconds and all other codes for 20 seconds.
//
// When the QR code has been scanned and pairing is complete, PairSuccess will be emitted. If you
// run out of codes before scanning, the server will close the websocket, and you will have to
// reconnect to get more codes.
type QR struct {
	Codes []string
}

// PairSuccess is emitted after the QR code has been scanned with the phone and the handshake has
// been completed. Note that this is generally followed by a websocket reconnection, so you should
// wait for the Connected before trying to send anything.
type PairSuccess struct {
	ID           types.JID
	LID          types.JID
	BusinessName string
	Platform     string
}

// PairError is emitted when a pair-success event is received from the server, but finishing the pairing locally fails.
type PairError struct {
	ID           types.JID
	LID          types.JID
	BusinessName string
	Platform     string
	Error        error
}

// QRScannedWithoutMultidevice is emitted when the pairing QR code is scanned, but the phone didn't have multidevice enabled.
// The same QR code can still be scanned after this event, which means the user can just be told to enable multidevice and re-scan the code.
type QRScannedWithoutMultidevice struct{}

// Connected is emitted when the client has successfully connected to the WhatsApp servers
// and is authenticated. The user who the client is authenticated as will be in the device store
// at this point (which can be accessed with Client.Store.ID).
type Connected struct{}

// KeepAliveTimeout is emitted when the keepalive ping request to WhatsApp web servers times out.
//
// Currently, there's no automatic handling for these, but it's expected that the TCP connection will
// either start working again or notice it's dead on its own eventually. Clients may use this event to
// decide to force a disconnect+reconnect faster.
type KeepAliveTimeout struct {
	ErrorCount  int
	LastSuccess time.Time
}

// KeepAliveRestored is emitted if the keepalive pings start working again after some KeepAliveTimeout events.
type KeepAliveRestored struct{}

// PermanentDisconnect is a class of events emitted when the client will not auto-reconnect by default.
type PermanentDisconnect interface {
	PermanentDisconnectDescription() string
}

// LoggedOut is emitted when the client has been unpaired from the phone.
//
// This can happen while connected (stream:error messages) or right after connecting (connect failure messages).
//
// This will not be emitted when the logout is initiated by this client (using Client.Logout()).
type LoggedOut struct {
	// OnConnect is true if the event was triggered by a connect failure message.
	// If it's false, the event was triggered by a stream:error message.
	OnConnect bool
	// If OnConnect is true, then this field contains the reason code.
	Reason ConnectFailureReason
}

// StreamReplaced is emitted when the client is disconnected by another client connecting with the same keys.
//
// This can happen if you accidentally start another process with the same session
// or otherwise try to connect twice with the same session.
type StreamReplaced struct{}

// TempBanReason is an error code included in temp ban error events.
type TempBanReason int

const (
	TempBanSentToTooManyPeople  TempBanReason = 101
	TempBanBlockedByUsers       TempBanReason = 102
	TempBanCreatedTooManyGroups TempBanReason = 103
	TempBanSentTooManySameMsg   TempBanReason = 104
	TempBanBroadcastList        TempBanReason = 106
)

// String returns the reason code and a human-readable description of the ban reason.
func (tbr TempBanReason) String() string {
	var reason string
	switch tbr {
	case TempBanSentToTooManyPeople:
		reason = "you sent too many messages to people who don't have you in their address books"
	case TempBanBlockedByUsers:
		reason = "too many people blocked you"
	case TempBanCreatedTooManyGroups:
		reason = "you created too many groups with people who don't have you in their address books"
	case TempBanSentTooManySameMsg:
		reason = "you sent the same message to too many people"
	case TempBanBroadcastList:
		reason = "you sent too many messages to a broadcast list"
	default:
		reason = "you may have violated the terms of service (unknown error)"
	}
	return fmt.Sprintf("%d: %s", int(tbr), reason)
}

// TemporaryBan is emitted when there's a connection failure with the ConnectFailureTempBanned reason code.
type TemporaryBan struct {
	Code   TempBanReason
	Expire time.Duration
}

func (tb *TemporaryBan) PermanentDisconnectDescription() string {
	return tb.String()
}

func (tb *TemporaryBan) String() string {
	if tb.Expire == 0 {
		return fmt.Sprintf("You've been temporarily banned: %v", tb.Code)
	}
	return fmt.Sprintf("You've been temporarily banned: %v. The ban expires in %v", tb.Code, tb.Expire)
}

// ConnectFailureReason is an error code included in connection failure events.
type ConnectFailureReason int

const (
	ConnectFailureGeneric        ConnectFailureReason = 400
	ConnectFailureLoggedOut      ConnectFailureReason = 401
	ConnectFailureTempBanned     ConnectFailureReason = 402
	ConnectFailureMainDeviceGone ConnectFailureReason = 403
	ConnectFailureUnknownLogout  ConnectFailureReason = 406
	ConnectFailureLoginTimeout   ConnectFailureReason = 408
	ConnectFailureBadUserAgent   ConnectFailureReason = 409
	ConnectFailureClientOutdated ConnectFailureReason = 405
	ConnectFailureClientUnknown  ConnectFailureReason = 418
	ConnectFailureInternalServerError ConnectFailureReason = 500
	ConnectFailureExperimental   ConnectFailureReason = 501
	ConnectFailureServiceUnavailable  ConnectFailureReason = 503
)

var connectFailureReasonMessage = map[ConnectFailureReason]string{
	ConnectFailureLoggedOut:      "logged out from another device",
	ConnectFailureTempBanned:     "account temporarily banned",
	ConnectFailureMainDeviceGone: "primary device was logged out",
	ConnectFailureUnknownLogout:  "logged out for unknown reason",
	ConnectFailureLoginTimeout:   "login timed out",
	ConnectFailureClientOutdated: "client is out of date",
	ConnectFailureBadUserAgent:   "client user agent was rejected",
}

// IsLoggedOut returns true if the client should delete the session data and pair again
// due to the connect failure.
func (cfr ConnectFailureReason) IsLoggedOut() bool {
	return cfr == ConnectFailureLoggedOut || cfr == ConnectFailureMainDeviceGone || cfr == ConnectFailureUnknownLogout
}

// NumberString returns the reason code as a string.
func (cfr ConnectFailureReason) NumberString() string {
	return fmt.Sprintf("%d", int(cfr))
}

// String returns the reason code and a short human-readable description of the error.
func (cfr ConnectFailureReason) String() string {
	msg, ok := connectFailureReasonMessage[cfr]
	if !ok {
		return fmt.Sprintf("unknown connect failure reason %d", int(cfr))
	}
	return fmt.Sprintf("%d: %s", int(cfr), msg)
}

// ConnectFailure is emitted when the WhatsApp server sends a <failure> node with an unknown reason.
//
// Known reasons are handled internally and emitted as different events (e.g. LoggedOut and TemporaryBan).
type ConnectFailure struct {
	Reason  ConnectFailureReason
	Message string
	Raw     *waBinary.Node
}

func (cf *ConnectFailure) PermanentDisconnectDescription() string {
	return fmt.Sprintf("connect failure: %s", cf.Reason.String())
}

// ClientOutdated is emitted when the WhatsApp server rejects the connection with the ConnectFailureClientOutdated code.
type ClientOutdated struct{}

func (ClientOutdated) PermanentDisconnectDescription() string {
	return "client is out of date"
}

// StreamError is emitted when the WhatsApp server sends a <stream:error> node with an unknown code.
//
// Known codes are handled internally and emitted as different events (e.g. StreamReplaced and TemporaryBan).
type StreamError struct {
	Code string
	Raw  *waBinary.Node
}

// Disconnected is emitted when the websocket is closed by the server.
type Disconnected struct{}

// AuthClearRequired is emitted when the server rejects the session with an auth-class
// error code and the client is configured to hand credential clearing to the application.
// After wiping the stored credentials, reconnecting will go through pairing again.
type AuthClearRequired struct {
	Code   int
	Reason string
}

func (acr *AuthClearRequired) PermanentDisconnectDescription() string {
	return fmt.Sprintf("auth clear required (code %d): %s", acr.Code, acr.Reason)
}

// HistorySync is emitted when the phone has sent a blob of historical messages.
// Only the notification metadata is decoded; downloading the actual blob is up
// to the application.
type HistorySync struct {
	Data *waProto.HistorySyncNotification
}

// UnavailableType is used to signify the type of unavailable message.
type UnavailableType string

const (
	UnavailableTypeUnknown  UnavailableType = ""
	UnavailableTypeViewOnce UnavailableType = "view_once"
)

// UndecryptableMessage is emitted when receiving a new message that failed to decrypt.
//
// The library will automatically ask the sender to retry. If the sender resends the message,
// and it's decryptable, then it will be emitted as a normal Message event.
//
// The UndecryptableMessage event may also be repeated if the resent message is also undecryptable.
type UndecryptableMessage struct {
	Info types.MessageInfo

	// IsUnavailable is true if the recipient device didn't send a ciphertext to this device at all
	// (as opposed to sending a ciphertext, but the ciphertext not being decryptable).
	IsUnavailable bool

	UnavailableType UnavailableType
}

// Message is emitted when receiving a new message.
type Message struct {
	Info    types.MessageInfo // Information about the message like the chat and sender IDs
	Message *waProto.Message  // The actual message struct

	// IsDocumentWithCaption is true if the message was unwrapped from a DocumentWithCaptionMessage
	IsEphemeral bool
	// IsViewOnce is true if the message was unwrapped from a view-once wrapper
	IsViewOnce bool

	// Offline is true if the stanza was part of the server's offline batch
	// delivered on reconnect rather than live traffic.
	Offline bool

	// The raw message struct. This is the same as the Message field except when the actual message
	// was wrapped in a DeviceSentMessage or another envelope that the library unwrapped.
	RawMessage *waProto.Message

	// If this event was the result of a retry receipt, RetryCount is the retry number.
	RetryCount int

	// If the message was re-requested from the sender as an unavailable placeholder,
	// this is the request ID used.
	UnavailableRequestID types.MessageID
}

// Receipt is emitted when an outgoing message is delivered to or read by another user, or when
// another device reads an incoming message.
//
// N.B. WhatsApp on Android sends message IDs from newest message to oldest, but WhatsApp on iOS
// sends them in the opposite order (oldest first).
type Receipt struct {
	types.MessageSource
	MessageIDs []types.MessageID
	Timestamp  time.Time
	Type       types.ReceiptType

	// MessageSender is the original sender of the messages the receipt refers to,
	// when the receipt is for someone else's messages in a group.
	MessageSender types.JID
}

// ChatPresence is emitted when a chat state update (also known as typing notification) is received.
type ChatPresence struct {
	types.MessageSource
	State types.ChatPresence
	Media types.ChatPresenceMedia
}

// Presence is emitted when a presence update is received.
type Presence struct {
	From        types.JID
	Unavailable bool
	LastSeen    time.Time
}

// JoinedGroup is emitted when you join or are added to a group.
type JoinedGroup struct {
	Reason    string          // If the event was triggered by you using an invite link, this will be "invite"
	Type      string          // "new" if it's a newly created group
	CreateKey types.MessageID // If you created the group, this is the same message ID you passed to CreateGroup
	Sender    *types.JID      // The user who added you to the group, if any
	Notify    string

	types.GroupInfo
}

// GroupInfo is emitted when the metadata of a group changes.
type GroupInfo struct {
	JID       types.JID  // The group ID in question
	Notify    string     // Seems like a top-level type for the invite
	Sender    *types.JID // The user who made the change
	Timestamp time.Time  // The time when the change occurred

	Name     *types.GroupName     // Group name change
	Topic    *types.GroupTopic    // Group topic (description) change
	Locked   *types.GroupLocked   // Group locked status change (can only admins edit group info?)
	Announce *types.GroupAnnounce // Group announce status change (can only admins send messages?)

	Ephemeral *types.GroupEphemeral // Disappearing messages change

	NewInviteLink *string // Group invite link change

	PrevParticipantVersionID string
	ParticipantVersionID     string

	JoinReason string // This will be "invite" if the user joined via invite link

	Join  []types.JID // Users who joined or were added to the group
	Leave []types.JID // Users who left or were removed from the group

	Promote []types.JID // Users who were promoted to admins
	Demote  []types.JID // Users who were demoted to normal users

	Link   *types.GroupLinkChange
	Unlink *types.GroupLinkChange

	UnknownChanges []*waBinary.Node
}

// Picture is emitted when a user's profile picture or group's photo is changed.
//
// You can use Client.GetProfilePictureInfo to get the actual image URL after this event.
type Picture struct {
	JID       types.JID // The user or group ID where the picture was changed.
	Author    types.JID // The user who changed the picture.
	Timestamp time.Time // The timestamp when the picture was changed.
	Remove    bool      // True if the picture was removed.
	PictureID string    // The new picture ID if it was not removed.
}

// IdentityChange is emitted when another user changes their primary device.
type IdentityChange struct {
	JID       types.JID
	Timestamp time.Time

	// Implicit will be set to true if the event was triggered by an untrusted identity error,
	// rather than an identity change notification from the server.
	Implicit bool
}

// Blocklist is emitted when the user's blocked user list is changed.
type Blocklist struct {
	// Action specifies what happened. If it's empty, there should be a list of changes in the Changes list.
	// If it's "modify", then the Changes list will be empty and the whole blocklist should be re-requested.
	Action    BlocklistAction
	DHash     string
	PrevDHash string
	Changes   []BlocklistChange
}

// BlocklistAction is the action in a Blocklist event.
type BlocklistAction string

const (
	BlocklistActionDefault BlocklistAction = ""
	BlocklistActionModify  BlocklistAction = "modify"
)

// BlocklistChange is a single change in a Blocklist event.
type BlocklistChange struct {
	JID    types.JID
	Action BlocklistChangeAction
}

// BlocklistChangeAction is the action of a single change in a Blocklist event.
type BlocklistChangeAction string

const (
	BlocklistChangeActionBlock   BlocklistChangeAction = "block"
	BlocklistChangeActionUnblock BlocklistChangeAction = "unblock"
)

// CallOffer is emitted when the user receives a call on WhatsApp.
type CallOffer struct {
	types.BasicCallMeta
	types.CallRemoteMeta
	Data *waBinary.Node // The call offer data
}

// CallAccept is emitted when a call is accepted on WhatsApp.
type CallAccept struct {
	types.BasicCallMeta
	Data *waBinary.Node
}

// CallPreAccept is emitted before a call is accepted.
type CallPreAccept struct {
	types.BasicCallMeta
	Data *waBinary.Node
}

// CallTransport is emitted when a call transport stanza is received.
type CallTransport struct {
	types.BasicCallMeta
	Data *waBinary.Node
}

// CallOfferNotice is emitted when the user receives a notice of a call on WhatsApp.
/// This seems to be primarily used for group calls (whereas CallOffer is for 1:1 calls).
type CallOfferNotice struct {
	types.BasicCallMeta
	Media string // "audio" or "video" depending on call type
	Type  string // "group" when it's a group call
	Data  *waBinary.Node
}

// CallRelayLatency is emitted slightly after the user receives a call on WhatsApp.
type CallRelayLatency struct {
	types.BasicCallMeta
	Data *waBinary.Node
}

// CallTerminate is emitted when the other party terminates a call on WhatsApp.
type CallTerminate struct {
	types.BasicCallMeta
	Reason string
	Data   *waBinary.Node
}

// UnknownCallEvent is emitted when a call element with unknown content is received.
type UnknownCallEvent struct {
	Node *waBinary.Node
}

// OfflineSyncPreview is emitted right after connecting if the server is going to send events that the client missed during downtime.
type OfflineSyncPreview struct {
	Total int

	AppDataChanges int
	Messages       int
	Notifications  int
	Receipts       int
}

// OfflineSyncCompleted is emitted after the server has finished sending missed events.
type OfflineSyncCompleted struct {
	Count int
}
