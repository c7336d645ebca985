// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mau.fi/libsignal/groups"
	"go.mau.fi/libsignal/protocol"
	"go.mau.fi/libsignal/session"
	"go.mau.fi/libsignal/signalerror"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
	waProto "github.com/Kunboruto20/borutowaileys-library/binary/proto"
	"github.com/Kunboruto20/borutowaileys-library/store"
	"github.com/Kunboruto20/borutowaileys-library/types"
	"github.com/Kunboruto20/borutowaileys-library/types/events"
)

var pbSerializer = store.SignalProtobufSerializer

func (cli *Client) handleEncryptedMessage(node *waBinary.Node) {
	info, err := cli.parseMessageInfo(node)
	if err != nil {
		cli.Log.Warnf("Failed to parse message: %v", err)
		return
	}
	if cli.checkFlood(info.Sender) {
		cli.Log.Warnf("Dropping message %s from %s due to flood protection", info.ID, info.Sender)
		go cli.sendAck(node)
		return
	}
	if cli.ShouldIgnoreJID != nil && info.Sender.User != "" && cli.ShouldIgnoreJID(info.Sender) {
		cli.Log.Debugf("Ignoring message %s from %s", info.ID, info.Sender)
		go cli.sendAck(node)
		return
	}
	cli.decryptMessages(context.TODO(), info, node)
}

func (cli *Client) checkFlood(sender types.JID) bool {
	if cli.Config.FloodThreshold <= 0 || cli.Config.FloodWindow <= 0 {
		return false
	}
	key := sender.ToNonAD()
	now := time.Now()
	cutoff := now.Add(-cli.Config.FloodWindow)
	window := cli.floodWindows[key]
	kept := window[:0]
	for _, ts := range window {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= cli.Config.FloodThreshold {
		cli.floodWindows[key] = kept
		return true
	}
	cli.floodWindows[key] = append(kept, now)
	return false
}

func (cli *Client) parseMessageSource(node *waBinary.Node, requireParticipant bool) (source types.MessageSource, err error) {
	ag := node.AttrGetter()
	ownID := cli.getOwnJID().ToNonAD()
	from := ag.JID("from")
	source.AddressingMode = types.AddressingMode(ag.OptionalString("addressing_mode"))
	if from.Server == types.GroupServer || from.Server == types.BroadcastServer {
		source.IsGroup = true
		source.Chat = from
		if requireParticipant {
			source.Sender = ag.JID("participant")
		} else {
			source.Sender = ag.OptionalJIDOrEmpty("participant")
		}
		if source.Sender.User == ownID.User || (source.Sender.Server == types.HiddenUserServer && source.Sender.User == cli.Store.LID.User) {
			source.IsFromMe = true
		}
		if from.Server == types.BroadcastServer {
			source.BroadcastListOwner = ag.OptionalJIDOrEmpty("recipient")
		}
	} else if from.User == ownID.User || (from.Server == types.HiddenUserServer && from.User == cli.Store.LID.User) {
		source.IsFromMe = true
		source.Sender = from
		recipient := ag.OptionalJID("recipient")
		if recipient != nil {
			source.Chat = recipient.ToNonAD()
		} else {
			source.Chat = from.ToNonAD()
		}
	} else {
		source.Chat = from.ToNonAD()
		source.Sender = from
	}
	err = ag.Error()
	return
}

func (cli *Client) parseMessageInfo(node *waBinary.Node) (*types.MessageInfo, error) {
	var info types.MessageInfo
	var err error
	info.MessageSource, err = cli.parseMessageSource(node, true)
	if err != nil {
		return nil, err
	}
	ag := node.AttrGetter()
	info.ID = types.MessageID(ag.String("id"))
	info.Timestamp = ag.UnixTime("t")
	info.PushName = ag.OptionalString("notify")
	info.Category = ag.OptionalString("category")
	info.Type = ag.OptionalString("type")
	info.Edit = types.EditAttribute(ag.OptionalString("edit"))
	if !ag.OK() {
		return nil, ag.Error()
	}
	return &info, nil
}

func (cli *Client) decryptMessages(ctx context.Context, info *types.MessageInfo, node *waBinary.Node) {
	go cli.sendAck(node)
	if len(node.GetChildrenByTag("unavailable")) > 0 && len(node.GetChildrenByTag("enc")) == 0 {
		unavailableChild := node.GetChildByTag("unavailable")
		uType := events.UnavailableType(unavailableChild.AttrGetter().OptionalString("type"))
		cli.Log.Warnf("Unavailable message %s from %s (type: %q)", info.ID, info.SourceString(), uType)
		go cli.delayedRequestMessageFromPhone(info)
		cli.dispatchEvent(&events.UndecryptableMessage{
			Info:            *info,
			IsUnavailable:   true,
			UnavailableType: uType,
		})
		return
	}

	children := node.GetChildren()
	cli.Log.Debugf("Decrypting message from %s", info.SourceString())
	handled := false
	containsDirectMsg := false
	for _, child := range children {
		if child.Tag != "enc" {
			continue
		}
		encType, ok := child.Attrs["type"].(string)
		if !ok {
			continue
		}
		var decrypted []byte
		var err error
		if encType == "pkmsg" || encType == "msg" {
			decrypted, err = cli.decryptDMWithRetry(ctx, &child, info.Sender, encType == "pkmsg")
			containsDirectMsg = true
		} else if info.IsGroup && encType == "skmsg" {
			decrypted, err = cli.decryptGroupMsgWithRetry(ctx, &child, info.Sender, info.Chat)
		} else {
			cli.Log.Warnf("Unhandled encrypted message (type %s) from %s", encType, info.SourceString())
			continue
		}
		if err != nil {
			cli.Log.Warnf("Error decrypting message from %s: %v", info.SourceString(), err)
			if isMissingKeysError(err) {
				go cli.sendNack(node, "parsing_error")
				cli.dispatchEvent(&events.UndecryptableMessage{Info: *info, IsUnavailable: false})
				return
			}
			isUnavailable := encType == "skmsg" && !containsDirectMsg
			go cli.sendRetryReceipt(context.TODO(), node, info, isUnavailable)
			cli.dispatchEvent(&events.UndecryptableMessage{
				Info:          *info,
				IsUnavailable: isUnavailable,
			})
			return
		}

		retryCount := 0
		if retryAttr, ok := node.Attrs["count"].(string); ok && retryAttr != "" {
			retryCount = node.AttrGetter().OptionalInt("count")
			cli.cancelDelayedRequestFromPhone(info.ID)
		}

		var msg waProto.Message
		err = msg.Unmarshal(decrypted)
		if err != nil {
			cli.Log.Warnf("Error unmarshaling decrypted message from %s: %v", info.SourceString(), err)
			cli.dispatchEvent(&events.UndecryptableMessage{Info: *info, IsUnavailable: false})
			return
		}
		cli.handleDecryptedMessage(ctx, info, &msg, retryCount)
		handled = true
	}
	if handled {
		go cli.sendMessageReceipt(info)
	}
}

// decrypt retries smooth over transient key store failures. Each attempt after
// the first waits twice as long as the previous one.
func (cli *Client) withDecryptRetry(fn func() ([]byte, error)) (plaintext []byte, err error) {
	delay := cli.Config.RetryRequestDelay
	attempts := cli.Config.MaxMsgRetryCount
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		plaintext, err = fn()
		if err == nil {
			return
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return
}

func (cli *Client) decryptDMWithRetry(ctx context.Context, child *waBinary.Node, from types.JID, isPreKey bool) ([]byte, error) {
	return cli.withDecryptRetry(func() ([]byte, error) {
		return cli.decryptDM(ctx, child, from, isPreKey)
	})
}

func (cli *Client) decryptGroupMsgWithRetry(ctx context.Context, child *waBinary.Node, from types.JID, chat types.JID) ([]byte, error) {
	return cli.withDecryptRetry(func() ([]byte, error) {
		return cli.decryptGroupMsg(ctx, child, from, chat)
	})
}

func (cli *Client) decryptDM(ctx context.Context, child *waBinary.Node, from types.JID, isPreKey bool) ([]byte, error) {
	content, _ := child.Content.([]byte)

	builder := session.NewBuilderFromSignal(cli.Store, from.SignalAddress(), pbSerializer)
	cipher := session.NewCipher(builder, from.SignalAddress())
	var plaintext []byte
	if isPreKey {
		preKeyMsg, err := protocol.NewPreKeySignalMessageFromBytes(content, pbSerializer.PreKeySignalMessage, pbSerializer.SignalMessage)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prekey message: %w", err)
		}
		plaintext, _, err = cipher.DecryptMessageReturnKey(preKeyMsg)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt prekey message: %w", err)
		}
	} else {
		msg, err := protocol.NewSignalMessageFromBytes(content, pbSerializer.SignalMessage)
		if err != nil {
			return nil, fmt.Errorf("failed to parse normal message: %w", err)
		}
		plaintext, err = cipher.Decrypt(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt normal message: %w", err)
		}
	}
	_ = ctx
	return unpadMessage(plaintext)
}

func (cli *Client) decryptGroupMsg(ctx context.Context, child *waBinary.Node, from types.JID, chat types.JID) ([]byte, error) {
	content, _ := child.Content.([]byte)

	senderKeyName := protocol.NewSenderKeyName(chat.String(), from.SignalAddress())
	builder := groups.NewGroupSessionBuilder(cli.Store, pbSerializer)
	cipher := groups.NewGroupCipher(builder, senderKeyName, cli.Store)
	msg, err := protocol.NewSenderKeyMessageFromBytes(content, pbSerializer.SenderKeyMessage)
	if err != nil {
		return nil, fmt.Errorf("failed to parse group message: %w", err)
	}
	plaintext, err := cipher.Decrypt(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt group message: %w", err)
	}
	_ = ctx
	return unpadMessage(plaintext)
}

// isMissingKeysError reports whether a decryption failure means the required
// session or sender key doesn't exist at all. Those failures are rejected with
// a nack instead of a retry receipt, since retrying can't create the keys.
func isMissingKeysError(err error) bool {
	return errors.Is(err, signalerror.ErrNoValidSessions) ||
		errors.Is(err, signalerror.ErrNoSessionForUser) ||
		errors.Is(err, signalerror.ErrNoSenderKeyForUser) ||
		errors.Is(err, signalerror.ErrNoSenderKeyStatesInRecord)
}

const checkPadding = true

func isValidPadding(plaintext []byte) bool {
	lastByte := plaintext[len(plaintext)-1]
	expectedPadding := bytes.Repeat([]byte{lastByte}, int(lastByte))
	return bytes.HasSuffix(plaintext, expectedPadding)
}

func unpadMessage(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("plaintext is empty")
	} else if checkPadding && !isValidPadding(plaintext) {
		return nil, fmt.Errorf("plaintext doesn't have expected padding")
	}
	return plaintext[:len(plaintext)-int(plaintext[len(plaintext)-1])], nil
}

func (cli *Client) handleSenderKeyDistributionMessage(chat, from types.JID, axolotlSKDM []byte) {
	builder := groups.NewGroupSessionBuilder(cli.Store, pbSerializer)
	senderKeyName := protocol.NewSenderKeyName(chat.String(), from.SignalAddress())
	sdkMsg, err := protocol.NewSenderKeyDistributionMessageFromBytes(axolotlSKDM, pbSerializer.SenderKeyDistributionMessage)
	if err != nil {
		cli.Log.Errorf("Failed to parse sender key distribution message from %s for %s: %v", from, chat, err)
		return
	}
	builder.Process(senderKeyName, sdkMsg)
	cli.Log.Debugf("Processed sender key distribution message from %s in %s", senderKeyName.Sender().String(), senderKeyName.GroupID())
}

func (cli *Client) handleHistorySyncNotification(ctx context.Context, info *types.MessageInfo, notif *waProto.HistorySyncNotification) {
	cli.Log.Infof("Received history sync notification (type %d, chunk %d)", notif.GetSyncType(), notif.GetChunkOrder())
	cli.dispatchEvent(&events.HistorySync{Data: notif})
	go func() {
		err := cli.sendHistorySyncReceipt(info)
		if err != nil {
			cli.Log.Warnf("Failed to send acknowledgement for history sync notification: %v", err)
		}
	}()
}

func (cli *Client) handleAppStateSyncKeyShare(ctx context.Context, keyShare *waProto.AppStateSyncKeyShare) {
	onlyResentKeys := true
	rows := make(map[string][]byte)
	for _, key := range keyShare.GetKeys() {
		if key.GetKeyId() == nil || key.GetKeyData() == nil {
			continue
		}
		rows[string(key.GetKeyId().GetKeyId())] = key.GetKeyData().GetKeyData()
		onlyResentKeys = false
	}
	if onlyResentKeys {
		return
	}
	err := cli.Store.Keys.PutKeys(ctx, store.KeyMap{store.KeyTypeAppStateSyncKey: rows})
	if err != nil {
		cli.Log.Errorf("Failed to store app state sync keys: %v", err)
		return
	}
	cli.Log.Debugf("Stored %d app state sync keys", len(rows))
}

func (cli *Client) handleProtocolMessage(ctx context.Context, info *types.MessageInfo, msg *waProto.Message) {
	protoMsg := msg.GetProtocolMessage()

	if protoMsg.GetHistorySyncNotification() != nil && info.IsFromMe {
		cli.handleHistorySyncNotification(ctx, info, protoMsg.GetHistorySyncNotification())
	}

	if protoMsg.GetAppStateSyncKeyShare() != nil && info.IsFromMe {
		cli.handleAppStateSyncKeyShare(ctx, protoMsg.GetAppStateSyncKeyShare())
	}

	if info.Category == "peer" {
		go cli.sendProtocolMessageReceipt(info.ID, types.ReceiptTypePeerMsg)
	}
}

func (cli *Client) handleDecryptedMessage(ctx context.Context, info *types.MessageInfo, msg *waProto.Message, retryCount int) {
	evt := &events.Message{
		Info:       *info,
		RawMessage: msg,
		RetryCount: retryCount,
		Offline:    cli.inOfflineBatch,
	}
	if requestID, ok := cli.PlaceholderResendCache.Get(info.ID); ok {
		evt.UnavailableRequestID = requestID
		cli.PlaceholderResendCache.Delete(info.ID)
	}

	if msg.GetSenderKeyDistributionMessage() != nil && info.IsGroup {
		cli.handleSenderKeyDistributionMessage(info.Chat, info.Sender, msg.GetSenderKeyDistributionMessage().GetAxolotlSenderKeyDistributionMessage())
	}

	unwrapped := msg
	if msg.GetDeviceSentMessage().GetMessage() != nil {
		unwrapped = msg.GetDeviceSentMessage().GetMessage()
		info.DeviceSentMeta = &types.DeviceSentMeta{
			DestinationJID: msg.GetDeviceSentMessage().GetDestinationJid(),
			Phash:          msg.GetDeviceSentMessage().GetPhash(),
		}
		evt.Info.DeviceSentMeta = info.DeviceSentMeta
	}
	evt.Message = unwrapped

	if unwrapped.GetProtocolMessage() != nil {
		cli.handleProtocolMessage(ctx, info, unwrapped)
	}

	cli.dispatchEvent(evt)
}
