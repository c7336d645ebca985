// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"fmt"
	"sync/atomic"
	"time"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
	"github.com/Kunboruto20/borutowaileys-library/types"
	"github.com/Kunboruto20/borutowaileys-library/types/events"
)

func (cli *Client) handleReceipt(node *waBinary.Node) {
	receipt, err := cli.parseReceipt(node)
	if err != nil {
		cli.Log.Warnf("Failed to parse receipt: %v", err)
	} else if receipt != nil {
		if receipt.Type == types.ReceiptTypeRetry {
			go func() {
				cli.retryLock.Lock()
				defer cli.retryLock.Unlock()
				err := cli.handleRetryReceipt(receipt, node)
				if err != nil {
					cli.Log.Errorf("Failed to handle retry receipt for %s/%s from %s: %v", receipt.Chat, receipt.MessageIDs[0], receipt.Sender, err)
				}
			}()
		}
		cli.dispatchEvent(receipt)
	}
	go cli.sendAck(node)
}

func (cli *Client) parseReceipt(node *waBinary.Node) (*events.Receipt, error) {
	ag := node.AttrGetter()
	source, err := cli.parseMessageSource(node, false)
	if err != nil {
		return nil, err
	}
	receipt := events.Receipt{
		MessageSource: source,
		Timestamp:     ag.UnixTime("t"),
		Type:          types.ReceiptType(ag.OptionalString("type")),
		MessageSender: ag.OptionalJIDOrEmpty("recipient"),
	}
	if source.IsGroup && source.Sender.IsEmpty() && receipt.Type == types.ReceiptTypeRetry {
		return nil, fmt.Errorf("missing participant in group retry receipt")
	}
	mainMessageID := ag.String("id")
	if !ag.OK() {
		return nil, fmt.Errorf("failed to parse receipt attrs: %w", ag.Error())
	}

	receiptMessageIDs := []types.MessageID{mainMessageID}
	listNode, ok := node.GetOptionalChildByTag("list")
	if ok {
		for _, item := range listNode.GetChildrenByTag("item") {
			id, ok := item.Attrs["id"].(string)
			if ok {
				receiptMessageIDs = append(receiptMessageIDs, id)
			}
		}
	}
	receipt.MessageIDs = receiptMessageIDs
	return &receipt, nil
}

// sendAck acknowledges a stanza so the server doesn't resend it.
func (cli *Client) sendAck(node *waBinary.Node) {
	attrs := waBinary.Attrs{
		"class": node.Tag,
		"id":    node.Attrs["id"],
	}
	attrs["to"] = node.Attrs["from"]
	if recipient, ok := node.Attrs["recipient"]; ok {
		attrs["recipient"] = recipient
	}
	if participant, ok := node.Attrs["participant"]; ok {
		attrs["participant"] = participant
	}
	if node.Tag != "message" {
		if receiptType, ok := node.Attrs["type"]; ok {
			attrs["type"] = receiptType
		}
	}
	err := cli.sendNode(waBinary.Node{
		Tag:   "ack",
		Attrs: attrs,
	})
	if err != nil {
		cli.Log.Warnf("Failed to send acknowledgement for %s %s: %v", node.Tag, node.Attrs["id"], err)
	}
}

// sendNack rejects a message stanza that couldn't even be parsed, so the
// server knows delivery failed for a non-crypto reason.
func (cli *Client) sendNack(node *waBinary.Node, reason string) {
	err := cli.sendNode(waBinary.Node{
		Tag: "ack",
		Attrs: waBinary.Attrs{
			"class": node.Tag,
			"id":    node.Attrs["id"],
			"to":    node.Attrs["from"],
			"error": reason,
		},
	})
	if err != nil {
		cli.Log.Warnf("Failed to send negative acknowledgement for %s %s: %v", node.Tag, node.Attrs["id"], err)
	}
}

// MarkRead sends a read receipt for the given message IDs including the given timestamp as the read time.
//
// The first JID parameter (chat) must always be set to the chat ID (user ID in DMs and group ID in group chats).
// The second JID parameter (sender) must be set in group chats and must be the user ID who sent the message.
//
// You can mark multiple messages as read at the same time, but only if the messages were sent by the same user.
// To mark messages by different users as read, you must call MarkRead multiple times (once for each user).
func (cli *Client) MarkRead(ids []types.MessageID, timestamp time.Time, chat, sender types.JID, receiptTypeExtra ...types.ReceiptType) error {
	if len(ids) == 0 {
		return fmt.Errorf("no message IDs specified")
	}
	receiptType := types.ReceiptTypeRead
	if len(receiptTypeExtra) == 1 {
		receiptType = receiptTypeExtra[0]
	}
	node := waBinary.Node{
		Tag: "receipt",
		Attrs: waBinary.Attrs{
			"id":   ids[0],
			"type": string(receiptType),
			"to":   chat,
			"t":    timestamp.Unix(),
		},
	}
	if !sender.IsEmpty() && chat.Server != types.DefaultUserServer {
		node.Attrs["participant"] = sender.ToNonAD()
	}
	if len(ids) > 1 {
		childIDs := make([]waBinary.Node, len(ids)-1)
		for i, id := range ids[1:] {
			childIDs[i] = waBinary.Node{Tag: "item", Attrs: waBinary.Attrs{"id": id}}
		}
		node.Content = []waBinary.Node{{Tag: "list", Content: childIDs}}
	}
	return cli.sendNode(node)
}

// SetForceActiveDeliveryReceipts will force the client to send normal delivery
// receipts (which will show up as the two gray ticks on WhatsApp), even if the
// client isn't marked as online.
//
// By default, clients that haven't been marked as online will send delivery
// receipts with type="inactive" instead to avoid rendering the ticks.
func (cli *Client) SetForceActiveDeliveryReceipts(active bool) {
	if active {
		atomic.StoreUint32(&cli.sendActiveReceipts, 2)
	} else {
		atomic.StoreUint32(&cli.sendActiveReceipts, 0)
	}
}

func (cli *Client) sendMessageReceipt(info *types.MessageInfo) {
	attrs := waBinary.Attrs{
		"id": info.ID,
	}
	if info.IsFromMe {
		attrs["type"] = string(types.ReceiptTypeSender)
	} else if atomic.LoadUint32(&cli.sendActiveReceipts) == 0 {
		attrs["type"] = string(types.ReceiptTypeInactive)
	}
	if info.IsGroup {
		attrs["to"] = info.Chat
		attrs["participant"] = info.Sender
	} else {
		attrs["to"] = info.Sender
		if info.IsFromMe {
			attrs["to"] = info.Chat
			attrs["recipient"] = info.Sender
		}
	}
	err := cli.sendNode(waBinary.Node{
		Tag:   "receipt",
		Attrs: attrs,
	})
	if err != nil {
		cli.Log.Warnf("Failed to send receipt for %s: %v", info.ID, err)
	}
}

func (cli *Client) sendProtocolMessageReceipt(id types.MessageID, receiptType types.ReceiptType) {
	if len(id) == 0 {
		return
	}
	err := cli.sendNode(waBinary.Node{
		Tag: "receipt",
		Attrs: waBinary.Attrs{
			"id":   id,
			"type": string(receiptType),
			"to":   cli.getOwnJID().ToNonAD(),
		},
	})
	if err != nil {
		cli.Log.Warnf("Failed to send acknowledgement for protocol message %s: %v", id, err)
	}
}

func (cli *Client) sendHistorySyncReceipt(info *types.MessageInfo) error {
	return cli.sendNode(waBinary.Node{
		Tag: "receipt",
		Attrs: waBinary.Attrs{
			"id":   info.ID,
			"type": string(types.ReceiptTypeHistorySync),
			"to":   cli.getOwnJID(),
		},
	})
}
