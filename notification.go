// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"context"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
	"github.com/Kunboruto20/borutowaileys-library/store"
	"github.com/Kunboruto20/borutowaileys-library/types"
	"github.com/Kunboruto20/borutowaileys-library/types/events"
)

// handleEncryptNotification is the server telling us it's running out of
// one-time prekeys for this device.
func (cli *Client) handleEncryptNotification(ctx context.Context, node *waBinary.Node) {
	count := node.GetChildByTag("count")
	ag := count.AttrGetter()
	otksLeft := ag.Int("value")
	if !ag.OK() {
		cli.Log.Warnf("Didn't get number of prekeys left in encrypt notification %s", node.XMLString())
		return
	}
	cli.Log.Infof("Server said we have %d one-time prekeys left", otksLeft)
	if otksLeft < store.WantedPreKeyCount {
		cli.uploadPreKeys(ctx)
	}
}

func (cli *Client) handleAccountSyncNotification(node *waBinary.Node) {
	for _, child := range node.GetChildren() {
		switch child.Tag {
		case "devices":
			cli.handleOwnDevicesNotification(&child)
		case "picture":
			cli.dispatchEvent(&events.Picture{
				Timestamp: node.AttrGetter().UnixTime("t"),
				JID:       cli.getOwnJID().ToNonAD(),
				Author:    cli.getOwnJID().ToNonAD(),
			})
		case "blocklist":
			cli.handleBlocklist(&child)
		default:
			cli.Log.Debugf("Unhandled account sync item %s", child.Tag)
		}
	}
}

func (cli *Client) handleOwnDevicesNotification(node *waBinary.Node) {
	ownID := cli.getOwnJID().ToNonAD()
	if ownID.IsEmpty() {
		return
	}
	cached, ok := cli.userDevicesCache.Get(ownID)
	if !ok {
		cli.Log.Debugf("Ignoring own device change notification, device list not cached")
		return
	}
	oldHash := participantListHashV2(cached)
	expectedNewHash := node.AttrGetter().String("dhash")
	var newDeviceList []types.JID
	for _, child := range node.GetChildren() {
		jid, ok := child.Attrs["jid"].(types.JID)
		if child.Tag == "device" && ok {
			jid.Server = types.DefaultUserServer
			newDeviceList = append(newDeviceList, jid)
		}
	}
	newHash := participantListHashV2(newDeviceList)
	if newHash != expectedNewHash {
		cli.Log.Debugf("Received own device list change notification %s -> %s, but expected hash was %s", oldHash, newHash, expectedNewHash)
		cli.userDevicesCache.Delete(ownID)
	} else {
		cli.Log.Debugf("Received own device list change notification %s -> %s", oldHash, newHash)
		cli.userDevicesCache.Put(ownID, newDeviceList)
	}
}

func (cli *Client) handleDeviceNotification(node *waBinary.Node) {
	ag := node.AttrGetter()
	from := ag.JID("from").ToNonAD()
	if !ag.OK() {
		cli.Log.Warnf("Failed to parse device list notification: %v", ag.Error())
		return
	}
	// The notification only contains the new hash, so just drop the cached
	// list and let the next message fan-out re-sync it.
	cli.userDevicesCache.Delete(from)
}

func (cli *Client) handleBlocklist(node *waBinary.Node) {
	ag := node.AttrGetter()
	evt := events.Blocklist{
		Action:    events.BlocklistAction(ag.OptionalString("action")),
		DHash:     ag.OptionalString("dhash"),
		PrevDHash: ag.OptionalString("prev_dhash"),
	}
	for _, child := range node.GetChildren() {
		if child.Tag != "item" {
			continue
		}
		cag := child.AttrGetter()
		change := events.BlocklistChange{
			JID:    cag.JID("jid"),
			Action: events.BlocklistChangeAction(cag.String("action")),
		}
		if !cag.OK() {
			cli.Log.Warnf("Failed to parse blocklist change entry: %v", cag.Error())
			continue
		}
		evt.Changes = append(evt.Changes, change)
	}
	cli.dispatchEvent(&evt)
}

func (cli *Client) handlePictureNotification(node *waBinary.Node) {
	ts := node.AttrGetter().UnixTime("t")
	for _, child := range node.GetChildren() {
		ag := child.AttrGetter()
		var evt events.Picture
		evt.Timestamp = ts
		evt.JID = ag.JID("jid")
		evt.Author = ag.OptionalJIDOrEmpty("author")
		if child.Tag == "delete" {
			evt.Remove = true
		} else if child.Tag == "add" {
			evt.PictureID = ag.OptionalString("id")
		} else if child.Tag == "set" {
			evt.PictureID = ag.OptionalString("id")
		} else {
			continue
		}
		if !ag.OK() {
			cli.Log.Warnf("Failed to parse picture notification: %v", ag.Error())
			continue
		}
		cli.dispatchEvent(&evt)
	}
}

func (cli *Client) handleIdentityChangeNotification(node *waBinary.Node) {
	ag := node.AttrGetter()
	from := ag.JID("from")
	ts := ag.UnixTime("t")
	if !ag.OK() {
		cli.Log.Warnf("Failed to parse identity change notification: %v", ag.Error())
		return
	}
	// The contact re-registered, so the old session won't work anymore.
	err := cli.Store.Keys.DeleteKey(context.TODO(), store.KeyTypeSession, from.SignalAddress().String())
	if err != nil {
		cli.Log.Warnf("Failed to delete session with %s after identity change: %v", from, err)
	}
	cli.dispatchEvent(&events.IdentityChange{JID: from, Timestamp: ts})
}

func (cli *Client) handleGroupNotification(node *waBinary.Node) {
	evt, err := cli.parseGroupNotification(node)
	if err != nil {
		cli.Log.Warnf("Failed to parse group notification: %v", err)
	} else {
		cli.dispatchEvent(evt)
	}
}

func (cli *Client) handleNotification(node *waBinary.Node) {
	ag := node.AttrGetter()
	notifType := ag.OptionalString("type")
	if !ag.OK() {
		return
	}
	if cli.ShouldIgnoreJID != nil && cli.ShouldIgnoreJID(ag.OptionalJIDOrEmpty("from")) {
		cli.Log.Debugf("Ignoring %s notification from %s", notifType, ag.OptionalJIDOrEmpty("from"))
		go cli.sendAck(node)
		return
	}
	switch notifType {
	case "encrypt":
		go cli.handleEncryptNotification(context.TODO(), node)
	case "server_sync", "account_sync":
		cli.handleAccountSyncNotification(node)
	case "devices":
		cli.handleDeviceNotification(node)
	case "w:gp2":
		cli.handleGroupNotification(node)
	case "picture":
		cli.handlePictureNotification(node)
	case "blocklist":
		cli.handleBlocklist(node)
	case "identity":
		cli.handleIdentityChangeNotification(node)
	case "link_code_companion_reg":
		go cli.tryHandleCodePairNotification(node)
	default:
		cli.Log.Debugf("Unhandled notification with type %s", notifType)
	}
	go cli.sendAck(node)
}
