// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
	"github.com/Kunboruto20/borutowaileys-library/types"
	"github.com/Kunboruto20/borutowaileys-library/types/events"
)

func (cli *Client) handleCallEvent(node *waBinary.Node) {
	go cli.sendAck(node)

	if len(node.GetChildren()) != 1 {
		cli.dispatchEvent(&events.UnknownCallEvent{Node: node})
		return
	}
	ag := node.AttrGetter()
	child := node.GetChildren()[0]
	cag := child.AttrGetter()
	basicMeta := types.BasicCallMeta{
		From:        ag.JID("from"),
		Timestamp:   ag.UnixTime("t"),
		CallCreator: cag.JID("call-creator"),
		CallID:      cag.String("call-id"),
	}
	switch child.Tag {
	case "offer", "offer_notice":
		_, basicMeta.IsVideo = child.GetOptionalChildByTag("video")
		_, basicMeta.IsGroup = child.GetOptionalChildByTag("group")
		if cag.OptionalString("media") == "video" {
			basicMeta.IsVideo = true
		}
		if cag.OptionalString("type") == "group" {
			basicMeta.IsGroup = true
		}
	default:
		if offerMeta, ok := cli.CallOfferCache.Get(basicMeta.CallID); ok {
			basicMeta.IsVideo = offerMeta.IsVideo
			basicMeta.IsGroup = offerMeta.IsGroup
		}
	}
	switch child.Tag {
	case "offer":
		cli.CallOfferCache.Put(basicMeta.CallID, basicMeta)
		cli.dispatchEvent(&events.CallOffer{
			BasicCallMeta: basicMeta,
			CallRemoteMeta: types.CallRemoteMeta{
				RemotePlatform: ag.String("platform"),
				RemoteVersion:  ag.String("version"),
			},
			Data: &child,
		})
	case "offer_notice":
		cli.CallOfferCache.Put(basicMeta.CallID, basicMeta)
		cli.dispatchEvent(&events.CallOfferNotice{
			BasicCallMeta: basicMeta,
			Media:         cag.OptionalString("media"),
			Type:          cag.OptionalString("type"),
			Data:          &child,
		})
	case "accept":
		cli.dispatchEvent(&events.CallAccept{
			BasicCallMeta: basicMeta,
			Data:          &child,
		})
	case "preaccept":
		cli.dispatchEvent(&events.CallPreAccept{
			BasicCallMeta: basicMeta,
			Data:          &child,
		})
	case "transport":
		cli.dispatchEvent(&events.CallTransport{
			BasicCallMeta: basicMeta,
			Data:          &child,
		})
	case "relaylatency":
		cli.dispatchEvent(&events.CallRelayLatency{
			BasicCallMeta: basicMeta,
			Data:          &child,
		})
	case "terminate":
		cli.dispatchEvent(&events.CallTerminate{
			BasicCallMeta: basicMeta,
			Reason:        cag.OptionalString("reason"),
			Data:          &child,
		})
	default:
		cli.dispatchEvent(&events.UnknownCallEvent{Node: node})
	}
}
