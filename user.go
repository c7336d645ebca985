// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"context"
	"fmt"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
	"github.com/Kunboruto20/borutowaileys-library/types"
)

// GetUserDevices gets the list of devices that the given user has.
// The input should be a list of regular JIDs, and the output will be a list of AD JIDs.
// The local device will not be included in the output even if the user's JID is included in the input.
func (cli *Client) GetUserDevices(jids []types.JID) ([]types.JID, error) {
	return cli.GetUserDevicesContext(context.Background(), jids)
}

// GetUserDevicesContext is GetUserDevices with a context.
//
// Results are cached for a few minutes; the cache is invalidated by device
// list change notifications from the server.
func (cli *Client) GetUserDevicesContext(ctx context.Context, jids []types.JID) ([]types.JID, error) {
	if cli == nil {
		return nil, ErrClientIsNil
	}
	var devices, jidsToSync []types.JID
	for _, jid := range jids {
		jid = jid.ToNonAD()
		cached, ok := cli.userDevicesCache.Get(jid)
		if ok && len(cached) > 0 {
			devices = append(devices, cached...)
		} else {
			jidsToSync = append(jidsToSync, jid)
		}
	}
	if len(jidsToSync) == 0 {
		return devices, nil
	}

	list, err := cli.usync(ctx, jidsToSync, "query", "message", []waBinary.Node{
		{Tag: "devices", Attrs: waBinary.Attrs{"version": "2"}},
	})
	if err != nil {
		return nil, err
	}

	for _, user := range list.GetChildren() {
		jid, jidOK := user.Attrs["jid"].(types.JID)
		if user.Tag != "user" || !jidOK {
			continue
		}
		userDevices := parseDeviceList(jid, &user)
		cli.userDevicesCache.Put(jid.ToNonAD(), userDevices)
		devices = append(devices, userDevices...)
	}

	return devices, nil
}

func parseDeviceList(user types.JID, node *waBinary.Node) []types.JID {
	deviceNode, ok := node.GetOptionalChildByTag("devices")
	if !ok {
		return nil
	}
	deviceList, ok := deviceNode.GetOptionalChildByTag("device-list")
	if !ok {
		return nil
	}
	children := deviceList.GetChildren()
	devices := make([]types.JID, 0, len(children))
	for _, device := range children {
		deviceID, ok := device.AttrGetter().GetInt64("id", true)
		if device.Tag != "device" || !ok {
			continue
		}
		deviceJID := types.JID{User: user.User, Device: uint16(deviceID), Server: user.Server}
		devices = append(devices, deviceJID)
	}
	return devices
}

// usync sends a user sync query for the given users and returns the list node
// of the response.
func (cli *Client) usync(ctx context.Context, jids []types.JID, mode, context_ string, query []waBinary.Node) (*waBinary.Node, error) {
	userList := make([]waBinary.Node, len(jids))
	for i, jid := range jids {
		userList[i].Tag = "user"
		jid = jid.ToNonAD()
		switch jid.Server {
		case types.DefaultUserServer, types.HiddenUserServer:
			userList[i].Attrs = waBinary.Attrs{"jid": jid}
		default:
			return nil, fmt.Errorf("unknown user server '%s'", jid.Server)
		}
	}
	resp, err := cli.sendIQ(infoQuery{
		Context:   ctx,
		Namespace: "usync",
		Type:      "get",
		To:        types.ServerJID,
		Content: []waBinary.Node{{
			Tag: "usync",
			Attrs: waBinary.Attrs{
				"sid":     cli.generateRequestID(),
				"mode":    mode,
				"last":    "true",
				"index":   "0",
				"context": context_,
			},
			Content: []waBinary.Node{
				{Tag: "query", Content: query},
				{Tag: "list", Content: userList},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send usync query: %w", err)
	}
	list, ok := resp.GetOptionalChildByTag("usync", "list")
	if !ok {
		return nil, &ElementMissingError{Tag: "list", In: "usync"}
	}
	return &list, nil
}
