// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"context"
	"sync/atomic"
	"time"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
	"github.com/Kunboruto20/borutowaileys-library/store"
	"github.com/Kunboruto20/borutowaileys-library/types"
	"github.com/Kunboruto20/borutowaileys-library/types/events"
)

// websocketCodeAbnormalClosure is used as the disconnect code when the socket
// drops without the server sending any failure or stream error first.
const websocketCodeAbnormalClosure = 1006

var reconnectBaseDelays = [...]time.Duration{
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
}

// reconnectDelay returns how long to sleep before reconnect attempt number
// attempt (1-based), scaled by the code of the previous disconnect. Overloaded
// and rate-limit codes back off harder, login timeouts retry faster.
func reconnectDelay(code, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	} else if attempt > len(reconnectBaseDelays) {
		attempt = len(reconnectBaseDelays)
	}
	delay := reconnectBaseDelays[attempt-1]
	switch code {
	case 503:
		delay *= 2
	case 429:
		delay *= 3
	case 408:
		delay /= 2
		if delay < time.Second {
			delay = time.Second
		}
	case 428, 401, 403:
		delay = delay * 3 / 2
		if delay < 3*time.Second {
			delay = 3 * time.Second
		}
	case 405:
		delay = delay * 4 / 5
		if delay < 2*time.Second {
			delay = 2 * time.Second
		}
	case websocketCodeAbnormalClosure:
		delay = delay * 6 / 5
	}
	return delay
}

func (cli *Client) handleStreamError(node *waBinary.Node) {
	atomic.StoreUint32(&cli.isLoggedIn, 0)
	code, _ := node.Attrs["code"].(string)
	conflict, _ := node.GetOptionalChildByTag("conflict")
	conflictType := conflict.AttrGetter().OptionalString("type")
	switch {
	case code == "515":
		cli.Log.Infof("Got 515 code, reconnecting...")
		go func() {
			cli.Disconnect()
			err := cli.Connect()
			if err != nil {
				cli.Log.Errorf("Failed to reconnect after 515 code: %v", err)
			}
		}()
	case code == "401" && conflictType == "device_removed":
		cli.expectDisconnect()
		cli.Log.Infof("Got device removed stream error, sending LoggedOut event and deleting session")
		go cli.dispatchEvent(&events.LoggedOut{OnConnect: false, Reason: events.ConnectFailureLoggedOut})
		err := cli.Store.Delete(context.TODO())
		if err != nil {
			cli.Log.Warnf("Failed to delete store after device_removed error: %v", err)
		}
	case conflictType == "replaced":
		cli.expectDisconnect()
		cli.Log.Infof("Got replaced stream error, sending StreamReplaced event")
		go cli.dispatchEvent(&events.StreamReplaced{})
	case code == "503":
		cli.lastDisconnectCode = 503
		// This seems to happen when the server wants to restart or something.
		// The disconnection will be emitted as an events.Disconnected and then the auto-reconnect will do its thing.
	default:
		cli.Log.Errorf("Unknown stream error: %s", node.XMLString())
		go cli.dispatchEvent(&events.StreamError{Code: code, Raw: node})
	}
}

func (cli *Client) handleConnectFailure(node *waBinary.Node) {
	ag := node.AttrGetter()
	reason := events.ConnectFailureReason(ag.Int("reason"))
	message := ag.OptionalString("message")
	cli.lastDisconnectCode = int(reason)
	willAutoReconnect := true
	switch {
	case reason == 500 || reason == 503:
		// Auto-reconnect for 500s and 503s
	case reason == events.ConnectFailureLoginTimeout:
		// The server expects the client to retry on login timeouts
	default:
		willAutoReconnect = false
	}
	if !willAutoReconnect {
		cli.expectDisconnect()
	}

	if cli.Config.ClearAuthOnError && isAuthFailureCode(int(reason)) {
		cli.Log.Warnf("Got %d connect failure, handing credential clearing to the application", int(reason))
		go cli.dispatchEvent(&events.AuthClearRequired{Code: int(reason), Reason: message})
		return
	}

	switch {
	case reason.IsLoggedOut():
		cli.Log.Infof("Got %s connect failure, sending LoggedOut event and deleting session", reason)
		go cli.dispatchEvent(&events.LoggedOut{OnConnect: true, Reason: reason})
		err := cli.Store.Delete(context.TODO())
		if err != nil {
			cli.Log.Warnf("Failed to delete store after %d failure: %v", int(reason), err)
		}
	case reason == events.ConnectFailureTempBanned:
		cli.Log.Warnf("Temporary ban connect failure: %s", node.XMLString())
		expiryTimeUnix := ag.OptionalInt("expire")
		var expiry time.Duration
		if expiryTimeUnix > 0 {
			expiry = time.Until(time.Unix(int64(expiryTimeUnix), 0))
		}
		go cli.dispatchEvent(&events.TemporaryBan{
			Code:   events.TempBanReason(ag.OptionalInt("code")),
			Expire: expiry,
		})
	case reason == events.ConnectFailureClientOutdated:
		cli.Log.Errorf("Client is outdated and can't connect, please update the protocol version")
		go cli.dispatchEvent(&events.ClientOutdated{})
	case willAutoReconnect:
		cli.Log.Warnf("Got %s connect failure, assuming it's a temporary server problem", reason)
	default:
		cli.Log.Warnf("Unknown connect failure: %s", node.XMLString())
		go cli.dispatchEvent(&events.ConnectFailure{Reason: reason, Message: message, Raw: node})
	}
}

func isAuthFailureCode(code int) bool {
	switch code {
	case 401, 403, 419, 428:
		return true
	default:
		return false
	}
}

func (cli *Client) handleConnectSuccess(node *waBinary.Node) {
	ag := node.AttrGetter()
	lid := ag.OptionalJIDOrEmpty("lid")
	cli.Log.Infof("Successfully authenticated")
	cli.LastSuccessfulConnect = time.Now()
	cli.AutoReconnectErrors = 0
	cli.lastDisconnectCode = websocketCodeAbnormalClosure
	atomic.StoreUint32(&cli.isLoggedIn, 1)
	if cli.Store.LID.IsEmpty() && !lid.IsEmpty() {
		cli.Store.LID = lid
		err := cli.Store.Save(context.TODO())
		if err != nil {
			cli.Log.Warnf("Failed to save device after updating LID: %v", err)
		}
	}
	go func() {
		ctx := context.TODO()
		count, err := cli.getServerPreKeyCount(ctx)
		if err != nil {
			cli.Log.Warnf("Failed to get number of prekeys on server: %v", err)
		} else if count < store.WantedPreKeyCount {
			cli.uploadPreKeys(ctx)
		}

		err = cli.SetPassive(ctx, false)
		if err != nil {
			cli.Log.Warnf("Failed to send post-connect passive IQ: %v", err)
		}

		cli.dispatchEvent(&events.Connected{})
		cli.closeSocketWaitChan()

		if cli.Config.MarkOnlineOnConnect {
			err = cli.SendPresence(types.PresenceAvailable)
			if err != nil {
				cli.Log.Warnf("Failed to send initial presence: %v", err)
			}
		}
	}()
}

// SetPassive tells the WhatsApp server whether this device is active (receives messages and receipts)
// or passive (only receives the node acks).
func (cli *Client) SetPassive(ctx context.Context, passive bool) error {
	tag := "active"
	if passive {
		tag = "passive"
	}
	_, err := cli.sendIQ(infoQuery{
		Context:   ctx,
		Namespace: "passive",
		Type:      iqSet,
		To:        types.ServerJID,
		Content:   []waBinary.Node{{Tag: tag}},
	})
	return err
}

func (cli *Client) handleIB(node *waBinary.Node) {
	children := node.GetChildren()
	for i := range children {
		child := &children[i]
		ag := child.AttrGetter()
		switch child.Tag {
		case "downgrade_webclient":
			go cli.dispatchEvent(&events.QRScannedWithoutMultidevice{})
		case "offline_preview":
			cli.dispatchEvent(&events.OfflineSyncPreview{
				Total:          ag.Int("count"),
				AppDataChanges: ag.Int("appdata"),
				Messages:       ag.Int("message"),
				Notifications:  ag.Int("notification"),
				Receipts:       ag.Int("receipt"),
			})
			cli.sendNode(waBinary.Node{Tag: "ib", Content: []waBinary.Node{{Tag: "offline_batch", Attrs: waBinary.Attrs{"count": "100"}}}})
		case "offline":
			cli.offlineSync.Lock()
			seen := cli.offlineSeenCount
			cli.offlineSeenCount = 0
			cli.offlineSync.Unlock()
			if ag.OptionalInt("count") > 0 {
				seen = ag.Int("count")
			}
			cli.dispatchEvent(&events.OfflineSyncCompleted{Count: seen})
		}
	}
}
