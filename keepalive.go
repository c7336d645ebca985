// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"context"
	"time"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
	"github.com/Kunboruto20/borutowaileys-library/types"
	"github.com/Kunboruto20/borutowaileys-library/types/events"
)

const keepAliveResponseDeadline = 10 * time.Second

// staleConnectionFactor times the keepalive interval with no inbound traffic
// at all means the connection is considered dead even if pings get buffered.
const staleConnectionFactor = 3

func (cli *Client) markServerTraffic() {
	cli.lastDataReceived.Store(time.Now().UnixMilli())
}

func (cli *Client) keepAliveLoop(ctx context.Context) {
	var errorCount int
	var lastSuccess time.Time
	interval := cli.Config.KeepAliveInterval
	for {
		select {
		case <-time.After(interval):
			isSuccess, shouldContinue := cli.sendKeepAlive(ctx)
			if !shouldContinue {
				return
			} else if !isSuccess {
				errorCount++
				go cli.dispatchEvent(&events.KeepAliveTimeout{
					ErrorCount:  errorCount,
					LastSuccess: lastSuccess,
				})
				if cli.forceReconnectOnStale(ctx, errorCount) {
					return
				}
			} else {
				if errorCount > 0 {
					errorCount = 0
					go cli.dispatchEvent(&events.KeepAliveRestored{})
				}
				lastSuccess = time.Now()
			}
		case <-ctx.Done():
			return
		}
	}
}

// forceReconnectOnStale tears down the socket when pings keep failing and no
// other server traffic has arrived either. Returns true if it did.
func (cli *Client) forceReconnectOnStale(ctx context.Context, errorCount int) bool {
	if errorCount < 2 || !cli.EnableAutoReconnect {
		return false
	}
	sinceData := time.Since(time.UnixMilli(cli.lastDataReceived.Load()))
	if sinceData < staleConnectionFactor*cli.Config.KeepAliveInterval {
		return false
	}
	cli.Log.Warnf("No server traffic in %v and %d failed keepalives, reconnecting", sinceData, errorCount)
	cli.socketLock.Lock()
	cli.unlockedDisconnect()
	cli.socketLock.Unlock()
	go cli.autoReconnect()
	return true
}

func (cli *Client) sendKeepAlive(ctx context.Context) (isSuccess, shouldContinue bool) {
	respCh, err := cli.sendIQAsync(infoQuery{
		Namespace: "w:p",
		Type:      iqGet,
		To:        types.ServerJID,
		Content:   []waBinary.Node{{Tag: "ping"}},
	})
	if err != nil {
		cli.Log.Warnf("Failed to send keepalive: %v", err)
		return false, true
	}
	select {
	case <-respCh:
		return true, true
	case <-time.After(keepAliveResponseDeadline):
		cli.Log.Warnf("Keepalive timed out")
		return false, true
	case <-ctx.Done():
		return false, false
	}
}
