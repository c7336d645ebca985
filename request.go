// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
	"github.com/Kunboruto20/borutowaileys-library/types"
)

// generateRequestID returns a new stanza ID. IDs are unique within a client
// instance: a random prefix from NewClient plus an incrementing counter.
func (cli *Client) generateRequestID() string {
	return cli.uniqueID + strconv.FormatUint(uint64(atomic.AddUint32(&cli.idCounter, 1)), 10)
}

var xmlStreamEndNode = &waBinary.Node{Tag: "xmlstreamend"}

func isDisconnectNode(node *waBinary.Node) bool {
	return node == xmlStreamEndNode || node.Tag == "stream:error"
}

// isAuthErrorDisconnect checks if the given disconnect node is an error that shouldn't be retried.
func isAuthErrorDisconnect(node *waBinary.Node) bool {
	if node.Tag != "stream:error" {
		return false
	}
	code, _ := node.Attrs["code"].(string)
	conflict, _ := node.GetOptionalChildByTag("conflict")
	conflictType := conflict.AttrGetter().OptionalString("type")
	return code == "401" || conflictType == "replaced" || conflictType == "device_removed"
}

func (cli *Client) clearResponseWaiters(node *waBinary.Node) {
	cli.responseWaiters.Range(func(_ string, waiter chan<- *waBinary.Node) bool {
		select {
		case waiter <- node:
		default:
			close(waiter)
		}
		return true
	})
	cli.responseWaiters.Clear()
}

func (cli *Client) waitResponse(reqID string) chan *waBinary.Node {
	ch := make(chan *waBinary.Node, 1)
	cli.responseWaiters.Store(reqID, ch)
	return ch
}

func (cli *Client) cancelResponse(reqID string, ch chan *waBinary.Node) {
	cli.responseWaiters.Delete(reqID)
	close(ch)
}

// receiveResponse delivers the node to a pending request waiter. It returns
// true if the node was consumed as a response.
func (cli *Client) receiveResponse(data *waBinary.Node) bool {
	id, ok := data.Attrs["id"].(string)
	if !ok || (data.Tag != "iq" && data.Tag != "ack") {
		return false
	}
	waiter, ok := cli.responseWaiters.LoadAndDelete(id)
	if !ok {
		return false
	}
	cli.Log.Debugf("Forwarding response to request %s", id)
	waiter <- data
	return true
}

type infoQueryType string

const (
	iqSet infoQueryType = "set"
	iqGet infoQueryType = "get"
)

type infoQuery struct {
	Namespace string
	Type      infoQueryType
	To        types.JID
	Target    types.JID
	ID        string
	Content   interface{}

	Timeout time.Duration
	NoRetry bool
	Context context.Context
}

// retryFrame resends the frame once after the socket reconnects, for iqs that
// raced a server-initiated disconnect.
func (cli *Client) retryFrame(reqType, id string, data []byte, origResp *waBinary.Node, ctx context.Context, timeout time.Duration) (*waBinary.Node, error) {
	cli.Log.Debugf("Waiting for connection to retry %s %s", reqType, id)
	if !cli.WaitForConnection(5 * time.Second) {
		origNode := "nil"
		if origResp != nil {
			origNode = origResp.XMLString()
		}
		cli.Log.Debugf("Connection didn't open within 5 seconds of failed %s (%s), not retrying", reqType, id)
		return nil, &DisconnectedError{Action: reqType, Node: origNode}
	}

	respChan := cli.waitResponse(id)
	t := cli.socketLock.RLock()
	sock := cli.socket
	cli.socketLock.RUnlock(t)
	if sock == nil {
		cli.cancelResponse(id, respChan)
		return nil, ErrNotConnected
	}
	err := sock.SendFrame(data)
	if err != nil {
		cli.cancelResponse(id, respChan)
		return nil, err
	}
	var timeoutChan <-chan time.Time
	if timeout > 0 {
		timeoutChan = time.After(timeout)
	}
	select {
	case res := <-respChan:
		if isDisconnectNode(res) {
			cli.Log.Debugf("Retrying %s %s was interrupted by websocket disconnection (%v), not retrying anymore", reqType, id, res.XMLString())
			return nil, &DisconnectedError{Action: fmt.Sprintf("%s (retry)", reqType), Node: res.XMLString()}
		}
		return res, nil
	case <-timeoutChan:
		return nil, ErrIQTimedOut
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (cli *Client) sendIQAsyncAndGetData(query *infoQuery) (<-chan *waBinary.Node, []byte, error) {
	if cli == nil {
		return nil, nil, ErrClientIsNil
	}
	if len(query.ID) == 0 {
		query.ID = cli.generateRequestID()
	}
	if query.To.IsEmpty() {
		query.To = types.ServerJID
	}
	waiter := cli.waitResponse(query.ID)
	attrs := waBinary.Attrs{
		"id":    query.ID,
		"xmlns": query.Namespace,
		"type":  string(query.Type),
	}
	if !query.To.IsEmpty() {
		attrs["to"] = query.To
	}
	if !query.Target.IsEmpty() {
		attrs["target"] = query.Target
	}
	data, err := cli.sendNodeAndGetData(waBinary.Node{
		Tag:     "iq",
		Attrs:   attrs,
		Content: query.Content,
	})
	if err != nil {
		cli.cancelResponse(query.ID, waiter)
		return nil, nil, err
	}
	return waiter, data, nil
}

// sendIQAsync sends the iq and returns a channel that receives the response node.
func (cli *Client) sendIQAsync(query infoQuery) (<-chan *waBinary.Node, error) {
	ch, _, err := cli.sendIQAsyncAndGetData(&query)
	return ch, err
}

// sendIQ sends the iq and waits for the response, resolving the iq error
// grammar into Go errors. A nil query context means context.Background, and a
// zero timeout means the configured default query timeout.
func (cli *Client) sendIQ(query infoQuery) (*waBinary.Node, error) {
	resChan, data, err := cli.sendIQAsyncAndGetData(&query)
	if err != nil {
		return nil, err
	}
	if query.Timeout == 0 {
		query.Timeout = cli.Config.DefaultQueryTimeout
	}
	if query.Context == nil {
		query.Context = context.Background()
	}
	select {
	case res := <-resChan:
		if isDisconnectNode(res) {
			if query.NoRetry {
				return nil, &DisconnectedError{Action: "info query", Node: res.XMLString()}
			}
			res, err = cli.retryFrame("info query", query.ID, data, res, query.Context, query.Timeout)
			if err != nil {
				return nil, err
			}
		}
		resType, _ := res.Attrs["type"].(string)
		if res.Tag != "iq" || (resType != "result" && resType != "error") {
			return res, &IQError{RawNode: res}
		} else if resType == "error" {
			return res, parseIQError(res)
		}
		return res, nil
	case <-query.Context.Done():
		return nil, query.Context.Err()
	case <-time.After(query.Timeout):
		return nil, ErrIQTimedOut
	}
}

// nodeHandlerSpec is one registered handler with an optional attribute
// selector. When several handlers match a node's tag, the one with the most
// matching attribute constraints wins.
type nodeHandlerSpec struct {
	attrs   waBinary.Attrs
	handler nodeHandler
}

func (spec *nodeHandlerSpec) matches(node *waBinary.Node) bool {
	for key, want := range spec.attrs {
		if node.Attrs[key] != want {
			return false
		}
	}
	return true
}

// registerNodeHandler adds a handler for the given stanza tag. A nil attrs map
// registers a catch-all for the tag; a non-nil map restricts the handler to
// nodes whose attributes contain every listed pair.
func (cli *Client) registerNodeHandler(tag string, attrs waBinary.Attrs, handler nodeHandler) {
	cli.nodeHandlers.Compute(tag, func(specs []nodeHandlerSpec, _ bool) ([]nodeHandlerSpec, bool) {
		return append(specs, nodeHandlerSpec{attrs: attrs, handler: handler}), false
	})
}

func (cli *Client) findNodeHandler(node *waBinary.Node) nodeHandler {
	specs, ok := cli.nodeHandlers.Load(node.Tag)
	if !ok {
		return nil
	}
	var best nodeHandler
	bestSpecificity := -1
	for i := range specs {
		if specs[i].matches(node) && len(specs[i].attrs) > bestSpecificity {
			best = specs[i].handler
			bestSpecificity = len(specs[i].attrs)
		}
	}
	return best
}

// handleIQ handles server-initiated iqs (currently just pings and pair requests).
func (cli *Client) handleIQ(node *waBinary.Node) {
	children := node.GetChildren()
	if len(children) != 1 || node.Attrs["from"] != types.ServerJID {
		return
	}
	switch children[0].Tag {
	case "pair-device":
		cli.handlePairDevice(node)
	case "pair-success":
		cli.handlePairSuccess(node)
	case "ping":
		cli.Log.Debugf("Responding to server ping %s", node.Attrs["id"])
		err := cli.sendNode(waBinary.Node{
			Tag: "iq",
			Attrs: waBinary.Attrs{
				"to":   types.ServerJID,
				"id":   node.Attrs["id"],
				"type": "result",
			},
		})
		if err != nil {
			cli.Log.Warnf("Failed to respond to server ping: %v", err)
		}
	}
}
