// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package borutowaileys implements a client for the WhatsApp web multidevice API.
package borutowaileys

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.mau.fi/util/random"
	"golang.org/x/net/proxy"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
	waProto "github.com/Kunboruto20/borutowaileys-library/binary/proto"
	"github.com/Kunboruto20/borutowaileys-library/socket"
	"github.com/Kunboruto20/borutowaileys-library/store"
	"github.com/Kunboruto20/borutowaileys-library/types"
	"github.com/Kunboruto20/borutowaileys-library/types/events"
	"github.com/Kunboruto20/borutowaileys-library/util/keys"
	waLog "github.com/Kunboruto20/borutowaileys-library/util/log"
	"github.com/Kunboruto20/borutowaileys-library/util/ttlcache"
)

// EventHandler is a function that can handle events from WhatsApp.
type EventHandler func(evt interface{})
type nodeHandler func(node *waBinary.Node)

var nextHandlerID uint32

type wrappedEventHandler struct {
	fn EventHandler
	id uint32
}

// ClientConfig contains the tunable options of a Client. The zero value is not
// usable; start from DefaultClientConfig and override fields before Connect.
type ClientConfig struct {
	// Version is the protocol version tuple reported in the client payload.
	// The zero value keeps the library default.
	Version [3]uint32
	// Browser is the [platform, browser, version] triple shown in the paired
	// devices list on the phone. The zero value keeps the library default.
	Browser [3]string

	ConnectTimeout      time.Duration
	KeepAliveInterval   time.Duration
	DefaultQueryTimeout time.Duration

	// RetryRequestDelay is the base delay of the local decrypt retry loop.
	RetryRequestDelay time.Duration
	// MaxMsgRetryCount bounds both local decrypt attempts and the number of
	// retry receipts sent for one message.
	MaxMsgRetryCount int

	MaxReconnectAttempts int

	MarkOnlineOnConnect bool
	SyncFullHistory     bool

	// FloodThreshold and FloodWindow configure the per-sender inbound rate
	// guard. Stanzas over the threshold are acked but not processed.
	FloodThreshold int
	FloodWindow    time.Duration

	// ClearAuthOnError makes auth-class connection failures (401/403/419/428)
	// emit events.AuthClearRequired instead of reconnecting, so the
	// application can wipe the stored credentials and re-pair.
	ClearAuthOnError bool
}

// DefaultClientConfig returns the default configuration used by NewClient.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ConnectTimeout:       20 * time.Second,
		KeepAliveInterval:    25 * time.Second,
		DefaultQueryTimeout:  60 * time.Second,
		RetryRequestDelay:    250 * time.Millisecond,
		MaxMsgRetryCount:     5,
		MaxReconnectAttempts: 5,
		FloodThreshold:       50,
		FloodWindow:          10 * time.Second,
	}
}

// Client contains everything necessary to connect to and interact with the WhatsApp web API.
type Client struct {
	Store   *store.Device
	Log     waLog.Logger
	recvLog waLog.Logger
	sendLog waLog.Logger

	// Config must only be modified before Connect is called.
	Config ClientConfig

	socket     *socket.NoiseSocket
	socketLock xsync.RBMutex
	socketWait chan struct{}

	isLoggedIn            uint32
	expectedDisconnectVal uint32
	lastDataReceived      atomic.Int64
	EnableAutoReconnect   bool
	LastSuccessfulConnect time.Time
	AutoReconnectErrors   int
	lastDisconnectCode    int

	sendActiveReceipts uint32

	// GetMessageForRetry is used to find the source message for handling retry receipts
	// when the message is not found in the recently sent message cache.
	GetMessageForRetry func(requester, to types.JID, id types.MessageID) *waProto.Message
	// PreRetryCallback is called before a retry receipt is accepted.
	// If it returns false, the accepting will be cancelled and the retry receipt will be ignored.
	PreRetryCallback func(receipt *events.Receipt, id types.MessageID, retryCount int, msg *waProto.Message) bool
	// ShouldIgnoreJID drops inbound stanzas from the given JID before any
	// processing. Stanzas from the server JID itself are never dropped.
	ShouldIgnoreJID func(jid types.JID) bool
	// CachedGroupMetadata short-circuits the group info query during group sends.
	// Returning a nil slice with a nil error falls back to querying the server.
	CachedGroupMetadata func(ctx context.Context, jid types.JID) ([]types.JID, error)
	// OnUnexpectedError receives errors from background tasks that have no caller to return to.
	OnUnexpectedError func(err error, context string)

	// PrePairCallback is called before pairing is completed. If it returns false, the pairing will
	// be cancelled and the client will disconnect.
	PrePairCallback func(jid types.JID, platform, businessName string) bool

	// AutomaticMessageRerequestFromPhone asks the primary device to resend
	// unavailable message placeholders automatically.
	AutomaticMessageRerequestFromPhone bool
	pendingPhoneRerequests             *xsync.MapOf[types.MessageID, context.CancelFunc]

	// MsgRetryCache counts retry receipts per message ID + participant.
	// Replace it before Connect to change the TTL or share it between clients.
	MsgRetryCache *ttlcache.Cache[string, int]
	// CallOfferCache remembers call offer metadata so later call stanzas
	// inherit the video/group flags.
	CallOfferCache *ttlcache.Cache[string, types.BasicCallMeta]
	// PlaceholderResendCache maps message IDs already re-requested from the
	// phone to the stanza ID of the request.
	PlaceholderResendCache *ttlcache.Cache[types.MessageID, types.MessageID]

	uploadPreKeysLock sync.Mutex
	lastPreKeyUpload  time.Time

	responseWaiters *xsync.MapOf[string, chan<- *waBinary.Node]

	nodeHandlers      *xsync.MapOf[string, []nodeHandlerSpec]
	handlerQueue      chan *waBinary.Node
	offlineQueue      chan *waBinary.Node
	offlineSync       sync.Mutex
	offlineCond       *sync.Cond
	pendingOffline    int
	offlineSeenCount  int
	eventHandlers     []wrappedEventHandler
	eventHandlersLock xsync.RBMutex

	// processingLock serializes all stanza handling so event listeners
	// observe consistent state.
	processingLock sync.Mutex
	// retryLock serializes retry receipt emission across the connection.
	retryLock sync.Mutex

	eventBuffer eventBuffer

	// floodWindows and inOfflineBatch are only touched by stanza handlers
	// under processingLock.
	floodWindows   map[types.JID][]time.Time
	inOfflineBatch bool

	incomingRetryRequestCounter *xsync.MapOf[incomingRetryKey, int]

	messageSendLock sync.Mutex

	groupCache       *ttlcache.Cache[types.JID, *types.GroupInfo]
	userDevicesCache *ttlcache.Cache[types.JID, []types.JID]

	recentMessagesMap  *xsync.MapOf[recentMessageKey, *waProto.Message]
	recentMessagesList [recentMessagesSize]recentMessageKey
	recentMessagesPtr  int

	sessionRecreateHistory *xsync.MapOf[types.JID, time.Time]

	phoneLinkingCache *phoneLinkingCache

	uniqueID  string
	idCounter uint32

	proxy       socket.Proxy
	socksDialer proxy.Dialer
	http        *http.Client
}

// Size of buffer for the channels that incoming XML nodes go through.
// In general it shouldn't go past a few buffered messages, but the channel is big to be safe.
const handlerQueueSize = 2048

const (
	msgRetryCacheTTL         = 15 * time.Minute
	callOfferCacheTTL        = 5 * time.Minute
	placeholderResendTTL     = 15 * time.Minute
	userDevicesCacheTTL      = 10 * time.Minute
	groupMetadataCacheTTL    = 5 * time.Minute
)

// NewClient initializes a new WhatsApp web client.
//
// The logger can be nil, it will default to a no-op logger.
//
// The device store must be set. For a fresh session, create one with
// store.NewDevice and an application-provided key store:
//
//	device := store.NewDevice(store.NewMemoryKeyStore(), store.NoopContainer{}, nil)
//	client := borutowaileys.NewClient(device, nil)
func NewClient(deviceStore *store.Device, log waLog.Logger) *Client {
	if log == nil {
		log = waLog.Noop
	}
	uniqueIDPrefix := random.Bytes(2)
	cli := &Client{
		http: &http.Client{
			Transport: (http.DefaultTransport.(*http.Transport)).Clone(),
		},
		proxy:           http.ProxyFromEnvironment,
		Store:           deviceStore,
		Log:             log,
		Config:          DefaultClientConfig(),
		recvLog:         log.Sub("Recv"),
		sendLog:         log.Sub("Send"),
		uniqueID:        fmt.Sprintf("%d.%d-", uniqueIDPrefix[0], uniqueIDPrefix[1]),
		responseWaiters: xsync.NewMapOf[string, chan<- *waBinary.Node](),
		eventHandlers:   make([]wrappedEventHandler, 0, 1),
		nodeHandlers:    xsync.NewMapOfPresized[string, []nodeHandlerSpec](12),
		handlerQueue:    make(chan *waBinary.Node, handlerQueueSize),
		offlineQueue:    make(chan *waBinary.Node, handlerQueueSize),
		socketWait:      make(chan struct{}),

		floodWindows: make(map[types.JID][]time.Time),

		MsgRetryCache:          ttlcache.New[string, int](msgRetryCacheTTL),
		CallOfferCache:         ttlcache.New[string, types.BasicCallMeta](callOfferCacheTTL),
		PlaceholderResendCache: ttlcache.New[types.MessageID, types.MessageID](placeholderResendTTL),

		incomingRetryRequestCounter: xsync.NewMapOf[incomingRetryKey, int](),

		groupCache:       ttlcache.New[types.JID, *types.GroupInfo](groupMetadataCacheTTL),
		userDevicesCache: ttlcache.New[types.JID, []types.JID](userDevicesCacheTTL),

		recentMessagesMap:      xsync.NewMapOfPresized[recentMessageKey, *waProto.Message](recentMessagesSize),
		sessionRecreateHistory: xsync.NewMapOf[types.JID, time.Time](),
		GetMessageForRetry:     func(requester, to types.JID, id types.MessageID) *waProto.Message { return nil },

		pendingPhoneRerequests: xsync.NewMapOf[types.MessageID, context.CancelFunc](),

		EnableAutoReconnect: true,
	}
	cli.offlineCond = sync.NewCond(&cli.offlineSync)
	cli.registerNodeHandler("message", nil, cli.handleEncryptedMessage)
	cli.registerNodeHandler("receipt", nil, cli.handleReceipt)
	cli.registerNodeHandler("call", nil, cli.handleCallEvent)
	cli.registerNodeHandler("chatstate", nil, cli.handleChatState)
	cli.registerNodeHandler("presence", nil, cli.handlePresence)
	cli.registerNodeHandler("notification", nil, cli.handleNotification)
	cli.registerNodeHandler("success", nil, cli.handleConnectSuccess)
	cli.registerNodeHandler("failure", nil, cli.handleConnectFailure)
	cli.registerNodeHandler("stream:error", nil, cli.handleStreamError)
	cli.registerNodeHandler("iq", nil, cli.handleIQ)
	cli.registerNodeHandler("ib", nil, cli.handleIB)
	return cli
}

// SetProxyAddress is a helper method that parses a URL string and calls SetProxy.
//
// Returns an error if url.Parse fails to parse the given address.
func (cli *Client) SetProxyAddress(addr string) error {
	parsed, err := url.Parse(addr)
	if err != nil {
		return err
	}
	cli.SetProxy(http.ProxyURL(parsed))
	return nil
}

// SetProxy sets the HTTP proxy to use for WhatsApp web websocket connections.
//
// Must be called before Connect() to take effect. By default, the client will
// find the proxy from the https_proxy environment variable like Go's net/http does.
func (cli *Client) SetProxy(proxy socket.Proxy) {
	cli.proxy = proxy
	cli.http.Transport.(*http.Transport).Proxy = proxy
}

// SetSOCKSProxy makes the websocket dial through the given SOCKS5 dialer instead of an HTTP proxy.
func (cli *Client) SetSOCKSProxy(dialer proxy.Dialer) {
	cli.socksDialer = dialer
}

func (cli *Client) getSocketWaitChan() <-chan struct{} {
	t := cli.socketLock.RLock()
	ch := cli.socketWait
	cli.socketLock.RUnlock(t)
	return ch
}

func (cli *Client) closeSocketWaitChan() {
	cli.socketLock.Lock()
	close(cli.socketWait)
	cli.socketWait = make(chan struct{})
	cli.socketLock.Unlock()
}

func (cli *Client) getOwnJID() types.JID {
	if cli.Store.ID == nil {
		return types.EmptyJID
	}
	return *cli.Store.ID
}

// WaitForConnection waits until the client is connected and logged in, or the timeout expires.
func (cli *Client) WaitForConnection(timeout time.Duration) bool {
	timeoutChan := time.After(timeout)
	t := cli.socketLock.RLock()
	for cli.socket == nil || !cli.socket.IsConnected() || !cli.IsLoggedIn() {
		ch := cli.socketWait
		cli.socketLock.RUnlock(t)
		select {
		case <-ch:
		case <-timeoutChan:
			return false
		}
		t = cli.socketLock.RLock()
	}
	cli.socketLock.RUnlock(t)
	return true
}

// Connect connects the client to the WhatsApp web websocket. After connection, it will either
// authenticate if there's data in the device store, or emit a QR event to set up a new link.
//
// Calling Connect while already connecting or connected is a no-op that returns ErrAlreadyConnected.
func (cli *Client) Connect() error {
	if cli == nil {
		return ErrClientIsNil
	}
	cli.socketLock.Lock()
	defer cli.socketLock.Unlock()
	if cli.socket != nil {
		if !cli.socket.IsConnected() {
			cli.unlockedDisconnect()
		} else {
			return ErrAlreadyConnected
		}
	}

	cli.applyVersionConfig()
	cli.resetExpectedDisconnect()
	fs := socket.NewFrameSocket(cli.Log.Sub("Socket"), cli.proxy)
	if cli.socksDialer != nil {
		fs.SetSOCKSProxy(cli.socksDialer)
	}
	if err := fs.Connect(); err != nil {
		fs.Close(0)
		return err
	} else if err = cli.doHandshake(fs, *keys.NewKeyPair()); err != nil {
		fs.Close(0)
		return fmt.Errorf("noise handshake failed: %w", err)
	}
	go cli.keepAliveLoop(cli.socket.Context())
	go cli.handlerQueueLoop(cli.socket.Context())
	go cli.offlineQueueLoop(cli.socket.Context())
	return nil
}

func (cli *Client) applyVersionConfig() {
	if cli.Config.Version != [3]uint32{} {
		store.SetWAVersion(cli.Config.Version[0], cli.Config.Version[1], cli.Config.Version[2])
	}
	if cli.Config.Browser != [3]string{} {
		store.DeviceProps.Os = waProto.String(cli.Config.Browser[0] + " " + cli.Config.Browser[1])
	}
	store.DeviceProps.RequireFullSync = waProto.Bool(cli.Config.SyncFullHistory)
}

// IsLoggedIn returns true after the client is successfully connected and authenticated on WhatsApp.
func (cli *Client) IsLoggedIn() bool {
	return atomic.LoadUint32(&cli.isLoggedIn) == 1
}

func (cli *Client) onDisconnect(ns *socket.NoiseSocket, remote bool) {
	ns.Stop(false)
	cli.socketLock.Lock()
	defer cli.socketLock.Unlock()
	if cli.socket == ns {
		cli.socket = nil
		cli.clearResponseWaiters(xmlStreamEndNode)
		if !cli.isExpectedDisconnect() && remote {
			cli.Log.Debugf("Emitting Disconnected event")
			go cli.dispatchEvent(&events.Disconnected{})
			go cli.autoReconnect()
		} else if remote {
			cli.Log.Debugf("OnDisconnect() called, but it was expected, so not emitting event")
		} else {
			cli.Log.Debugf("OnDisconnect() called after manual disconnection")
		}
	} else {
		cli.Log.Debugf("Ignoring OnDisconnect on different socket")
	}
}

func (cli *Client) expectDisconnect() {
	atomic.StoreUint32(&cli.expectedDisconnectVal, 1)
}

func (cli *Client) resetExpectedDisconnect() {
	atomic.StoreUint32(&cli.expectedDisconnectVal, 0)
}

func (cli *Client) isExpectedDisconnect() bool {
	return atomic.LoadUint32(&cli.expectedDisconnectVal) == 1
}

func (cli *Client) autoReconnect() {
	if !cli.EnableAutoReconnect || cli.Store.ID == nil {
		return
	}
	for {
		cli.AutoReconnectErrors++
		if cli.Config.MaxReconnectAttempts > 0 && cli.AutoReconnectErrors > cli.Config.MaxReconnectAttempts {
			cli.Log.Errorf("Not reconnecting: maximum number of reconnect attempts (%d) reached", cli.Config.MaxReconnectAttempts)
			cli.dispatchEvent(&events.ConnectFailure{
				Reason:  events.ConnectFailureReason(cli.lastDisconnectCode),
				Message: "max reconnect attempts reached",
			})
			return
		}
		delay := reconnectDelay(cli.lastDisconnectCode, cli.AutoReconnectErrors)
		cli.Log.Debugf("Automatically reconnecting after %v (attempt #%d)", delay, cli.AutoReconnectErrors)
		time.Sleep(delay)
		err := cli.Connect()
		if errors.Is(err, ErrAlreadyConnected) {
			cli.Log.Debugf("Connect() said we're already connected after autoreconnect sleep")
			return
		} else if err != nil {
			cli.Log.Errorf("Error reconnecting after autoreconnect sleep: %v", err)
		} else {
			return
		}
	}
}

// IsConnected checks if the client is connected to the WhatsApp web websocket.
// Note that this doesn't check if the client is authenticated. See IsLoggedIn for that.
func (cli *Client) IsConnected() bool {
	t := cli.socketLock.RLock()
	connected := cli.socket != nil && cli.socket.IsConnected()
	cli.socketLock.RUnlock(t)
	return connected
}

// Disconnect disconnects from the WhatsApp web websocket.
//
// This will not emit any events: the Disconnected event is only used when the
// connection is closed by the server or a network error. Auto-reconnect is
// disabled for a manual disconnection, and pending info queries are rejected
// with a connection closed error.
func (cli *Client) Disconnect() {
	if cli.socket == nil {
		return
	}
	cli.expectDisconnect()
	cli.socketLock.Lock()
	cli.unlockedDisconnect()
	cli.socketLock.Unlock()
}

func (cli *Client) unlockedDisconnect() {
	if cli.socket != nil {
		cli.socket.Stop(true)
		cli.socket = nil
		cli.clearResponseWaiters(xmlStreamEndNode)
	}
}

// Logout sends a request to unlink the device, then disconnects from the websocket and deletes the local device store.
//
// If the logout request fails, the disconnection and local data deletion will not happen either.
//
// Note that this will not emit any events. The LoggedOut event is only used for external logouts
// (triggered by the user from the main device or by WhatsApp servers).
func (cli *Client) Logout(ctx context.Context) error {
	ownID := cli.getOwnJID()
	if ownID.IsEmpty() {
		return ErrNotLoggedIn
	}
	_, err := cli.sendIQ(infoQuery{
		Context:   ctx,
		Namespace: "md",
		Type:      iqSet,
		To:        types.ServerJID,
		Content: []waBinary.Node{{
			Tag: "remove-companion-device",
			Attrs: waBinary.Attrs{
				"jid":    ownID,
				"reason": "user_initiated",
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("error sending logout request: %w", err)
	}
	cli.Disconnect()
	err = cli.Store.Delete(ctx)
	if err != nil {
		return fmt.Errorf("error deleting data from store: %w", err)
	}
	return nil
}

// AddEventHandler registers a new function to receive all events emitted by this client.
//
// The returned integer is the event handler ID, which can be passed to RemoveEventHandler to remove it.
//
// All registered event handlers will receive all events. You should use a type switch statement to
// filter the events you want:
//
//	func myEventHandler(evt interface{}) {
//		switch v := evt.(type) {
//		case *events.Message:
//			fmt.Println("Received a message!")
//		case *events.Receipt:
//			fmt.Println("Received a receipt!")
//		}
//	}
func (cli *Client) AddEventHandler(handler EventHandler) uint32 {
	nextID := atomic.AddUint32(&nextHandlerID, 1)
	cli.eventHandlersLock.Lock()
	cli.eventHandlers = append(cli.eventHandlers, wrappedEventHandler{handler, nextID})
	cli.eventHandlersLock.Unlock()
	return nextID
}

// RemoveEventHandler removes a previously registered event handler function.
// If the function with the given ID is found, this returns true.
//
// N.B. Do not run this directly from an event handler. That would cause a deadlock because the
// event dispatcher holds a read lock on the event handler list, and this method wants a write lock
// on the same list. Instead run it in a goroutine.
func (cli *Client) RemoveEventHandler(id uint32) bool {
	cli.eventHandlersLock.Lock()
	defer cli.eventHandlersLock.Unlock()
	for index := range cli.eventHandlers {
		if cli.eventHandlers[index].id == id {
			if index == 0 {
				cli.eventHandlers[0].fn = nil
				cli.eventHandlers = cli.eventHandlers[1:]
				return true
			} else if index < len(cli.eventHandlers)-1 {
				copy(cli.eventHandlers[index:], cli.eventHandlers[index+1:])
			}
			cli.eventHandlers[len(cli.eventHandlers)-1].fn = nil
			cli.eventHandlers = cli.eventHandlers[:len(cli.eventHandlers)-1]
			return true
		}
	}
	return false
}

// RemoveEventHandlers removes all event handlers that have been registered with AddEventHandler.
func (cli *Client) RemoveEventHandlers() {
	cli.eventHandlersLock.Lock()
	cli.eventHandlers = make([]wrappedEventHandler, 0, 1)
	cli.eventHandlersLock.Unlock()
}

func (cli *Client) handleFrame(data []byte) {
	cli.markServerTraffic()
	decompressed, err := waBinary.Unpack(data)
	if err != nil {
		cli.Log.Warnf("Failed to decompress frame: %v", err)
		cli.Log.Debugf("Errored frame hex: %s", hex.EncodeToString(data))
		return
	}
	node, err := waBinary.Unmarshal(decompressed)
	if err != nil {
		cli.Log.Warnf("Failed to decode node in frame: %v", err)
		cli.Log.Debugf("Errored frame hex: %s", hex.EncodeToString(decompressed))
		return
	}
	cli.recvLog.Debugf("%s", node.XMLString())
	if node.Tag == "xmlstreamend" {
		if !cli.isExpectedDisconnect() {
			cli.Log.Warnf("Received stream end frame")
		}
	} else if cli.receiveResponse(node) {
		// handled
	} else if _, ok := cli.nodeHandlers.Load(node.Tag); ok {
		cli.enqueueNode(node)
	} else if node.Tag != "ack" {
		cli.Log.Debugf("Didn't handle WhatsApp node %s", node.Tag)
	}
}

// enqueueNode routes the node to the offline batch queue or the live handler
// queue. Offline stanzas (buffered by the server while we were disconnected)
// are drained before any live stanza is processed, so the server's
// batch-then-live order is preserved end to end.
func (cli *Client) enqueueNode(node *waBinary.Node) {
	queue := cli.handlerQueue
	if _, offline := node.Attrs["offline"]; offline {
		cli.offlineSync.Lock()
		cli.pendingOffline++
		cli.offlineSeenCount++
		cli.offlineSync.Unlock()
		queue = cli.offlineQueue
	}
	select {
	case queue <- node:
	default:
		cli.Log.Warnf("Handler queue is full, message ordering is no longer guaranteed")
		go func() {
			queue <- node
		}()
	}
}

func (cli *Client) handlerQueueLoop(ctx context.Context) {
	cli.Log.Debugf("Starting handler queue loop")
	for {
		select {
		case node := <-cli.handlerQueue:
			cli.waitOfflineQueueDrain(ctx)
			cli.processNode(node)
		case <-ctx.Done():
			cli.Log.Debugf("Closing handler queue loop")
			return
		}
	}
}

func (cli *Client) offlineQueueLoop(ctx context.Context) {
	for {
		select {
		case node := <-cli.offlineQueue:
			cli.processNode(node)
			cli.offlineSync.Lock()
			cli.pendingOffline--
			if cli.pendingOffline == 0 {
				cli.offlineCond.Broadcast()
			}
			cli.offlineSync.Unlock()
		case <-ctx.Done():
			cli.Log.Debugf("Closing offline queue loop")
			return
		}
	}
}

func (cli *Client) waitOfflineQueueDrain(ctx context.Context) {
	cli.offlineSync.Lock()
	defer cli.offlineSync.Unlock()
	for cli.pendingOffline > 0 && ctx.Err() == nil {
		cli.offlineCond.Wait()
	}
}

// processNode runs the matching stanza handler under the processing lock, with
// event emission buffered so listeners see each stanza's events as one batch.
func (cli *Client) processNode(node *waBinary.Node) {
	handler := cli.findNodeHandler(node)
	if handler == nil {
		cli.Log.Debugf("No handler for node %s", node.Tag)
		return
	}
	cli.processingLock.Lock()
	defer cli.processingLock.Unlock()
	_, cli.inOfflineBatch = node.Attrs["offline"]
	defer func() {
		if err := recover(); err != nil {
			cli.Log.Errorf("Node handler panicked while handling a %s: %v\n%s", node.Tag, err, debug.Stack())
			cli.unexpectedError(fmt.Errorf("panic: %v", err), "node handler for "+node.Tag)
		}
	}()
	cli.eventBuffer.begin()
	defer cli.flushEventBuffer()
	start := time.Now()
	handler(node)
	if duration := time.Since(start); duration > 5*time.Second {
		cli.Log.Warnf("Node handling took %s for %s", duration, node.XMLString())
	}
}

func (cli *Client) unexpectedError(err error, context string) {
	if cli.OnUnexpectedError != nil {
		cli.OnUnexpectedError(err, context)
	}
}

func (cli *Client) sendNodeAndGetData(node waBinary.Node) ([]byte, error) {
	t := cli.socketLock.RLock()
	sock := cli.socket
	cli.socketLock.RUnlock(t)
	if sock == nil {
		return nil, ErrNotConnected
	}

	payload, err := waBinary.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal node: %w", err)
	}

	cli.sendLog.Debugf("%s", node.XMLString())
	return payload, sock.SendFrame(payload)
}

func (cli *Client) sendNode(node waBinary.Node) error {
	_, err := cli.sendNodeAndGetData(node)
	return err
}
