// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
	waProto "github.com/Kunboruto20/borutowaileys-library/binary/proto"
	"github.com/Kunboruto20/borutowaileys-library/store"
	"github.com/Kunboruto20/borutowaileys-library/types"
	waLog "github.com/Kunboruto20/borutowaileys-library/util/log"
)

type recordingLogger struct {
	mu    sync.Mutex
	errs  []string
	warns []string
}

func (l *recordingLogger) Errorf(msg string, args ...interface{}) {
	l.mu.Lock()
	l.errs = append(l.errs, fmt.Sprintf(msg, args...))
	l.mu.Unlock()
}

func (l *recordingLogger) Warnf(msg string, args ...interface{}) {
	l.mu.Lock()
	l.warns = append(l.warns, fmt.Sprintf(msg, args...))
	l.mu.Unlock()
}

func (l *recordingLogger) Infof(_ string, _ ...interface{})  {}
func (l *recordingLogger) Debugf(_ string, _ ...interface{}) {}
func (l *recordingLogger) Sub(_ string) waLog.Logger         { return l }

func (l *recordingLogger) countErrors(substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for _, entry := range l.errs {
		if strings.Contains(entry, substr) {
			n++
		}
	}
	return n
}

func (l *recordingLogger) countWarns(substr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for _, entry := range l.warns {
		if strings.Contains(entry, substr) {
			n++
		}
	}
	return n
}

func TestMsgRetryKey(t *testing.T) {
	cli := newTestClient(t)
	sender := types.JID{User: "1234567890", Device: 7, Server: types.DefaultUserServer}
	key := cli.msgRetryKey("3EB0AABBCC", sender)
	want := "3EB0AABBCC|1234567890@s.whatsapp.net"
	if key != want {
		t.Errorf("msgRetryKey = %q, want %q", key, want)
	}
	// Different devices of the same sender share the counter.
	otherDevice := types.JID{User: "1234567890", Device: 2, Server: types.DefaultUserServer}
	if cli.msgRetryKey("3EB0AABBCC", otherDevice) != key {
		t.Error("retry key differs between devices of the same user")
	}
}

func TestRecentMessageRing(t *testing.T) {
	cli := newTestClient(t)
	to := types.NewJID("1234567890", types.DefaultUserServer)

	msg := &waProto.Message{Conversation: waProto.String("hello")}
	cli.addRecentMessage(to, "msg-1", msg)
	if got := cli.getRecentMessage(to, "msg-1"); got != msg {
		t.Fatal("stored message not found in recent cache")
	}
	if got := cli.getRecentMessage(to, "msg-2"); got != nil {
		t.Fatal("unknown ID returned a message")
	}

	// The ring holds a fixed number of entries; old ones get evicted.
	for i := 0; i < recentMessagesSize; i++ {
		cli.addRecentMessage(to, types.MessageID(fmt.Sprintf("filler-%d", i)), msg)
	}
	if got := cli.getRecentMessage(to, "msg-1"); got != nil {
		t.Error("oldest message not evicted from ring")
	}
}

func TestBuildUnavailableMessageRequest(t *testing.T) {
	cli := newTestClient(t)
	chat := types.NewJID("1234567890", types.DefaultUserServer)
	sender := types.NewJID("9876543210", types.DefaultUserServer)

	msg := cli.BuildUnavailableMessageRequest(chat, sender, "3EB0MISSING")
	pm := msg.GetProtocolMessage()
	if pm == nil {
		t.Fatal("request has no protocol message")
	}
	if pm.GetType() != waProto.ProtocolMessageType_PEER_DATA_OPERATION_REQUEST_MESSAGE {
		t.Errorf("protocol message type = %v, want PEER_DATA_OPERATION_REQUEST_MESSAGE", pm.GetType())
	}
	req := pm.GetPeerDataOperationRequestMessage()
	if req == nil {
		t.Fatal("request has no peer data operation request")
	}
	if req.GetPeerDataOperationRequestType() != waProto.PeerDataOperationRequestType_PLACEHOLDER_MESSAGE_RESEND {
		t.Errorf("request type = %v, want PLACEHOLDER_MESSAGE_RESEND", req.GetPeerDataOperationRequestType())
	}
	resends := req.GetPlaceholderMessageResendRequest()
	if len(resends) != 1 {
		t.Fatalf("got %d resend requests, want 1", len(resends))
	}
	key := resends[0].GetMessageKey()
	if key.GetId() != "3EB0MISSING" {
		t.Errorf("message key ID = %q, want 3EB0MISSING", key.GetId())
	}
	if key.GetRemoteJid() != chat.String() {
		t.Errorf("message key chat = %q, want %q", key.GetRemoteJid(), chat.String())
	}
	if key.GetParticipant() != sender.String() {
		t.Errorf("message key participant = %q, want %q", key.GetParticipant(), sender.String())
	}
}

func TestRetryReceiptEmissionCap(t *testing.T) {
	device := store.NewDevice(store.NewMemoryKeyStore(), store.NoopContainer{}, nil)
	log := &recordingLogger{}
	cli := NewClient(device, log)
	cli.Config.MaxMsgRetryCount = 2

	sender := types.NewJID("1234567890", types.DefaultUserServer)
	node := &waBinary.Node{
		Tag:     "message",
		Attrs:   waBinary.Attrs{"id": "3EB0RETRY", "from": sender, "t": "1700000000"},
		Content: []waBinary.Node{{Tag: "enc", Attrs: waBinary.Attrs{"type": "msg", "v": "2"}}},
	}
	info := &types.MessageInfo{
		ID:            "3EB0RETRY",
		MessageSource: types.MessageSource{Chat: sender, Sender: sender},
	}
	for i := 0; i < 4; i++ {
		cli.sendRetryReceipt(context.Background(), node, info, false)
	}

	// The client isn't connected, so every attempted emission fails sendNode
	// and gets logged. Only the first call is below the retry cap.
	if attempts := log.countErrors("Failed to send retry receipt"); attempts != 1 {
		t.Errorf("attempted %d retry receipt emissions, want 1", attempts)
	}
	if suppressed := log.countWarns("Not sending any more retry receipts"); suppressed != 3 {
		t.Errorf("suppressed %d retry receipts, want 3", suppressed)
	}
}

func TestShouldRecreateSession(t *testing.T) {
	cli := newTestClient(t)
	addr := types.JID{User: "1234567890", Device: 1, Server: types.DefaultUserServer}

	// No session stored: always recreate.
	reason, recreate := cli.shouldRecreateSession(1, addr)
	if !recreate {
		t.Errorf("no stored session but shouldRecreateSession = false (%s)", reason)
	}

	// With a session present, low retry counts never recreate and higher
	// counts are throttled by the recent recreation above.
	err := cli.Store.Keys.PutKey(context.Background(), store.KeyTypeSession, addr.SignalAddress().String(), []byte{1})
	if err != nil {
		t.Fatalf("failed to store fake session: %v", err)
	}
	if _, recreate = cli.shouldRecreateSession(1, addr); recreate {
		t.Error("session recreated with retry count below 2")
	}
	if _, recreate = cli.shouldRecreateSession(3, addr); recreate {
		t.Error("session recreation not throttled within the timeout window")
	}
}
