// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog"

	borutowaileys "github.com/Kunboruto20/borutowaileys-library"
	waProto "github.com/Kunboruto20/borutowaileys-library/binary/proto"
	"github.com/Kunboruto20/borutowaileys-library/store"
	"github.com/Kunboruto20/borutowaileys-library/types"
	"github.com/Kunboruto20/borutowaileys-library/types/events"
	"github.com/Kunboruto20/borutowaileys-library/util/keys"
	waLog "github.com/Kunboruto20/borutowaileys-library/util/log"
)

var (
	dbPath    = flag.String("db", "mdtest.db", "Path to the SQLite database file")
	logLevel  = flag.String("log-level", "debug", "Log level (debug/info/warn/error)")
	pairPhone = flag.String("pair-phone", "", "Pair with a phone number (link code) instead of scanning a QR code")
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS device (
	lock INTEGER PRIMARY KEY CHECK (lock = 1),
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS crypto_keys (
	type TEXT NOT NULL,
	id   TEXT NOT NULL,
	value BLOB NOT NULL,
	PRIMARY KEY (type, id)
);
`

// sqliteStore persists both the device credentials and the Signal key rows in
// a single SQLite file.
type sqliteStore struct {
	db *sql.DB
}

func newSQLiteStore(path string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", path))
	if err != nil {
		return nil, err
	}
	if _, err = db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) GetKeys(ctx context.Context, typ store.KeyType, ids []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(ids))
	for _, id := range ids {
		var value []byte
		err := s.db.QueryRowContext(ctx, "SELECT value FROM crypto_keys WHERE type=? AND id=?", string(typ), id).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		} else if err != nil {
			return nil, err
		}
		result[id] = value
	}
	return result, nil
}

func (s *sqliteStore) PutKeys(ctx context.Context, data store.KeyMap) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for typ, rows := range data {
		for id, value := range rows {
			if value == nil {
				_, err = tx.ExecContext(ctx, "DELETE FROM crypto_keys WHERE type=? AND id=?", string(typ), id)
			} else {
				_, err = tx.ExecContext(ctx, "INSERT OR REPLACE INTO crypto_keys (type, id, value) VALUES (?, ?, ?)", string(typ), id, value)
			}
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) DeleteAllKeys(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM crypto_keys")
	return err
}

// serializedDevice is the JSON layout of the device table row.
type serializedDevice struct {
	NoiseKey       []byte `json:"noise_key"`
	IdentityKey    []byte `json:"identity_key"`
	SignedPreKey   []byte `json:"signed_pre_key"`
	SignedPreKeyID uint32 `json:"signed_pre_key_id"`
	SignedPreKeySig []byte `json:"signed_pre_key_sig"`
	RegistrationID uint32 `json:"registration_id"`
	AdvSecretKey   []byte `json:"adv_secret_key"`

	ID       string `json:"jid,omitempty"`
	LID      string `json:"lid,omitempty"`
	Account  []byte `json:"account,omitempty"`
	Platform string `json:"platform,omitempty"`

	BusinessName string `json:"business_name,omitempty"`
	PushName     string `json:"push_name,omitempty"`

	NextPreKeyID            uint32 `json:"next_pre_key_id"`
	FirstUnuploadedPreKeyID uint32 `json:"first_unuploaded_pre_key_id"`
}

func (s *sqliteStore) PutDevice(ctx context.Context, device *store.Device) error {
	sd := serializedDevice{
		NoiseKey:        device.NoiseKey.Priv[:],
		IdentityKey:     device.IdentityKey.Priv[:],
		SignedPreKey:    device.SignedPreKey.Priv[:],
		SignedPreKeyID:  device.SignedPreKey.KeyID,
		SignedPreKeySig: device.SignedPreKey.Signature[:],
		RegistrationID:  device.RegistrationID,
		AdvSecretKey:    device.AdvSecretKey,

		Platform:     device.Platform,
		BusinessName: device.BusinessName,
		PushName:     device.PushName,

		NextPreKeyID:            device.NextPreKeyID,
		FirstUnuploadedPreKeyID: device.FirstUnuploadedPreKeyID,
	}
	if device.ID != nil {
		sd.ID = device.ID.String()
	}
	if !device.LID.IsEmpty() {
		sd.LID = device.LID.String()
	}
	if device.Account != nil {
		account, err := device.Account.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal account: %w", err)
		}
		sd.Account = account
	}
	data, err := json.Marshal(&sd)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "INSERT OR REPLACE INTO device (lock, data) VALUES (1, ?)", string(data))
	return err
}

func (s *sqliteStore) DeleteDevice(ctx context.Context, _ *store.Device) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM device")
	return err
}

// loadDevice restores the stored device, or creates a fresh one if the
// database is empty.
func (s *sqliteStore) loadDevice(ctx context.Context, log waLog.Logger) (*store.Device, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM device WHERE lock=1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return store.NewDevice(s, s, log.Sub("Device")), nil
	} else if err != nil {
		return nil, err
	}
	var sd serializedDevice
	if err = json.Unmarshal([]byte(data), &sd); err != nil {
		return nil, fmt.Errorf("failed to parse stored device: %w", err)
	}

	device := store.NewDevice(s, s, log.Sub("Device"))
	device.NoiseKey = keys.NewKeyPairFromPrivateKey(*(*[32]byte)(sd.NoiseKey))
	device.IdentityKey = keys.NewKeyPairFromPrivateKey(*(*[32]byte)(sd.IdentityKey))
	device.SignedPreKey = &keys.PreKey{
		KeyPair:   *keys.NewKeyPairFromPrivateKey(*(*[32]byte)(sd.SignedPreKey)),
		KeyID:     sd.SignedPreKeyID,
		Signature: (*[64]byte)(sd.SignedPreKeySig),
	}
	device.RegistrationID = sd.RegistrationID
	device.AdvSecretKey = sd.AdvSecretKey
	device.Platform = sd.Platform
	device.BusinessName = sd.BusinessName
	device.PushName = sd.PushName
	device.NextPreKeyID = sd.NextPreKeyID
	device.FirstUnuploadedPreKeyID = sd.FirstUnuploadedPreKeyID
	if sd.ID != "" {
		jid, err := types.ParseJID(sd.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored JID: %w", err)
		}
		device.ID = &jid
	}
	if sd.LID != "" {
		lid, err := types.ParseJID(sd.LID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored LID: %w", err)
		}
		device.LID = lid
	}
	if len(sd.Account) > 0 {
		var account waProto.ADVSignedDeviceIdentity
		if err = account.Unmarshal(sd.Account); err != nil {
			return nil, fmt.Errorf("failed to parse stored account: %w", err)
		}
		device.Account = &account
	}
	return device, nil
}

var cli *borutowaileys.Client
var log waLog.Logger

func main() {
	flag.Parse()

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.StampMilli}).
		With().Timestamp().Logger()
	switch strings.ToLower(*logLevel) {
	case "debug":
		zlog = zlog.Level(zerolog.DebugLevel)
	case "info":
		zlog = zlog.Level(zerolog.InfoLevel)
	case "warn":
		zlog = zlog.Level(zerolog.WarnLevel)
	default:
		zlog = zlog.Level(zerolog.ErrorLevel)
	}
	log = waLog.Zerolog(zlog)

	db, err := newSQLiteStore(*dbPath)
	if err != nil {
		log.Errorf("Failed to open database: %v", err)
		os.Exit(2)
	}
	device, err := db.loadDevice(context.Background(), log)
	if err != nil {
		log.Errorf("Failed to load device: %v", err)
		os.Exit(2)
	}

	cli = borutowaileys.NewClient(device, log.Sub("Client"))
	cli.EnableAutoReconnect = true
	cli.AddEventHandler(handleEvent)

	if err = cli.Connect(); err != nil {
		log.Errorf("Failed to connect: %v", err)
		os.Exit(1)
	}

	if device.ID == nil && *pairPhone != "" {
		code, err := cli.PairPhone(context.Background(), *pairPhone, true, borutowaileys.PairClientChrome, "Chrome (Linux)")
		if err != nil {
			log.Errorf("Failed to start phone pairing: %v", err)
			os.Exit(1)
		}
		fmt.Println("Linking code:", code)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	input := make(chan string)
	go func() {
		defer close(input)
		scan := bufio.NewScanner(os.Stdin)
		for scan.Scan() {
			line := strings.TrimSpace(scan.Text())
			if len(line) > 0 {
				input <- line
			}
		}
	}()
	for {
		select {
		case <-c:
			log.Infof("Interrupt received, exiting")
			cli.Disconnect()
			return
		case cmd := <-input:
			if len(cmd) == 0 {
				log.Infof("Stdin closed, exiting")
				cli.Disconnect()
				return
			}
			args := strings.Fields(cmd)
			go handleCmd(strings.ToLower(args[0]), args[1:])
		}
	}
}

func handleCmd(cmd string, args []string) {
	switch cmd {
	case "send":
		if len(args) < 2 {
			log.Errorf("Usage: send <jid> <text>")
			return
		}
		recipient, err := types.ParseJID(args[0])
		if err != nil {
			log.Errorf("Invalid JID %s: %v", args[0], err)
			return
		}
		msg := &waProto.Message{Conversation: waProto.String(strings.Join(args[1:], " "))}
		resp, err := cli.SendMessage(context.Background(), recipient, msg)
		if err != nil {
			log.Errorf("Error sending message: %v", err)
		} else {
			log.Infof("Message sent (server timestamp: %s)", resp.Timestamp)
		}
	case "markread":
		if len(args) < 2 {
			log.Errorf("Usage: markread <jid> <id>...")
			return
		}
		chat, err := types.ParseJID(args[0])
		if err != nil {
			log.Errorf("Invalid JID %s: %v", args[0], err)
			return
		}
		err = cli.MarkRead(args[1:], time.Now(), chat, chat)
		if err != nil {
			log.Errorf("Error marking read: %v", err)
		}
	case "presence":
		if len(args) == 0 {
			args = []string{string(types.PresenceAvailable)}
		}
		err := cli.SendPresence(types.Presence(args[0]))
		if err != nil {
			log.Errorf("Error sending presence: %v", err)
		}
	case "subscribepresence":
		if len(args) < 1 {
			log.Errorf("Usage: subscribepresence <jid>")
			return
		}
		jid, err := types.ParseJID(args[0])
		if err != nil {
			log.Errorf("Invalid JID %s: %v", args[0], err)
			return
		}
		if err = cli.SubscribePresence(jid); err != nil {
			log.Errorf("Error subscribing to presence: %v", err)
		}
	case "getgroup":
		if len(args) < 1 {
			log.Errorf("Usage: getgroup <jid>")
			return
		}
		group, err := types.ParseJID(args[0])
		if err != nil {
			log.Errorf("Invalid JID %s: %v", args[0], err)
			return
		}
		info, err := cli.GetGroupInfo(group)
		if err != nil {
			log.Errorf("Failed to get group info: %v", err)
		} else {
			log.Infof("Group info: %+v", info)
		}
	case "getdevices":
		if len(args) < 1 {
			log.Errorf("Usage: getdevices <jid>...")
			return
		}
		jids := make([]types.JID, 0, len(args))
		for _, arg := range args {
			jid, err := types.ParseJID(arg)
			if err != nil {
				log.Errorf("Invalid JID %s: %v", arg, err)
				return
			}
			jids = append(jids, jid)
		}
		devices, err := cli.GetUserDevices(jids)
		if err != nil {
			log.Errorf("Failed to get devices: %v", err)
		} else {
			log.Infof("Devices: %+v", devices)
		}
	case "logout":
		if err := cli.Logout(context.Background()); err != nil {
			log.Errorf("Error logging out: %v", err)
		} else {
			log.Infof("Logged out")
		}
	case "disconnect":
		cli.Disconnect()
	case "reconnect":
		cli.Disconnect()
		if err := cli.Connect(); err != nil {
			log.Errorf("Failed to reconnect: %v", err)
		}
	default:
		log.Errorf("Unknown command: %s", cmd)
	}
}

func handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.QR:
		// The server sends several codes; each is valid for about 20 seconds.
		fmt.Println("Scan this QR code with the WhatsApp app:")
		qrterminal.GenerateHalfBlock(evt.Codes[0], qrterminal.L, os.Stdout)
	case *events.PairSuccess:
		log.Infof("Paired as %s (business name: %q, platform: %s)", evt.ID, evt.BusinessName, evt.Platform)
	case *events.PairError:
		log.Errorf("Pairing failed: %v", evt.Error)
	case *events.Connected:
		log.Infof("Connected to WhatsApp")
		if err := cli.SendPresence(types.PresenceAvailable); err == nil {
			log.Infof("Marked self as available")
		}
	case *events.LoggedOut:
		log.Infof("Logged out (on connect: %t, reason: %s)", evt.OnConnect, evt.Reason)
	case *events.Disconnected:
		log.Infof("Disconnected from WhatsApp")
	case *events.StreamReplaced:
		log.Errorf("Stream replaced by another client, exiting")
		os.Exit(0)
	case *events.Message:
		metaParts := []string{fmt.Sprintf("pushname: %s", evt.Info.PushName)}
		if evt.Info.Type != "" {
			metaParts = append(metaParts, fmt.Sprintf("type: %s", evt.Info.Type))
		}
		if evt.Offline {
			metaParts = append(metaParts, "offline")
		}
		log.Infof("Received message %s from %s (%s): %+v", evt.Info.ID, evt.Info.SourceString(), strings.Join(metaParts, ", "), evt.Message)
	case *events.Receipt:
		if evt.Type == types.ReceiptTypeRead || evt.Type == types.ReceiptTypeReadSelf {
			log.Infof("%v was read by %s at %s", evt.MessageIDs, evt.SourceString(), evt.Timestamp)
		} else if evt.Type == types.ReceiptTypeDelivered {
			log.Infof("%s was delivered to %s at %s", evt.MessageIDs[0], evt.SourceString(), evt.Timestamp)
		}
	case *events.Presence:
		if evt.Unavailable {
			log.Infof("%s is now offline (last seen: %s)", evt.From, evt.LastSeen)
		} else {
			log.Infof("%s is now online", evt.From)
		}
	case *events.ChatPresence:
		log.Infof("Chat presence update in %s from %s: %s %s", evt.Chat, evt.Sender, evt.State, evt.Media)
	case *events.HistorySync:
		log.Infof("Received history sync notification (type %s, chunk %d)", evt.Data.GetSyncType(), evt.Data.GetChunkOrder())
	case *events.UndecryptableMessage:
		log.Errorf("Failed to decrypt message %s from %s (unavailable: %t)", evt.Info.ID, evt.Info.SourceString(), evt.IsUnavailable)
	case *events.GroupInfo:
		log.Infof("Group %s changed: join=%v leave=%v", evt.JID, evt.Join, evt.Leave)
	case *events.JoinedGroup:
		log.Infof("Joined group %s (%s)", evt.JID, evt.Name)
	case *events.CallOffer:
		log.Infof("Incoming call %s from %s", evt.CallID, evt.From)
	case *events.KeepAliveTimeout:
		log.Warnf("Keepalive timeout (error count: %d)", evt.ErrorCount)
	case *events.KeepAliveRestored:
		log.Infof("Keepalive restored")
	case *events.TemporaryBan:
		log.Errorf("Temporarily banned: %s (expires in %s)", evt.Code, evt.Expire)
	case *events.ConnectFailure:
		log.Errorf("Connect failure: %d (%s)", evt.Reason, evt.Message)
	}
}
