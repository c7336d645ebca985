// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package waProto

// MessageKey identifies a message in a chat.
type MessageKey struct {
	RemoteJid   *string // 1
	FromMe      *bool   // 2
	Id          *string // 3
	Participant *string // 4
}

func (m *MessageKey) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendString(b, 1, m.RemoteJid)
	b = appendBool(b, 2, m.FromMe)
	b = appendString(b, 3, m.Id)
	b = appendString(b, 4, m.Participant)
	return b
}

func (m *MessageKey) unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.RemoteJid = s.string()
		case 2:
			m.FromMe = s.bool()
		case 3:
			m.Id = s.string()
		case 4:
			m.Participant = s.string()
		}
	}
	return s.finish("MessageKey")
}

func (m *MessageKey) GetRemoteJid() string {
	if m == nil || m.RemoteJid == nil {
		return ""
	}
	return *m.RemoteJid
}

func (m *MessageKey) GetFromMe() bool {
	if m == nil || m.FromMe == nil {
		return false
	}
	return *m.FromMe
}

func (m *MessageKey) GetId() string {
	if m == nil || m.Id == nil {
		return ""
	}
	return *m.Id
}

func (m *MessageKey) GetParticipant() string {
	if m == nil || m.Participant == nil {
		return ""
	}
	return *m.Participant
}

// SenderKeyDistributionMessage distributes a group sender key to a single device.
type SenderKeyDistributionMessage struct {
	GroupId                             *string // 1
	AxolotlSenderKeyDistributionMessage []byte  // 2
}

func (m *SenderKeyDistributionMessage) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendString(b, 1, m.GroupId)
	b = appendBytes(b, 2, m.AxolotlSenderKeyDistributionMessage)
	return b
}

func (m *SenderKeyDistributionMessage) unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.GroupId = s.string()
		case 2:
			m.AxolotlSenderKeyDistributionMessage = s.bytes()
		}
	}
	return s.finish("SenderKeyDistributionMessage")
}

func (m *SenderKeyDistributionMessage) GetGroupId() string {
	if m == nil || m.GroupId == nil {
		return ""
	}
	return *m.GroupId
}

func (m *SenderKeyDistributionMessage) GetAxolotlSenderKeyDistributionMessage() []byte {
	if m == nil {
		return nil
	}
	return m.AxolotlSenderKeyDistributionMessage
}

// ExtendedTextMessage is a text message with extra context.
type ExtendedTextMessage struct {
	Text *string // 1
}

func (m *ExtendedTextMessage) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendString(b, 1, m.Text)
	return b
}

func (m *ExtendedTextMessage) unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.Text = s.string()
		}
	}
	return s.finish("ExtendedTextMessage")
}

func (m *ExtendedTextMessage) GetText() string {
	if m == nil || m.Text == nil {
		return ""
	}
	return *m.Text
}

// HistorySyncType is the kind of chunk in a history sync notification.
type HistorySyncType int32

const (
	HistorySyncType_INITIAL_BOOTSTRAP  HistorySyncType = 0
	HistorySyncType_INITIAL_STATUS_V3  HistorySyncType = 1
	HistorySyncType_FULL               HistorySyncType = 2
	HistorySyncType_RECENT             HistorySyncType = 3
	HistorySyncType_PUSH_NAME          HistorySyncType = 4
	HistorySyncType_NON_BLOCKING_DATA  HistorySyncType = 5
	HistorySyncType_ON_DEMAND          HistorySyncType = 6
)

// HistorySyncNotification announces an encrypted history chunk uploaded by the phone.
type HistorySyncNotification struct {
	FileSha256        []byte           // 1
	FileLength        *uint64          // 2
	MediaKey          []byte           // 3
	FileEncSha256     []byte           // 4
	DirectPath        *string          // 5
	SyncType          *HistorySyncType // 6
	ChunkOrder        *uint32          // 7
	OriginalMessageId *string          // 8
}

func (m *HistorySyncNotification) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendBytes(b, 1, m.FileSha256)
	b = appendUint64(b, 2, m.FileLength)
	b = appendBytes(b, 3, m.MediaKey)
	b = appendBytes(b, 4, m.FileEncSha256)
	b = appendString(b, 5, m.DirectPath)
	b = appendInt32(b, 6, (*int32)(m.SyncType))
	b = appendUint32(b, 7, m.ChunkOrder)
	b = appendString(b, 8, m.OriginalMessageId)
	return b
}

func (m *HistorySyncNotification) unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.FileSha256 = s.bytes()
		case 2:
			m.FileLength = s.uint64()
		case 3:
			m.MediaKey = s.bytes()
		case 4:
			m.FileEncSha256 = s.bytes()
		case 5:
			m.DirectPath = s.string()
		case 6:
			m.SyncType = (*HistorySyncType)(s.int32())
		case 7:
			m.ChunkOrder = s.uint32()
		case 8:
			m.OriginalMessageId = s.string()
		}
	}
	return s.finish("HistorySyncNotification")
}

func (m *HistorySyncNotification) GetSyncType() HistorySyncType {
	if m == nil || m.SyncType == nil {
		return HistorySyncType_INITIAL_BOOTSTRAP
	}
	return *m.SyncType
}

func (m *HistorySyncNotification) GetChunkOrder() uint32 {
	if m == nil || m.ChunkOrder == nil {
		return 0
	}
	return *m.ChunkOrder
}

// AppStateSyncKeyId identifies an app state sync key.
type AppStateSyncKeyId struct {
	KeyId []byte // 1
}

func (m *AppStateSyncKeyId) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendBytes(b, 1, m.KeyId)
	return b
}

func (m *AppStateSyncKeyId) unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		if s.num == 1 {
			m.KeyId = s.bytes()
		}
	}
	return s.finish("AppStateSyncKeyId")
}

func (m *AppStateSyncKeyId) GetKeyId() []byte {
	if m == nil {
		return nil
	}
	return m.KeyId
}

// AppStateSyncKeyData is the key material of an app state sync key.
type AppStateSyncKeyData struct {
	KeyData     []byte // 1
	Fingerprint []byte // 2 (opaque to this client)
	Timestamp   *int64 // 3
}

func (m *AppStateSyncKeyData) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendBytes(b, 1, m.KeyData)
	b = appendBytes(b, 2, m.Fingerprint)
	b = appendInt64(b, 3, m.Timestamp)
	return b
}

func (m *AppStateSyncKeyData) unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.KeyData = s.bytes()
		case 2:
			m.Fingerprint = s.bytes()
		case 3:
			m.Timestamp = s.int64()
		}
	}
	return s.finish("AppStateSyncKeyData")
}

func (m *AppStateSyncKeyData) GetKeyData() []byte {
	if m == nil {
		return nil
	}
	return m.KeyData
}

// AppStateSyncKey is one shared app state sync key.
type AppStateSyncKey struct {
	KeyId   *AppStateSyncKeyId   // 1
	KeyData *AppStateSyncKeyData // 2
}

func (m *AppStateSyncKey) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendMessage(b, 1, m.KeyId)
	b = appendMessage(b, 2, m.KeyData)
	return b
}

func (m *AppStateSyncKey) unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.KeyId = &AppStateSyncKeyId{}
			if err := m.KeyId.unmarshal(s.val); err != nil {
				return err
			}
		case 2:
			m.KeyData = &AppStateSyncKeyData{}
			if err := m.KeyData.unmarshal(s.val); err != nil {
				return err
			}
		}
	}
	return s.finish("AppStateSyncKey")
}

func (m *AppStateSyncKey) GetKeyId() *AppStateSyncKeyId {
	if m == nil {
		return nil
	}
	return m.KeyId
}

func (m *AppStateSyncKey) GetKeyData() *AppStateSyncKeyData {
	if m == nil {
		return nil
	}
	return m.KeyData
}

// AppStateSyncKeyShare is a batch of app state sync keys shared by the primary device.
type AppStateSyncKeyShare struct {
	Keys []*AppStateSyncKey // 1
}

func (m *AppStateSyncKeyShare) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	for _, key := range m.Keys {
		b = appendMessage(b, 1, key)
	}
	return b
}

func (m *AppStateSyncKeyShare) unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		if s.num == 1 {
			key := &AppStateSyncKey{}
			if err := key.unmarshal(s.val); err != nil {
				return err
			}
			m.Keys = append(m.Keys, key)
		}
	}
	return s.finish("AppStateSyncKeyShare")
}

func (m *AppStateSyncKeyShare) GetKeys() []*AppStateSyncKey {
	if m == nil {
		return nil
	}
	return m.Keys
}

// PeerDataOperationRequestType is the kind of peer data operation requested from the phone.
type PeerDataOperationRequestType int32

const (
	PeerDataOperationRequestType_UPLOAD_STICKER                PeerDataOperationRequestType = 0
	PeerDataOperationRequestType_SEND_RECENT_STICKER_BOOTSTRAP PeerDataOperationRequestType = 1
	PeerDataOperationRequestType_GENERATE_LINK_PREVIEW         PeerDataOperationRequestType = 2
	PeerDataOperationRequestType_HISTORY_SYNC_ON_DEMAND        PeerDataOperationRequestType = 3
	PeerDataOperationRequestType_PLACEHOLDER_MESSAGE_RESEND    PeerDataOperationRequestType = 4
)

// PlaceholderMessageResendRequest asks the phone to resend the real ciphertext for a placeholder.
type PlaceholderMessageResendRequest struct {
	MessageKey *MessageKey // 1
}

func (m *PlaceholderMessageResendRequest) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendMessage(b, 1, m.MessageKey)
	return b
}

func (m *PlaceholderMessageResendRequest) unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		if s.num == 1 {
			m.MessageKey = &MessageKey{}
			if err := m.MessageKey.unmarshal(s.val); err != nil {
				return err
			}
		}
	}
	return s.finish("PlaceholderMessageResendRequest")
}

func (m *PlaceholderMessageResendRequest) GetMessageKey() *MessageKey {
	if m == nil {
		return nil
	}
	return m.MessageKey
}

// PeerDataOperationRequestMessage is a device-to-device request for data held by the phone.
type PeerDataOperationRequestMessage struct {
	PeerDataOperationRequestType    *PeerDataOperationRequestType      // 1
	PlaceholderMessageResendRequest []*PlaceholderMessageResendRequest // 4
}

func (m *PeerDataOperationRequestMessage) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendInt32(b, 1, (*int32)(m.PeerDataOperationRequestType))
	for _, req := range m.PlaceholderMessageResendRequest {
		b = appendMessage(b, 4, req)
	}
	return b
}

func (m *PeerDataOperationRequestMessage) unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.PeerDataOperationRequestType = (*PeerDataOperationRequestType)(s.int32())
		case 4:
			req := &PlaceholderMessageResendRequest{}
			if err := req.unmarshal(s.val); err != nil {
				return err
			}
			m.PlaceholderMessageResendRequest = append(m.PlaceholderMessageResendRequest, req)
		}
	}
	return s.finish("PeerDataOperationRequestMessage")
}

func (m *PeerDataOperationRequestMessage) GetPeerDataOperationRequestType() PeerDataOperationRequestType {
	if m == nil || m.PeerDataOperationRequestType == nil {
		return PeerDataOperationRequestType_UPLOAD_STICKER
	}
	return *m.PeerDataOperationRequestType
}

func (m *PeerDataOperationRequestMessage) GetPlaceholderMessageResendRequest() []*PlaceholderMessageResendRequest {
	if m == nil {
		return nil
	}
	return m.PlaceholderMessageResendRequest
}

// ProtocolMessageType is the kind of a protocol (device-to-device) message.
type ProtocolMessageType int32

const (
	ProtocolMessageType_REVOKE                                     ProtocolMessageType = 0
	ProtocolMessageType_EPHEMERAL_SETTING                          ProtocolMessageType = 3
	ProtocolMessageType_EPHEMERAL_SYNC_RESPONSE                    ProtocolMessageType = 4
	ProtocolMessageType_HISTORY_SYNC_NOTIFICATION                  ProtocolMessageType = 5
	ProtocolMessageType_APP_STATE_SYNC_KEY_SHARE                   ProtocolMessageType = 6
	ProtocolMessageType_APP_STATE_SYNC_KEY_REQUEST                 ProtocolMessageType = 7
	ProtocolMessageType_MSG_FANOUT_BACKFILL_REQUEST                ProtocolMessageType = 8
	ProtocolMessageType_INITIAL_SECURITY_NOTIFICATION_SETTING_SYNC ProtocolMessageType = 9
	ProtocolMessageType_PEER_DATA_OPERATION_REQUEST_MESSAGE        ProtocolMessageType = 14
	ProtocolMessageType_MESSAGE_EDIT                               ProtocolMessageType = 16
)

// ProtocolMessage is a device-to-device control message.
type ProtocolMessage struct {
	Key                             *MessageKey                      // 1
	Type                            *ProtocolMessageType             // 2
	HistorySyncNotification         *HistorySyncNotification         // 6
	AppStateSyncKeyShare            *AppStateSyncKeyShare            // 10
	PeerDataOperationRequestMessage *PeerDataOperationRequestMessage // 16
}

func (m *ProtocolMessage) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendMessage(b, 1, m.Key)
	b = appendInt32(b, 2, (*int32)(m.Type))
	b = appendMessage(b, 6, m.HistorySyncNotification)
	b = appendMessage(b, 10, m.AppStateSyncKeyShare)
	b = appendMessage(b, 16, m.PeerDataOperationRequestMessage)
	return b
}

func (m *ProtocolMessage) unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.Key = &MessageKey{}
			if err := m.Key.unmarshal(s.val); err != nil {
				return err
			}
		case 2:
			m.Type = (*ProtocolMessageType)(s.int32())
		case 6:
			m.HistorySyncNotification = &HistorySyncNotification{}
			if err := m.HistorySyncNotification.unmarshal(s.val); err != nil {
				return err
			}
		case 10:
			m.AppStateSyncKeyShare = &AppStateSyncKeyShare{}
			if err := m.AppStateSyncKeyShare.unmarshal(s.val); err != nil {
				return err
			}
		case 16:
			m.PeerDataOperationRequestMessage = &PeerDataOperationRequestMessage{}
			if err := m.PeerDataOperationRequestMessage.unmarshal(s.val); err != nil {
				return err
			}
		}
	}
	return s.finish("ProtocolMessage")
}

func (m *ProtocolMessage) GetKey() *MessageKey {
	if m == nil {
		return nil
	}
	return m.Key
}

func (m *ProtocolMessage) GetType() ProtocolMessageType {
	if m == nil || m.Type == nil {
		return ProtocolMessageType_REVOKE
	}
	return *m.Type
}

func (m *ProtocolMessage) GetHistorySyncNotification() *HistorySyncNotification {
	if m == nil {
		return nil
	}
	return m.HistorySyncNotification
}

func (m *ProtocolMessage) GetAppStateSyncKeyShare() *AppStateSyncKeyShare {
	if m == nil {
		return nil
	}
	return m.AppStateSyncKeyShare
}

func (m *ProtocolMessage) GetPeerDataOperationRequestMessage() *PeerDataOperationRequestMessage {
	if m == nil {
		return nil
	}
	return m.PeerDataOperationRequestMessage
}

// DeviceSentMessage wraps a message sent by one of the user's own devices to a chat.
type DeviceSentMessage struct {
	DestinationJid *string  // 1
	Message        *Message // 2
	Phash          *string  // 3
}

func (m *DeviceSentMessage) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendString(b, 1, m.DestinationJid)
	b = appendMessage(b, 2, m.Message)
	b = appendString(b, 3, m.Phash)
	return b
}

func (m *DeviceSentMessage) unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.DestinationJid = s.string()
		case 2:
			m.Message = &Message{}
			if err := m.Message.unmarshalInner(s.val); err != nil {
				return err
			}
		case 3:
			m.Phash = s.string()
		}
	}
	return s.finish("DeviceSentMessage")
}

func (m *DeviceSentMessage) GetDestinationJid() string {
	if m == nil || m.DestinationJid == nil {
		return ""
	}
	return *m.DestinationJid
}

func (m *DeviceSentMessage) GetMessage() *Message {
	if m == nil {
		return nil
	}
	return m.Message
}

func (m *DeviceSentMessage) GetPhash() string {
	if m == nil || m.Phash == nil {
		return ""
	}
	return *m.Phash
}

// DeviceListMetadata carries the sender/recipient device list hashes for a message.
type DeviceListMetadata struct {
	SenderKeyHash      []byte  // 1
	SenderTimestamp    *uint64 // 2
	RecipientKeyHash   []byte  // 8
	RecipientTimestamp *uint64 // 9
}

func (m *DeviceListMetadata) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendBytes(b, 1, m.SenderKeyHash)
	b = appendUint64(b, 2, m.SenderTimestamp)
	b = appendBytes(b, 8, m.RecipientKeyHash)
	b = appendUint64(b, 9, m.RecipientTimestamp)
	return b
}

func (m *DeviceListMetadata) unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.SenderKeyHash = s.bytes()
		case 2:
			m.SenderTimestamp = s.uint64()
		case 8:
			m.RecipientKeyHash = s.bytes()
		case 9:
			m.RecipientTimestamp = s.uint64()
		}
	}
	return s.finish("DeviceListMetadata")
}

// MessageContextInfo carries metadata that applies to the whole message envelope.
type MessageContextInfo struct {
	DeviceListMetadata        *DeviceListMetadata // 1
	DeviceListMetadataVersion *int32              // 2
}

func (m *MessageContextInfo) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendMessage(b, 1, m.DeviceListMetadata)
	b = appendInt32(b, 2, m.DeviceListMetadataVersion)
	return b
}

func (m *MessageContextInfo) unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.DeviceListMetadata = &DeviceListMetadata{}
			if err := m.DeviceListMetadata.unmarshal(s.val); err != nil {
				return err
			}
		case 2:
			m.DeviceListMetadataVersion = s.int32()
		}
	}
	return s.finish("MessageContextInfo")
}

// Message is the plaintext message envelope that gets encrypted with Signal.
type Message struct {
	Conversation                 *string                       // 1
	SenderKeyDistributionMessage *SenderKeyDistributionMessage // 2
	ExtendedTextMessage          *ExtendedTextMessage          // 6
	ProtocolMessage              *ProtocolMessage              // 12
	DeviceSentMessage            *DeviceSentMessage            // 31
	MessageContextInfo           *MessageContextInfo           // 35
}

func (m *Message) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendString(b, 1, m.Conversation)
	b = appendMessage(b, 2, m.SenderKeyDistributionMessage)
	b = appendMessage(b, 6, m.ExtendedTextMessage)
	b = appendMessage(b, 12, m.ProtocolMessage)
	b = appendMessage(b, 31, m.DeviceSentMessage)
	b = appendMessage(b, 35, m.MessageContextInfo)
	return b
}

// Marshal encodes the message for encryption.
func (m *Message) Marshal() ([]byte, error) {
	return m.marshal(nil), nil
}

func (m *Message) unmarshalInner(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.Conversation = s.string()
		case 2:
			m.SenderKeyDistributionMessage = &SenderKeyDistributionMessage{}
			if err := m.SenderKeyDistributionMessage.unmarshal(s.val); err != nil {
				return err
			}
		case 6:
			m.ExtendedTextMessage = &ExtendedTextMessage{}
			if err := m.ExtendedTextMessage.unmarshal(s.val); err != nil {
				return err
			}
		case 12:
			m.ProtocolMessage = &ProtocolMessage{}
			if err := m.ProtocolMessage.unmarshal(s.val); err != nil {
				return err
			}
		case 31:
			m.DeviceSentMessage = &DeviceSentMessage{}
			if err := m.DeviceSentMessage.unmarshal(s.val); err != nil {
				return err
			}
		case 35:
			m.MessageContextInfo = &MessageContextInfo{}
			if err := m.MessageContextInfo.unmarshal(s.val); err != nil {
				return err
			}
		}
	}
	return s.finish("Message")
}

// Unmarshal decodes a decrypted message envelope.
func (m *Message) Unmarshal(data []byte) error {
	return m.unmarshalInner(data)
}

// Clone returns a deep copy of the message by re-encoding it.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := &Message{}
	// The marshal methods can't fail, so the error can be ignored here.
	_ = clone.unmarshalInner(m.marshal(nil))
	return clone
}

func (m *Message) GetConversation() string {
	if m == nil || m.Conversation == nil {
		return ""
	}
	return *m.Conversation
}

func (m *Message) GetSenderKeyDistributionMessage() *SenderKeyDistributionMessage {
	if m == nil {
		return nil
	}
	return m.SenderKeyDistributionMessage
}

func (m *Message) GetExtendedTextMessage() *ExtendedTextMessage {
	if m == nil {
		return nil
	}
	return m.ExtendedTextMessage
}

func (m *Message) GetProtocolMessage() *ProtocolMessage {
	if m == nil {
		return nil
	}
	return m.ProtocolMessage
}

func (m *Message) GetDeviceSentMessage() *DeviceSentMessage {
	if m == nil {
		return nil
	}
	return m.DeviceSentMessage
}

func (m *Message) GetMessageContextInfo() *MessageContextInfo {
	if m == nil {
		return nil
	}
	return m.MessageContextInfo
}
