// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package waProto

// UserAgentPlatform is the platform the client claims to run on.
type UserAgentPlatform int32

const (
	UserAgentPlatform_ANDROID     UserAgentPlatform = 0
	UserAgentPlatform_IOS         UserAgentPlatform = 1
	UserAgentPlatform_WINDOWS     UserAgentPlatform = 2
	UserAgentPlatform_WEB         UserAgentPlatform = 14
	UserAgentPlatform_PORTAL      UserAgentPlatform = 15
	UserAgentPlatform_GREEN_ALERT UserAgentPlatform = 16
)

// UserAgentReleaseChannel is the release channel of the client.
type UserAgentReleaseChannel int32

const (
	UserAgentReleaseChannel_RELEASE UserAgentReleaseChannel = 0
	UserAgentReleaseChannel_BETA    UserAgentReleaseChannel = 1
	UserAgentReleaseChannel_ALPHA   UserAgentReleaseChannel = 2
	UserAgentReleaseChannel_DEBUG   UserAgentReleaseChannel = 3
)

// AppVersion is a (major, minor, patch) protocol version tuple.
type AppVersion struct {
	Primary   *uint32 // 1
	Secondary *uint32 // 2
	Tertiary  *uint32 // 3
}

func (m *AppVersion) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendUint32(b, 1, m.Primary)
	b = appendUint32(b, 2, m.Secondary)
	b = appendUint32(b, 3, m.Tertiary)
	return b
}

// UserAgent describes the client to the server during login.
type UserAgent struct {
	Platform                    *UserAgentPlatform       // 1
	AppVersion                  *AppVersion              // 2
	Mcc                         *string                  // 3
	Mnc                         *string                  // 4
	OsVersion                   *string                  // 5
	Manufacturer                *string                  // 6
	Device                      *string                  // 7
	OsBuildNumber               *string                  // 8
	ReleaseChannel              *UserAgentReleaseChannel // 10
	LocaleLanguageIso6391       *string                  // 11
	LocaleCountryIso31661Alpha2 *string                  // 12
}

func (m *UserAgent) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendInt32(b, 1, (*int32)(m.Platform))
	b = appendMessage(b, 2, m.AppVersion)
	b = appendString(b, 3, m.Mcc)
	b = appendString(b, 4, m.Mnc)
	b = appendString(b, 5, m.OsVersion)
	b = appendString(b, 6, m.Manufacturer)
	b = appendString(b, 7, m.Device)
	b = appendString(b, 8, m.OsBuildNumber)
	b = appendInt32(b, 10, (*int32)(m.ReleaseChannel))
	b = appendString(b, 11, m.LocaleLanguageIso6391)
	b = appendString(b, 12, m.LocaleCountryIso31661Alpha2)
	return b
}

// WebInfoWebSubPlatform is the sub-platform of a web client.
type WebInfoWebSubPlatform int32

const (
	WebInfoWebSubPlatform_WEB_BROWSER WebInfoWebSubPlatform = 0
	WebInfoWebSubPlatform_APP_STORE   WebInfoWebSubPlatform = 1
	WebInfoWebSubPlatform_WIN_STORE   WebInfoWebSubPlatform = 2
	WebInfoWebSubPlatform_DARWIN      WebInfoWebSubPlatform = 3
	WebInfoWebSubPlatform_WIN32       WebInfoWebSubPlatform = 4
)

// WebInfo contains web-client-specific connection details.
type WebInfo struct {
	WebSubPlatform *WebInfoWebSubPlatform // 4
}

func (m *WebInfo) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendInt32(b, 4, (*int32)(m.WebSubPlatform))
	return b
}

// DevicePropsPlatformType is the companion device type shown on the primary device.
type DevicePropsPlatformType int32

const (
	DevicePropsPlatformType_UNKNOWN DevicePropsPlatformType = 0
	DevicePropsPlatformType_CHROME  DevicePropsPlatformType = 1
	DevicePropsPlatformType_FIREFOX DevicePropsPlatformType = 2
	DevicePropsPlatformType_IE      DevicePropsPlatformType = 3
	DevicePropsPlatformType_OPERA   DevicePropsPlatformType = 4
	DevicePropsPlatformType_SAFARI  DevicePropsPlatformType = 5
	DevicePropsPlatformType_EDGE    DevicePropsPlatformType = 6
	DevicePropsPlatformType_DESKTOP DevicePropsPlatformType = 7
	DevicePropsPlatformType_IPAD    DevicePropsPlatformType = 8
	DevicePropsPlatformType_ANDROID_TABLET DevicePropsPlatformType = 9
)

// DeviceProps describes the companion device during pairing.
type DeviceProps struct {
	Os              *string                  // 1
	Version         *AppVersion              // 2
	PlatformType    *DevicePropsPlatformType // 3
	RequireFullSync *bool                    // 4
}

func (m *DeviceProps) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendString(b, 1, m.Os)
	b = appendMessage(b, 2, m.Version)
	b = appendInt32(b, 3, (*int32)(m.PlatformType))
	b = appendBool(b, 4, m.RequireFullSync)
	return b
}

// Marshal encodes the DeviceProps for embedding in the pairing registration data.
func (m *DeviceProps) Marshal() ([]byte, error) {
	return m.marshal(nil), nil
}

// DevicePairingRegistrationData carries the registration keys on the first login.
type DevicePairingRegistrationData struct {
	ERegid      []byte // 1
	EKeytype    []byte // 2
	EIdent      []byte // 3
	ESkeyId     []byte // 4
	ESkeyVal    []byte // 5
	ESkeySig    []byte // 6
	BuildHash   []byte // 7
	DeviceProps []byte // 8
}

func (m *DevicePairingRegistrationData) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendBytes(b, 1, m.ERegid)
	b = appendBytes(b, 2, m.EKeytype)
	b = appendBytes(b, 3, m.EIdent)
	b = appendBytes(b, 4, m.ESkeyId)
	b = appendBytes(b, 5, m.ESkeyVal)
	b = appendBytes(b, 6, m.ESkeySig)
	b = appendBytes(b, 7, m.BuildHash)
	b = appendBytes(b, 8, m.DeviceProps)
	return b
}

// ClientPayloadConnectType is the network type of the connection.
type ClientPayloadConnectType int32

const (
	ClientPayloadConnectType_CELLULAR_UNKNOWN ClientPayloadConnectType = 0
	ClientPayloadConnectType_WIFI_UNKNOWN     ClientPayloadConnectType = 1
)

// ClientPayloadConnectReason is the reason the client is connecting.
type ClientPayloadConnectReason int32

const (
	ClientPayloadConnectReason_PUSH                ClientPayloadConnectReason = 0
	ClientPayloadConnectReason_USER_ACTIVATED      ClientPayloadConnectReason = 1
	ClientPayloadConnectReason_SCHEDULED           ClientPayloadConnectReason = 2
	ClientPayloadConnectReason_ERROR_RECONNECT     ClientPayloadConnectReason = 3
	ClientPayloadConnectReason_NETWORK_SWITCH      ClientPayloadConnectReason = 4
	ClientPayloadConnectReason_PING_RECONNECT      ClientPayloadConnectReason = 5
	ClientPayloadConnectReason_UNKNOWN             ClientPayloadConnectReason = 6
)

// ClientPayloadProduct is the WhatsApp product line of the client.
type ClientPayloadProduct int32

const (
	ClientPayloadProduct_WHATSAPP  ClientPayloadProduct = 0
	ClientPayloadProduct_MESSENGER ClientPayloadProduct = 1
)

// ClientPayload is the Noise handshake payload that authenticates the client.
type ClientPayload struct {
	Username          *uint64                        // 1
	Passive           *bool                          // 3
	UserAgent         *UserAgent                     // 5
	WebInfo           *WebInfo                       // 6
	PushName          *string                        // 7
	SessionId         *int32                         // 9 (sfixed32)
	ShortConnect      *bool                          // 10
	ConnectType       *ClientPayloadConnectType      // 12
	ConnectReason     *ClientPayloadConnectReason    // 13
	Device            *uint32                        // 18
	DevicePairingData *DevicePairingRegistrationData // 19
	Product           *ClientPayloadProduct          // 20
	FbCat             []byte                         // 21
	FbUserAgent       []byte                         // 22
	Oc                *bool                          // 23
	Lc                *int32                         // 24
	Pull              *bool                          // 29
	PaddingBytes      []byte                         // 30
}

func (m *ClientPayload) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendUint64(b, 1, m.Username)
	b = appendBool(b, 3, m.Passive)
	b = appendMessage(b, 5, m.UserAgent)
	b = appendMessage(b, 6, m.WebInfo)
	b = appendString(b, 7, m.PushName)
	b = appendSfixed32(b, 9, m.SessionId)
	b = appendBool(b, 10, m.ShortConnect)
	b = appendInt32(b, 12, (*int32)(m.ConnectType))
	b = appendInt32(b, 13, (*int32)(m.ConnectReason))
	b = appendUint32(b, 18, m.Device)
	b = appendMessage(b, 19, m.DevicePairingData)
	b = appendInt32(b, 20, (*int32)(m.Product))
	b = appendBytes(b, 21, m.FbCat)
	b = appendBytes(b, 22, m.FbUserAgent)
	b = appendBool(b, 23, m.Oc)
	b = appendInt32(b, 24, m.Lc)
	b = appendBool(b, 29, m.Pull)
	b = appendBytes(b, 30, m.PaddingBytes)
	return b
}

// Marshal encodes the ClientPayload for the Noise handshake.
func (m *ClientPayload) Marshal() ([]byte, error) {
	return m.marshal(nil), nil
}
