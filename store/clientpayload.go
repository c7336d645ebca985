// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package store

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"sync"

	"go.mau.fi/libsignal/ecc"

	waProto "github.com/Kunboruto20/borutowaileys-library/binary/proto"
)

// waVersion is the protocol version reported to the server.
// It can be overridden with SetWAVersion if the default is rejected (client_outdated).
var (
	waVersion     = waProto.AppVersion{Primary: waProto.Uint32(2), Secondary: waProto.Uint32(3000), Tertiary: waProto.Uint32(1015901307)}
	waVersionHash [16]byte
	versionLock   sync.RWMutex
)

func init() {
	waVersionHash = computeVersionHash(waVersion)
}

func computeVersionHash(version waProto.AppVersion) [16]byte {
	return md5.Sum([]byte(fmt.Sprintf("%d.%d.%d", *version.Primary, *version.Secondary, *version.Tertiary)))
}

// GetWAVersion returns the protocol version used in client payloads.
func GetWAVersion() (primary, secondary, tertiary uint32) {
	versionLock.RLock()
	defer versionLock.RUnlock()
	return *waVersion.Primary, *waVersion.Secondary, *waVersion.Tertiary
}

// SetWAVersion overrides the protocol version used in client payloads.
func SetWAVersion(primary, secondary, tertiary uint32) {
	versionLock.Lock()
	defer versionLock.Unlock()
	waVersion = waProto.AppVersion{
		Primary:   waProto.Uint32(primary),
		Secondary: waProto.Uint32(secondary),
		Tertiary:  waProto.Uint32(tertiary),
	}
	waVersionHash = computeVersionHash(waVersion)
}

// DeviceProps contains the device info shown in the paired devices list on the
// primary device. SetOSInfo or direct mutation before connecting changes it.
var DeviceProps = &waProto.DeviceProps{
	Os:              waProto.String("borutowaileys"),
	Version:         &waProto.AppVersion{Primary: waProto.Uint32(0), Secondary: waProto.Uint32(1), Tertiary: waProto.Uint32(0)},
	PlatformType:    devicePropsPlatformTypePtr(waProto.DevicePropsPlatformType_UNKNOWN),
	RequireFullSync: waProto.Bool(false),
}

func devicePropsPlatformTypePtr(t waProto.DevicePropsPlatformType) *waProto.DevicePropsPlatformType {
	return &t
}

// SetOSInfo sets the operating system name and version shown on the primary device.
func SetOSInfo(name string, version [3]uint32) {
	DeviceProps.Os = &name
	DeviceProps.Version = &waProto.AppVersion{
		Primary:   &version[0],
		Secondary: &version[1],
		Tertiary:  &version[2],
	}
}

func baseClientPayload() *waProto.ClientPayload {
	versionLock.RLock()
	version := waVersion
	versionLock.RUnlock()
	platform := waProto.UserAgentPlatform_WEB
	releaseChannel := waProto.UserAgentReleaseChannel_RELEASE
	subPlatform := waProto.WebInfoWebSubPlatform_WEB_BROWSER
	connectType := waProto.ClientPayloadConnectType_WIFI_UNKNOWN
	connectReason := waProto.ClientPayloadConnectReason_USER_ACTIVATED
	return &waProto.ClientPayload{
		UserAgent: &waProto.UserAgent{
			Platform:                    &platform,
			AppVersion:                  &version,
			Mcc:                         waProto.String("000"),
			Mnc:                         waProto.String("000"),
			OsVersion:                   waProto.String("0.1.0"),
			Manufacturer:                waProto.String(""),
			Device:                      waProto.String("Desktop"),
			OsBuildNumber:               waProto.String("0.1.0"),
			ReleaseChannel:              &releaseChannel,
			LocaleLanguageIso6391:       waProto.String("en"),
			LocaleCountryIso31661Alpha2: waProto.String("en"),
		},
		WebInfo:       &waProto.WebInfo{WebSubPlatform: &subPlatform},
		ConnectType:   &connectType,
		ConnectReason: &connectReason,
	}
}

func (device *Device) getRegistrationPayload() *waProto.ClientPayload {
	payload := baseClientPayload()
	regID := make([]byte, 4)
	binary.BigEndian.PutUint32(regID, device.RegistrationID)
	preKeyID := make([]byte, 4)
	binary.BigEndian.PutUint32(preKeyID, device.SignedPreKey.KeyID)
	deviceProps, _ := DeviceProps.Marshal()
	versionLock.RLock()
	buildHash := waVersionHash
	versionLock.RUnlock()
	payload.DevicePairingData = &waProto.DevicePairingRegistrationData{
		ERegid:      regID,
		EKeytype:    []byte{ecc.DjbType},
		EIdent:      device.IdentityKey.Pub[:],
		ESkeyId:     preKeyID[1:],
		ESkeyVal:    device.SignedPreKey.Pub[:],
		ESkeySig:    device.SignedPreKey.Signature[:],
		BuildHash:   buildHash[:],
		DeviceProps: deviceProps,
	}
	payload.Passive = waProto.Bool(false)
	payload.Pull = waProto.Bool(false)
	return payload
}

func (device *Device) getLoginPayload() *waProto.ClientPayload {
	payload := baseClientPayload()
	payload.Username = waProto.Uint64(device.ID.UserInt())
	payload.Device = waProto.Uint32(uint32(device.ID.Device))
	payload.Passive = waProto.Bool(true)
	payload.Pull = waProto.Bool(true)
	return payload
}

// GetClientPayload returns the payload to send in the Noise handshake:
// a login payload if the device is already paired, a registration payload otherwise.
func (device *Device) GetClientPayload() *waProto.ClientPayload {
	if device.ID != nil {
		return device.getLoginPayload()
	}
	return device.getRegistrationPayload()
}
