// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package waProto

// ADVSignedDeviceIdentityHMAC is the HMAC-wrapped device identity received in pair-success.
type ADVSignedDeviceIdentityHMAC struct {
	Details []byte // 1
	HMAC    []byte // 2
}

func (m *ADVSignedDeviceIdentityHMAC) Unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.Details = s.bytes()
		case 2:
			m.HMAC = s.bytes()
		}
	}
	return s.finish("ADVSignedDeviceIdentityHMAC")
}

// ADVSignedDeviceIdentity is the server-signed identity of this companion device.
type ADVSignedDeviceIdentity struct {
	Details             []byte // 1
	AccountSignatureKey []byte // 2
	AccountSignature    []byte // 3
	DeviceSignature     []byte // 4
}

func (m *ADVSignedDeviceIdentity) marshal(b []byte) []byte {
	if m == nil {
		return b
	}
	b = appendBytes(b, 1, m.Details)
	b = appendBytes(b, 2, m.AccountSignatureKey)
	b = appendBytes(b, 3, m.AccountSignature)
	b = appendBytes(b, 4, m.DeviceSignature)
	return b
}

func (m *ADVSignedDeviceIdentity) Marshal() ([]byte, error) {
	return m.marshal(nil), nil
}

func (m *ADVSignedDeviceIdentity) Unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.Details = s.bytes()
		case 2:
			m.AccountSignatureKey = s.bytes()
		case 3:
			m.AccountSignature = s.bytes()
		case 4:
			m.DeviceSignature = s.bytes()
		}
	}
	return s.finish("ADVSignedDeviceIdentity")
}

// ADVDeviceIdentity is the inner identity blob signed by both the account and the device.
type ADVDeviceIdentity struct {
	RawId     *uint32 // 1
	Timestamp *uint64 // 2
	KeyIndex  *uint32 // 3
}

func (m *ADVDeviceIdentity) Unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.RawId = s.uint32()
		case 2:
			m.Timestamp = s.uint64()
		case 3:
			m.KeyIndex = s.uint32()
		}
	}
	return s.finish("ADVDeviceIdentity")
}

func (m *ADVDeviceIdentity) GetKeyIndex() uint32 {
	if m == nil || m.KeyIndex == nil {
		return 0
	}
	return *m.KeyIndex
}

// NoiseCertificate is one certificate in the server's static key certificate chain.
type NoiseCertificate struct {
	Details   []byte // 1
	Signature []byte // 2
}

func (m *NoiseCertificate) unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.Details = s.bytes()
		case 2:
			m.Signature = s.bytes()
		}
	}
	return s.finish("NoiseCertificate")
}

// NoiseCertificateDetails is the signed part of a NoiseCertificate.
type NoiseCertificateDetails struct {
	Serial       *uint32 // 1
	IssuerSerial *uint32 // 2
	Key          []byte  // 3
	NotBefore    *uint64 // 4
	NotAfter     *uint64 // 5
}

func (m *NoiseCertificateDetails) Unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.Serial = s.uint32()
		case 2:
			m.IssuerSerial = s.uint32()
		case 3:
			m.Key = s.bytes()
		case 4:
			m.NotBefore = s.uint64()
		case 5:
			m.NotAfter = s.uint64()
		}
	}
	return s.finish("NoiseCertificateDetails")
}

// CertChain is the certificate chain the server sends for its Noise static key.
type CertChain struct {
	Leaf         *NoiseCertificate // 1
	Intermediate *NoiseCertificate // 2
}

func (m *CertChain) Unmarshal(data []byte) error {
	s := &protoScanner{data: data}
	for s.next() {
		switch s.num {
		case 1:
			m.Leaf = &NoiseCertificate{}
			if err := m.Leaf.unmarshal(s.val); err != nil {
				return err
			}
		case 2:
			m.Intermediate = &NoiseCertificate{}
			if err := m.Intermediate.unmarshal(s.val); err != nil {
				return err
			}
		}
	}
	return s.finish("CertChain")
}
