// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"time"

	waProto "github.com/Kunboruto20/borutowaileys-library/binary/proto"
	"github.com/Kunboruto20/borutowaileys-library/socket"
	"github.com/Kunboruto20/borutowaileys-library/util/keys"
)

// WACertIssuerSerial is the serial of the trusted root that signs the server's
// Noise certificate chain.
const WACertIssuerSerial = 0

// WACertPubKey is the public key of the trusted root certificate.
var WACertPubKey = [32]byte{0x14, 0x23, 0x75, 0x57, 0x4d, 0xa, 0x58, 0x71, 0x66, 0xaa, 0xe7, 0x1e, 0xbe, 0x51, 0x64, 0x37, 0xc4, 0xa2, 0x8b, 0x73, 0xe3, 0x69, 0x5c, 0x6c, 0xe1, 0xf7, 0xf9, 0x54, 0x5d, 0xa8, 0xee, 0x6b}

// doHandshake implements the Noise XX handshake with the WhatsApp servers and
// hands the resulting transport keys to a NoiseSocket stored on the client.
func (cli *Client) doHandshake(fs *socket.FrameSocket, ephemeralKP keys.KeyPair) error {
	nh := socket.NewNoiseHandshake()
	nh.Start(socket.NoiseStartPattern, fs.Header)
	nh.Authenticate(ephemeralKP.Pub[:])
	data, err := (&waProto.HandshakeMessage{
		ClientHello: &waProto.HandshakeClientHello{
			Ephemeral: ephemeralKP.Pub[:],
		},
	}).Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal handshake message: %w", err)
	}
	err = fs.SendFrame(data)
	if err != nil {
		return fmt.Errorf("failed to send handshake message: %w", err)
	}
	var resp []byte
	frameChan := make(chan []byte, 1)
	fs.OnFrame = func(frame []byte) {
		select {
		case frameChan <- frame:
		default:
		}
	}
	timeout := cli.Config.ConnectTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	select {
	case resp = <-frameChan:
	case <-fs.Context().Done():
		return fmt.Errorf("socket closed while waiting for handshake response")
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for handshake response")
	}
	var handshakeResponse waProto.HandshakeMessage
	err = handshakeResponse.Unmarshal(resp)
	if err != nil {
		return fmt.Errorf("failed to unmarshal handshake response: %w", err)
	}
	serverEphemeral := handshakeResponse.GetServerHello().GetEphemeral()
	serverStaticCiphertext := handshakeResponse.GetServerHello().GetStatic()
	certificateCiphertext := handshakeResponse.GetServerHello().GetPayload()
	if len(serverEphemeral) != 32 || serverStaticCiphertext == nil || certificateCiphertext == nil {
		return fmt.Errorf("missing parts of handshake response")
	}
	serverEphemeralArr := *(*[32]byte)(serverEphemeral)

	nh.Authenticate(serverEphemeral)
	err = nh.MixSharedSecretIntoKey(*ephemeralKP.Priv, serverEphemeralArr)
	if err != nil {
		return fmt.Errorf("failed to mix server ephemeral key in: %w", err)
	}

	staticDecrypted, err := nh.Decrypt(serverStaticCiphertext)
	if err != nil {
		return fmt.Errorf("failed to decrypt server static ciphertext: %w", err)
	} else if len(staticDecrypted) != 32 {
		return fmt.Errorf("unexpected length of server static plaintext %d (expected 32)", len(staticDecrypted))
	}
	err = nh.MixSharedSecretIntoKey(*ephemeralKP.Priv, *(*[32]byte)(staticDecrypted))
	if err != nil {
		return fmt.Errorf("failed to mix server static key in: %w", err)
	}

	certDecrypted, err := nh.Decrypt(certificateCiphertext)
	if err != nil {
		return fmt.Errorf("failed to decrypt noise certificate ciphertext: %w", err)
	}
	err = verifyServerCert(certDecrypted, staticDecrypted)
	if err != nil {
		return fmt.Errorf("failed to verify server cert: %w", err)
	}

	encryptedPubkey := nh.Encrypt(cli.Store.NoiseKey.Pub[:])
	err = nh.MixSharedSecretIntoKey(*cli.Store.NoiseKey.Priv, serverEphemeralArr)
	if err != nil {
		return fmt.Errorf("failed to mix noise private key in: %w", err)
	}

	clientPayload := cli.Store.GetClientPayload()
	clientFinishPayloadBytes, err := clientPayload.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal client finish payload: %w", err)
	}
	encryptedClientFinishPayload := nh.Encrypt(clientFinishPayloadBytes)
	data, err = (&waProto.HandshakeMessage{
		ClientFinish: &waProto.HandshakeClientFinish{
			Static:  encryptedPubkey,
			Payload: encryptedClientFinishPayload,
		},
	}).Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal handshake finish message: %w", err)
	}
	err = fs.SendFrame(data)
	if err != nil {
		return fmt.Errorf("failed to send handshake finish message: %w", err)
	}

	ns, err := nh.Finish(fs, cli.handleFrame, cli.onDisconnect)
	if err != nil {
		return fmt.Errorf("failed to create noise socket: %w", err)
	}

	cli.socket = ns
	return nil
}

func verifyServerCert(certDecrypted, staticDecrypted []byte) error {
	var cert waProto.CertChain
	err := cert.Unmarshal(certDecrypted)
	if err != nil {
		return fmt.Errorf("failed to unmarshal noise certificate: %w", err)
	}
	intermediateCert := cert.Intermediate
	leafCert := cert.Leaf
	if intermediateCert == nil || leafCert == nil || intermediateCert.Details == nil || leafCert.Details == nil {
		return fmt.Errorf("missing parts of noise certificate")
	}
	var intermediateCertDetails, leafCertDetails waProto.NoiseCertificateDetails
	err = intermediateCertDetails.Unmarshal(intermediateCert.Details)
	if err != nil {
		return fmt.Errorf("failed to unmarshal noise certificate details: %w", err)
	}
	err = leafCertDetails.Unmarshal(leafCert.Details)
	if err != nil {
		return fmt.Errorf("failed to unmarshal noise certificate details: %w", err)
	}
	if len(intermediateCertDetails.Key) != 32 {
		return fmt.Errorf("unexpected length of intermediate cert key %d (expected 32)", len(intermediateCertDetails.Key))
	} else if intermediateCertDetails.IssuerSerial == nil || *intermediateCertDetails.IssuerSerial != WACertIssuerSerial {
		return fmt.Errorf("unexpected issuer serial in intermediate cert")
	} else if !ed25519.Verify(WACertPubKey[:], intermediateCert.Details, intermediateCert.Signature) {
		return fmt.Errorf("failed to verify intermediate cert signature")
	} else if leafCertDetails.IssuerSerial == nil || intermediateCertDetails.Serial == nil || *leafCertDetails.IssuerSerial != *intermediateCertDetails.Serial {
		return fmt.Errorf("issuer serial mismatch in leaf cert")
	} else if !ed25519.Verify(intermediateCertDetails.Key, leafCert.Details, leafCert.Signature) {
		return fmt.Errorf("failed to verify leaf cert signature")
	} else if !bytes.Equal(leafCertDetails.Key, staticDecrypted) {
		return fmt.Errorf("cert key doesn't match decrypted static")
	}
	return nil
}
