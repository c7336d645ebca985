// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"
	"strconv"

	"go.mau.fi/util/random"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/pbkdf2"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
	"github.com/Kunboruto20/borutowaileys-library/types"
	"github.com/Kunboruto20/borutowaileys-library/util/gcmutil"
	"github.com/Kunboruto20/borutowaileys-library/util/hkdfutil"
)

// PairClientType is the type of client to use with PairCode.
// The type is automatically filled based on store.DeviceProps.PlatformType (which is what
// all official clients use).
type PairClientType int

const (
	PairClientUnknown PairClientType = iota
	PairClientChrome
	PairClientEdge
	PairClientFirefox
	PairClientIE
	PairClientOpera
	PairClientSafari
	PairClientElectron
	PairClientUWP
	PairClientOtherWebClient
)

type phoneLinkingCache struct {
	jid         types.JID
	keyPair     keyPairRef
	linkingRef  string
	pairingCode string
}

type keyPairRef struct {
	pub  [32]byte
	priv [32]byte
}

// Pairing codes skip characters that are easy to misread over the phone.
const pairingCodeChars = "123456789ABCDEFGHJKLMNPQRSTVWXYZ"

const linkCodePairingIterations = 131072

func generatePairingCode() string {
	code := make([]byte, 8)
	raw := random.Bytes(8)
	for i, b := range raw {
		code[i] = pairingCodeChars[int(b)%len(pairingCodeChars)]
	}
	return string(code)
}

func parsePhoneNumber(phone string) (types.JID, error) {
	cleaned := make([]byte, 0, len(phone))
	for _, c := range phone {
		if c >= '0' && c <= '9' {
			cleaned = append(cleaned, byte(c))
		}
	}
	if len(cleaned) < 7 {
		return types.EmptyJID, fmt.Errorf("phone number too short (include the country code)")
	}
	return types.NewJID(string(cleaned), types.DefaultUserServer), nil
}

// PairPhone generates a pairing code that can be used to link to a phone
// without scanning a QR code.
//
// The exact expiry of pairing codes is unknown, but QR codes are always
// generated and the login websocket is closed after the QR codes run out,
// which means there's a 160-second time limit. It is recommended to generate
// the pairing code immediately after connecting to the websocket to have the
// maximum time.
//
// The clientType parameter must be one of the PairClient* constants, and the
// clientDisplayName must be formatted as Browser (OS), e.g. Chrome (Linux).
// The client type and display name are shown in the linked devices list on the
// phone.
func (cli *Client) PairPhone(ctx context.Context, phone string, showPushNotification bool, clientType PairClientType, clientDisplayName string) (string, error) {
	ephemeralKeyPair := cli.Store.PairingEphemeralKeyPair
	jid, err := parsePhoneNumber(phone)
	if err != nil {
		return "", err
	}
	pairingCode := generatePairingCode()
	salt := random.Bytes(32)
	iv := random.Bytes(16)
	key := pbkdf2.Key([]byte(pairingCode), salt, linkCodePairingIterations, 32, sha256.New)
	encryptedPubkey := make([]byte, 32)
	cipherBlock, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to prepare pairing cipher: %w", err)
	}
	cipher.NewCTR(cipherBlock, iv).XORKeyStream(encryptedPubkey, ephemeralKeyPair.Pub[:])
	wrappedCompanionEphemeralPub := concatBytes(salt, iv, encryptedPubkey)

	cli.phoneLinkingCache = &phoneLinkingCache{
		jid:         jid,
		keyPair:     keyPairRef{pub: *ephemeralKeyPair.Pub, priv: *ephemeralKeyPair.Priv},
		pairingCode: pairingCode,
	}

	resp, err := cli.sendIQ(infoQuery{
		Context:   ctx,
		Namespace: "md",
		Type:      iqSet,
		To:        types.ServerJID,
		Content: []waBinary.Node{{
			Tag: "link_code_companion_reg",
			Attrs: waBinary.Attrs{
				"jid":   jid,
				"stage": "companion_hello",

				"should_show_push_notification": strconv.FormatBool(showPushNotification),
			},
			Content: []waBinary.Node{
				{Tag: "link_code_pairing_wrapped_companion_ephemeral_pub", Content: wrappedCompanionEphemeralPub},
				{Tag: "companion_server_auth_key_pub", Content: cli.Store.NoiseKey.Pub[:]},
				{Tag: "companion_platform_id", Content: strconv.Itoa(int(clientType))},
				{Tag: "companion_platform_display", Content: clientDisplayName},
				{Tag: "link_code_pairing_nonce", Content: []byte{0}},
			},
		}},
	})
	if err != nil {
		return "", err
	}
	pairingRef, ok := resp.GetChildByTag("link_code_companion_reg", "link_code_pairing_ref").Content.([]byte)
	if ok {
		cli.phoneLinkingCache.linkingRef = string(pairingRef)
	}
	return pairingCode[0:4] + "-" + pairingCode[4:], nil
}

func (cli *Client) tryHandleCodePairNotification(parentNode *waBinary.Node) {
	err := cli.handleCodePairNotification(context.TODO(), parentNode)
	if err != nil {
		cli.Log.Errorf("Failed to handle code pair notification: %s", err)
	}
}

func (cli *Client) handleCodePairNotification(ctx context.Context, parentNode *waBinary.Node) error {
	node, ok := parentNode.GetOptionalChildByTag("link_code_companion_reg")
	if !ok {
		return &ElementMissingError{
			Tag: "link_code_companion_reg",
			In:  "notification",
		}
	}
	linkCache := cli.phoneLinkingCache
	if linkCache == nil {
		return fmt.Errorf("received code pair notification without a pending pairing")
	}
	linkCodePairingRef, _ := node.GetChildByTag("link_code_pairing_ref").Content.([]byte)
	if linkCache.linkingRef != "" && string(linkCodePairingRef) != linkCache.linkingRef {
		return fmt.Errorf("pairing ref mismatch in code pair notification")
	}
	wrappedPrimaryEphemeralPub, ok := node.GetChildByTag("link_code_pairing_wrapped_primary_ephemeral_pub").Content.([]byte)
	if !ok || len(wrappedPrimaryEphemeralPub) != 80 {
		return fmt.Errorf("invalid wrapped primary ephemeral key in code pair notification")
	}
	primaryIdentityPub, ok := node.GetChildByTag("primary_identity_pub").Content.([]byte)
	if !ok || len(primaryIdentityPub) != 32 {
		return fmt.Errorf("invalid primary identity key in code pair notification")
	}

	advSecretRandom := random.Bytes(32)
	keyBundleSalt := random.Bytes(32)
	keyBundleNonce := random.Bytes(12)

	// Decrypt the primary device's ephemeral public key, which was encrypted
	// with the pairing code the user typed on the phone.
	primarySalt := wrappedPrimaryEphemeralPub[:32]
	primaryIV := wrappedPrimaryEphemeralPub[32:48]
	primaryEncryptedPubkey := wrappedPrimaryEphemeralPub[48:80]
	linkCodeKey := pbkdf2.Key([]byte(linkCache.pairingCode), primarySalt, linkCodePairingIterations, 32, sha256.New)
	linkCipherBlock, err := aes.NewCipher(linkCodeKey)
	if err != nil {
		return fmt.Errorf("failed to prepare link cipher: %w", err)
	}
	primaryDecryptedPubkey := make([]byte, 32)
	cipher.NewCTR(linkCipherBlock, primaryIV).XORKeyStream(primaryDecryptedPubkey, primaryEncryptedPubkey)

	ephemeralSharedSecret, err := curve25519.X25519(linkCache.keyPair.priv[:], primaryDecryptedPubkey)
	if err != nil {
		return fmt.Errorf("failed to compute ephemeral shared secret: %w", err)
	}

	// Encrypt and wrap key bundle containing our identity key
	keyBundleEncryptionKey := hkdfutil.SHA256(ephemeralSharedSecret, keyBundleSalt, []byte("link_code_pairing_key_bundle_encryption_key"), 32)
	keyBundleEncryptionCipher, err := gcmutil.Prepare(keyBundleEncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to prepare key bundle cipher: %w", err)
	}
	plaintextKeyBundle := concatBytes(cli.Store.IdentityKey.Pub[:], primaryIdentityPub, advSecretRandom)
	encryptedKeyBundle := keyBundleEncryptionCipher.Seal(nil, keyBundleNonce, plaintextKeyBundle, nil)
	wrappedKeyBundle := concatBytes(keyBundleSalt, keyBundleNonce, encryptedKeyBundle)

	// Compute the adv secret key from the ephemeral and identity shared secrets
	identitySharedKey, err := curve25519.X25519(cli.Store.IdentityKey.Priv[:], primaryIdentityPub)
	if err != nil {
		return fmt.Errorf("failed to compute identity shared secret: %w", err)
	}
	advSecretInput := concatBytes(ephemeralSharedSecret, identitySharedKey, advSecretRandom)
	advSecret := hkdfutil.SHA256(advSecretInput, nil, []byte("adv_secret"), 32)
	cli.Store.AdvSecretKey = advSecret
	err = cli.Store.Save(ctx)
	if err != nil {
		return fmt.Errorf("failed to save adv secret key: %w", err)
	}

	_, err = cli.sendIQ(infoQuery{
		Context:   ctx,
		Namespace: "md",
		Type:      iqSet,
		To:        types.ServerJID,
		Content: []waBinary.Node{{
			Tag: "link_code_companion_reg",
			Attrs: waBinary.Attrs{
				"jid":   linkCache.jid,
				"stage": "companion_finish",
			},
			Content: []waBinary.Node{
				{Tag: "link_code_pairing_wrapped_key_bundle", Content: wrappedKeyBundle},
				{Tag: "companion_identity_public", Content: cli.Store.IdentityKey.Pub[:]},
				{Tag: "link_code_pairing_ref", Content: linkCodePairingRef},
			},
		}},
	})
	return err
}
