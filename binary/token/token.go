// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package token contains maps of the tokens that WhatsApp uses to compress certain strings in its binary XML representation.
package token

import (
	"fmt"
)

// All the currently known string tokens.
var (
	SingleByteTokens = [...]string{
		"", "xmlstreamstart", "xmlstreamend", "s.whatsapp.net", "type", "participant", "from", "receipt", "id", "broadcast",
		"status", "message", "notification", "notify", "to", "jid", "user", "class", "offline", "g.us", "result", "mediatype",
		"enc", "skmsg", "off_cnt", "xmlns", "presence", "participants", "ack", "t", "iq", "device_hash", "read", "value",
		"media", "picture", "chatstate", "unavailable", "text", "urn:xmpp:whatsapp:push", "devices", "verified_name", "contact", "composing",
		"edge_routing", "routing_info", "item", "image", "verified_level", "hash", "fallback_hostname", "fallback_class", "fallback_ip4",
		"fallback_ip6", "fast", "ptt", "dirty", "error", "pkmsg", "call-creator", "call-id", "sticker", "mode", "duration",
		"creation", "create", "delete", "subject", "w:profile:picture", "notification_type", "encrypt", "w:gp2", "group",
		"count", "add", "remove", "promote", "demote", "retry", "priority", "meta", "last", "chat", "chats",
		"config", "config_value", "config_code", "config_expo_param", "contacts", "device", "device-list", "registration",
		"identity", "skey", "key", "keys", "prekeys", "list", "sync", "urn:xmpp:ping", "usync", "side_list",
		"index", "context", "background", "played", "available", "name", "category", "business", "commerce",
		"profile", "w:stats", "creator", "default", "appdata", "blocklist", "block", "unblock", "recipient",
		"web", "active", "passive", "code", "mexp", "expiration", "version", "platform", "pair-device",
		"pair-success", "ref", "device-identity", "account_sync", "disappearing_mode", "invite", "multicast",
		"offer", "accept", "reject", "terminate", "transport", "relaylatency", "preaccept", "audio", "video",
		"groups", "w:g2", "history", "w:mms", "media_conn", "w:m", "auth", "auth_ttl", "props", "w", "ab_props",
		"features", "privacy", "w:privacy", "tctoken", "tokens", "w:biz", "verified", "latest", "download",
		"encopt", "url", "success", "failure", "stream:error", "ib", "edit", "webmsg", "sender", "peer_msg",
		"hist_sync", "inactive", "w:p", "ping", "md-app-state", "md-msg-hist", "unarchive_chats", "frskmsg",
		"server_sync", "collection", "patch", "encr_media", "2", "plaintext", "server", "server-error",
		"msg", "call", "phash", "original_message_id", "original_self_sent", "reason", "pn", "lid",
		"link_code_companion_reg", "link_code_pairing_wrapped_companion_ephemeral_pub", "companion_server_auth_key_pub",
		"link_code_pairing_wrapped_key_bundle", "companion_platform_id", "companion_platform_display",
		"link_code_pairing_ref", "link_code_pairing_nonce", "relay", "stage", "true", "false", "companion",
		"1", "0", "all", "full", "clean", "timestamp", "update", "uploadfieldstat", "waffle", "query", "c.us",
	}
	DoubleByteTokens = [...][]string{
		{
			"read-self", "active_battery", "fbns", "protocol", "reaction", "screenshot", "peer_abt", "sender_list",
			"non_admin_sub_group_creation", "admin", "superadmin", "membership_approval_request", "created_membership_requests",
			"revoked_membership_requests", "locked", "unlocked", "announcement", "not_announcement", "ephemeral",
			"not_ephemeral", "member_add_mode", "all_member_add", "admin_add", "growth_lock", "parent_group",
			"default_membership_approval_mode", "incognito", "allow_non_admin_sub_group_creation",
		},
		{
			"web_login", "phone_number", "number", "stale", "pair_success", "primary_identity_pub", "link_code_pairing_request",
			"companion_identity_public", "companion_helloack", "primary_ephemeral_pub", "wrapped_primary_ephemeral_pub",
			"adv_secret", "salt", "iv", "payload", "random", "attestation",
		},
		{
			"availability", "vertical", "commerce_experience", "categories", "invites", "description", "body",
			"biz_markets", "host_storage", "actual_actors", "serialized_interactions",
		},
		{
			"apple", "android", "smb_ios", "smb_android", "web_unknown", "darwin", "windows", "ohana", "wearos",
			"tizen", "kaios", "ios_catalyst", "uwp", "portal", "green_alert",
		},
	}
)

// Mappings from the tokens above to their byte representations.
var (
	singleByteTokenIndex map[string]byte
	doubleByteTokenIndex map[string]doubleByteToken
)

type doubleByteToken struct {
	dictionary byte
	index      byte
}

func init() {
	singleByteTokenIndex = make(map[string]byte, len(SingleByteTokens))
	for index, token := range SingleByteTokens {
		singleByteTokenIndex[token] = byte(index)
	}
	doubleByteTokenIndex = make(map[string]doubleByteToken, 256)
	for dictIndex, dict := range DoubleByteTokens {
		for index, token := range dict {
			doubleByteTokenIndex[token] = doubleByteToken{byte(dictIndex), byte(index)}
		}
	}
}

// IndexOfSingleToken returns the byte representation of the given single-byte token, if one exists.
func IndexOfSingleToken(token string) (index byte, ok bool) {
	index, ok = singleByteTokenIndex[token]
	return
}

// IndexOfDoubleByteToken returns the dictionary and index of the given double-byte token, if one exists.
func IndexOfDoubleByteToken(token string) (dictionary byte, index byte, ok bool) {
	var val doubleByteToken
	val, ok = doubleByteTokenIndex[token]
	return val.dictionary, val.index, ok
}

// GetSingleToken returns the string value of the given single-byte token.
func GetSingleToken(i byte) (string, error) {
	if int(i) >= len(SingleByteTokens) {
		return "", fmt.Errorf("index out of single byte token bounds %d", i)
	}
	return SingleByteTokens[i], nil
}

// GetDoubleToken returns the string value of the given double-byte token.
func GetDoubleToken(index1, index2 byte) (string, error) {
	if int(index1) >= len(DoubleByteTokens) {
		return "", fmt.Errorf("index out of double byte token bounds %d", index1)
	}
	dict := DoubleByteTokens[index1]
	if int(index2) >= len(dict) {
		return "", fmt.Errorf("index out of double byte token index bounds %d", index2)
	}
	return dict[index2], nil
}

// The special tags used in the binary XML representation.
const (
	ListEmpty   = 0
	Dictionary0 = 236
	Dictionary1 = 237
	Dictionary2 = 238
	Dictionary3 = 239
	ADJID       = 247
	List8       = 248
	List16      = 249
	JIDPair     = 250
	Hex8        = 251
	Binary8     = 252
	Binary20    = 253
	Binary32    = 254
	Nibble8     = 255
)

// PackedMax is the maximum length of a string that can be packed into 4-bit nibbles or hex characters.
const PackedMax = 127

// SingleByteMax is the maximum index of a single-byte token.
const SingleByteMax = 256

// DictVersion is the version number of the token lists above.
const DictVersion = 3
