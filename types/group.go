// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"time"
)

// GroupMemberAddMode specifies who can add members to the group.
type GroupMemberAddMode string

const (
	GroupMemberAddModeAdmin     GroupMemberAddMode = "admin_add"
	GroupMemberAddModeAllMember GroupMemberAddMode = "all_member_add"
)

// GroupInfo contains basic information about a group chat on WhatsApp.
type GroupInfo struct {
	JID      JID
	OwnerJID JID

	GroupName
	GroupTopic
	GroupLocked
	GroupAnnounce
	GroupEphemeral
	GroupIncognito

	GroupParent
	GroupLinkedParent
	GroupIsDefaultSub

	GroupCreated       time.Time
	CreatorCountryCode string

	ParticipantVersionID string
	Participants         []GroupParticipant

	MemberAddMode GroupMemberAddMode
}

// GroupName contains the name of a group along with metadata of who set it and when.
type GroupName struct {
	Name      string
	NameSetAt time.Time
	NameSetBy JID
}

// GroupTopic contains the topic (description) of a group along with metadata of who set it and when.
type GroupTopic struct {
	Topic        string
	TopicID      string
	TopicSetAt   time.Time
	TopicSetBy   JID
	TopicDeleted bool
}

// GroupLocked specifies whether the group info can only be edited by admins.
type GroupLocked struct {
	IsLocked bool
}

// GroupAnnounce specifies whether only admins can send messages in the group.
type GroupAnnounce struct {
	IsAnnounce        bool
	AnnounceVersionID string
}

// GroupIncognito specifies whether the group is an incognito group.
type GroupIncognito struct {
	IsIncognito bool
}

// GroupParent specifies whether the group is a parent group (community) and some metadata about it.
type GroupParent struct {
	IsParent                      bool
	DefaultMembershipApprovalMode string // request_required
}

// GroupLinkedParent contains the JID of the parent community for groups in communities.
type GroupLinkedParent struct {
	LinkedParentJID JID
}

// GroupIsDefaultSub specifies whether the group is the default subgroup (announcement group) of a community.
type GroupIsDefaultSub struct {
	IsDefaultSubGroup bool
}

// GroupEphemeral contains the group's disappearing messages settings.
type GroupEphemeral struct {
	IsEphemeral       bool
	DisappearingTimer uint32
}

// GroupParticipant contains info about a participant of a WhatsApp group chat.
type GroupParticipant struct {
	JID          JID
	LID          JID
	IsAdmin      bool
	IsSuperAdmin bool

	DisplayName string

	// When creating groups, adding some participants may fail.
	// In such cases, the error code will be here.
	Error      int
	AddRequest *GroupParticipantAddRequest
}

// GroupParticipantAddRequest is included in GroupParticipant when the participant requested to join.
type GroupParticipantAddRequest struct {
	Code       string
	Expiration time.Time
}

// ParticipantChange is the action to take with UpdateGroupParticipants.
type ParticipantChange string

const (
	ParticipantChangeAdd     ParticipantChange = "add"
	ParticipantChangeRemove  ParticipantChange = "remove"
	ParticipantChangePromote ParticipantChange = "promote"
	ParticipantChangeDemote  ParticipantChange = "demote"
)

// GroupLinkChangeType is the type of change in a group link event.
type GroupLinkChangeType string

const (
	GroupLinkChangeTypeParent  GroupLinkChangeType = "parent_group"
	GroupLinkChangeTypeSub     GroupLinkChangeType = "sub_group"
	GroupLinkChangeTypeSibling GroupLinkChangeType = "sibling_group"
)

// GroupLinkTarget contains the group that was linked or unlinked in a group link event.
type GroupLinkTarget struct {
	JID JID
	GroupName
	GroupIsDefaultSub
}

// GroupLinkChange contains the link change in a group link event.
type GroupLinkChange struct {
	Type         GroupLinkChangeType
	UnlinkReason string
	Group        GroupLinkTarget
}
