// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"context"
	"fmt"

	waBinary "github.com/Kunboruto20/borutowaileys-library/binary"
	"github.com/Kunboruto20/borutowaileys-library/types"
	"github.com/Kunboruto20/borutowaileys-library/types/events"
)

// GetGroupInfo requests basic info about a group chat from the WhatsApp servers.
func (cli *Client) GetGroupInfo(jid types.JID) (*types.GroupInfo, error) {
	return cli.getGroupInfo(context.TODO(), jid, true)
}

func (cli *Client) getGroupInfo(ctx context.Context, jid types.JID, lockParticipantCache bool) (*types.GroupInfo, error) {
	res, err := cli.sendIQ(infoQuery{
		Context:   ctx,
		Namespace: "w:g2",
		Type:      iqGet,
		To:        jid,
		Content: []waBinary.Node{{
			Tag:   "query",
			Attrs: waBinary.Attrs{"request": "interactive"},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request group info: %w", err)
	}

	groupNode, ok := res.GetOptionalChildByTag("group")
	if !ok {
		return nil, &ElementMissingError{Tag: "group", In: "response to group info query"}
	}

	groupInfo, err := cli.parseGroupNode(&groupNode)
	if err != nil {
		return groupInfo, err
	}

	if lockParticipantCache {
		cli.groupCache.Put(jid, groupInfo)
	}
	return groupInfo, nil
}

// getGroupMembers returns the member list to fan group messages out to. The
// CachedGroupMetadata callback short-circuits the server query for callers
// that maintain their own group store.
func (cli *Client) getGroupMembers(ctx context.Context, jid types.JID) ([]types.JID, error) {
	if cli.CachedGroupMetadata != nil {
		meta, err := cli.CachedGroupMetadata(ctx, jid)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			return meta, nil
		}
	}
	groupInfo, ok := cli.groupCache.Get(jid)
	if !ok {
		var err error
		groupInfo, err = cli.getGroupInfo(ctx, jid, true)
		if err != nil {
			return nil, err
		}
	}
	members := make([]types.JID, len(groupInfo.Participants))
	for i, part := range groupInfo.Participants {
		members[i] = part.JID
	}
	return members, nil
}

func (cli *Client) parseGroupNode(groupNode *waBinary.Node) (*types.GroupInfo, error) {
	var group types.GroupInfo
	ag := groupNode.AttrGetter()

	group.JID = types.NewJID(ag.String("id"), types.GroupServer)
	group.OwnerJID = ag.OptionalJIDOrEmpty("creator")

	group.Name = ag.String("subject")
	group.NameSetAt = ag.OptionalUnixTime("s_t")
	group.NameSetBy = ag.OptionalJIDOrEmpty("s_o")

	group.GroupCreated = ag.UnixTime("creation")
	group.CreatorCountryCode = ag.OptionalString("creator_country_code")

	group.AnnounceVersionID = ag.OptionalString("a_v_id")
	group.ParticipantVersionID = ag.OptionalString("p_v_id")

	for _, child := range groupNode.GetChildren() {
		childAG := child.AttrGetter()
		switch child.Tag {
		case "participant":
			pcp := types.GroupParticipant{
				IsAdmin:      false,
				IsSuperAdmin: false,
				JID:          childAG.JID("jid"),
				LID:          childAG.OptionalJIDOrEmpty("lid"),
				DisplayName:  childAG.OptionalString("display_name"),
			}
			if pcp.Error = childAG.OptionalInt("error"); pcp.Error == 0 {
				switch childAG.OptionalString("type") {
				case "admin":
					pcp.IsAdmin = true
				case "superadmin":
					pcp.IsAdmin = true
					pcp.IsSuperAdmin = true
				}
			}
			group.Participants = append(group.Participants, pcp)
		case "description":
			body, bodyOK := child.GetOptionalChildByTag("body")
			if bodyOK {
				topicBytes, _ := body.Content.([]byte)
				group.Topic = string(topicBytes)
				group.TopicID = childAG.OptionalString("id")
				group.TopicSetBy = childAG.OptionalJIDOrEmpty("participant")
				group.TopicSetAt = childAG.OptionalUnixTime("t")
			}
		case "locked":
			group.IsLocked = true
		case "announcement":
			group.IsAnnounce = true
		case "ephemeral":
			group.IsEphemeral = true
			group.DisappearingTimer = uint32(childAG.OptionalInt("expiration"))
		case "member_add_mode":
			modeBytes, _ := child.Content.([]byte)
			group.MemberAddMode = types.GroupMemberAddMode(modeBytes)
		case "linked_parent":
			group.LinkedParentJID = childAG.JID("jid")
		case "default_sub_group":
			group.IsDefaultSubGroup = true
		case "parent":
			group.IsParent = true
			group.DefaultMembershipApprovalMode = childAG.OptionalString("default_membership_approval_mode")
		case "incognito":
			group.IsIncognito = true
		default:
			cli.Log.Debugf("Unknown element in group node %s: %s", group.JID.String(), child.XMLString())
		}
		if !childAG.OK() {
			cli.Log.Warnf("Possibly failed to parse %s element in group node: %+v", child.Tag, childAG.Errors)
		}
	}

	return &group, ag.Error()
}

func parseParticipantList(node *waBinary.Node) (participants []types.JID) {
	children := node.GetChildren()
	participants = make([]types.JID, 0, len(children))
	for _, child := range children {
		jid, ok := child.Attrs["jid"].(types.JID)
		if child.Tag != "participant" || !ok {
			continue
		}
		participants = append(participants, jid)
	}
	return
}

func (cli *Client) parseGroupCreate(node *waBinary.Node) (*events.JoinedGroup, error) {
	groupNode, ok := node.GetOptionalChildByTag("group")
	if !ok {
		return nil, fmt.Errorf("group create notification didn't contain group info")
	}
	var evt events.JoinedGroup
	ag := node.AttrGetter()
	evt.Reason = ag.OptionalString("reason")
	evt.CreateKey = ag.OptionalString("key")
	evt.Type = groupNode.AttrGetter().OptionalString("type")
	evt.Sender = ag.OptionalJID("participant")
	evt.Notify = ag.OptionalString("notify")
	info, err := cli.parseGroupNode(&groupNode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse group info in create notification: %w", err)
	}
	evt.GroupInfo = *info
	return &evt, nil
}

func (cli *Client) parseGroupChange(node *waBinary.Node) (*events.GroupInfo, error) {
	var evt events.GroupInfo
	ag := node.AttrGetter()
	evt.JID = ag.JID("from")
	evt.Notify = ag.OptionalString("notify")
	evt.Sender = ag.OptionalJID("participant")
	evt.Timestamp = ag.UnixTime("t")
	if !ag.OK() {
		return nil, fmt.Errorf("group change doesn't contain required attributes: %w", ag.Error())
	}

	for _, child := range node.GetChildren() {
		cag := child.AttrGetter()
		if child.Tag != "create" {
			evt.PrevParticipantVersionID = cag.OptionalString("prev_v_id")
			evt.ParticipantVersionID = cag.OptionalString("v_id")
		}
		switch child.Tag {
		case "add":
			evt.JoinReason = cag.OptionalString("reason")
			evt.Join = parseParticipantList(&child)
		case "remove":
			evt.Leave = parseParticipantList(&child)
		case "promote":
			evt.Promote = parseParticipantList(&child)
		case "demote":
			evt.Demote = parseParticipantList(&child)
		case "locked":
			evt.Locked = &types.GroupLocked{IsLocked: true}
		case "unlocked":
			evt.Locked = &types.GroupLocked{IsLocked: false}
		case "announcement":
			evt.Announce = &types.GroupAnnounce{
				IsAnnounce:        true,
				AnnounceVersionID: cag.OptionalString("v_id"),
			}
		case "not_announcement":
			evt.Announce = &types.GroupAnnounce{
				IsAnnounce:        false,
				AnnounceVersionID: cag.OptionalString("v_id"),
			}
		case "subject":
			evt.Name = &types.GroupName{
				Name:      cag.OptionalString("subject"),
				NameSetAt: cag.OptionalUnixTime("s_t"),
				NameSetBy: cag.OptionalJIDOrEmpty("s_o"),
			}
		case "description":
			var topicStr string
			if body, ok := child.GetOptionalChildByTag("body"); ok {
				topicBytes, _ := body.Content.([]byte)
				topicStr = string(topicBytes)
			}
			evt.Topic = &types.GroupTopic{
				Topic:        topicStr,
				TopicID:      cag.OptionalString("id"),
				TopicSetAt:   evt.Timestamp,
				TopicSetBy:   evt.JID,
				TopicDeleted: cag.OptionalBool("delete"),
			}
			if evt.Sender != nil {
				evt.Topic.TopicSetBy = *evt.Sender
			}
		case "ephemeral":
			evt.Ephemeral = &types.GroupEphemeral{
				IsEphemeral:       true,
				DisappearingTimer: uint32(cag.Uint64("expiration")),
			}
		case "not_ephemeral":
			evt.Ephemeral = &types.GroupEphemeral{IsEphemeral: false}
		default:
			childCopy := child
			evt.UnknownChanges = append(evt.UnknownChanges, &childCopy)
		}
		if !cag.OK() {
			return nil, fmt.Errorf("group change %s element doesn't contain required attributes: %w", child.Tag, cag.Error())
		}
	}
	return &evt, nil
}

// updateGroupParticipantCache drops cached metadata and sender key memory for
// a group whose participant list changed, so the next outgoing message
// redistributes the sender key.
func (cli *Client) updateGroupParticipantCache(evt *events.GroupInfo) {
	if len(evt.Join) == 0 && len(evt.Leave) == 0 {
		return
	}
	cli.groupCache.Delete(evt.JID)
	if err := cli.clearSenderKeyMemory(context.TODO(), evt.JID); err != nil {
		cli.Log.Warnf("Failed to clear sender key memory for %s: %v", evt.JID, err)
	}
}

func (cli *Client) parseGroupNotification(node *waBinary.Node) (interface{}, error) {
	children := node.GetChildren()
	if len(children) == 1 && children[0].Tag == "create" {
		return cli.parseGroupCreate(&children[0])
	}
	groupChange, err := cli.parseGroupChange(node)
	if err != nil {
		return nil, err
	}
	cli.updateGroupParticipantCache(groupChange)
	return groupChange, nil
}
