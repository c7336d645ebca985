// Copyright (c) 2025 Kunboruto20
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package borutowaileys

import (
	"context"
	"reflect"
	"testing"

	"github.com/Kunboruto20/borutowaileys-library/types"
)

func TestCachedGroupMetadataRelay(t *testing.T) {
	cli := newTestClient(t)
	group := types.NewJID("123123123123", types.GroupServer)
	want := []types.JID{
		types.NewJID("1111111111", types.DefaultUserServer),
		types.NewJID("2222222222", types.DefaultUserServer),
	}
	cli.CachedGroupMetadata = func(ctx context.Context, jid types.JID) ([]types.JID, error) {
		if jid != group {
			t.Errorf("callback queried for %v, want %v", jid, group)
		}
		return want, nil
	}

	got, err := cli.getGroupMembers(context.Background(), group)
	if err != nil {
		t.Fatalf("getGroupMembers() error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("getGroupMembers() = %v, want %v", got, want)
	}
}
