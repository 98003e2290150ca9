package types

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulleador/lobbysync/internal/model"
)

func TestDecodeChangeBatchPayload(t *testing.T) {
	raw := `{"lobbyId":"L1","lobbyChanges":[
		{"changeNumber":3,"memberToMerge":{"memberEntity":{"id":"m1","type":"title_player_account"},"memberData":{"Ready":"true"}}},
		{"changeNumber":1,"memberToDelete":{"memberEntity":{"id":"m2"}}},
		{"changeNumber":2,"lobbyData":{}},
		{"changeNumber":4,"owner":{"id":"m1"}},
		{"changeNumber":5,"owner":{}},
		{"changeNumber":6}
	]}`
	payload := base64.StdEncoding.EncodeToString([]byte(raw))

	var batch ChangeBatch
	require.NoError(t, DecodePayload(payload, &batch))
	require.Equal(t, "L1", batch.LobbyID)
	require.Len(t, batch.Changes, 6)

	kinds := make([]model.ChangeKind, 0, len(batch.Changes))
	for _, c := range batch.Changes {
		kinds = append(kinds, c.Kind())
	}
	assert.Equal(t, []model.ChangeKind{
		model.ChangeMemberMerged,
		model.ChangeMemberRemoved,
		model.ChangeLobbyData,
		model.ChangeOwner,
		model.ChangeOwner,
		model.ChangeIgnore,
	}, kinds)
	assert.True(t, batch.Changes[0].MemberToMerge.IsReady())
	assert.True(t, batch.Changes[4].Owner.IsZero(), "empty owner must survive decoding so it can be rejected")
}

func TestEncodePayloadKeepsEmptyLobbyData(t *testing.T) {
	in := ChangeBatch{LobbyID: "L1", Changes: []model.ChangeRecord{{ChangeNumber: 9, LobbyData: map[string]string{}}}}
	payload, err := EncodePayload(in)
	require.NoError(t, err)

	var out ChangeBatch
	require.NoError(t, DecodePayload(payload, &out))
	require.Len(t, out.Changes, 1)
	assert.Equal(t, model.ChangeLobbyData, out.Changes[0].Kind())
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	var batch ChangeBatch
	assert.Error(t, DecodePayload("%%%not-base64", &batch))
	assert.Error(t, DecodePayload(base64.StdEncoding.EncodeToString([]byte("{")), &batch))
}

func TestSubscriptionChangeSignal(t *testing.T) {
	cases := []struct {
		status, reason string
		want           model.SubscriptionStatus
	}{
		{StatusSubscribeSuccess, "", model.Subscribed},
		{StatusUnsubscribeSuccess, ReasonMemberLeft, model.UnsubscribedMemberLeft},
		{StatusUnsubscribeSuccess, ReasonMemberRemoved, model.UnsubscribedMemberRemoved},
		{StatusUnsubscribeSuccess, ReasonLobbyDeleted, model.UnsubscribedLobbyDeleted},
		{StatusUnsubscribeSuccess, "", 0},
		{StatusUnsubscribeSuccess, "Banned", 0},
		{"weird", ReasonMemberLeft, 0},
	}

	for _, tc := range cases {
		t.Run(tc.status+"/"+tc.reason, func(t *testing.T) {
			msg := SubscriptionChangeMessage{Status: tc.status, UnsubscribeReason: tc.reason}
			assert.Equal(t, tc.want, msg.Signal())
		})
	}
}

func TestLobbySnapshotConversion(t *testing.T) {
	owner := model.EntityKey{ID: "m0"}
	l := Lobby{
		LobbyID: "L1",
		Owner:   &owner,
		Members: []model.Member{{Entity: owner}, {Entity: model.EntityKey{ID: "m1"}}},
	}

	s := l.Snapshot()
	assert.Equal(t, "m0", s.Owner.ID)
	assert.Len(t, s.Members, 2)
	assert.NotNil(t, s.LobbyData)
	assert.False(t, s.Applied())

	back := LobbyFromSnapshot(s)
	assert.Equal(t, "L1", back.LobbyID)
	assert.Equal(t, "m0", back.Owner.ID)
	assert.Len(t, back.Members, 2)
}
