package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeRecordKindPrecedence(t *testing.T) {
	m := &Member{Entity: EntityKey{ID: "m1"}}
	owner := &EntityKey{ID: "m0"}
	data := map[string]string{"k": "v"}

	cases := []struct {
		name string
		rec  ChangeRecord
		want ChangeKind
	}{
		{name: "empty record is ignored", rec: ChangeRecord{ChangeNumber: 1}, want: ChangeIgnore},
		{name: "merge only", rec: ChangeRecord{MemberToMerge: m}, want: ChangeMemberMerged},
		{name: "removal only", rec: ChangeRecord{MemberToDelete: m}, want: ChangeMemberRemoved},
		{name: "owner only", rec: ChangeRecord{Owner: owner}, want: ChangeOwner},
		{name: "lobby data only", rec: ChangeRecord{LobbyData: data}, want: ChangeLobbyData},
		{name: "empty lobby data is still an update", rec: ChangeRecord{LobbyData: map[string]string{}}, want: ChangeLobbyData},
		{name: "merge wins over everything", rec: ChangeRecord{MemberToMerge: m, MemberToDelete: m, Owner: owner, LobbyData: data}, want: ChangeMemberMerged},
		{name: "removal wins over owner", rec: ChangeRecord{MemberToDelete: m, Owner: owner, LobbyData: data}, want: ChangeMemberRemoved},
		{name: "owner wins over lobby data", rec: ChangeRecord{Owner: owner, LobbyData: data}, want: ChangeOwner},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.rec.Kind())
		})
	}
}

func TestSnapshotBaselineCopiesAndMarksApplied(t *testing.T) {
	s := NewSnapshot("L1", "")
	require.False(t, s.Applied())

	src := Snapshot{
		LobbyID:          "L1",
		ConnectionString: "conn-1",
		Owner:            EntityKey{ID: "m0"},
		Members:          map[string]Member{"m0": {Entity: EntityKey{ID: "m0"}, Data: map[string]string{"a": "1"}}},
		MaxPlayers:       4,
		MembershipLock:   MembershipLocked,
		AccessPolicy:     AccessPrivate,
	}
	s.Baseline(src)

	require.True(t, s.Applied())
	assert.Equal(t, "conn-1", s.ConnectionString)
	assert.Equal(t, uint32(4), s.MaxPlayers)
	assert.Equal(t, MembershipLocked, s.MembershipLock)
	assert.NotNil(t, s.LobbyData, "nil lobby data becomes an empty mapping")

	// the baseline must not alias the source
	src.Members["m0"].Data["a"] = "changed"
	assert.Equal(t, "1", s.Members["m0"].Data["a"])
}

func TestReadyAndStartedFlags(t *testing.T) {
	assert.True(t, Member{Data: map[string]string{KeyReady: "true"}}.IsReady())
	assert.True(t, Member{Data: map[string]string{KeyReady: "True"}}.IsReady())
	assert.False(t, Member{Data: map[string]string{KeyReady: "nope"}}.IsReady())
	assert.False(t, Member{}.IsReady())

	s := NewSnapshot("L1", "")
	assert.False(t, s.GameStarted())
	s.LobbyData[KeyGameStarted] = "true"
	assert.True(t, s.GameStarted())
}

func TestOwnerWithoutMemberIsTolerated(t *testing.T) {
	s := NewSnapshot("L1", "")
	s.Owner = EntityKey{ID: "ghost"}
	assert.False(t, s.OwnerPresent())
	assert.True(t, s.IsOwner("ghost"))
	assert.False(t, s.IsOwner(""))
}

func TestMemberListIsSortedCopy(t *testing.T) {
	s := NewSnapshot("L1", "")
	s.Members["b"] = Member{Entity: EntityKey{ID: "b"}}
	s.Members["a"] = Member{Entity: EntityKey{ID: "a"}, Data: map[string]string{"x": "1"}}

	list := s.MemberList()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID())
	assert.Equal(t, "b", list[1].ID())

	list[0].Data["x"] = "2"
	assert.Equal(t, "1", s.Members["a"].Data["x"])
}
