package model

import (
	"maps"
	"slices"
	"strconv"
)

// Well-known data keys written by lobby commands.
const (
	KeyReady       = "Ready"
	KeyGameStarted = "GameStarted"
)

type MembershipLock string

const (
	MembershipUnlocked MembershipLock = "Unlocked"
	MembershipLocked   MembershipLock = "Locked"
)

type AccessPolicy string

const (
	AccessPublic  AccessPolicy = "Public"
	AccessFriends AccessPolicy = "Friends"
	AccessPrivate AccessPolicy = "Private"
)

// EntityKey identifies a player entity. The zero value means "absent".
type EntityKey struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
}

func (k EntityKey) IsZero() bool { return k.ID == "" }

type Member struct {
	Entity           EntityKey         `json:"memberEntity"`
	Data             map[string]string `json:"memberData,omitempty"`
	ConnectionHandle string            `json:"pubSubConnectionHandle,omitempty"`
}

func (m Member) ID() string { return m.Entity.ID }

// Clone returns a copy that shares no maps with m.
func (m Member) Clone() Member {
	m.Data = cloneData(m.Data)
	return m
}

func (m Member) IsReady() bool {
	return parseFlag(m.Data, KeyReady)
}

// Snapshot is the replicated lobby state. A zero Snapshot is not applied;
// it becomes applied once through Baseline.
type Snapshot struct {
	LobbyID          string
	ConnectionString string
	Owner            EntityKey
	Members          map[string]Member
	LobbyData        map[string]string
	MembershipLock   MembershipLock
	AccessPolicy     AccessPolicy
	MaxPlayers       uint32

	applied bool
}

func NewSnapshot(lobbyID, connectionString string) Snapshot {
	return Snapshot{
		LobbyID:          lobbyID,
		ConnectionString: connectionString,
		Members:          map[string]Member{},
		LobbyData:        map[string]string{},
	}
}

func (s *Snapshot) Applied() bool { return s.applied }

// Baseline copies every field of src into s and marks s applied. The lobby id
// of s is kept when src carries none.
func (s *Snapshot) Baseline(src Snapshot) {
	if src.LobbyID != "" {
		s.LobbyID = src.LobbyID
	}
	if src.ConnectionString != "" {
		s.ConnectionString = src.ConnectionString
	}
	s.Owner = src.Owner
	s.Members = make(map[string]Member, len(src.Members))
	for id, m := range src.Members {
		s.Members[id] = m.Clone()
	}
	s.LobbyData = cloneData(src.LobbyData)
	s.MembershipLock = src.MembershipLock
	s.AccessPolicy = src.AccessPolicy
	s.MaxPlayers = src.MaxPlayers
	s.applied = true
}

// Clone returns a deep copy, including the applied flag.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Members = make(map[string]Member, len(s.Members))
	for id, m := range s.Members {
		out.Members[id] = m.Clone()
	}
	out.LobbyData = cloneData(s.LobbyData)
	return out
}

// MemberList returns the members ordered by id.
func (s Snapshot) MemberList() []Member {
	out := make([]Member, 0, len(s.Members))
	for _, id := range slices.Sorted(maps.Keys(s.Members)) {
		out = append(out, s.Members[id].Clone())
	}
	return out
}

func (s Snapshot) IsOwner(id string) bool {
	return id != "" && s.Owner.ID == id
}

func (s Snapshot) GameStarted() bool {
	return parseFlag(s.LobbyData, KeyGameStarted)
}

// OwnerPresent reports whether the owner reference resolves to a member.
// The remote side may break this transiently.
func (s Snapshot) OwnerPresent() bool {
	_, ok := s.Members[s.Owner.ID]
	return ok
}

// DataEqual compares two data mappings by key/value; nil and empty are equal.
func DataEqual(a, b map[string]string) bool {
	return maps.Equal(a, b)
}

func cloneData(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}

func parseFlag(data map[string]string, key string) bool {
	v, ok := data[key]
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
