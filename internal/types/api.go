package types

import "github.com/bulleador/lobbysync/internal/model"

// Lobby is the REST shape of a lobby snapshot.
type Lobby struct {
	LobbyID          string               `json:"lobbyId"`
	ConnectionString string               `json:"connectionString"`
	Owner            *model.EntityKey     `json:"owner,omitempty"`
	Members          []model.Member       `json:"members"`
	LobbyData        map[string]string    `json:"lobbyData"`
	MembershipLock   model.MembershipLock `json:"membershipLock"`
	AccessPolicy     model.AccessPolicy   `json:"accessPolicy"`
	MaxPlayers       uint32               `json:"maxPlayers"`
}

func (l Lobby) Snapshot() model.Snapshot {
	s := model.NewSnapshot(l.LobbyID, l.ConnectionString)
	if l.Owner != nil {
		s.Owner = *l.Owner
	}
	for _, m := range l.Members {
		s.Members[m.ID()] = m.Clone()
	}
	for k, v := range l.LobbyData {
		s.LobbyData[k] = v
	}
	s.MembershipLock = l.MembershipLock
	s.AccessPolicy = l.AccessPolicy
	s.MaxPlayers = l.MaxPlayers
	return s
}

func LobbyFromSnapshot(s model.Snapshot) Lobby {
	l := Lobby{
		LobbyID:          s.LobbyID,
		ConnectionString: s.ConnectionString,
		Members:          s.MemberList(),
		LobbyData:        s.Clone().LobbyData,
		MembershipLock:   s.MembershipLock,
		AccessPolicy:     s.AccessPolicy,
		MaxPlayers:       s.MaxPlayers,
	}
	if !s.Owner.IsZero() {
		owner := s.Owner
		l.Owner = &owner
	}
	return l
}

type CreateLobbyRequest struct {
	Owner        model.EntityKey    `json:"owner"`
	MemberData   map[string]string  `json:"memberData,omitempty"`
	LobbyData    map[string]string  `json:"lobbyData,omitempty"`
	AccessPolicy model.AccessPolicy `json:"accessPolicy,omitempty"`
	MaxPlayers   uint32             `json:"maxPlayers,omitempty"`
}

type CreateLobbyResponse struct {
	LobbyID          string `json:"lobbyId"`
	ConnectionString string `json:"connectionString"`
}

type JoinLobbyRequest struct {
	ConnectionString string            `json:"connectionString"`
	MemberEntity     model.EntityKey   `json:"memberEntity"`
	MemberData       map[string]string `json:"memberData,omitempty"`
}

type JoinLobbyResponse struct {
	LobbyID string `json:"lobbyId"`
}

type UpdateLobbyRequest struct {
	MemberEntity   *model.EntityKey     `json:"memberEntity,omitempty"`
	MemberData     map[string]string    `json:"memberData,omitempty"`
	LobbyData      map[string]string    `json:"lobbyData,omitempty"`
	MembershipLock model.MembershipLock `json:"membershipLock,omitempty"`
}

type RemoveMemberRequest struct {
	MemberEntity  model.EntityKey `json:"memberEntity"`
	PreventRejoin bool            `json:"preventRejoin"`
}

type LeaveLobbyRequest struct {
	MemberEntity model.EntityKey `json:"memberEntity"`
}
