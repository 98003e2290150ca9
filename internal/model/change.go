package model

import "fmt"

type ChangeKind string

const (
	ChangeMemberMerged  ChangeKind = "MemberAddedOrChanged"
	ChangeMemberRemoved ChangeKind = "MemberRemoved"
	ChangeOwner         ChangeKind = "OwnerChanged"
	ChangeLobbyData     ChangeKind = "LobbyDataUpdate"
	ChangeIgnore        ChangeKind = "Ignore"
)

// ChangeRecord is one numbered partial mutation of a lobby. Only one of the
// optional fields is set in real traffic; Kind resolves malformed records.
type ChangeRecord struct {
	ChangeNumber     uint64            `json:"changeNumber"`
	ConnectionHandle string            `json:"pubSubConnectionHandle,omitempty"`
	MemberToMerge    *Member           `json:"memberToMerge,omitempty"`
	MemberToDelete   *Member           `json:"memberToDelete,omitempty"`
	LobbyData        map[string]string `json:"lobbyData"`
	Owner            *EntityKey        `json:"owner,omitempty"`
}

// Kind classifies the record: member merge, then removal, then owner, then
// lobby data, else Ignore.
func (c ChangeRecord) Kind() ChangeKind {
	switch {
	case c.MemberToMerge != nil:
		return ChangeMemberMerged
	case c.MemberToDelete != nil:
		return ChangeMemberRemoved
	case c.Owner != nil:
		return ChangeOwner
	case c.LobbyData != nil:
		return ChangeLobbyData
	default:
		return ChangeIgnore
	}
}

func (c ChangeRecord) String() string {
	return fmt.Sprintf("change #%d (%s)", c.ChangeNumber, c.Kind())
}

type SubscriptionStatus int

const (
	Subscribed SubscriptionStatus = iota + 1
	UnsubscribedMemberLeft
	UnsubscribedMemberRemoved
	UnsubscribedLobbyDeleted
)

func (s SubscriptionStatus) String() string {
	switch s {
	case Subscribed:
		return "Subscribed"
	case UnsubscribedMemberLeft:
		return "UnsubscribedMemberLeft"
	case UnsubscribedMemberRemoved:
		return "UnsubscribedMemberRemoved"
	case UnsubscribedLobbyDeleted:
		return "UnsubscribedLobbyDeleted"
	default:
		return fmt.Sprintf("SubscriptionStatus(%d)", int(s))
	}
}

type LeaveReason string

const (
	LeaveMemberLeft   LeaveReason = "MemberLeft"
	LeaveMemberKicked LeaveReason = "MemberKicked"
	LeaveLobbyClosed  LeaveReason = "LobbyClosed"
)
