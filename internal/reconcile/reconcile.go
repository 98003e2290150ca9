package reconcile

import (
	"errors"
	"fmt"

	"github.com/bulleador/lobbysync/internal/model"
)

var ErrNotInitialised = errors.New("lobby snapshot not initialised")
var ErrInvalidChange = errors.New("invalid change record")

type EventType string

const (
	EvtNoOp              EventType = "NoOp"
	EvtMemberAdded       EventType = "MemberAdded"
	EvtMemberRemoved     EventType = "MemberRemoved"
	EvtMemberDataChanged EventType = "MemberDataChanged"
	EvtOwnerChanged      EventType = "OwnerChanged"
	EvtLobbyDataChanged  EventType = "LobbyDataChanged"
	EvtLobbyLeft         EventType = "LobbyLeft"
)

// Event describes which facet of the lobby a change touched. Maps are
// copies; observers can keep them.
type Event struct {
	Type         EventType
	ChangeNumber uint64
	Member       model.Member
	Owner        model.EntityKey
	LobbyData    map[string]string
	Reason       model.LeaveReason
}

func (e Event) IsNoOp() bool { return e.Type == EvtNoOp }

/*
	MemberAddedOrChanged -> EvtMemberAdded | EvtMemberDataChanged | EvtNoOp
	MemberRemoved        -> EvtMemberRemoved | EvtNoOp
	OwnerChanged         -> EvtOwnerChanged | EvtNoOp (absent owner is invalid)
	LobbyDataUpdate      -> EvtLobbyDataChanged | EvtNoOp
	Ignore               -> EvtNoOp
*/

// Apply mutates s in place with rec and reports what changed. A rejected
// record leaves s untouched.
func Apply(s *model.Snapshot, rec model.ChangeRecord) (Event, error) {
	if s == nil || !s.Applied() {
		return Event{}, ErrNotInitialised
	}

	switch kind := rec.Kind(); kind {
	case model.ChangeMemberMerged:
		return mergeMember(s, rec)
	case model.ChangeMemberRemoved:
		return removeMember(s, rec)
	case model.ChangeOwner:
		return changeOwner(s, rec)
	case model.ChangeLobbyData:
		return updateLobbyData(s, rec)
	case model.ChangeIgnore:
		return noOp(rec), nil
	default:
		return Event{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidChange, kind)
	}
}

func mergeMember(s *model.Snapshot, rec model.ChangeRecord) (Event, error) {
	incoming := rec.MemberToMerge.Clone()
	if incoming.ID() == "" {
		return Event{}, fmt.Errorf("%w: %s has no member id", ErrInvalidChange, rec)
	}

	current, ok := s.Members[incoming.ID()]
	if !ok {
		s.Members[incoming.ID()] = incoming
		return Event{Type: EvtMemberAdded, ChangeNumber: rec.ChangeNumber, Member: incoming.Clone()}, nil
	}

	if !replaceIfChanged(&current.Data, incoming.Data, model.DataEqual) {
		return noOp(rec), nil
	}
	s.Members[incoming.ID()] = current
	return Event{Type: EvtMemberDataChanged, ChangeNumber: rec.ChangeNumber, Member: current.Clone()}, nil
}

func removeMember(s *model.Snapshot, rec model.ChangeRecord) (Event, error) {
	id := rec.MemberToDelete.ID()
	if id == "" {
		return Event{}, fmt.Errorf("%w: %s has no member id", ErrInvalidChange, rec)
	}

	current, ok := s.Members[id]
	if !ok {
		// duplicate removals are expected under at-least-once delivery
		return noOp(rec), nil
	}
	delete(s.Members, id)
	return Event{Type: EvtMemberRemoved, ChangeNumber: rec.ChangeNumber, Member: current.Clone()}, nil
}

func changeOwner(s *model.Snapshot, rec model.ChangeRecord) (Event, error) {
	if rec.Owner.IsZero() {
		return Event{}, fmt.Errorf("%w: %s clears the owner", ErrInvalidChange, rec)
	}

	if !replaceIfChanged(&s.Owner, *rec.Owner, sameEntity) {
		return noOp(rec), nil
	}
	return Event{Type: EvtOwnerChanged, ChangeNumber: rec.ChangeNumber, Owner: s.Owner}, nil
}

func updateLobbyData(s *model.Snapshot, rec model.ChangeRecord) (Event, error) {
	if !replaceIfChanged(&s.LobbyData, cloneData(rec.LobbyData), model.DataEqual) {
		return noOp(rec), nil
	}
	return Event{Type: EvtLobbyDataChanged, ChangeNumber: rec.ChangeNumber, LobbyData: cloneData(s.LobbyData)}, nil
}

// replaceIfChanged is the single compare/replace rule every lobby facet goes
// through: replacement is wholesale, never a per-key merge.
func replaceIfChanged[T any](current *T, next T, equal func(a, b T) bool) bool {
	if equal(*current, next) {
		return false
	}
	*current = next
	return true
}

func sameEntity(a, b model.EntityKey) bool { return a.ID == b.ID }

func noOp(rec model.ChangeRecord) Event {
	return Event{Type: EvtNoOp, ChangeNumber: rec.ChangeNumber}
}
