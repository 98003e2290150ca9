package store

import (
	"crypto/rand"
	"errors"
	"fmt"
	"maps"
	"math/big"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bulleador/lobbysync/internal/model"
	"github.com/bulleador/lobbysync/internal/types"
)

var ErrNotFound = errors.New("lobby not found")
var ErrNotMember = errors.New("not a lobby member")
var ErrLobbyFull = errors.New("lobby is full")
var ErrMembershipLocked = errors.New("lobby membership is locked")
var ErrBanned = errors.New("member may not rejoin this lobby")
var ErrInvalidRequest = errors.New("invalid request")

// Publisher fans lobby changes out to subscribed connections.
type Publisher interface {
	Publish(topic string, batch types.ChangeBatch)
	Unsubscribed(topic, entityID, reason string)
}

type entry struct {
	snap   model.Snapshot
	next   uint64
	banned map[string]bool
}

// Store is an in-memory lobby authority. Every mutation becomes one
// numbered change record published on the lobby's topic.
type Store struct {
	mu         sync.Mutex
	lobbies    map[string]*entry
	byConn     map[string]string // connection string -> lobby id
	pub        Publisher
	log        *zap.Logger
	maxPlayers uint32
}

func New(pub Publisher, defaultMaxPlayers uint32, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultMaxPlayers == 0 {
		defaultMaxPlayers = 4
	}
	return &Store{
		lobbies:    make(map[string]*entry),
		byConn:     make(map[string]string),
		pub:        pub,
		log:        logger.Named("store"),
		maxPlayers: defaultMaxPlayers,
	}
}

func (s *Store) Create(req types.CreateLobbyRequest) (types.CreateLobbyResponse, error) {
	if req.Owner.IsZero() {
		return types.CreateLobbyResponse{}, fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var code string
	for {
		c, err := GenerateCode()
		if err != nil {
			return types.CreateLobbyResponse{}, err
		}
		if _, taken := s.byConn[c]; !taken {
			code = c
			break
		}
		s.log.Debug("collision on connection string, regenerating")
	}

	id := uuid.NewString()
	snap := model.NewSnapshot(id, code)
	snap.Owner = req.Owner
	snap.Members[req.Owner.ID] = model.Member{Entity: req.Owner, Data: cloneData(req.MemberData)}
	snap.LobbyData = cloneData(req.LobbyData)
	snap.MembershipLock = model.MembershipUnlocked
	snap.AccessPolicy = req.AccessPolicy
	if snap.AccessPolicy == "" {
		snap.AccessPolicy = model.AccessPublic
	}
	snap.MaxPlayers = req.MaxPlayers
	if snap.MaxPlayers == 0 {
		snap.MaxPlayers = s.maxPlayers
	}

	s.lobbies[id] = &entry{snap: snap, banned: map[string]bool{}}
	s.byConn[code] = id
	s.log.Info("lobby created", zap.String("lobby_id", id), zap.String("owner", req.Owner.ID))
	return types.CreateLobbyResponse{LobbyID: id, ConnectionString: code}, nil
}

func (s *Store) Join(req types.JoinLobbyRequest) (types.JoinLobbyResponse, error) {
	if req.MemberEntity.IsZero() {
		return types.JoinLobbyResponse{}, fmt.Errorf("%w: member is required", ErrInvalidRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byConn[req.ConnectionString]
	if !ok {
		return types.JoinLobbyResponse{}, ErrNotFound
	}
	e := s.lobbies[id]
	switch {
	case e.banned[req.MemberEntity.ID]:
		return types.JoinLobbyResponse{}, ErrBanned
	case e.snap.MembershipLock == model.MembershipLocked:
		return types.JoinLobbyResponse{}, ErrMembershipLocked
	}
	if _, already := e.snap.Members[req.MemberEntity.ID]; !already && uint32(len(e.snap.Members)) >= e.snap.MaxPlayers {
		return types.JoinLobbyResponse{}, ErrLobbyFull
	}

	m := model.Member{Entity: req.MemberEntity, Data: cloneData(req.MemberData)}
	e.snap.Members[m.ID()] = m
	s.publish(e, model.ChangeRecord{MemberToMerge: ptr(m.Clone())})
	return types.JoinLobbyResponse{LobbyID: id}, nil
}

func (s *Store) Get(lobbyID string) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lobbies[lobbyID]
	if !ok {
		return model.Snapshot{}, ErrNotFound
	}
	return e.snap.Clone(), nil
}

// Update merges member and lobby data key by key; the published record
// carries the full resulting mapping.
func (s *Store) Update(lobbyID string, req types.UpdateLobbyRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lobbies[lobbyID]
	if !ok {
		return ErrNotFound
	}

	if req.MemberData != nil {
		if req.MemberEntity == nil || req.MemberEntity.IsZero() {
			return fmt.Errorf("%w: member data needs a member", ErrInvalidRequest)
		}
		m, ok := e.snap.Members[req.MemberEntity.ID]
		if !ok {
			return ErrNotMember
		}
		m.Data = mergeData(m.Data, req.MemberData)
		e.snap.Members[m.ID()] = m
		s.publish(e, model.ChangeRecord{MemberToMerge: ptr(m.Clone())})
	}

	if req.LobbyData != nil {
		e.snap.LobbyData = mergeData(e.snap.LobbyData, req.LobbyData)
		s.publish(e, model.ChangeRecord{LobbyData: cloneData(e.snap.LobbyData)})
	}

	if req.MembershipLock != "" {
		e.snap.MembershipLock = req.MembershipLock
	}
	return nil
}

// RemoveMember kicks a member; the member's subscription ends with
// MemberRemoved.
func (s *Store) RemoveMember(lobbyID, memberID string, preventRejoin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lobbies[lobbyID]
	if !ok {
		return ErrNotFound
	}
	if preventRejoin {
		e.banned[memberID] = true
	}
	return s.removeLocked(e, memberID, types.ReasonMemberRemoved)
}

func (s *Store) Leave(lobbyID, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lobbies[lobbyID]
	if !ok {
		return ErrNotFound
	}
	return s.removeLocked(e, memberID, types.ReasonMemberLeft)
}

// Delete closes the lobby for every member.
func (s *Store) Delete(lobbyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lobbies[lobbyID]
	if !ok {
		return ErrNotFound
	}
	s.deleteLocked(e)
	return nil
}

func (s *Store) removeLocked(e *entry, memberID, reason string) error {
	m, ok := e.snap.Members[memberID]
	if !ok {
		return ErrNotMember
	}
	delete(e.snap.Members, memberID)
	topic := types.LobbyChangeTopic(e.snap.LobbyID)
	s.pub.Unsubscribed(topic, memberID, reason)

	if len(e.snap.Members) == 0 {
		s.deleteLocked(e)
		return nil
	}
	s.publish(e, model.ChangeRecord{MemberToDelete: ptr(m.Clone())})

	// automatic owner migration
	if e.snap.Owner.ID == memberID {
		next := e.snap.Members[slices.Sorted(maps.Keys(e.snap.Members))[0]]
		e.snap.Owner = next.Entity
		s.publish(e, model.ChangeRecord{Owner: ptr(next.Entity)})
	}
	return nil
}

func (s *Store) deleteLocked(e *entry) {
	topic := types.LobbyChangeTopic(e.snap.LobbyID)
	for id := range e.snap.Members {
		s.pub.Unsubscribed(topic, id, types.ReasonLobbyDeleted)
	}
	delete(s.lobbies, e.snap.LobbyID)
	delete(s.byConn, e.snap.ConnectionString)
	s.log.Info("lobby deleted", zap.String("lobby_id", e.snap.LobbyID))
}

func (s *Store) publish(e *entry, rec model.ChangeRecord) {
	e.next++
	rec.ChangeNumber = e.next
	s.log.Debug("lobby change", zap.String("lobby_id", e.snap.LobbyID), zap.Stringer("change", rec))
	s.pub.Publish(types.LobbyChangeTopic(e.snap.LobbyID), types.ChangeBatch{
		LobbyID: e.snap.LobbyID,
		Changes: []model.ChangeRecord{rec},
	})
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

func mergeData(current, update map[string]string) map[string]string {
	out := cloneData(current)
	maps.Copy(out, update)
	return out
}

func cloneData(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m)
}

func ptr[T any](v T) *T { return &v }
