package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bulleador/lobbysync/internal/store"
	"github.com/bulleador/lobbysync/internal/types"
)

func CreateLobby(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CreateLobbyRequest
		if !decode(w, r, &req) {
			return
		}
		resp, err := s.Create(req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func JoinLobby(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.JoinLobbyRequest
		if !decode(w, r, &req) {
			return
		}
		resp, err := s.Join(req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func GetLobby(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := s.Get(chi.URLParam(r, "lobbyID"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.LobbyFromSnapshot(snap))
	}
}

func DeleteLobby(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Delete(chi.URLParam(r, "lobbyID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func UpdateLobby(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.UpdateLobbyRequest
		if !decode(w, r, &req) {
			return
		}
		if err := s.Update(chi.URLParam(r, "lobbyID"), req); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func RemoveMember(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.RemoveMemberRequest
		if !decode(w, r, &req) {
			return
		}
		if err := s.RemoveMember(chi.URLParam(r, "lobbyID"), req.MemberEntity.ID, req.PreventRejoin); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func LeaveLobby(s *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.LeaveLobbyRequest
		if !decode(w, r, &req) {
			return
		}
		if err := s.Leave(chi.URLParam(r, "lobbyID"), req.MemberEntity.ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, types.ErrorMessage{Error: "invalid json"})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrNotMember):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrLobbyFull), errors.Is(err, store.ErrMembershipLocked):
		status = http.StatusConflict
	case errors.Is(err, store.ErrBanned):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrInvalidRequest):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, types.ErrorMessage{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
