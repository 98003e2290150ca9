package lobbyapi_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulleador/lobbysync/internal/httpapi"
	"github.com/bulleador/lobbysync/internal/lobby"
	"github.com/bulleador/lobbysync/internal/lobbyapi"
	"github.com/bulleador/lobbysync/internal/model"
	"github.com/bulleador/lobbysync/internal/reconcile"
	"github.com/bulleador/lobbysync/internal/store"
	"github.com/bulleador/lobbysync/internal/types"
	"github.com/bulleador/lobbysync/internal/ws"
)

var (
	owner = model.EntityKey{ID: "owner", Type: "title_player_account"}
	guest = model.EntityKey{ID: "guest", Type: "title_player_account"}
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	b := ws.NewBroker(nil)
	srv := httptest.NewServer(httpapi.SetupRoutes(store.New(b, 4, nil), b, nil))
	t.Cleanup(srv.Close)
	return srv
}

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

func TestClient_LobbyLifecycle(t *testing.T) {
	srv := newServer(t)
	ownerAPI := lobbyapi.New(srv.URL, owner, nil, nil)
	guestAPI := lobbyapi.New(srv.URL, guest, nil, nil)

	created, err := ownerAPI.CreateLobby(ctx(t), types.CreateLobbyRequest{LobbyData: map[string]string{"map": "docks"}})
	require.NoError(t, err)

	joined, err := guestAPI.JoinLobby(ctx(t), created.ConnectionString, nil)
	require.NoError(t, err)
	assert.Equal(t, created.LobbyID, joined.LobbyID)

	require.NoError(t, guestAPI.UpdateLobby(ctx(t), lobby.UpdateRequest{
		LobbyID:    created.LobbyID,
		Member:     &guest,
		MemberData: map[string]string{model.KeyReady: "true"},
	}))

	snap, err := guestAPI.GetLobby(ctx(t), created.LobbyID)
	require.NoError(t, err)
	assert.Equal(t, created.LobbyID, snap.LobbyID)
	assert.Equal(t, owner, snap.Owner)
	assert.Equal(t, "docks", snap.LobbyData["map"])
	assert.True(t, snap.Members["guest"].IsReady())

	require.NoError(t, ownerAPI.RemoveMember(ctx(t), created.LobbyID, "guest", true))
	_, err = guestAPI.JoinLobby(ctx(t), created.ConnectionString, nil)
	var apiErr *lobbyapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Status)

	require.NoError(t, ownerAPI.DeleteLobby(ctx(t), created.LobbyID))
	_, err = ownerAPI.GetLobby(ctx(t), created.LobbyID)
	assert.ErrorIs(t, err, lobbyapi.ErrNotFound)
}

func TestClient_BadRequests(t *testing.T) {
	srv := newServer(t)
	api := lobbyapi.New(srv.URL, owner, nil, nil)

	_, err := api.JoinLobby(ctx(t), "ZZZZZZ", nil)
	assert.ErrorIs(t, err, lobbyapi.ErrNotFound)

	err = api.LeaveLobby(ctx(t), "missing", "owner")
	assert.ErrorIs(t, err, lobbyapi.ErrNotFound)
}

func recvEvent(t *testing.T, ch <-chan reconcile.Event, want reconcile.EventType) reconcile.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt, ok := <-ch:
			require.True(t, ok, "watcher closed")
			if evt.Type == want {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
			return reconcile.Event{}
		}
	}
}

func recvErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reply")
		return nil
	}
}

// A guest replica follows the lobby over the real REST and pubsub
// endpoints until the owner kicks it.
func TestReplica_EndToEnd(t *testing.T) {
	srv := newServer(t)
	ownerAPI := lobbyapi.New(srv.URL, owner, nil, nil)
	guestAPI := lobbyapi.New(srv.URL, guest, nil, nil)

	created, err := ownerAPI.CreateLobby(ctx(t), types.CreateLobbyRequest{})
	require.NoError(t, err)
	_, err = guestAPI.JoinLobby(ctx(t), created.ConnectionString, nil)
	require.NoError(t, err)

	transport, err := ws.Dial(ctx(t), "ws"+strings.TrimPrefix(srv.URL, "http")+"/pubsub", guest, nil)
	require.NoError(t, err)
	runCtx, stop := context.WithCancel(context.Background())
	t.Cleanup(func() {
		stop()
		_ = transport.Close()
	})
	go func() { _ = transport.Run(runCtx) }()

	l := lobby.NewLobby(context.Background(), lobby.Config{
		LobbyID:          created.LobbyID,
		ConnectionString: created.ConnectionString,
		Self:             guest,
		Service:          guestAPI,
		Transport:        transport,
	})
	t.Cleanup(func() { l.Inbox() <- lobby.Shutdown{} })

	events := make(chan reconcile.Event, 16)
	l.Inbox() <- lobby.Watch{ClientID: "test", Outbox: events}

	ready := make(chan error, 1)
	l.Inbox() <- lobby.Initialise{Reply: ready}
	require.NoError(t, recvErr(t, ready))

	reply := make(chan error, 1)
	l.Inbox() <- lobby.SetReady{Ready: true, Reply: reply}
	require.NoError(t, recvErr(t, reply))
	evt := recvEvent(t, events, reconcile.EvtMemberDataChanged)
	assert.Equal(t, "guest", evt.Member.ID())
	assert.True(t, evt.Member.IsReady())

	require.NoError(t, ownerAPI.UpdateLobby(ctx(t), lobby.UpdateRequest{
		LobbyID:   created.LobbyID,
		LobbyData: map[string]string{model.KeyGameStarted: "true"},
	}))
	evt = recvEvent(t, events, reconcile.EvtLobbyDataChanged)
	assert.Equal(t, "true", evt.LobbyData[model.KeyGameStarted])

	l.Inbox() <- lobby.Kick{MemberID: "owner", Reply: reply}
	assert.ErrorIs(t, recvErr(t, reply), lobby.ErrNotOwner)

	require.NoError(t, ownerAPI.RemoveMember(ctx(t), created.LobbyID, "guest", false))
	evt = recvEvent(t, events, reconcile.EvtLobbyLeft)
	assert.Equal(t, model.LeaveMemberKicked, evt.Reason)

	view := make(chan lobby.View, 1)
	l.Inbox() <- lobby.GetState{Reply: view}
	assert.Equal(t, lobby.StateLeft, (<-view).State)
}
