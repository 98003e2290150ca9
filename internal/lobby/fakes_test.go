package lobby

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bulleador/lobbysync/internal/model"
	"github.com/bulleador/lobbysync/internal/reconcile"
)

type fetchResult struct {
	snap model.Snapshot
	err  error
}

// fakeService blocks GetLobby until the test feeds a result.
type fakeService struct {
	fetch chan fetchResult

	mu      sync.Mutex
	updates []UpdateRequest
	removed []string
	left    []string
	cmdErr  error
}

func newFakeService() *fakeService {
	return &fakeService{fetch: make(chan fetchResult, 1)}
}

func (f *fakeService) GetLobby(ctx context.Context, lobbyID string) (model.Snapshot, error) {
	select {
	case r := <-f.fetch:
		return r.snap, r.err
	case <-ctx.Done():
		return model.Snapshot{}, ctx.Err()
	}
}

func (f *fakeService) UpdateLobby(ctx context.Context, req UpdateRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, req)
	return f.cmdErr
}

func (f *fakeService) RemoveMember(ctx context.Context, lobbyID, memberID string, preventRejoin bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, memberID)
	return f.cmdErr
}

func (f *fakeService) LeaveLobby(ctx context.Context, lobbyID, memberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, memberID)
	return f.cmdErr
}

func (f *fakeService) Updates() []UpdateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]UpdateRequest(nil), f.updates...)
}

// fakeTransport captures the handlers a replica registers.
type fakeTransport struct {
	mu           sync.Mutex
	topic        string
	onBatch      func([]model.ChangeRecord)
	onStatus     func(model.SubscriptionStatus)
	unsubscribed bool
	err          error
}

func (f *fakeTransport) Subscribe(topic string, onBatch func([]model.ChangeRecord), onStatus func(model.SubscriptionStatus)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.topic, f.onBatch, f.onStatus = topic, onBatch, onStatus
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unsubscribed = true
	}, nil
}

func (f *fakeTransport) deliver(recs ...model.ChangeRecord) {
	f.mu.Lock()
	fn := f.onBatch
	f.mu.Unlock()
	fn(recs)
}

func (f *fakeTransport) status(s model.SubscriptionStatus) {
	f.mu.Lock()
	fn := f.onStatus
	f.mu.Unlock()
	fn(s)
}

func (f *fakeTransport) isUnsubscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed
}

var errBoom = errors.New("boom")

func addMember(n uint64, id string, data map[string]string) model.ChangeRecord {
	return model.ChangeRecord{ChangeNumber: n, MemberToMerge: &model.Member{Entity: model.EntityKey{ID: id}, Data: data}}
}

func removeMember(n uint64, id string) model.ChangeRecord {
	return model.ChangeRecord{ChangeNumber: n, MemberToDelete: &model.Member{Entity: model.EntityKey{ID: id}}}
}

func setLobbyData(n uint64, data map[string]string) model.ChangeRecord {
	return model.ChangeRecord{ChangeNumber: n, LobbyData: data}
}

func baseline(owner string, members ...string) model.Snapshot {
	s := model.NewSnapshot("L1", "conn-L1")
	s.Owner = model.EntityKey{ID: owner}
	for _, id := range members {
		s.Members[id] = model.Member{Entity: model.EntityKey{ID: id}}
	}
	s.MaxPlayers = 4
	return s
}

// helper: receive one event with a timeout so tests never hang
func recvEvent(t *testing.T, ch <-chan reconcile.Event, within time.Duration) reconcile.Event {
	t.Helper()
	select {
	case evt, ok := <-ch:
		if !ok {
			t.Fatalf("watcher outbox closed unexpectedly")
		}
		return evt
	case <-time.After(within):
		t.Fatalf("timed out waiting for event")
		return reconcile.Event{} // unreachable
	}
}

func recvErr(t *testing.T, ch <-chan error, within time.Duration) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(within):
		t.Fatalf("timed out waiting for reply")
		return nil // unreachable
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}
