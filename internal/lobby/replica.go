package lobby

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/bulleador/lobbysync/internal/model"
	"github.com/bulleador/lobbysync/internal/reconcile"
	"github.com/bulleador/lobbysync/internal/types"
)

type State string

const (
	StateUninitialised State = "uninitialised"
	StateInitialising  State = "initialising"
	StateLive          State = "live"
	StateLeft          State = "left"
)

// UpdateRequest mirrors the remote UpdateLobby call. Nil maps are omitted.
type UpdateRequest struct {
	LobbyID    string
	Member     *model.EntityKey
	MemberData map[string]string
	LobbyData  map[string]string
}

// Service is the remote lobby API the replica talks to.
type Service interface {
	GetLobby(ctx context.Context, lobbyID string) (model.Snapshot, error)
	UpdateLobby(ctx context.Context, req UpdateRequest) error
	RemoveMember(ctx context.Context, lobbyID, memberID string, preventRejoin bool) error
	LeaveLobby(ctx context.Context, lobbyID, memberID string) error
}

// Transport delivers change batches and subscription signals for a topic.
// Callbacks may run on any goroutine.
type Transport interface {
	Subscribe(topic string, onBatch func([]model.ChangeRecord), onStatus func(model.SubscriptionStatus)) (unsubscribe func(), err error)
}

type Config struct {
	LobbyID          string
	ConnectionString string
	// Self is the local player; ownership checks compare against it.
	Self      model.EntityKey
	Service   Service
	Transport Transport
	Logger    *zap.Logger
	// Post schedules fn on the goroutine that owns the replica. Transport
	// callbacks and remote completions go through it. Nil runs fn inline,
	// which is only safe when the host serializes calls itself.
	Post func(fn func())
	// OnError receives protocol violations raised inside posted callbacks.
	OnError func(error)
}

// Replica keeps a local copy of one lobby in sync with the remote store.
// It is not safe for concurrent use; every method must be called from the
// goroutine that Config.Post schedules onto.
type Replica struct {
	cfg     Config
	log     *zap.Logger
	state   State
	snap    model.Snapshot
	pending PendingBuffer

	lastChange  uint64
	listeners   []func(reconcile.Event)
	unsubscribe func()
	cancelFetch context.CancelFunc
}

func NewReplica(cfg Config) *Replica {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Post == nil {
		cfg.Post = func(fn func()) { fn() }
	}
	return &Replica{
		cfg:   cfg,
		log:   cfg.Logger.Named("replica").With(zap.String("lobby_id", cfg.LobbyID)),
		state: StateUninitialised,
		snap:  model.NewSnapshot(cfg.LobbyID, cfg.ConnectionString),
	}
}

// OnEvent registers fn for every real change and for the final leave event.
func (r *Replica) OnEvent(fn func(reconcile.Event)) {
	r.listeners = append(r.listeners, fn)
}

func (r *Replica) LobbyID() string { return r.cfg.LobbyID }
func (r *Replica) State() State    { return r.state }
func (r *Replica) Pending() int    { return r.pending.Len() }

// Snapshot returns a copy of the current state.
func (r *Replica) Snapshot() model.Snapshot { return r.snap.Clone() }

func (r *Replica) IsOwner() bool { return r.snap.IsOwner(r.cfg.Self.ID) }

// Initialise subscribes to lobby changes and fetches the baseline snapshot.
// onReady runs once the snapshot is applied and buffered changes drained;
// onFailed runs if the fetch fails, leaving the replica initialising.
func (r *Replica) Initialise(ctx context.Context, onReady func(), onFailed func(error)) error {
	if r.state != StateUninitialised {
		return ErrAlreadyInitialised
	}

	unsubscribe, err := r.cfg.Transport.Subscribe(types.LobbyChangeTopic(r.cfg.LobbyID),
		func(recs []model.ChangeRecord) {
			r.cfg.Post(func() { r.report(r.OnChangeBatch(recs)) })
		},
		func(status model.SubscriptionStatus) {
			r.cfg.Post(func() { r.report(r.OnSubscriptionStatus(status)) })
		})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransportUnavailable, err)
	}
	r.unsubscribe = unsubscribe
	r.state = StateInitialising

	fetchCtx, cancel := context.WithCancel(ctx)
	r.cancelFetch = cancel
	go func() {
		snap, err := r.cfg.Service.GetLobby(fetchCtx, r.cfg.LobbyID)
		r.cfg.Post(func() { r.completeInitialise(snap, err, onReady, onFailed) })
	}()
	return nil
}

func (r *Replica) completeInitialise(snap model.Snapshot, err error, onReady func(), onFailed func(error)) {
	if r.state != StateInitialising {
		r.log.Debug("snapshot landed after leaving; ignored", zap.String("state", string(r.state)))
		return
	}
	if err == nil && snap.LobbyID != "" && snap.LobbyID != r.cfg.LobbyID {
		err = fmt.Errorf("snapshot is for lobby %q", snap.LobbyID)
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSnapshotFetchFailed, err)
		r.log.Error("failed to get lobby data", zap.Error(err), zap.Int("pending", r.pending.Len()))
		if onFailed != nil {
			onFailed(err)
		}
		return
	}

	r.snap.Baseline(snap)
	r.state = StateLive
	if !r.snap.OwnerPresent() {
		r.log.Warn("lobby owner is not a member", zap.String("owner", r.snap.Owner.ID))
	}

	var errs error
	drained := r.pending.DrainInOrder()
	for _, rec := range drained {
		errs = multierr.Append(errs, r.apply(rec))
	}
	r.log.Info("lobby live", zap.Int("members", len(r.snap.Members)), zap.Int("drained", len(drained)))
	r.report(errs)

	if onReady != nil {
		onReady()
	}
}

// OnChangeBatch applies one delivered batch. Records inside a batch are
// ordered by change number; batches themselves keep arrival order.
func (r *Replica) OnChangeBatch(recs []model.ChangeRecord) error {
	ordered := append([]model.ChangeRecord(nil), recs...)
	sortByChangeNumber(ordered)

	var errs error
	for _, rec := range ordered {
		errs = multierr.Append(errs, r.OnChangeRecord(rec))
	}
	return errs
}

// OnChangeRecord buffers rec until the baseline lands, applies it once live,
// and drops it after the lobby was left.
func (r *Replica) OnChangeRecord(rec model.ChangeRecord) error {
	switch r.state {
	case StateUninitialised, StateInitialising:
		r.pending.Enqueue(rec)
		r.log.Debug("change buffered", zap.Uint64("change_number", rec.ChangeNumber), zap.Int("pending", r.pending.Len()))
		return nil
	case StateLive:
		if rec.ChangeNumber <= r.lastChange {
			r.log.Warn("change arrived out of order",
				zap.Uint64("change_number", rec.ChangeNumber),
				zap.Uint64("last_applied", r.lastChange))
		}
		return r.apply(rec)
	default:
		r.log.Debug("change dropped after leaving", zap.Uint64("change_number", rec.ChangeNumber))
		return nil
	}
}

func (r *Replica) apply(rec model.ChangeRecord) error {
	evt, err := reconcile.Apply(&r.snap, rec)
	if err != nil {
		return fmt.Errorf("apply %s: %w", rec, err)
	}
	r.lastChange = max(r.lastChange, rec.ChangeNumber)

	if evt.IsNoOp() {
		if rec.Kind() == model.ChangeMemberMerged {
			r.log.Warn("member merge carried unchanged data", zap.String("member_id", rec.MemberToMerge.ID()))
		}
		return nil
	}
	r.emit(evt)
	return nil
}

// OnSubscriptionStatus ends the lobby on any unsubscribed signal.
func (r *Replica) OnSubscriptionStatus(status model.SubscriptionStatus) error {
	reason, left, err := MapSubscriptionStatus(status)
	if err != nil {
		return err
	}
	if !left {
		r.log.Debug("subscribed to lobby changes")
		return nil
	}
	if r.state == StateLeft {
		r.log.Debug("subscription ended after leaving", zap.String("reason", string(reason)))
		return nil
	}
	r.leave(reason)
	return nil
}

func (r *Replica) leave(reason model.LeaveReason) {
	r.release()
	r.log.Info("left lobby", zap.String("reason", string(reason)))
	r.emit(reconcile.Event{Type: reconcile.EvtLobbyLeft, Reason: reason})
}

// Close disposes the replica without notifying listeners or the service.
func (r *Replica) Close() {
	if r.state != StateLeft {
		r.release()
	}
}

func (r *Replica) release() {
	r.state = StateLeft
	if r.cancelFetch != nil {
		r.cancelFetch()
	}
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
	r.pending.Reset()
	r.snap = model.NewSnapshot(r.cfg.LobbyID, r.cfg.ConnectionString)
}

func (r *Replica) emit(evt reconcile.Event) {
	for _, fn := range r.listeners {
		fn(evt)
	}
}

func (r *Replica) report(err error) {
	if err == nil {
		return
	}
	r.log.Error("lobby change rejected", zap.Error(err))
	if r.cfg.OnError != nil {
		r.cfg.OnError(err)
	}
}

// SetReady publishes the local member's ready flag. The owner has no ready
// flag.
func (r *Replica) SetReady(ctx context.Context, ready bool, done func(error)) error {
	if err := r.requireLive(); err != nil {
		return err
	}
	if r.IsOwner() {
		return ErrOwnerCannotReady
	}
	self := r.cfg.Self
	r.issue(ctx, "set ready", func(ctx context.Context) error {
		return r.cfg.Service.UpdateLobby(ctx, UpdateRequest{
			LobbyID:    r.cfg.LobbyID,
			Member:     &self,
			MemberData: map[string]string{model.KeyReady: strconv.FormatBool(ready)},
		})
	}, done)
	return nil
}

func (r *Replica) StartGame(ctx context.Context, done func(error)) error {
	if err := r.requireOwner(); err != nil {
		return err
	}
	r.issue(ctx, "start game", func(ctx context.Context) error {
		return r.cfg.Service.UpdateLobby(ctx, UpdateRequest{
			LobbyID:   r.cfg.LobbyID,
			LobbyData: map[string]string{model.KeyGameStarted: "true"},
		})
	}, done)
	return nil
}

func (r *Replica) KickMember(ctx context.Context, memberID string, preventRejoin bool, done func(error)) error {
	if err := r.requireOwner(); err != nil {
		return err
	}
	r.issue(ctx, "kick member", func(ctx context.Context) error {
		return r.cfg.Service.RemoveMember(ctx, r.cfg.LobbyID, memberID, preventRejoin)
	}, done)
	return nil
}

// Leave moves the replica to Left right away and asks the service to drop
// the local member. A snapshot still in flight is discarded when it lands.
func (r *Replica) Leave(ctx context.Context, done func(error)) error {
	if r.state == StateUninitialised || r.state == StateLeft {
		return ErrNotInLobby
	}
	r.leave(model.LeaveMemberLeft)
	r.issue(ctx, "leave lobby", func(ctx context.Context) error {
		return r.cfg.Service.LeaveLobby(ctx, r.cfg.LobbyID, r.cfg.Self.ID)
	}, done)
	return nil
}

func (r *Replica) requireLive() error {
	if r.state != StateLive {
		return fmt.Errorf("%w: replica is %s", ErrNotInLobby, r.state)
	}
	return nil
}

func (r *Replica) requireOwner() error {
	if err := r.requireLive(); err != nil {
		return err
	}
	if !r.IsOwner() {
		return ErrNotOwner
	}
	return nil
}

// issue runs a remote command off the loop and posts its result back. Local
// state is never touched here; changes arrive as change records.
func (r *Replica) issue(ctx context.Context, name string, call func(context.Context) error, done func(error)) {
	go func() {
		err := call(ctx)
		r.cfg.Post(func() {
			if err != nil {
				r.log.Error(name+" failed", zap.Error(err))
			} else {
				r.log.Debug(name + " sent")
			}
			if done != nil {
				done(err)
			}
		})
	}()
}
