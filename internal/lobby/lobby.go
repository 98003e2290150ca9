package lobby

import (
	"context"

	"go.uber.org/zap"

	"github.com/bulleador/lobbysync/internal/model"
	"github.com/bulleador/lobbysync/internal/reconcile"
)

type Msg interface{ isLobbyMsg() }

// Reply channels on every message must be buffered; the loop never blocks
// on a reply.

type Initialise struct {
	Reply chan error // nil once live, or the failure
}

func (Initialise) isLobbyMsg() {}

type Watch struct {
	ClientID string
	Outbox   chan reconcile.Event // where this watcher wants to receive events
}

func (Watch) isLobbyMsg() {}

type Unwatch struct{ ClientID string }

func (Unwatch) isLobbyMsg() {}

type SetReady struct {
	Ready bool
	Reply chan error
}

func (SetReady) isLobbyMsg() {}

type StartGame struct {
	Reply chan error
}

func (StartGame) isLobbyMsg() {}

type Kick struct {
	MemberID      string
	PreventRejoin bool
	Reply         chan error
}

func (Kick) isLobbyMsg() {}

type Leave struct {
	Reply chan error
}

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

// run carries work posted back onto the loop by the replica.
type run struct{ fn func() }

func (run) isLobbyMsg() {}

type View struct {
	State       State
	Snapshot    model.Snapshot
	IsOwner     bool
	Pending     int
	NumWatchers int
}

// Lobby owns one Replica on a single goroutine. Transport callbacks, the
// snapshot completion and command results are all funnelled through inbox.
type Lobby struct {
	inbox    chan Msg
	replica  *Replica
	watchers map[string]chan reconcile.Event
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewLobby(parent context.Context, cfg Config) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	l := &Lobby{
		inbox:    make(chan Msg, 64), // Small buffer
		watchers: make(map[string]chan reconcile.Event),
		log:      cfg.Logger.Named("lobby").With(zap.String("lobby_id", cfg.LobbyID)),
		ctx:      ctx,
		cancel:   cancel,
	}
	cfg.Post = l.post
	l.replica = NewReplica(cfg)
	l.replica.OnEvent(l.broadcast)

	go l.loop()
	return l
}

func (l *Lobby) post(fn func()) {
	select {
	case l.inbox <- run{fn: fn}:
	case <-l.ctx.Done():
	}
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case run:
				msg.fn()

			case Initialise:
				reply := msg.Reply
				err := l.replica.Initialise(l.ctx,
					func() { send(reply, nil) },
					func(err error) { send(reply, err) })
				if err != nil {
					send(reply, err)
				}

			case Watch:
				l.watchers[msg.ClientID] = msg.Outbox

			case Unwatch:
				if ch, ok := l.watchers[msg.ClientID]; ok {
					close(ch)
					delete(l.watchers, msg.ClientID)
				}

			case SetReady:
				l.command(msg.Reply, func(done func(error)) error {
					return l.replica.SetReady(l.ctx, msg.Ready, done)
				})

			case StartGame:
				l.command(msg.Reply, func(done func(error)) error {
					return l.replica.StartGame(l.ctx, done)
				})

			case Kick:
				l.command(msg.Reply, func(done func(error)) error {
					return l.replica.KickMember(l.ctx, msg.MemberID, msg.PreventRejoin, done)
				})

			case Leave:
				l.command(msg.Reply, func(done func(error)) error {
					return l.replica.Leave(l.ctx, done)
				})

			case GetState:
				msg.Reply <- View{
					State:       l.replica.State(),
					Snapshot:    l.replica.Snapshot(),
					IsOwner:     l.replica.IsOwner(),
					Pending:     l.replica.Pending(),
					NumWatchers: len(l.watchers),
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

// command replies with the local refusal right away, or later with the
// remote result.
func (l *Lobby) command(reply chan error, issue func(done func(error)) error) {
	if err := issue(func(err error) { send(reply, err) }); err != nil {
		send(reply, err)
	}
}

func (l *Lobby) shutdown() {
	l.replica.Close()
	for id, ch := range l.watchers {
		close(ch) // Tell watcher no more events
		delete(l.watchers, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(evt reconcile.Event) {
	for id, ch := range l.watchers {
		select {
		case ch <- evt:
			//ok
		default:
			// Watcher is slow/full - drop them.
			l.log.Warn("dropping slow watcher", zap.String("client_id", id))
			close(ch)
			delete(l.watchers, id)
		}
	}
}

// Expose the inbox so the console client or tests can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func send(ch chan error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}
