package hub

import (
	"context"
	"errors"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/bulleador/lobbysync/internal/model"
	"github.com/bulleador/lobbysync/internal/types"
)

var ErrTopicTaken = errors.New("topic already has a handler")

type HubMsg interface{ isHubMsg() }

// Handler receives everything published on one topic.
type Handler struct {
	OnBatch  func([]model.ChangeRecord)
	OnStatus func(model.SubscriptionStatus)
}

type Subscribe struct {
	Topic   string
	Handler Handler
	Reply   chan error
}

type Unsubscribe struct {
	Topic string
}

type Publish struct {
	Message types.Message
}

type StatusChange struct {
	Message types.SubscriptionChangeMessage
}

type ListTopics struct {
	Reply chan []string
}

type ShutdownHub struct{}

func (Subscribe) isHubMsg()    {}
func (Unsubscribe) isHubMsg()  {}
func (Publish) isHubMsg()      {}
func (StatusChange) isHubMsg() {}
func (ListTopics) isHubMsg()   {}
func (ShutdownHub) isHubMsg()  {}

// Hub routes transport messages to handlers keyed by exact topic.
type Hub struct {
	inbox    chan HubMsg
	handlers map[string]Handler
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		handlers: make(map[string]Handler),
		log:      logger.Named("hub"),
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub has stopped.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Subscribe:
				if _, ok := h.handlers[msg.Topic]; ok {
					msg.Reply <- ErrTopicTaken
					break
				}
				h.handlers[msg.Topic] = msg.Handler
				msg.Reply <- nil

			case Unsubscribe:
				delete(h.handlers, msg.Topic)

			case Publish:
				h.publish(msg.Message)

			case StatusChange:
				handler, ok := h.handlers[msg.Message.Topic]
				if !ok || handler.OnStatus == nil {
					h.log.Warn("no handler for subscription change", zap.Stringer("message", msg.Message))
					break
				}
				handler.OnStatus(msg.Message.Signal())

			case ListTopics:
				msg.Reply <- slices.Sorted(maps.Keys(h.handlers))

			case ShutdownHub:
				clear(h.handlers)
				h.cancel()
			}
		}
	}
}

func (h *Hub) publish(m types.Message) {
	handler, ok := h.handlers[m.Topic]
	if !ok || handler.OnBatch == nil {
		h.log.Warn("no handler for message; ignored", zap.String("topic", m.Topic), zap.String("trace_id", m.TraceID))
		return
	}

	var batch types.ChangeBatch
	if err := types.DecodePayload(m.Payload, &batch); err != nil {
		h.log.Error("bad lobby change payload", zap.String("topic", m.Topic), zap.Error(err))
		return
	}
	h.log.Debug("lobby change message", zap.String("topic", m.Topic), zap.Int("changes", len(batch.Changes)))
	handler.OnBatch(batch.Changes)
}
