package ws

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bulleador/lobbysync/internal/model"
	"github.com/bulleador/lobbysync/internal/types"
)

type peer struct {
	handle string
	entity model.EntityKey
	out    chan types.Frame
}

// Broker tracks which connections listen on which topic and implements
// store.Publisher for the dev server.
type Broker struct {
	mu     sync.Mutex
	topics map[string]map[string]*peer // topic -> connection handle -> peer
	log    *zap.Logger
}

func NewBroker(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		topics: make(map[string]map[string]*peer),
		log:    logger.Named("broker"),
	}
}

func (b *Broker) Publish(topic string, batch types.ChangeBatch) {
	payload, err := types.EncodePayload(batch)
	if err != nil {
		b.log.Error("encode lobby change", zap.Error(err))
		return
	}
	frame, err := types.NewFrame(types.FrameReceiveMessage, types.Message{
		Topic:   topic,
		Payload: payload,
		TraceID: uuid.NewString(),
	})
	if err != nil {
		b.log.Error("encode frame", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for handle, p := range b.topics[topic] {
		b.send(topic, handle, p, frame)
	}
}

// Unsubscribed ends entityID's subscriptions to topic and tells its
// connections why.
func (b *Broker) Unsubscribed(topic, entityID, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for handle, p := range b.topics[topic] {
		if p.entity.ID != entityID {
			continue
		}
		b.notify(p, topic, types.StatusUnsubscribeSuccess, reason)
		delete(b.topics[topic], handle)
	}
}

func (b *Broker) subscribe(topic string, p *peer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[string]*peer)
	}
	b.topics[topic][p.handle] = p
	b.notify(p, topic, types.StatusSubscribeSuccess, "")
}

func (b *Broker) unsubscribe(topic string, p *peer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.topics[topic], p.handle)
}

// drop forgets a closed connection everywhere.
func (b *Broker) drop(p *peer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, peers := range b.topics {
		delete(peers, p.handle)
		if len(peers) == 0 {
			delete(b.topics, topic)
		}
	}
}

func (b *Broker) notify(p *peer, topic, status, reason string) {
	frame, err := types.NewFrame(types.FrameSubscriptionChange, types.SubscriptionChangeMessage{
		EntityType:        p.entity.Type,
		EntityID:          p.entity.ID,
		Topic:             topic,
		Status:            status,
		UnsubscribeReason: reason,
		TraceID:           uuid.NewString(),
	})
	if err != nil {
		b.log.Error("encode frame", zap.Error(err))
		return
	}
	b.send(topic, p.handle, p, frame)
}

func (b *Broker) send(topic, handle string, p *peer, frame types.Frame) {
	select {
	case p.out <- frame:
		//ok
	default:
		// Connection is slow/full - stop feeding it this topic.
		b.log.Warn("dropping slow subscriber", zap.String("topic", topic), zap.String("handle", handle))
		delete(b.topics[topic], handle)
	}
}
