package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bulleador/lobbysync/internal/hub"
	"github.com/bulleador/lobbysync/internal/model"
	"github.com/bulleador/lobbysync/internal/types"
)

var ErrTransportClosed = errors.New("pubsub transport closed")
var ErrHandshake = errors.New("pubsub handshake failed")

const (
	writeTimeout = 3 * time.Second
	pingInterval = 15 * time.Second
)

// Client is the player side of the pubsub connection. Incoming frames
// are routed to per-topic handlers through a hub.
type Client struct {
	conn   *websocket.Conn
	hub    *hub.Hub
	self   model.EntityKey
	handle string
	log    *zap.Logger
}

// Dial connects and starts a session. Call Run to begin receiving.
func Dial(ctx context.Context, url string, self model.EntityKey, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	frame, err := types.NewFrame(types.FrameStartOrRecoverSession, types.StartSession{TraceID: uuid.NewString()})
	if err != nil {
		conn.CloseNow()
		return nil, err
	}
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	var resp types.Frame
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	var started types.SessionStarted
	if resp.Type != types.FrameSessionStarted {
		conn.CloseNow()
		return nil, fmt.Errorf("%w: unexpected %q frame", ErrHandshake, resp.Type)
	}
	if err := json.Unmarshal(resp.Data, &started); err != nil || started.NewConnectionHandle == "" {
		conn.CloseNow()
		return nil, fmt.Errorf("%w: no connection handle", ErrHandshake)
	}

	log := logger.Named("pubsub").With(zap.String("handle", started.NewConnectionHandle))
	log.Info("pubsub session started")
	return &Client{
		conn:   conn,
		hub:    hub.NewHub(context.Background(), logger),
		self:   self,
		handle: started.NewConnectionHandle,
		log:    log,
	}, nil
}

func (c *Client) ConnectionHandle() string { return c.handle }

// Run reads frames and keeps the connection alive until ctx ends or the
// connection drops.
func (c *Client) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			var frame types.Frame
			if err := wsjson.Read(ctx, c.conn, &frame); err != nil {
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					return nil
				}
				return fmt.Errorf("read frame: %w", err)
			}
			c.route(frame)
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				pctx, cancel := context.WithTimeout(ctx, writeTimeout)
				err := c.conn.Ping(pctx)
				cancel()
				if err != nil {
					return fmt.Errorf("ping: %w", err)
				}
			}
		}
	})

	return g.Wait()
}

func (c *Client) route(frame types.Frame) {
	switch frame.Type {
	case types.FrameReceiveMessage:
		var msg types.Message
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			c.log.Error("bad message frame", zap.Error(err))
			return
		}
		c.toHub(hub.Publish{Message: msg})

	case types.FrameSubscriptionChange:
		var msg types.SubscriptionChangeMessage
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			c.log.Error("bad subscription change frame", zap.Error(err))
			return
		}
		c.log.Info("subscription change", zap.Stringer("message", msg))
		c.toHub(hub.StatusChange{Message: msg})

	case types.FrameError:
		var msg types.ErrorMessage
		_ = json.Unmarshal(frame.Data, &msg)
		c.log.Warn("pubsub error", zap.String("error", msg.Error))

	default:
		c.log.Debug("ignoring frame", zap.String("type", frame.Type))
	}
}

// Subscribe registers handlers for topic and asks the server to start
// delivering it.
func (c *Client) Subscribe(topic string, onBatch func([]model.ChangeRecord), onStatus func(model.SubscriptionStatus)) (func(), error) {
	reply := make(chan error, 1)
	if !c.toHub(hub.Subscribe{Topic: topic, Handler: hub.Handler{OnBatch: onBatch, OnStatus: onStatus}, Reply: reply}) {
		return nil, ErrTransportClosed
	}
	select {
	case err := <-reply:
		if err != nil {
			return nil, err
		}
	case <-c.hub.Done():
		return nil, ErrTransportClosed
	}

	if err := c.write(types.FrameSubscribe, types.SubscribeRequest{Topic: topic, Entity: c.self}); err != nil {
		c.toHub(hub.Unsubscribe{Topic: topic})
		return nil, err
	}

	unsubscribe := func() {
		c.toHub(hub.Unsubscribe{Topic: topic})
		go func() {
			if err := c.write(types.FrameUnsubscribe, types.SubscribeRequest{Topic: topic, Entity: c.self}); err != nil {
				c.log.Debug("unsubscribe not sent", zap.String("topic", topic), zap.Error(err))
			}
		}()
	}
	return unsubscribe, nil
}

// Close unsubscribes every registered topic and closes the connection.
func (c *Client) Close() error {
	var err error
	reply := make(chan []string, 1)
	if c.toHub(hub.ListTopics{Reply: reply}) {
		select {
		case topics := <-reply:
			for _, topic := range topics {
				err = multierr.Append(err, c.write(types.FrameUnsubscribe, types.SubscribeRequest{Topic: topic, Entity: c.self}))
			}
		case <-c.hub.Done():
		}
	}
	c.toHub(hub.ShutdownHub{})
	return multierr.Append(err, c.conn.Close(websocket.StatusNormalClosure, "bye"))
}

func (c *Client) write(typ string, data any) error {
	frame, err := types.NewFrame(typ, data)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, frame); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportClosed, err)
	}
	return nil
}

func (c *Client) toHub(msg hub.HubMsg) bool {
	select {
	case c.hub.Inbox() <- msg:
		return true
	case <-c.hub.Done():
		return false
	}
}
