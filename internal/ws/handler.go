package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bulleador/lobbysync/internal/types"
)

// Handler serves the pubsub websocket: a session handshake followed by
// subscribe/unsubscribe frames from the client and pushed topic frames.
func Handler(b *Broker, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("pubsub")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		p := &peer{handle: uuid.NewString(), out: make(chan types.Frame, 32)}
		defer b.drop(p)

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case frame := <-p.out:
					ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
					_ = wsjson.Write(ctx, conn, frame)
					cancel()
				}
			}
		}()

		// Reader loop
		for {
			var frame types.Frame
			if err := wsjson.Read(r.Context(), conn, &frame); err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("pubsub connection ended", zap.String("handle", p.handle), zap.Error(err))
				}
				return
			}

			switch frame.Type {
			case types.FrameStartOrRecoverSession:
				var req types.StartSession
				_ = json.Unmarshal(frame.Data, &req)
				reply(p, types.FrameSessionStarted, types.SessionStarted{
					NewConnectionHandle: p.handle,
					Status:              "success",
					TraceID:             req.TraceID,
				})

			case types.FrameSubscribe:
				var req types.SubscribeRequest
				if err := json.Unmarshal(frame.Data, &req); err != nil || req.Topic == "" {
					reply(p, types.FrameError, types.ErrorMessage{Error: "bad subscribe"})
					continue
				}
				p.entity = req.Entity
				b.subscribe(req.Topic, p)

			case types.FrameUnsubscribe:
				var req types.SubscribeRequest
				if err := json.Unmarshal(frame.Data, &req); err == nil {
					b.unsubscribe(req.Topic, p)
				}

			default:
				reply(p, types.FrameError, types.ErrorMessage{Error: "unknown type"})
			}
		}
	}
}

func reply(p *peer, typ string, data any) {
	frame, err := types.NewFrame(typ, data)
	if err != nil {
		return
	}
	select {
	case p.out <- frame:
	default:
	}
}
