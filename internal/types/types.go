package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/bulleador/lobbysync/internal/model"
)

const TopicLobbyChange = "LobbyChange"

// LobbyChangeTopic is the exact topic a lobby's change batches are published on.
func LobbyChangeTopic(lobbyID string) string {
	return TopicLobbyChange + "/" + lobbyID
}

// Frame types exchanged on the pubsub websocket.
const (
	FrameReceiveMessage        = "ReceiveMessage"
	FrameSubscriptionChange    = "ReceiveSubscriptionChangeMessage"
	FrameStartOrRecoverSession = "StartOrRecoverSession"
	FrameSessionStarted        = "StartOrRecoverSessionResponse"
	FrameSubscribe             = "Subscribe"
	FrameUnsubscribe           = "Unsubscribe"
	FrameError                 = "Error"
)

type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewFrame(typ string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s frame: %w", typ, err)
	}
	return Frame{Type: typ, Data: raw}, nil
}

// Message is a topic publication. Payload is base64-encoded JSON.
type Message struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	TraceID string `json:"traceId,omitempty"`
}

// ChangeBatch is the decoded payload of a LobbyChange message.
type ChangeBatch struct {
	LobbyID string               `json:"lobbyId"`
	Changes []model.ChangeRecord `json:"lobbyChanges"`
}

type SubscriptionChangeMessage struct {
	EntityType        string `json:"entityType"`
	EntityID          string `json:"entityId"`
	Topic             string `json:"topic"`
	Status            string `json:"status"`
	UnsubscribeReason string `json:"unsubscribeReason,omitempty"`
	TraceID           string `json:"traceId,omitempty"`
}

const (
	StatusSubscribeSuccess   = "subscribeSuccess"
	StatusUnsubscribeSuccess = "unsubscribeSuccess"

	ReasonMemberLeft    = "MemberLeft"
	ReasonMemberRemoved = "MemberRemoved"
	ReasonLobbyDeleted  = "LobbyDeleted"
)

// Signal maps the message onto a subscription status. Unrecognised
// combinations map to the zero status, which the replica rejects.
func (m SubscriptionChangeMessage) Signal() model.SubscriptionStatus {
	switch m.Status {
	case StatusSubscribeSuccess:
		return model.Subscribed
	case StatusUnsubscribeSuccess:
		switch m.UnsubscribeReason {
		case ReasonMemberLeft:
			return model.UnsubscribedMemberLeft
		case ReasonMemberRemoved:
			return model.UnsubscribedMemberRemoved
		case ReasonLobbyDeleted:
			return model.UnsubscribedLobbyDeleted
		}
	}
	return 0
}

func (m SubscriptionChangeMessage) String() string {
	return fmt.Sprintf("EntityType: %s, EntityId: %s, Topic: %s, Status: %s, UnsubscribeReason: %s, TraceId: %s",
		m.EntityType, m.EntityID, m.Topic, m.Status, m.UnsubscribeReason, m.TraceID)
}

type StartSession struct {
	TraceID string `json:"traceId,omitempty"`
}

type SessionStarted struct {
	NewConnectionHandle string   `json:"newConnectionHandle"`
	RecoveredTopics     []string `json:"recoveredTopics,omitempty"`
	Status              string   `json:"status"`
	TraceID             string   `json:"traceId,omitempty"`
}

type SubscribeRequest struct {
	Topic  string          `json:"topic"`
	Entity model.EntityKey `json:"entity"`
}

type ErrorMessage struct {
	Error string `json:"error"`
}

func EncodePayload(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func DecodePayload(payload string, v any) error {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	return nil
}
