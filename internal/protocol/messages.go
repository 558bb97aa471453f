package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies event payload variants on the bus and the operator socket.
type MessageType string

const (
	TypeInboundMessage   MessageType = "inbound_message"
	TypeOutboundMessage  MessageType = "outbound_message"
	TypeOperatorObserve  MessageType = "operator_observe"
	TypeOperatorOverride MessageType = "operator_override"
	TypeOperatorApprove  MessageType = "operator_approve"
	TypeDraftPreview     MessageType = "draft_preview"
	TypeSystemEvent      MessageType = "system_event"
	TypeErrorEvent       MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// InboundMessage is published by channel adapters.
type InboundMessage struct {
	Type           MessageType `json:"type"`
	MessageID      string      `json:"message_id,omitempty"`
	ConversationID string      `json:"conversation_id"`
	Channel        string      `json:"channel"`
	Text           string      `json:"text"`
	Attachments    [][]byte    `json:"attachments,omitempty"`
	ReceivedAt     time.Time   `json:"received_at"`
}

// OutboundMessage is published by the orchestrator for channel adapters.
type OutboundMessage struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	Channel        string      `json:"channel"`
	Text           string      `json:"text"`
	InResponseTo   string      `json:"in_response_to"`
}

// OperatorObserve subscribes an operator to a conversation's live feed.
type OperatorObserve struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	OperatorID     string      `json:"operator_id"`
}

// OperatorOverride substitutes the pending draft with operator text.
type OperatorOverride struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	DraftID        string      `json:"draft_id"`
	OperatorID     string      `json:"operator_id"`
	Text           string      `json:"text"`
	Reason         string      `json:"reason,omitempty"`
}

// OperatorApprove releases the pending draft unchanged before the window elapses.
type OperatorApprove struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	DraftID        string      `json:"draft_id"`
	OperatorID     string      `json:"operator_id"`
}

// DraftPreview shows the operator a not-yet-delivered handler draft.
type DraftPreview struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	DraftID        string      `json:"draft_id"`
	UserText       string      `json:"user_text"`
	DraftText      string      `json:"draft_text"`
	Intent         string      `json:"intent"`
	ExpiresAt      time.Time   `json:"expires_at"`
}

type SystemEvent struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	Code           string      `json:"code"`
	Detail         string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	Code           string      `json:"code"`
	Source         string      `json:"source"`
	Retryable      bool        `json:"retryable"`
	Detail         string      `json:"detail"`
}

// ParseOperatorMessage decodes and validates a raw operator socket payload.
func ParseOperatorMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeOperatorObserve:
		var msg OperatorObserve
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ConversationID == "" || msg.OperatorID == "" {
			return nil, errors.New("invalid operator_observe")
		}
		return msg, nil
	case TypeOperatorOverride:
		var msg OperatorOverride
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ConversationID == "" || msg.DraftID == "" || msg.OperatorID == "" || msg.Text == "" {
			return nil, errors.New("invalid operator_override")
		}
		return msg, nil
	case TypeOperatorApprove:
		var msg OperatorApprove
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ConversationID == "" || msg.DraftID == "" || msg.OperatorID == "" {
			return nil, errors.New("invalid operator_approve")
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, env.Type)
	}
}

// ParseInboundMessage decodes and validates a channel-adapter webhook payload.
func ParseInboundMessage(raw []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("invalid inbound message: %w", err)
	}
	if msg.ConversationID == "" || msg.Channel == "" {
		return InboundMessage{}, errors.New("inbound message requires conversation_id and channel")
	}
	if msg.Text == "" && len(msg.Attachments) == 0 {
		return InboundMessage{}, errors.New("inbound message requires text or attachments")
	}
	if msg.Type == "" {
		msg.Type = TypeInboundMessage
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	return msg, nil
}
