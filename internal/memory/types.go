package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

var (
	ErrNotFound = errors.New("memory: not found")
	ErrErased   = errors.New("memory: identity erased")
)

// Key identifies one conversation across all tiers.
type Key struct {
	TenantID       string
	ConversationID string
}

// Turn is one immutable message exchange.
type Turn struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	Sequence       int       `json:"sequence"`
	Role           Role      `json:"role"`
	Text           string    `json:"text"`
	Channel        string    `json:"channel"`
	IntentLabel    string    `json:"intent_label,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Fact is an atomic extracted statement about a member. It never carries raw
// message text; extraction redacts and normalizes before a Fact is written.
type Fact struct {
	MemberID  string    `json:"member_id"`
	Statement string    `json:"statement"`
	Relation  string    `json:"relation"`
	Entity    string    `json:"entity"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
}

// ContentHash keys a Fact for idempotent re-extraction.
func (f Fact) ContentHash() string {
	h := sha256.Sum256([]byte(f.MemberID + "\x00" + f.Relation + "\x00" + f.Entity + "\x00" + f.Statement))
	return hex.EncodeToString(h[:16])
}

// OverrideAudit records a ghost-mode operator override.
type OverrideAudit struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	DraftID        string    `json:"draft_id"`
	OperatorID     string    `json:"operator_id"`
	Reason         string    `json:"reason"`
	OriginalText   string    `json:"original_text"`
	OverrideText   string    `json:"override_text"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationRecord is the persistent-tier row for a conversation.
type ConversationRecord struct {
	TenantID       string    `json:"tenant_id"`
	ExternalUserID string    `json:"external_user_id"`
	ConversationID string    `json:"conversation_id"`
	Channel        string    `json:"channel"`
	MemberID       string    `json:"member_id,omitempty"`
	LastActiveAt   time.Time `json:"last_active_at"`
}

// PersistentStore is the session-persistent tier.
type PersistentStore interface {
	UpsertConversation(ctx context.Context, rec ConversationRecord) error
	SaveTurn(ctx context.Context, turn Turn) error
	RecentTurns(ctx context.Context, key Key, limit int) ([]Turn, error)
	DeleteConversation(ctx context.Context, key Key) error
	SaveOverrideAudit(ctx context.Context, audit OverrideAudit) error
	ListOverrideAudits(ctx context.Context, key Key, limit int) ([]OverrideAudit, error)
	Close() error
}
