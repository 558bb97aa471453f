package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// ConfirmState tracks a one-way-door confirmation through its lifecycle.
type ConfirmState string

const (
	ConfirmAwaiting  ConfirmState = "awaiting"
	ConfirmConfirmed ConfirmState = "confirmed"
	ConfirmExpired   ConfirmState = "expired"
	ConfirmCancelled ConfirmState = "cancelled"
)

// PendingConfirmation gates an irreversible action. While it exists in
// awaiting state the action must never execute.
type PendingConfirmation struct {
	ID         string            `json:"id"`
	ActionType string            `json:"action_type"`
	Params     map[string]string `json:"params,omitempty"`
	Prompt     string            `json:"prompt"`
	Agent      string            `json:"agent"`
	State      ConfirmState      `json:"state"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// Conversation is the aggregate for one (tenant, external user, channel)
// identity. The pending-confirmation slot lives here, not in ambient
// storage, so confirmation transitions are testable in isolation.
type Conversation struct {
	ID             string    `json:"conversation_id"`
	TenantID       string    `json:"tenant_id"`
	ExternalUserID string    `json:"external_user_id"`
	Channel        string    `json:"channel"`
	MemberID       string    `json:"member_id,omitempty"`
	Status         Status    `json:"status"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	mu      sync.Mutex
	pending *PendingConfirmation
}

// Pending returns a copy of the confirmation slot, or nil when empty.
func (c *Conversation) Pending() *PendingConfirmation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return nil
	}
	cp := *c.pending
	return &cp
}

// SetPending installs a new awaiting confirmation, replacing any previous one.
func (c *Conversation) SetPending(p PendingConfirmation) PendingConfirmation {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.State = ConfirmAwaiting
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = &p
	return p
}

// ConfirmPending atomically moves an awaiting, unexpired confirmation to
// confirmed and returns it. A racing duplicate turn gets ok=false.
func (c *Conversation) ConfirmPending(now time.Time) (PendingConfirmation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil || c.pending.State != ConfirmAwaiting {
		return PendingConfirmation{}, false
	}
	if now.After(c.pending.ExpiresAt) {
		c.pending.State = ConfirmExpired
		c.pending = nil
		return PendingConfirmation{}, false
	}
	c.pending.State = ConfirmConfirmed
	cp := *c.pending
	return cp, true
}

// CancelPending atomically cancels an awaiting confirmation.
func (c *Conversation) CancelPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil || c.pending.State != ConfirmAwaiting {
		return false
	}
	c.pending.State = ConfirmCancelled
	c.pending = nil
	return true
}

// ExpirePendingIfDue drops the slot when its TTL has passed. The pending
// action is discarded; nothing executes silently.
func (c *Conversation) ExpirePendingIfDue(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil || !now.After(c.pending.ExpiresAt) {
		return false
	}
	c.pending.State = ConfirmExpired
	c.pending = nil
	return true
}

// ClearPending removes the slot after successful execution.
func (c *Conversation) ClearPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
}

// RevertPending restores the slot to awaiting after a failed execution so
// the user's intent is not silently lost.
func (c *Conversation) RevertPending(p PendingConfirmation) {
	p.State = ConfirmAwaiting
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = &p
}
