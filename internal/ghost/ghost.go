package ghost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DamienDrash/arni-sub002/internal/memory"
)

// ErrNoSuchDraft is returned for an override or approval targeting a draft
// that was never announced, was already resolved, or whose window elapsed.
var ErrNoSuchDraft = errors.New("ghost: no such draft")

// Draft is a handler response that has not been delivered yet. While at least
// one operator observes the conversation, delivery waits for the window.
type Draft struct {
	ID             string
	TenantID       string
	ConversationID string
	UserText       string
	Text           string
	Intent         string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Decision is what Review resolved to: exactly one of the original draft text
// or the operator's substitute.
type Decision struct {
	Text       string
	Overridden bool
	OperatorID string
}

type verdict struct {
	overridden bool
	operatorID string
	reason     string
	text       string
}

// Supervisor implements the operator override window. Drafts for unobserved
// conversations pass through without waiting.
type Supervisor struct {
	window time.Duration
	store  memory.PersistentStore
	now    func() time.Time

	mu        sync.Mutex
	observers map[string]int
	pending   map[string]chan verdict
	onPreview func(Draft)
}

func NewSupervisor(window time.Duration, store memory.PersistentStore) *Supervisor {
	return &Supervisor{
		window:    window,
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		observers: make(map[string]int),
		pending:   make(map[string]chan verdict),
	}
}

// SetPreviewHook installs the callback that pushes draft previews to
// connected operators. The hook must not block.
func (s *Supervisor) SetPreviewHook(fn func(Draft)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPreview = fn
}

// Observe registers one operator on a conversation. The returned release
// function is idempotent.
func (s *Supervisor) Observe(conversationID string) (release func()) {
	s.mu.Lock()
	s.observers[conversationID]++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.observers[conversationID] > 1 {
				s.observers[conversationID]--
			} else {
				delete(s.observers, conversationID)
			}
			s.mu.Unlock()
		})
	}
}

// Observed reports whether any operator currently watches the conversation.
func (s *Supervisor) Observed(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observers[conversationID] > 0
}

// Review holds the draft for the override window when the conversation is
// observed. It resolves to exactly one outcome: the operator's substitute, an
// early approval of the original, or the original after the window elapses.
func (s *Supervisor) Review(ctx context.Context, draft Draft) (Decision, error) {
	s.mu.Lock()
	if s.observers[draft.ConversationID] == 0 {
		s.mu.Unlock()
		return Decision{Text: draft.Text}, nil
	}
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = s.now()
	}
	draft.ExpiresAt = draft.CreatedAt.Add(s.window)
	ch := make(chan verdict, 1)
	s.pending[draft.ID] = ch
	preview := s.onPreview
	s.mu.Unlock()

	if preview != nil {
		preview(draft)
	}

	timer := time.NewTimer(s.window)
	defer timer.Stop()

	var v verdict
	select {
	case v = <-ch:
	case <-timer.C:
		s.drop(draft.ID)
		return Decision{Text: draft.Text}, nil
	case <-ctx.Done():
		s.drop(draft.ID)
		return Decision{Text: draft.Text}, ctx.Err()
	}

	if !v.overridden {
		return Decision{Text: draft.Text, OperatorID: v.operatorID}, nil
	}

	audit := memory.OverrideAudit{
		ID:             uuid.NewString(),
		TenantID:       draft.TenantID,
		ConversationID: draft.ConversationID,
		DraftID:        draft.ID,
		OperatorID:     v.operatorID,
		Reason:         v.reason,
		OriginalText:   draft.Text,
		OverrideText:   v.text,
		CreatedAt:      s.now(),
	}
	if err := s.store.SaveOverrideAudit(ctx, audit); err != nil {
		return Decision{}, fmt.Errorf("record override audit: %w", err)
	}
	return Decision{Text: v.text, Overridden: true, OperatorID: v.operatorID}, nil
}

// Override substitutes the operator's text for a pending draft.
func (s *Supervisor) Override(draftID, operatorID, reason, text string) error {
	return s.resolve(draftID, verdict{overridden: true, operatorID: operatorID, reason: reason, text: text})
}

// Approve releases the original draft before the window elapses.
func (s *Supervisor) Approve(draftID, operatorID string) error {
	return s.resolve(draftID, verdict{operatorID: operatorID})
}

func (s *Supervisor) resolve(draftID string, v verdict) error {
	s.mu.Lock()
	ch, ok := s.pending[draftID]
	if ok {
		delete(s.pending, draftID)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNoSuchDraft
	}
	ch <- v
	return nil
}

func (s *Supervisor) drop(draftID string) {
	s.mu.Lock()
	delete(s.pending, draftID)
	s.mu.Unlock()
}
