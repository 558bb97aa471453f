package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is an in-process persistent tier for local/dev use.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[Key]ConversationRecord
	turns         map[Key][]Turn
	audits        map[Key][]OverrideAudit
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[Key]ConversationRecord),
		turns:         make(map[Key][]Turn),
		audits:        make(map[Key][]OverrideAudit),
	}
}

func (s *InMemoryStore) UpsertConversation(_ context.Context, rec ConversationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.LastActiveAt.IsZero() {
		rec.LastActiveAt = time.Now().UTC()
	}
	s.conversations[Key{TenantID: rec.TenantID, ConversationID: rec.ConversationID}] = rec
	return nil
}

func (s *InMemoryStore) SaveTurn(_ context.Context, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	key := Key{TenantID: turn.TenantID, ConversationID: turn.ConversationID}
	s.turns[key] = append(s.turns[key], turn)
	return nil
}

func (s *InMemoryStore) RecentTurns(_ context.Context, key Key, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[key]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Turn, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) DeleteConversation(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, key)
	delete(s.turns, key)
	delete(s.audits, key)
	return nil
}

func (s *InMemoryStore) SaveOverrideAudit(_ context.Context, audit OverrideAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}
	key := Key{TenantID: audit.TenantID, ConversationID: audit.ConversationID}
	s.audits[key] = append(s.audits[key], audit)
	return nil
}

func (s *InMemoryStore) ListOverrideAudits(_ context.Context, key Key, limit int) ([]OverrideAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.audits[key]
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]OverrideAudit, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
