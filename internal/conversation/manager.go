package conversation

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("conversation not found")

// Manager tracks live conversation aggregates. Aggregates are shared by
// reference: the engine serializes turn processing per conversation, and the
// pending slot has its own lock for operator/timer races.
type Manager struct {
	mu                sync.RWMutex
	conversations     map[string]*Conversation
	byUserKey         map[string]string
	inactivityTimeout time.Duration
	onExpire          func(*Conversation)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		conversations:     make(map[string]*Conversation),
		byUserKey:         make(map[string]string),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Conversation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// GetOrCreate returns the aggregate for the identity, creating it on first
// inbound message.
func (m *Manager) GetOrCreate(id, tenantID, externalUserID, channel string) (*Conversation, bool) {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conversations[id]; ok {
		c.LastActivityAt = now
		return c, false
	}

	c := &Conversation{
		ID:             id,
		TenantID:       tenantID,
		ExternalUserID: externalUserID,
		Channel:        channel,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	m.conversations[id] = c
	if tenantID != "" && externalUserID != "" {
		m.byUserKey[tenantID+"\x00"+externalUserID] = id
	}
	return c, true
}

func (m *Manager) Get(id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *Manager) Touch(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.LastActivityAt = time.Now().UTC()
	return nil
}

// Remove drops the aggregate entirely (erasure or consent revocation).
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return
	}
	delete(m.conversations, id)
	if c.TenantID != "" && c.ExternalUserID != "" {
		delete(m.byUserKey, c.TenantID+"\x00"+c.ExternalUserID)
	}
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, c := range m.conversations {
		if c.Status == StatusActive {
			count++
		}
	}
	return count
}

// StartJanitor ends conversations idle past the inactivity timeout.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Conversation

	m.mu.Lock()
	for _, c := range m.conversations {
		if c.Status != StatusActive {
			continue
		}
		if now.Sub(c.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		c.Status = StatusEnded
		expired = append(expired, c)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, c := range expired {
			hook(c)
		}
	}
}
