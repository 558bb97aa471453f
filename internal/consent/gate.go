package consent

import (
	"context"
	"errors"
	"sync"

	"github.com/DamienDrash/arni-sub002/internal/memory"
)

type Status string

const (
	StatusGranted Status = "granted"
	StatusRevoked Status = "revoked"
)

var ErrRevoked = errors.New("consent revoked")

// Gate wraps every memory read and write with a per-conversation consent
// check. Revoking consent erases the identity from all four tiers before
// any further read is served.
type Gate struct {
	mu     sync.RWMutex
	status map[memory.Key]Status
	tiers  *memory.Manager
}

func NewGate(tiers *memory.Manager) *Gate {
	return &Gate{
		status: make(map[memory.Key]Status),
		tiers:  tiers,
	}
}

// Status returns the consent flag; conversations without an explicit record
// are treated as granted (consent is collected at channel onboarding).
func (g *Gate) Status(key memory.Key) Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if s, ok := g.status[key]; ok {
		return s
	}
	return StatusGranted
}

// Grant records consent for a conversation.
func (g *Gate) Grant(key memory.Key) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status[key] = StatusGranted
}

// Revoke flips the flag and cascades erasure across all tiers. The flag is
// set before erasure so that no concurrent read can observe partial
// deletion; if erasure fails the caller retries and the flag stays revoked.
func (g *Gate) Revoke(ctx context.Context, key memory.Key, memberID string) error {
	g.mu.Lock()
	g.status[key] = StatusRevoked
	g.mu.Unlock()

	return g.tiers.Erase(ctx, key, memberID)
}

// AppendTurn writes a turn through the gate.
func (g *Gate) AppendTurn(ctx context.Context, key memory.Key, memberID string, turn memory.Turn) (memory.Turn, error) {
	if g.Status(key) == StatusRevoked {
		return memory.Turn{}, ErrRevoked
	}
	return g.tiers.AppendTurn(ctx, key, memberID, turn)
}

// Context reads the RAM summary and window through the gate.
func (g *Gate) Context(key memory.Key) (string, []memory.Turn, error) {
	if g.Status(key) == StatusRevoked {
		return "", nil, ErrRevoked
	}
	return g.tiers.Context(key)
}

// Facts reads knowledge-tier facts through the gate.
func (g *Gate) Facts(key memory.Key, memberID string) ([]memory.Fact, error) {
	if g.Status(key) == StatusRevoked {
		return nil, ErrRevoked
	}
	return g.tiers.Facts(memberID)
}
