package memory

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// State is the per-conversation lifecycle position of the tier manager.
type State string

const (
	StateActive     State = "active"
	StateCompacting State = "compacting"
	StateFlushed    State = "flushed"
	StateErased     State = "erased"
)

const flushKeepTail = 3

// erasedRetention is how long an erased conversation keeps its tombstone.
// The tombstone blocks workers that were already mid-turn when the erasure
// ran; long-term the consent gate owns terminality, so after this window the
// entry is dropped to keep the state map bounded.
const erasedRetention = time.Hour

// Manager owns the four memory tiers and the transitions between them:
// active -> compacting -> flushed -> active, with erased terminal from
// any state.
type Manager struct {
	mu        sync.Mutex
	ram       *RAMTier
	persist   PersistentStore
	knowledge *KnowledgeTier
	graph     *GraphTier
	extractor Extractor

	ramCap   int
	states   map[Key]State
	erasedAt map[Key]time.Time
	nextSeq  map[Key]int
	members  map[string]struct{}

	rebuildCh chan string
	onFlush   func()
}

func NewManager(persist PersistentStore, knowledge *KnowledgeTier, extractor Extractor, ramCap int) *Manager {
	if ramCap <= 0 {
		ramCap = 20
	}
	return &Manager{
		ram:       NewRAMTier(),
		persist:   persist,
		knowledge: knowledge,
		graph:     NewGraphTier(),
		extractor: extractor,
		ramCap:    ramCap,
		states:    make(map[Key]State),
		erasedAt:  make(map[Key]time.Time),
		nextSeq:   make(map[Key]int),
		members:   make(map[string]struct{}),
		rebuildCh: make(chan string, 256),
	}
}

// SetFlushHook installs a callback invoked after every completed flush.
func (m *Manager) SetFlushHook(hook func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFlush = hook
}

// State reports the lifecycle state for a conversation.
func (m *Manager) State(key Key) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[key]; ok {
		return s
	}
	return StateActive
}

// AppendTurn writes one turn to the RAM and persistent tiers, assigning the
// next sequence number. The first turn this process sees for a conversation
// also upserts its conversation row, so turns always have a parent to hang
// off. Crossing the RAM cap triggers a Silent Flush.
func (m *Manager) AppendTurn(ctx context.Context, key Key, memberID string, turn Turn) (Turn, error) {
	m.mu.Lock()
	if m.states[key] == StateErased {
		m.mu.Unlock()
		return Turn{}, ErrErased
	}
	seq, seeded := m.nextSeq[key]
	if !seeded {
		seq = m.seedSequence(ctx, key)
	}
	turn.TenantID = key.TenantID
	turn.ConversationID = key.ConversationID
	turn.Sequence = seq
	m.nextSeq[key] = seq + 1
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	m.states[key] = StateActive
	m.mu.Unlock()

	if !seeded {
		rec := ConversationRecord{
			TenantID:       key.TenantID,
			ExternalUserID: memberID,
			ConversationID: key.ConversationID,
			Channel:        turn.Channel,
			MemberID:       memberID,
			LastActiveAt:   turn.CreatedAt,
		}
		if err := m.persist.UpsertConversation(ctx, rec); err != nil {
			m.mu.Lock()
			delete(m.nextSeq, key)
			m.mu.Unlock()
			return Turn{}, fmt.Errorf("persistent tier: %w", err)
		}
	}

	if err := m.persist.SaveTurn(ctx, turn); err != nil {
		return Turn{}, fmt.Errorf("persistent tier: %w", err)
	}
	count := m.ram.Append(key, turn)

	m.mu.Lock()
	switch {
	case count >= m.ramCap:
		m.states[key] = StateCompacting
		m.mu.Unlock()
		if err := m.Flush(ctx, key, memberID); err != nil {
			return turn, fmt.Errorf("silent flush: %w", err)
		}
	case count*10 >= m.ramCap*8:
		m.states[key] = StateCompacting
		m.mu.Unlock()
	default:
		m.mu.Unlock()
	}

	return turn, nil
}

// Context returns the rolling summary and the current RAM window.
func (m *Manager) Context(key Key) (summary string, window []Turn, err error) {
	if m.State(key) == StateErased {
		return "", nil, ErrErased
	}
	return m.ram.Summary(key), m.ram.Window(key), nil
}

// Flush extracts facts from the full RAM window into the knowledge tier,
// prunes RAM to summary plus the last turns, and schedules a graph rebuild.
// Extraction is idempotent: repeating it on the same window adds nothing.
func (m *Manager) Flush(ctx context.Context, key Key, memberID string) error {
	if m.State(key) == StateErased {
		return ErrErased
	}
	window := m.ram.Window(key)
	if len(window) == 0 {
		return nil
	}

	if memberID != "" {
		facts, err := m.extractor.Extract(ctx, memberID, window)
		if err != nil {
			return fmt.Errorf("extract facts: %w", err)
		}
		if _, err := m.knowledge.Append(memberID, facts); err != nil {
			return fmt.Errorf("knowledge tier: %w", err)
		}
	}

	summary, err := m.extractor.Summarize(ctx, window)
	if err != nil {
		return fmt.Errorf("summarize window: %w", err)
	}
	m.ram.Prune(key, summary, flushKeepTail)

	m.mu.Lock()
	if m.states[key] != StateErased {
		m.states[key] = StateFlushed
	}
	if memberID != "" {
		m.members[memberID] = struct{}{}
	}
	hook := m.onFlush
	m.mu.Unlock()

	if memberID != "" {
		m.scheduleRebuild(memberID)
	}
	if hook != nil {
		hook()
	}
	return nil
}

// Erase removes the identity from all four tiers. It either completes fully
// or returns an error; the caller must retry the same request, and no state
// is marked erased until every tier confirmed removal.
func (m *Manager) Erase(ctx context.Context, key Key, memberID string) error {
	if err := m.persist.DeleteConversation(ctx, key); err != nil {
		return fmt.Errorf("persistent tier: %w", err)
	}
	if memberID != "" {
		if err := m.knowledge.DeleteMember(memberID); err != nil {
			return fmt.Errorf("knowledge tier: %w", err)
		}
		m.graph.RemoveMember(memberID)
	}
	m.ram.Delete(key)

	m.mu.Lock()
	m.states[key] = StateErased
	m.erasedAt[key] = time.Now().UTC()
	delete(m.nextSeq, key)
	if memberID != "" {
		delete(m.members, memberID)
	}
	m.mu.Unlock()
	return nil
}

// OverrideAudits lists persisted ghost-mode overrides for a conversation,
// up to limit entries.
func (m *Manager) OverrideAudits(ctx context.Context, key Key, limit int) ([]OverrideAudit, error) {
	audits, err := m.persist.ListOverrideAudits(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("persistent tier: %w", err)
	}
	return audits, nil
}

// Facts exposes committed knowledge-tier facts for a member.
func (m *Manager) Facts(memberID string) ([]Fact, error) {
	return m.knowledge.Facts(memberID)
}

// GraphSnapshot returns the member's rebuilt relationship subgraph.
func (m *Manager) GraphSnapshot(memberID string) MemberGraph {
	return m.graph.Snapshot(memberID)
}

// RebuildGraph synchronously rebuilds one member's subgraph from committed
// facts. The nightly job and the flush scheduler both funnel through here.
func (m *Manager) RebuildGraph(memberID string) error {
	facts, err := m.knowledge.Facts(memberID)
	if err != nil {
		return fmt.Errorf("read facts: %w", err)
	}
	m.graph.RebuildMember(memberID, facts)
	return nil
}

// RunGraphSync consumes scheduled rebuilds and runs a periodic full sync.
// It only reads committed facts and never holds manager locks while
// rebuilding, so conversation workers are never blocked.
func (m *Manager) RunGraphSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case memberID := <-m.rebuildCh:
			if err := m.RebuildGraph(memberID); err != nil {
				log.Printf("graph rebuild for %s failed: %v", memberID, err)
			}
		case <-ticker.C:
			m.pruneErased(time.Now().UTC())
			for _, memberID := range m.knownMembers() {
				if err := m.RebuildGraph(memberID); err != nil {
					log.Printf("graph sync for %s failed: %v", memberID, err)
				}
			}
		}
	}
}

func (m *Manager) scheduleRebuild(memberID string) {
	select {
	case m.rebuildCh <- memberID:
	default:
		// Queue full; the nightly sync will catch up.
	}
}

// pruneErased drops erased-conversation tombstones older than the retention
// window so churning identities don't grow the state map without bound.
func (m *Manager) pruneErased(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, at := range m.erasedAt {
		if now.Sub(at) >= erasedRetention {
			delete(m.erasedAt, key)
			delete(m.states, key)
		}
	}
}

func (m *Manager) knownMembers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.members))
	for id := range m.members {
		out = append(out, id)
	}
	return out
}

// seedSequence resumes numbering after a restart from the persistent tier.
// Caller holds m.mu.
func (m *Manager) seedSequence(ctx context.Context, key Key) int {
	last, err := m.persist.RecentTurns(ctx, key, 1)
	if err != nil || len(last) == 0 {
		return 1
	}
	return last[len(last)-1].Sequence + 1
}
