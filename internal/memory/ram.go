package memory

import "sync"

// RAMTier holds the live working context of each conversation: an ordered
// window of turns plus the rolling summary produced by the last flush.
type RAMTier struct {
	mu        sync.RWMutex
	turns     map[Key][]Turn
	summaries map[Key]string
}

func NewRAMTier() *RAMTier {
	return &RAMTier{
		turns:     make(map[Key][]Turn),
		summaries: make(map[Key]string),
	}
}

func (r *RAMTier) Append(key Key, turn Turn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns[key] = append(r.turns[key], turn)
	return len(r.turns[key])
}

func (r *RAMTier) Window(key Key) []Turn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	arr := r.turns[key]
	out := make([]Turn, len(arr))
	copy(out, arr)
	return out
}

func (r *RAMTier) Summary(key Key) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summaries[key]
}

func (r *RAMTier) Count(key Key) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.turns[key])
}

// Prune replaces the window with its last keep turns and records the summary.
func (r *RAMTier) Prune(key Key, summary string, keep int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	arr := r.turns[key]
	if keep < 0 {
		keep = 0
	}
	if keep < len(arr) {
		tail := make([]Turn, keep)
		copy(tail, arr[len(arr)-keep:])
		r.turns[key] = tail
	}
	r.summaries[key] = summary
}

func (r *RAMTier) Delete(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.turns, key)
	delete(r.summaries, key)
}
