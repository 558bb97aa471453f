package memory

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// KnowledgeTier stores extracted facts as one append-only JSONL file per
// member identity. Full-file deletion is the erasure primitive.
type KnowledgeTier struct {
	mu  sync.Mutex
	dir string
}

func NewKnowledgeTier(dir string) (*KnowledgeTier, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("knowledge dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create knowledge dir: %w", err)
	}
	return &KnowledgeTier{dir: dir}, nil
}

// Append writes facts for a member, skipping any whose content hash is
// already present. Re-running extraction on the same window is a no-op.
func (k *KnowledgeTier) Append(memberID string, facts []Fact) (added int, err error) {
	if len(facts) == 0 {
		return 0, nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	existing, err := k.readLocked(memberID)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, f := range existing {
		seen[f.Hash] = struct{}{}
	}

	f, err := os.OpenFile(k.path(memberID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open knowledge file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, fact := range facts {
		if fact.Hash == "" {
			fact.Hash = fact.ContentHash()
		}
		if _, dup := seen[fact.Hash]; dup {
			continue
		}
		if fact.CreatedAt.IsZero() {
			fact.CreatedAt = time.Now().UTC()
		}
		fact.MemberID = memberID
		if err := enc.Encode(fact); err != nil {
			return added, fmt.Errorf("append fact: %w", err)
		}
		seen[fact.Hash] = struct{}{}
		added++
	}
	return added, nil
}

// Facts returns all committed facts for a member in append order.
func (k *KnowledgeTier) Facts(memberID string) ([]Fact, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.readLocked(memberID)
}

// DeleteMember removes the member's knowledge file entirely.
func (k *KnowledgeTier) DeleteMember(memberID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	err := os.Remove(k.path(memberID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete knowledge file: %w", err)
	}
	return nil
}

func (k *KnowledgeTier) readLocked(memberID string) ([]Fact, error) {
	f, err := os.Open(k.path(memberID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open knowledge file: %w", err)
	}
	defer f.Close()

	var facts []Fact
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var fact Fact
		if err := json.Unmarshal([]byte(line), &fact); err != nil {
			return nil, fmt.Errorf("decode fact line: %w", err)
		}
		facts = append(facts, fact)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan knowledge file: %w", err)
	}
	return facts, nil
}

func (k *KnowledgeTier) path(memberID string) string {
	return filepath.Join(k.dir, sanitizeMemberID(memberID)+".jsonl")
}

func sanitizeMemberID(memberID string) string {
	var b strings.Builder
	for _, r := range memberID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
