package memory

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/DamienDrash/arni-sub002/internal/policy"
)

// Extractor turns a RAM window into atomic facts and a rolling summary.
// Implementations must be deterministic for the same window so that
// re-extraction stays idempotent.
type Extractor interface {
	Extract(ctx context.Context, memberID string, window []Turn) ([]Fact, error)
	Summarize(ctx context.Context, window []Turn) (string, error)
}

type factRule struct {
	pattern   *regexp.Regexp
	relation  string
	entity    string
	statement string
}

var factRules = []factRule{
	{regexp.MustCompile(`(?i)\bknie(?:verletzung|schmerzen)?|knee (?:injury|pain)\b`), "HAS_INJURY", "knee", "has knee injury"},
	{regexp.MustCompile(`(?i)\br(?:ü|ue)cken(?:schmerzen)?|back pain\b`), "HAS_INJURY", "back", "has back pain"},
	{regexp.MustCompile(`(?i)\bschulter(?:verletzung|schmerzen)|shoulder (?:injury|pain)\b`), "HAS_INJURY", "shoulder", "has shoulder injury"},
	{regexp.MustCompile(`(?i)\byoga\b`), "INTERESTED_IN", "yoga", "interested in yoga"},
	{regexp.MustCompile(`(?i)\bspinning|cycling\b`), "INTERESTED_IN", "spinning", "interested in spinning"},
	{regexp.MustCompile(`(?i)\bkrafttraining|strength training\b`), "INTERESTED_IN", "strength-training", "interested in strength training"},
	{regexp.MustCompile(`(?i)\babnehmen|lose weight|weight loss\b`), "HAS_GOAL", "weight-loss", "goal is weight loss"},
	{regexp.MustCompile(`(?i)\bmuskelaufbau|build muscle\b`), "HAS_GOAL", "muscle-gain", "goal is muscle gain"},
	{regexp.MustCompile(`(?i)\bvegan\b`), "HAS_DIET", "vegan", "follows vegan diet"},
	{regexp.MustCompile(`(?i)\bvegetarisch|vegetarian\b`), "HAS_DIET", "vegetarian", "follows vegetarian diet"},
	{regexp.MustCompile(`(?i)\bschwanger|pregnant\b`), "HAS_CONDITION", "pregnancy", "is pregnant"},
	{regexp.MustCompile(`(?i)\bdiabet`), "HAS_CONDITION", "diabetes", "has diabetes"},
}

// RuleExtractor derives facts from fixed keyword rules over user turns.
// Statements are canned, so no raw message text can reach the knowledge tier.
type RuleExtractor struct{}

func NewRuleExtractor() *RuleExtractor { return &RuleExtractor{} }

func (e *RuleExtractor) Extract(_ context.Context, memberID string, window []Turn) ([]Fact, error) {
	var facts []Fact
	seen := make(map[string]struct{})
	for _, turn := range window {
		if turn.Role != RoleUser {
			continue
		}
		redacted, _ := policy.RedactPII(turn.Text)
		for _, rule := range factRules {
			if !rule.pattern.MatchString(redacted) {
				continue
			}
			f := Fact{
				MemberID:  memberID,
				Statement: rule.statement,
				Relation:  rule.relation,
				Entity:    rule.entity,
			}
			f.Hash = f.ContentHash()
			if _, dup := seen[f.Hash]; dup {
				continue
			}
			seen[f.Hash] = struct{}{}
			facts = append(facts, f)
		}
	}
	return facts, nil
}

func (e *RuleExtractor) Summarize(_ context.Context, window []Turn) (string, error) {
	if len(window) == 0 {
		return "", nil
	}

	intents := make([]string, 0, 4)
	seen := make(map[string]struct{})
	userTurns := 0
	for _, turn := range window {
		if turn.Role == RoleUser {
			userTurns++
		}
		label := strings.TrimSpace(turn.IntentLabel)
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		intents = append(intents, label)
	}

	if len(intents) == 0 {
		return fmt.Sprintf("Conversation with %d user messages.", userTurns), nil
	}
	return fmt.Sprintf("Conversation with %d user messages covering: %s.", userTurns, strings.Join(intents, ", ")), nil
}

// MockExtractor returns fixed facts for tests.
type MockExtractor struct {
	FactsOut   []Fact
	SummaryOut string
	Err        error
	Calls      int
}

func (m *MockExtractor) Extract(_ context.Context, memberID string, _ []Turn) ([]Fact, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]Fact, len(m.FactsOut))
	copy(out, m.FactsOut)
	for i := range out {
		out[i].MemberID = memberID
		if out[i].Hash == "" {
			out[i].Hash = out[i].ContentHash()
		}
	}
	return out, nil
}

func (m *MockExtractor) Summarize(_ context.Context, _ []Turn) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return m.SummaryOut, nil
}
