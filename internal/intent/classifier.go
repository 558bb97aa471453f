package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Known intent labels. The keyword fallback is restricted to exactly this set.
const (
	LabelBooking   = "booking"
	LabelSales     = "sales"
	LabelHealth    = "health"
	LabelCrowd     = "crowd"
	LabelSmalltalk = "smalltalk"
)

const (
	SourceModel           = "model"
	SourceKeywordFallback = "keyword-fallback"
)

// FallbackLabels is the restricted label set the keyword matcher resolves to.
var FallbackLabels = []string{LabelBooking, LabelSales, LabelHealth, LabelCrowd, LabelSmalltalk}

// Result is one classification outcome.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// Classifier maps a message to an intent label with a confidence score.
type Classifier interface {
	Classify(ctx context.Context, text string, recentContext []string) (Result, error)
}

// Config controls classifier construction.
type Config struct {
	Mode string
	URL  string
}

// NewClassifier builds the capability for the configured mode. "auto" prefers
// the external model with the keyword matcher as sticky fallback.
func NewClassifier(cfg Config) (Classifier, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.URL) != "" {
			return NewFailoverClassifier(NewHTTPClassifier(cfg.URL), NewKeywordClassifier()), nil
		}
		return NewKeywordClassifier(), nil
	case "http":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("classifier URL is required for http mode")
		}
		return NewHTTPClassifier(cfg.URL), nil
	case "keyword":
		return NewKeywordClassifier(), nil
	case "mock":
		return NewMockClassifier(), nil
	default:
		return nil, fmt.Errorf("unsupported classifier mode %q", cfg.Mode)
	}
}

// MockClassifier returns a fixed result for tests.
type MockClassifier struct {
	Result Result
	Err    error
	Calls  int
}

func NewMockClassifier() *MockClassifier {
	return &MockClassifier{Result: Result{Label: LabelSmalltalk, Confidence: 0.95, Source: SourceModel}}
}

func (m *MockClassifier) Classify(ctx context.Context, _ string, _ []string) (Result, error) {
	m.Calls++
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}
	if m.Err != nil {
		return Result{}, m.Err
	}
	return m.Result, nil
}
