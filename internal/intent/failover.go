package intent

import (
	"context"
	"fmt"
	"sync/atomic"
)

// FailoverClassifier prefers the primary capability and switches to the
// fallback when the primary fails. Once the fallback succeeds it stays
// active until it fails, then the primary is retried. Failure-injection
// tests can force either path by making one side error.
type FailoverClassifier struct {
	primary        Classifier
	fallback       Classifier
	fallbackActive atomic.Bool
}

func NewFailoverClassifier(primary, fallback Classifier) *FailoverClassifier {
	return &FailoverClassifier{primary: primary, fallback: fallback}
}

func (c *FailoverClassifier) Classify(ctx context.Context, text string, recentContext []string) (Result, error) {
	if c.fallbackActive.Load() {
		res, fbErr := c.fallback.Classify(ctx, text, recentContext)
		if fbErr == nil {
			return res, nil
		}
		// Fallback failed after being active; try primary again.
		res, prErr := c.primary.Classify(ctx, text, recentContext)
		if prErr == nil {
			c.fallbackActive.Store(false)
			return res, nil
		}
		return Result{}, fmt.Errorf("classifier fallback failed: %v; classifier primary failed: %w", fbErr, prErr)
	}

	res, prErr := c.primary.Classify(ctx, text, recentContext)
	if prErr == nil {
		return res, nil
	}

	res, fbErr := c.fallback.Classify(ctx, text, recentContext)
	if fbErr != nil {
		return Result{}, fmt.Errorf("classifier primary failed: %v; classifier fallback failed: %w", prErr, fbErr)
	}
	c.fallbackActive.Store(true)
	return res, nil
}
