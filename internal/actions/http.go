package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DamienDrash/arni-sub002/internal/reliability"
)

const httpExecuteMaxBody = 1 << 16

// HTTPExecutor calls the studio's action endpoint. Transient failures are
// retried in-process with exponential backoff before the error surfaces to
// the dispatcher.
type HTTPExecutor struct {
	url    string
	client *http.Client

	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
}

func NewHTTPExecutor(url string) *HTTPExecutor {
	return &HTTPExecutor{
		url:         url,
		client:      &http.Client{Timeout: 8 * time.Second},
		maxAttempts: 3,
		backoffBase: 200 * time.Millisecond,
		backoffCap:  2 * time.Second,
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, action Action) (Result, error) {
	payload, err := json.Marshal(action)
	if err != nil {
		return Result{}, &Failure{Code: action.Type, Retryable: false, Err: fmt.Errorf("encode action: %w", err)}
	}

	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := reliability.ExponentialBackoff(attempt-1, e.backoffBase, e.backoffCap)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Result{}, &Failure{Code: action.Type, Retryable: true, Err: ctx.Err()}
			case <-timer.C:
			}
		}

		result, err := e.attempt(ctx, action, payload)
		if err == nil {
			return result, nil
		}
		if !Retryable(err) {
			return Result{}, err
		}
		lastErr = err
	}
	return Result{}, lastErr
}

func (e *HTTPExecutor) attempt(ctx context.Context, action Action, payload []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, &Failure{Code: action.Type, Retryable: false, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		// Network failures are always worth retrying.
		return Result{}, &Failure{Code: action.Type, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &Failure{
			Code:      action.Type,
			Retryable: !reliability.IsFatalHTTPStatus(resp.StatusCode),
			Err:       fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, httpExecuteMaxBody))
	if err != nil {
		return Result{}, &Failure{Code: action.Type, Retryable: true, Err: fmt.Errorf("read response: %w", err)}
	}
	var out Result
	if err := json.Unmarshal(body, &out); err != nil {
		return Result{}, &Failure{Code: action.Type, Retryable: false, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Status == "" {
		out.Status = "ok"
	}
	return out, nil
}
