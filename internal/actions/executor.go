package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Action types the studio backend knows how to execute.
const (
	TypeBookCourse       = "book_course"
	TypeCancelBooking    = "cancel_booking"
	TypeChangePlan       = "change_plan"
	TypeCancelMembership = "cancel_membership"
	TypeVisionOccupancy  = "vision_occupancy"
)

// Action is one request against an external capability.
type Action struct {
	Type           string            `json:"type"`
	ConversationID string            `json:"conversation_id"`
	Params         map[string]string `json:"params,omitempty"`
}

// Result is the capability's reply.
type Result struct {
	Status string            `json:"status"`
	Data   map[string]string `json:"data,omitempty"`
}

// Failure wraps an execution error with its retry classification.
type Failure struct {
	Code      string
	Retryable bool
	Err       error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("action %s: %v", f.Code, f.Err)
	}
	return fmt.Sprintf("action %s", f.Code)
}

func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether the error permits re-running the same action.
// Unknown errors default to retryable; only an explicit fatal marking wins.
func Retryable(err error) bool {
	var f *Failure
	if errors.As(err, &f) {
		return f.Retryable
	}
	return err != nil
}

// Executor runs actions against external systems (booking API, billing
// retention, vision inference).
type Executor interface {
	Execute(ctx context.Context, action Action) (Result, error)
}

// Config controls executor construction.
type Config struct {
	Mode string
	URL  string
}

func NewExecutor(cfg Config) (Executor, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.URL) != "" {
			return NewHTTPExecutor(cfg.URL), nil
		}
		return NewMockExecutor(), nil
	case "http":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("executor URL is required for http mode")
		}
		return NewHTTPExecutor(cfg.URL), nil
	case "mock":
		return NewMockExecutor(), nil
	default:
		return nil, fmt.Errorf("unsupported executor mode %q", cfg.Mode)
	}
}

// MockExecutor records every call and returns a configurable outcome.
type MockExecutor struct {
	mu      sync.Mutex
	result  Result
	err     error
	actions []Action
}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{result: Result{Status: "ok"}}
}

func (m *MockExecutor) Execute(ctx context.Context, action Action) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
	if m.err != nil {
		return Result{}, m.err
	}
	return m.result, nil
}

func (m *MockExecutor) SetResult(res Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = res
}

func (m *MockExecutor) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockExecutor) Calls() []Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Action, len(m.actions))
	copy(out, m.actions)
	return out
}
