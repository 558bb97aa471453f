package actions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newRetryTestExecutor(url string) *HTTPExecutor {
	e := NewHTTPExecutor(url)
	e.backoffBase = time.Millisecond
	e.backoffCap = 5 * time.Millisecond
	return e
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","data":{"slot":"Di 18:00"}}`))
	}))
	defer srv.Close()

	exec := newRetryTestExecutor(srv.URL)
	result, err := exec.Execute(context.Background(), Action{Type: TypeBookCourse, ConversationID: "c1"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Status != "ok" || result.Data["slot"] != "Di 18:00" {
		t.Fatalf("result = %+v", result)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("requests = %d, want 3", got)
	}
}

func TestExecuteDoesNotRetryFatalStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	exec := newRetryTestExecutor(srv.URL)
	_, err := exec.Execute(context.Background(), Action{Type: TypeCancelBooking, ConversationID: "c1"})
	if err == nil {
		t.Fatalf("expected an error for fatal status")
	}
	if Retryable(err) {
		t.Fatalf("fatal status reported as retryable: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("requests = %d, want 1", got)
	}
}

func TestExecuteSurfacesRetryableAfterExhaustedAttempts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	exec := newRetryTestExecutor(srv.URL)
	_, err := exec.Execute(context.Background(), Action{Type: TypeCancelMembership, ConversationID: "c1"})
	if err == nil {
		t.Fatalf("expected an error after exhausted attempts")
	}
	if !Retryable(err) {
		t.Fatalf("exhausted transient failure must stay retryable: %v", err)
	}
	if got := hits.Load(); got != int32(exec.maxAttempts) {
		t.Fatalf("requests = %d, want %d", got, exec.maxAttempts)
	}
}
