package intent

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

// classifySystemPrompt is fixed and never user-overridable. User text is only
// ever sent in the user field, so embedded instructions cannot reach the
// system role.
const classifySystemPrompt = "Classify the member message into exactly one intent label: booking, sales, health, crowd, smalltalk. Reply as JSON {label, confidence}."

const httpClassifyMaxBody = 1 << 16

// HTTPClassifier calls an external classification capability.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

func NewHTTPClassifier(url string) *HTTPClassifier {
	return &HTTPClassifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

type classifyRequest struct {
	System  string   `json:"system"`
	Text    string   `json:"text"`
	Context []string `json:"context,omitempty"`
}

type classifyResponse struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, text string, recentContext []string) (Result, error) {
	payload, err := json.Marshal(classifyRequest{
		System:  classifySystemPrompt,
		Text:    text,
		Context: recentContext,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classify call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if reliability.IsRetryableHTTPStatus(resp.StatusCode) {
			return Result{}, fmt.Errorf("classify call returned retryable status %d", resp.StatusCode)
		}
		return Result{}, fmt.Errorf("classify call returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, httpClassifyMaxBody))
	if err != nil {
		return Result{}, fmt.Errorf("read classify response: %w", err)
	}
	var out classifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Result{}, fmt.Errorf("decode classify response: %w", err)
	}
	if out.Label == "" {
		return Result{}, fmt.Errorf("classify response missing label")
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}

	return Result{Label: out.Label, Confidence: out.Confidence, Source: SourceModel}, nil
}
