package llm

import (
	"context"
	"testing"
	"time"

	"github.com/sentinel-ops/sentinel/internal/policy"
)

type flakyClient struct {
	failures int
	calls    int
	err      error
}

func (c *flakyClient) Generate(ctx context.Context, messages []Message, systemPrompt string) (Response, error) {
	c.calls++
	if c.calls <= c.failures {
		return Response{}, c.err
	}
	return Response{Content: "ok", TokensUsed: 1}, nil
}

func newTestRetry(inner Client) *RetryClient {
	rc := WithRetry(inner, policy.NewRetryPolicy())
	rc.sleep = func(time.Duration) {}
	return rc
}

func TestRetriesRateLimit(t *testing.T) {
	inner := &flakyClient{failures: 2, err: &APIError{Provider: "openai", StatusCode: 429, Message: "rate limited"}}
	resp, err := newTestRetry(inner).Generate(context.Background(), nil, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "ok" || inner.calls != 3 {
		t.Fatalf("content=%q calls=%d", resp.Content, inner.calls)
	}
}

func TestDoesNotRetryClientError(t *testing.T) {
	inner := &flakyClient{failures: 1, err: &APIError{Provider: "openai", StatusCode: 401, Message: "bad key"}}
	if _, err := newTestRetry(inner).Generate(context.Background(), nil, ""); err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Fatalf("calls = %d, want 1", inner.calls)
	}
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	inner := &flakyClient{failures: 100, err: &TransportError{Provider: "openai", Err: context.DeadlineExceeded}}
	rc := newTestRetry(inner)
	if _, err := rc.Generate(context.Background(), nil, ""); err == nil {
		t.Fatal("expected error")
	}
	// Initial attempt plus MaxRetries.
	if inner.calls != rc.Policy.MaxRetries+1 {
		t.Fatalf("calls = %d, want %d", inner.calls, rc.Policy.MaxRetries+1)
	}
}

func TestRetrySleepsWithJitterWhenEnabled(t *testing.T) {
	inner := &flakyClient{failures: 1, err: &APIError{Provider: "openai", StatusCode: 503, Message: "overloaded"}}
	p := policy.RetryPolicy{MaxRetries: 3, RetryDelay: time.Second, BackoffMultiplier: 2, Jitter: true}
	rc := WithRetry(inner, p)

	var slept []time.Duration
	rc.sleep = func(d time.Duration) { slept = append(slept, d) }

	system := "You are a triage agent."
	if _, err := rc.Generate(context.Background(), nil, system); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(slept) != 1 {
		t.Fatalf("slept %d times, want 1", len(slept))
	}
	if slept[0] != p.DelayWithJitter(0, system) {
		t.Fatalf("slept %v, want the jittered delay %v", slept[0], p.DelayWithJitter(0, system))
	}
	if slept[0] == p.Delay(0) {
		t.Fatalf("delay %v not jittered", slept[0])
	}
}

func TestDoesNotRetryMalformedResponse(t *testing.T) {
	inner := &flakyClient{failures: 5, err: &MalformedResponseError{Provider: "openai", Detail: "no choices"}}
	if _, err := newTestRetry(inner).Generate(context.Background(), nil, ""); err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Fatalf("calls = %d, want 1", inner.calls)
	}
}
