package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sentinel-ops/sentinel/internal/policy"
)

// RetryClient wraps a Client with the retry policy: rate limits,
// server errors and transport failures are retried with backoff,
// everything else fails immediately.
type RetryClient struct {
	Inner  Client
	Policy policy.RetryPolicy

	// sleep is replaceable for tests.
	sleep func(time.Duration)
}

func WithRetry(inner Client, p policy.RetryPolicy) *RetryClient {
	return &RetryClient{Inner: inner, Policy: p, sleep: time.Sleep}
}

func (c *RetryClient) Generate(ctx context.Context, messages []Message, systemPrompt string) (Response, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := c.Inner.Generate(ctx, messages, systemPrompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) || !c.Policy.ShouldRetry(attempt) {
			return Response{}, lastErr
		}
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		default:
		}
		// The system prompt identifies the calling agent, so concurrent
		// agents retrying the same outage spread out when the policy has
		// jitter enabled.
		c.sleep(c.Policy.DelayWithJitter(attempt, systemPrompt))
	}
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
