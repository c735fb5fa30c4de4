package models

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// RetryAgent retries a flaky provider a bounded number of times with a fixed
// backoff between attempts. Failures surface to the caller with the attempt
// count attached; there is no silent substitution of fallback text.
type RetryAgent struct {
	Agent    Agent
	Attempts int
	Backoff  time.Duration
}

// NewRetryAgent wraps inner with the given retry policy.
func NewRetryAgent(inner Agent, attempts int, backoff time.Duration) *RetryAgent {
	if attempts <= 0 {
		attempts = 3
	}
	return &RetryAgent{Agent: inner, Attempts: attempts, Backoff: backoff}
}

func (r *RetryAgent) Generate(ctx context.Context, req Request) (string, error) {
	var lastErr error
	made := 0
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		text, err := r.Agent.Generate(ctx, req)
		made = attempt
		if err == nil {
			return text, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if attempt < r.Attempts {
			log.Printf("llm attempt %d/%d failed: %v", attempt, r.Attempts, err)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(r.Backoff):
			}
		}
	}
	return "", fmt.Errorf("llm failed after %d attempts: %w", made, lastErr)
}
