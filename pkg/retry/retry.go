// Package retry provides a single reusable backoff policy shared by the
// fetcher and the extractor. One spec, two callers; tune in one place.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Kind classifies an error for retry decisions. Callers map their own error
// taxonomy onto these before consulting the policy.
type Kind int

const (
	KindTransient Kind = iota // timeouts, DNS, connection reset, 5xx
	KindRateLimit             // 429 with or without Retry-After
	KindPermanent             // 4xx other than 429, SSL mismatch, schema errors
)

// Policy describes exponential backoff with a cap.
type Policy struct {
	Base        time.Duration // first delay
	Cap         time.Duration // maximum delay
	MaxAttempts int           // total attempts including the first
	RetryOn     map[Kind]bool // which kinds are retryable
}

// Default returns the policy used across the pipeline: 3 attempts,
// 500ms base, 10s cap, retrying transient and rate-limit failures.
func Default() Policy {
	return Policy{
		Base:        500 * time.Millisecond,
		Cap:         10 * time.Second,
		MaxAttempts: 3,
		RetryOn:     map[Kind]bool{KindTransient: true, KindRateLimit: true},
	}
}

// Retryable reports whether the policy retries the given kind.
func (p Policy) Retryable(k Kind) bool { return p.RetryOn[k] }

// Delay returns the backoff before attempt n (0-based; Delay(0) is the wait
// after the first failure). Jittered +/-25% so synchronized workers spread.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Cap {
			d = p.Cap
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2+1)) - d/4
	return d + jitter
}

// Func is one attempt of the operation. It returns the error kind alongside
// the error so the loop can decide without re-classifying.
type Func func(ctx context.Context) (Kind, error)

// Do runs fn under the policy. A RetryAfter hint returned via the
// *RateLimitError wrapper overrides the computed delay for that attempt.
func Do(ctx context.Context, p Policy, fn Func) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		kind, err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !p.Retryable(kind) || attempt == p.MaxAttempts-1 {
			return err
		}
		delay := p.Delay(attempt)
		if rl, ok := err.(*RateLimitError); ok && rl.RetryAfter > 0 {
			delay = rl.RetryAfter
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// RateLimitError carries a server-provided Retry-After hint.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return "rate limited: " + e.Err.Error()
	}
	return "rate limited"
}

func (e *RateLimitError) Unwrap() error { return e.Err }
