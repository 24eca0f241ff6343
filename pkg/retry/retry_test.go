package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() Policy {
	return Policy{
		Base:        time.Millisecond,
		Cap:         4 * time.Millisecond,
		MaxAttempts: 3,
		RetryOn:     map[Kind]bool{KindTransient: true, KindRateLimit: true},
	}
}

func TestDoRetriesTransient(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context) (Kind, error) {
		attempts++
		if attempts < 3 {
			return KindTransient, errors.New("flaky")
		}
		return 0, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context) (Kind, error) {
		attempts++
		return KindPermanent, errors.New("404")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on permanent)", attempts)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context) (Kind, error) {
		attempts++
		return KindTransient, errors.New("down")
	})
	if err == nil {
		t.Fatal("expected final error")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDoHonorsRetryAfter(t *testing.T) {
	attempts := 0
	start := time.Now()
	hint := 30 * time.Millisecond
	err := Do(context.Background(), fastPolicy(), func(context.Context) (Kind, error) {
		attempts++
		if attempts == 1 {
			return KindRateLimit, &RateLimitError{Err: errors.New("429"), RetryAfter: hint}
		}
		return 0, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < hint {
		t.Errorf("elapsed %v, want at least the Retry-After hint %v", elapsed, hint)
	}
}

func TestDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fastPolicy(), func(context.Context) (Kind, error) {
		return KindTransient, errors.New("x")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDelayCapped(t *testing.T) {
	p := Policy{Base: time.Second, Cap: 2 * time.Second, MaxAttempts: 10}
	for i := 0; i < 8; i++ {
		if d := p.Delay(i); d > 3*time.Second {
			t.Errorf("Delay(%d) = %v exceeds cap+jitter", i, d)
		}
	}
}
