package circuit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig(name string) Config {
	return Config{
		Name:              name,
		OpenFor:           20 * time.Millisecond,
		MaxConsecFailures: 2,
		WindowSize:        10,
	}
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b := New(testConfig("t1"))
	boom := errors.New("boom")
	op := func(context.Context) error { return boom }

	for i := 0; i < 2; i++ {
		if err := b.Do(context.Background(), op, nil); !errors.Is(err, boom) {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	// Third call short-circuits.
	err := b.Do(context.Background(), func(context.Context) error {
		t.Error("op ran while open")
		return nil
	}, nil)
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
}

func TestFallbackRunsWhileOpen(t *testing.T) {
	b := New(testConfig("t2"))
	op := func(context.Context) error { return errors.New("down") }
	for i := 0; i < 2; i++ {
		b.Do(context.Background(), op, func(_ context.Context, cause error) error { return cause })
	}

	ran := false
	b.Do(context.Background(), op, func(_ context.Context, cause error) error {
		ran = errors.Is(cause, ErrOpen)
		return nil
	})
	if !ran {
		t.Error("fallback did not receive ErrOpen")
	}
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	b := New(testConfig("t3"))
	op := func(context.Context) error { return errors.New("down") }
	for i := 0; i < 2; i++ {
		b.Do(context.Background(), op, nil)
	}

	time.Sleep(30 * time.Millisecond) // past OpenFor

	if err := b.Do(context.Background(), func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("probe: %v", err)
	}
	// Closed again: ops run normally.
	if err := b.Do(context.Background(), func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("after close: %v", err)
	}
}

func TestOperationTimeoutApplied(t *testing.T) {
	cfg := testConfig("t4")
	cfg.OperationTimeout = 10 * time.Millisecond
	b := New(cfg)

	err := b.Do(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
