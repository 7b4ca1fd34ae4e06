package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/trailmarks/gamification-backend/pkg/config"
	"github.com/trailmarks/gamification-backend/pkg/errors"
)

func TestBackoffDelaySequence(t *testing.T) {
	base := time.Second
	limit := 30 * time.Second
	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		16000 * time.Millisecond,
		30000 * time.Millisecond,
		30000 * time.Millisecond,
	}
	for attempt, expected := range want {
		if got := backoffDelay(base, limit, attempt); got != expected {
			t.Fatalf("attempt %d delay = %v, want %v", attempt, got, expected)
		}
	}
}

func TestConnectionReconnectsThenFails(t *testing.T) {
	cfg := config.RealtimeConfig{
		BackoffBase: time.Millisecond,
		BackoffCap:  4 * time.Millisecond,
		MaxAttempts: 3,
	}

	calls := 0
	conn, err := NewConnection("test", cfg, func(ctx context.Context) error {
		calls++
		return errors.New(errors.CodeDependency, "stream broke")
	}, nil)
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}

	var delays []time.Duration
	conn.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	err = conn.Run(context.Background())
	if err == nil {
		t.Fatal("expected error after attempts exhausted")
	}
	if appErr := errors.As(err); appErr == nil || appErr.Code() != errors.CodeRetriesExhausted {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.State() != StateFailed {
		t.Fatalf("state = %s, want %s", conn.State(), StateFailed)
	}
	// MaxAttempts reconnects plus the initial connect.
	if calls != cfg.MaxAttempts+1 {
		t.Fatalf("receive called %d times, want %d", calls, cfg.MaxAttempts+1)
	}
	wantDelays := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}
	if len(delays) != len(wantDelays) {
		t.Fatalf("delays = %v, want %v", delays, wantDelays)
	}
	for i, d := range wantDelays {
		if delays[i] != d {
			t.Fatalf("delay %d = %v, want %v", i, delays[i], d)
		}
	}
}

func TestConnectionStaysFailedUntilReset(t *testing.T) {
	cfg := config.RealtimeConfig{BackoffBase: time.Millisecond, BackoffCap: time.Millisecond, MaxAttempts: 1}
	conn, err := NewConnection("test", cfg, func(ctx context.Context) error {
		return errors.New(errors.CodeDependency, "stream broke")
	}, nil)
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	conn.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	if err := conn.Run(context.Background()); err == nil {
		t.Fatal("expected failure")
	}
	if conn.State() != StateFailed {
		t.Fatalf("state = %s, want %s", conn.State(), StateFailed)
	}

	// A failed connection refuses to run again without an explicit reset.
	if err := conn.Run(context.Background()); err == nil {
		t.Fatal("expected illegal transition out of failed")
	}

	if err := conn.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if conn.State() != StateDisconnected {
		t.Fatalf("state after reset = %s", conn.State())
	}
}

func TestConnectionStopsOnContextCancel(t *testing.T) {
	cfg := config.RealtimeConfig{BackoffBase: time.Millisecond, BackoffCap: time.Millisecond, MaxAttempts: 5}
	ctx, cancel := context.WithCancel(context.Background())

	conn, err := NewConnection("test", cfg, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx) }()

	for i := 0; i < 100 && conn.State() != StateConnected; i++ {
		time.Sleep(time.Millisecond)
	}
	if conn.State() != StateConnected {
		t.Fatalf("never reached connected, state = %s", conn.State())
	}
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
	if conn.State() != StateDisconnected {
		t.Fatalf("state after cancel = %s", conn.State())
	}
}

func TestConnectionEpochAdvancesPerConnect(t *testing.T) {
	cfg := config.RealtimeConfig{BackoffBase: time.Millisecond, BackoffCap: time.Millisecond, MaxAttempts: 2}
	calls := 0
	conn, err := NewConnection("test", cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New(errors.CodeDependency, "stream broke")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	conn.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_ = conn.Run(context.Background())
	if conn.Epoch() != 3 {
		t.Fatalf("epoch = %d, want 3", conn.Epoch())
	}
}
