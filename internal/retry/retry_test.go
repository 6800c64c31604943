package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBackoffIsExponentialAndCapped(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestSequenceExhaustsAttempts(t *testing.T) {
	seq := Default().Start()
	var delays []time.Duration
	for seq.Next() {
		d, again := seq.Fail(errBoom, true)
		if !again {
			break
		}
		delays = append(delays, d)
	}

	if seq.Attempt() != 3 {
		t.Errorf("expected 3 attempts, got %d", seq.Attempt())
	}
	if seq.Phase() != Failed {
		t.Errorf("expected Failed, got %v", seq.Phase())
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Errorf("unexpected delays: %v", delays)
	}
	if !errors.Is(seq.Err(), errBoom) {
		t.Errorf("Err() should wrap last error, got %v", seq.Err())
	}
	if seq.Next() {
		t.Error("Next must return false after a terminal phase")
	}
}

func TestSequenceStopsOnNonRetryable(t *testing.T) {
	seq := Default().Start()
	seq.Next()
	if _, again := seq.Fail(errBoom, false); again {
		t.Error("non-retryable failure must not allow another attempt")
	}
	if seq.Attempt() != 1 {
		t.Errorf("expected 1 attempt, got %d", seq.Attempt())
	}
}

func TestSequenceSucceedsAfterRetry(t *testing.T) {
	seq := Default().Start()
	calls := 0
	for seq.Next() {
		calls++
		if calls < 2 {
			seq.Fail(errBoom, true)
			continue
		}
		seq.Succeed()
	}
	if seq.Phase() != Succeeded {
		t.Errorf("expected Succeeded, got %v", seq.Phase())
	}
	if seq.Err() != nil {
		t.Errorf("expected nil Err, got %v", seq.Err())
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestFailAfterCapsDelay(t *testing.T) {
	seq := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Second}.Start()
	seq.Next()
	d, again := seq.FailAfter(errBoom, time.Minute)
	if !again || d != 10*time.Second {
		t.Errorf("FailAfter = (%v, %v), want (10s, true)", d, again)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Wait did not return promptly on cancelled context")
	}
}
