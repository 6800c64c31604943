// Package retry models a bounded retry-with-backoff sequence as an explicit
// state machine, so each HTTP collaborator can run its own isolated sequence:
//
//	seq := policy.Start()
//	for seq.Next() {
//	    resp, err := do()
//	    if err == nil {
//	        seq.Succeed()
//	        return resp, nil
//	    }
//	    delay, again := seq.Fail(err, isTransient(err))
//	    if !again {
//	        break
//	    }
//	    if err := retry.Wait(ctx, delay); err != nil {
//	        return nil, err
//	    }
//	}
//	return nil, seq.Err()
package retry

import (
	"context"
	"fmt"
	"time"
)

// Phase is the state of a Sequence.
type Phase int

const (
	Idle Phase = iota
	Running
	Waiting
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Waiting:
		return "waiting"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Policy bounds a retry sequence. Delays grow exponentially from BaseDelay
// and are capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Default is three attempts with 1s then 2s between them.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Backoff returns the delay after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Start begins a new sequence under p.
func (p Policy) Start() *Sequence {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	p.MaxAttempts = max
	return &Sequence{policy: p}
}

// Sequence tracks one operation's attempts. Not safe for concurrent use;
// concurrent operations each start their own.
type Sequence struct {
	policy  Policy
	attempt int
	phase   Phase
	lastErr error
}

// Next starts the next attempt. It returns false once the sequence reached
// a terminal phase.
func (s *Sequence) Next() bool {
	switch s.phase {
	case Succeeded, Failed:
		return false
	case Running:
		// Caller skipped Succeed/Fail; treat the previous attempt as spent.
		if s.attempt >= s.policy.MaxAttempts {
			s.phase = Failed
			return false
		}
	}
	s.attempt++
	s.phase = Running
	return true
}

// Succeed marks the current attempt as successful.
func (s *Sequence) Succeed() {
	s.phase = Succeeded
	s.lastErr = nil
}

// Fail records a failed attempt. It returns the delay before the next
// attempt and whether one is allowed.
func (s *Sequence) Fail(err error, retryable bool) (time.Duration, bool) {
	return s.fail(err, retryable, s.policy.Backoff(s.attempt))
}

// FailAfter is Fail with a server-provided delay (e.g. Retry-After),
// still capped by MaxDelay.
func (s *Sequence) FailAfter(err error, delay time.Duration) (time.Duration, bool) {
	if s.policy.MaxDelay > 0 && delay > s.policy.MaxDelay {
		delay = s.policy.MaxDelay
	}
	return s.fail(err, true, delay)
}

func (s *Sequence) fail(err error, retryable bool, delay time.Duration) (time.Duration, bool) {
	s.lastErr = err
	if !retryable || s.attempt >= s.policy.MaxAttempts {
		s.phase = Failed
		return 0, false
	}
	s.phase = Waiting
	return delay, true
}

// Attempt returns the number of attempts started so far.
func (s *Sequence) Attempt() int { return s.attempt }

// Phase returns the current phase.
func (s *Sequence) Phase() Phase { return s.phase }

// Err returns the terminal error, or nil unless the sequence failed.
func (s *Sequence) Err() error {
	if s.phase != Failed {
		return nil
	}
	return fmt.Errorf("after %d attempt(s): %w", s.attempt, s.lastErr)
}

// Wait sleeps for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
