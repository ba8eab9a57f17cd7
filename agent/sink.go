package agent

import (
	"context"
	"time"
)

// Sink receives user-visible prose.
type Sink interface {
	// Stream receives the prose of the turn in progress. It is called at
	// most once per flush interval and only with prose that changed.
	Stream(ctx context.Context, depth int, prose string)
	// Emit receives the complete prose of a finished turn, including empty
	// prose.
	Emit(ctx context.Context, depth int, prose string)
}

// Discard is a Sink that ignores everything.
type Discard struct{}

// Stream implements Sink.
func (Discard) Stream(context.Context, int, string) {}

// Emit implements Sink.
func (Discard) Emit(context.Context, int, string) {}

// SinkFuncs adapts plain functions to a Sink. Nil fields are skipped.
type SinkFuncs struct {
	OnStream func(ctx context.Context, depth int, prose string)
	OnEmit   func(ctx context.Context, depth int, prose string)
}

// Stream implements Sink.
func (s SinkFuncs) Stream(ctx context.Context, depth int, prose string) {
	if s.OnStream != nil {
		s.OnStream(ctx, depth, prose)
	}
}

// Emit implements Sink.
func (s SinkFuncs) Emit(ctx context.Context, depth int, prose string) {
	if s.OnEmit != nil {
		s.OnEmit(ctx, depth, prose)
	}
}

// throttle decides when buffered prose may be flushed.
type throttle struct {
	interval time.Duration
	now      func() time.Time
	last     time.Time
	sent     string
}

func newThrottle(interval time.Duration, now func() time.Time) *throttle {
	return &throttle{interval: interval, now: now, last: now()}
}

// due reports whether the interval has passed since the last flush check
// that passed.
func (t *throttle) due() bool {
	now := t.now()
	if now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

// changed reports whether prose differs from what was last sent, and
// records it as sent.
func (t *throttle) changed(prose string) bool {
	if prose == "" || prose == t.sent {
		return false
	}
	t.sent = prose
	return true
}
