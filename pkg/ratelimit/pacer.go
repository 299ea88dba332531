package ratelimit

import (
	"context"
	"time"

	"github.com/tilinna/clock"
)

// Pacer enforces a minimum delay between consecutive requests issued by a
// single worker.  Start marks the beginning of an iteration and
// SleepRemaining sleeps for whatever part of the delay the iteration's own
// work did not already consume.  A Pacer is owned by one worker and is not
// safe for concurrent use.
type Pacer struct {
	delay    time.Duration
	deadline time.Time
}

// NewPacer returns a pacer with the given minimum inter-request delay, or
// nil when the delay is not positive (a nil pacer never sleeps).
func NewPacer(delay time.Duration) *Pacer {
	if delay <= 0 {
		return nil
	}
	return &Pacer{delay: delay}
}

// Start marks the start of the current iteration.
func (p *Pacer) Start(ctx context.Context) {
	if p == nil {
		return
	}
	p.deadline = clock.FromContext(ctx).Now().Add(p.delay)
}

// SleepRemaining sleeps until the iteration's deadline, or returns early if
// ctx is canceled.  If the iteration already took longer than the delay it
// returns immediately.
func (p *Pacer) SleepRemaining(ctx context.Context) {
	if p == nil {
		return
	}
	clck := clock.FromContext(ctx)
	remaining := p.deadline.Sub(clck.Now())
	if remaining <= 0 {
		return
	}
	tmr := clck.NewTimer(remaining)
	select {
	case <-tmr.C:
	case <-ctx.Done():
		tmr.Stop()
	}
}
