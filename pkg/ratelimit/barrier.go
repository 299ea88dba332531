package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/tilinna/clock"
)

// FixedRateBarrier grants at most permitsPerInterval permits within any
// single interval window.  The window starts on first use and rolls over in
// whole interval steps, so a burst of callers blocked at the end of one
// window is released into the next.  Safe for concurrent use by all the
// workers of a job.
//
// The barrier reads its clock from the context, so tests drive it with a
// mock clock.
type FixedRateBarrier struct {
	mu                 sync.Mutex
	interval           time.Duration
	permitsPerInterval int
	intervalStart      time.Time
	granted            int
	started            bool
}

// NewFixedRateBarrier returns a barrier enforcing permitsPerInterval
// permits per interval, or nil when permitsPerInterval is not positive
// (rate limiting disabled; a nil barrier admits every caller immediately).
func NewFixedRateBarrier(interval time.Duration, permitsPerInterval int) *FixedRateBarrier {
	if permitsPerInterval <= 0 || interval <= 0 {
		return nil
	}
	return &FixedRateBarrier{
		interval:           interval,
		permitsPerInterval: permitsPerInterval,
	}
}

// Await blocks until a permit is granted under the rate budget or until ctx
// is canceled.  It returns true only when the wait ended because of
// cancellation; the caller must then re-check its own stop condition
// instead of performing the gated operation.
func (b *FixedRateBarrier) Await(ctx context.Context) bool {
	if b == nil {
		return false
	}
	clck := clock.FromContext(ctx)
	for {
		if ctx.Err() != nil {
			return true
		}
		b.mu.Lock()
		now := clck.Now()
		if !b.started {
			b.started = true
			b.intervalStart = now
		} else if elapsed := now.Sub(b.intervalStart); elapsed >= b.interval {
			periods := elapsed / b.interval
			b.intervalStart = b.intervalStart.Add(periods * b.interval)
			b.granted = 0
		}
		if b.granted < b.permitsPerInterval {
			b.granted++
			b.mu.Unlock()
			return false
		}
		wait := b.intervalStart.Add(b.interval).Sub(now)
		b.mu.Unlock()

		tmr := clck.NewTimer(wait)
		select {
		case <-tmr.C:
		case <-ctx.Done():
			tmr.Stop()
			return true
		}
	}
}
