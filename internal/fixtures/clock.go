package fixtures

import (
	"context"
	"time"

	"github.com/tilinna/clock"
)

// NewMockClockContext attaches a mock clock starting at start to a fresh
// context derived from ctx, returning both.  Components under test read
// the clock with clock.FromContext, so advancing the mock drives their
// timers deterministically.
func NewMockClockContext(ctx context.Context, start time.Time) (context.Context, *clock.Mock) {
	mck := clock.NewMock(start)
	return clock.Context(ctx, mck), mck
}

// NewAdvancingClock attaches a virtual clock to a context which advances
// at full speed (not wall speed), and a cancel function to stop it.  The
// clock also stops if the context is canceled.  Useful for driving a whole
// job run in a test without waiting out warm-up and cool-down windows.
func NewAdvancingClock(ctx context.Context) (context.Context, func()) {
	mck := clock.NewMock(time.Unix(1, 0))
	ctx = clock.Context(ctx, mck)
	ch := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
				return
			case <-ctx.Done():
				return
			default:
				mck.AddNext()
			}
		}
	}()
	return ctx, func() {
		close(ch)
	}
}

// NextStep advances the supplied mock clock until it moves, or until ctx is
// canceled (which typically means the test timed out in wall time).  Use it
// when the goroutine that owns the next timer may not have armed it yet.
func NextStep(ctx context.Context, mck *clock.Mock) {
	for _, d := mck.AddNext(); d == 0 && ctx.Err() == nil; _, d = mck.AddNext() {
		time.Sleep(1) // Allows the system to actually idle, runtime.Gosched() does not.
	}
}
