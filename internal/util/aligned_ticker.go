package util

import (
	"context"
	"time"

	"github.com/tilinna/clock"
)

// AlignedTicker fires on interval boundaries of the clock rather than
// relative to its creation time: with a 10s interval it ticks at :00, :10,
// :20 and so on, which keeps periodic status lines comparable across runs.
// The time sent on C is the rounded boundary, not the actual firing time.
// The clock is read from the supplied context, so a mock clock drives the
// ticker in tests.
type AlignedTicker struct {
	C        <-chan time.Time
	ch       chan time.Time
	stop     chan struct{}
	interval time.Duration
}

func NewAlignedTicker(ctx context.Context, interval time.Duration) *AlignedTicker {
	ch := make(chan time.Time, 1)
	at := &AlignedTicker{
		C:        ch,
		ch:       ch,
		stop:     make(chan struct{}),
		interval: interval,
	}
	go at.run(ctx)
	return at
}

func (at *AlignedTicker) run(ctx context.Context) {
	clck := clock.FromContext(ctx)
	now := clck.Now()
	boundary := now.Truncate(at.interval).Add(at.interval)

	tmr := clck.NewTimer(boundary.Sub(now))
	select {
	case <-tmr.C:
		if !at.send(boundary) {
			return
		}
	case <-at.stop:
		tmr.Stop()
		return
	case <-ctx.Done():
		tmr.Stop()
		return
	}

	tckr := clck.NewTicker(at.interval)
	defer tckr.Stop()
	for {
		select {
		case now := <-tckr.C:
			if !at.send(now.Truncate(at.interval)) {
				return
			}
		case <-at.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// send delivers a tick without blocking; a slow consumer misses ticks
// instead of delaying the ticker.
func (at *AlignedTicker) send(t time.Time) bool {
	select {
	case at.ch <- t:
		return true
	case <-at.stop:
		return false
	default:
		return true
	}
}

func (at *AlignedTicker) Stop() {
	close(at.stop)
}
