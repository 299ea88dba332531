package driver

import (
	"context"
	"sync"
)

// Rendezvous is the barrier between the phases of a two-phase job.  Workers
// call Arrive when they finish phase one; nobody proceeds until every
// worker has arrived.  The last worker to arrive runs the transition
// function exactly once, before any worker is released into phase two.
type Rendezvous struct {
	mu         sync.Mutex
	remaining  int
	transition func(ctx context.Context)
	released   chan struct{}
}

// NewRendezvous builds a rendezvous for n workers.  transition may be nil.
func NewRendezvous(n int, transition func(ctx context.Context)) *Rendezvous {
	return &Rendezvous{
		remaining:  n,
		transition: transition,
		released:   make(chan struct{}),
	}
}

// Arrive blocks until all n workers have arrived or ctx is canceled.
// last reports whether this caller was the one that ran the transition;
// ok is false when the wait ended because of cancellation, in which case
// the caller must unwind without starting phase two.
func (r *Rendezvous) Arrive(ctx context.Context) (last, ok bool) {
	r.mu.Lock()
	r.remaining--
	if r.remaining == 0 {
		r.mu.Unlock()
		if r.transition != nil {
			r.transition(ctx)
		}
		close(r.released)
		return true, ctx.Err() == nil
	}
	r.mu.Unlock()

	select {
	case <-r.released:
		return false, ctx.Err() == nil
	case <-ctx.Done():
		return false, false
	}
}
