// Package stats provides the in-process implementations of the tracker
// interfaces the drivers collect into: a plain event counter, a categorical
// counter for result code distributions, and an HDR-histogram-backed
// duration tracker.  External persistence of collected statistics is out of
// scope; these trackers are what the drivers, the command line summary and
// the tests consume.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tilinna/clock"

	"github.com/atlassian/loadrig"
)

// Incremental counts occurrences of a single kind of event.  StartTracker
// and StopTracker bracket the measured portion of the run so that Rate can
// relate the count to elapsed collection time.
type Incremental struct {
	count uint64 // atomic

	clck      clock.Clock
	mu        sync.Mutex
	startedAt time.Time
	stoppedAt time.Time
}

var _ loadrig.IncrementalTracker = (*Incremental)(nil)

func NewIncremental(clck clock.Clock) *Incremental {
	return &Incremental{clck: clck}
}

func (t *Incremental) StartTracker() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startedAt = t.clck.Now()
	t.stoppedAt = time.Time{}
}

func (t *Incremental) StopTracker() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stoppedAt = t.clck.Now()
}

func (t *Incremental) Increment() {
	atomic.AddUint64(&t.count, 1)
}

func (t *Incremental) Count() uint64 {
	return atomic.LoadUint64(&t.count)
}

// CollectionTime returns how long the tracker has been collecting: the time
// between StartTracker and StopTracker, or between StartTracker and now if
// the tracker is still running.
func (t *Incremental) CollectionTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt.IsZero() {
		return 0
	}
	if t.stoppedAt.IsZero() {
		return t.clck.Now().Sub(t.startedAt)
	}
	return t.stoppedAt.Sub(t.startedAt)
}

// Rate returns the count per second over the collection time.
func (t *Incremental) Rate() float64 {
	elapsed := t.CollectionTime()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.Count()) / elapsed.Seconds()
}
