package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/tilinna/clock"

	"github.com/atlassian/loadrig"
)

// Durations are recorded into the histogram at microsecond granularity; an
// hour comfortably covers any single operation this runtime drives.
const (
	histogramMin = 1
	histogramMax = int64(time.Hour / time.Microsecond)
)

// Timer tracks operation durations.  The StartTimer/StopTimer pair serves
// synchronous drivers which time each operation in place; Record serves
// asynchronous completion listeners which compute the duration themselves.
// Safe for concurrent use.
type Timer struct {
	clck clock.Clock

	mu      sync.Mutex
	hist    *hdrhistogram.Histogram
	last    time.Duration
	opStart time.Time
}

var _ loadrig.TimeTracker = (*Timer)(nil)

func NewTimer(clck clock.Clock) *Timer {
	return &Timer{
		clck: clck,
		hist: hdrhistogram.New(histogramMin, histogramMax, 3),
	}
}

func (t *Timer) StartTracker() {}

func (t *Timer) StopTracker() {}

func (t *Timer) StartTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opStart = t.clck.Now()
}

func (t *Timer) StopTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(t.clck.Now().Sub(t.opStart))
}

func (t *Timer) Record(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.record(d)
}

func (t *Timer) record(d time.Duration) {
	t.last = d
	us := int64(d / time.Microsecond)
	if us < histogramMin {
		us = histogramMin
	} else if us > histogramMax {
		us = histogramMax
	}
	_ = t.hist.RecordValue(us)
}

// LastDuration returns the most recently recorded duration.
func (t *Timer) LastDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Max returns the largest recorded duration.
func (t *Timer) Max() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.hist.Max()) * time.Microsecond
}

// Mean returns the mean recorded duration.
func (t *Timer) Mean() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.hist.Mean()) * time.Microsecond
}

// Percentile returns the duration at quantile q, where q is in (0, 100].
func (t *Timer) Percentile(q float64) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.hist.ValueAtQuantile(q)) * time.Microsecond
}

// TotalCount returns the number of recorded durations.
func (t *Timer) TotalCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hist.TotalCount()
}
