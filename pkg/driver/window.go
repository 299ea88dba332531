package driver

import (
	"time"

	"github.com/atlassian/loadrig"
)

// Window gates statistics collection on the warm-up and cool-down
// periods.  It is polled once per loop iteration: collection begins when
// the warm-up period has elapsed and ends when the run is within cool-down
// of its stop deadline.  Each transition starts or stops the attached
// trackers exactly once, and once stopped the window never restarts.
//
// Each worker owns its own window; the boundary therefore jitters by up to
// one operation's duration per worker, which is acceptable for the
// second-granularity windows this runtime works with.
type Window struct {
	collecting bool
	done       bool
	startAt    time.Time
	stopAt     time.Time
	hasStop    bool
	trackers   []*loadrig.TrackerSet
}

// NewWindow builds a window relative to now.  jobStop is the job's stop
// deadline; when it is unknown (zero) or coolDown is zero, collection never
// stops early.  With a zero warm-up, collection starts immediately.
func NewWindow(now time.Time, warmUp, coolDown time.Duration, jobStop time.Time, trackers ...*loadrig.TrackerSet) *Window {
	w := &Window{trackers: trackers}
	if coolDown > 0 && !jobStop.IsZero() {
		w.stopAt = jobStop.Add(-coolDown)
		w.hasStop = true
	}
	if warmUp > 0 {
		w.startAt = now.Add(warmUp)
	} else {
		w.collecting = true
		w.startAll()
	}
	return w
}

// Update applies any due transition and reports whether statistics should
// be collected for an operation dispatched now.
func (w *Window) Update(now time.Time) bool {
	switch {
	case w.collecting && w.hasStop && !now.Before(w.stopAt):
		w.stopAll()
		w.collecting = false
		w.done = true
	case !w.collecting && !w.done && !now.Before(w.startAt):
		w.collecting = true
		w.startAll()
	}
	return w.collecting
}

// Finish stops the trackers if they are still collecting at the end of the
// run.
func (w *Window) Finish() {
	if w.collecting {
		w.stopAll()
		w.collecting = false
		w.done = true
	}
}

func (w *Window) startAll() {
	for _, ts := range w.trackers {
		ts.StartAll()
	}
}

func (w *Window) stopAll() {
	for _, ts := range w.trackers {
		ts.StopAll()
	}
}
