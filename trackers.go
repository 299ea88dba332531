package loadrig

import "time"

// The tracker interfaces are the statistics capability consumed by the
// drivers.  StartTracker/StopTracker bracket the collection window; the
// drivers call them when the warm-up period ends and when the cool-down
// period begins, so a tracker's elapsed time covers only the measured
// portion of the run.  Implementations must be safe for concurrent use by
// the async completion listeners.

// IncrementalTracker counts occurrences of a single kind of event.
type IncrementalTracker interface {
	StartTracker()
	StopTracker()
	Increment()
	Count() uint64
}

// CategoricalTracker counts occurrences bucketed by a string label, used
// for result code distributions.
type CategoricalTracker interface {
	StartTracker()
	StopTracker()
	Increment(label string)
	Counts() map[string]uint64
}

// TimeTracker records operation durations.  Synchronous drivers use the
// StartTimer/StopTimer pair around each operation; asynchronous completion
// listeners use Record because start and completion happen on different
// goroutines.  LastDuration reports the most recently recorded duration.
type TimeTracker interface {
	StartTracker()
	StopTracker()
	StartTimer()
	StopTimer()
	Record(d time.Duration)
	LastDuration() time.Duration
}

// TrackerSet bundles the trackers a driver maintains for one worker or one
// connection: operations completed, result code distribution, operation
// duration, and the count of operations exceeding the configured response
// time threshold.
type TrackerSet struct {
	Completed          IncrementalTracker
	ResultCodes        CategoricalTracker
	Duration           TimeTracker
	ExceedingThreshold IncrementalTracker
}

// StartAll starts every tracker in the set.
func (ts *TrackerSet) StartAll() {
	ts.Completed.StartTracker()
	ts.ResultCodes.StartTracker()
	ts.Duration.StartTracker()
	ts.ExceedingThreshold.StartTracker()
}

// StopAll stops every tracker in the set.
func (ts *TrackerSet) StopAll() {
	ts.Completed.StopTracker()
	ts.ResultCodes.StopTracker()
	ts.Duration.StopTracker()
	ts.ExceedingThreshold.StopTracker()
}
