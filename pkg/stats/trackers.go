package stats

import (
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/atlassian/loadrig"
)

// NewTrackerSet builds a full tracker set backed by this package's
// implementations.  Drivers create one per worker (or per connection, for
// the async driver) so the hot path never contends across workers.
func NewTrackerSet(clck clock.Clock) *loadrig.TrackerSet {
	return &loadrig.TrackerSet{
		Completed:          NewIncremental(clck),
		ResultCodes:        NewCategorical(),
		Duration:           NewTimer(clck),
		ExceedingThreshold: NewIncremental(clck),
	}
}

// MergeCounts sums the per-label result code counts across tracker sets.
func MergeCounts(sets []*loadrig.TrackerSet) map[string]uint64 {
	merged := make(map[string]uint64)
	for _, ts := range sets {
		for label, n := range ts.ResultCodes.Counts() {
			merged[label] += n
		}
	}
	return merged
}

// TotalCompleted sums the completed operation counts across tracker sets.
func TotalCompleted(sets []*loadrig.TrackerSet) uint64 {
	var total uint64
	for _, ts := range sets {
		total += ts.Completed.Count()
	}
	return total
}

// TotalExceedingThreshold sums the threshold breach counts across tracker
// sets.
func TotalExceedingThreshold(sets []*loadrig.TrackerSet) uint64 {
	var total uint64
	for _, ts := range sets {
		total += ts.ExceedingThreshold.Count()
	}
	return total
}

// LogSummary writes a human readable summary of the collected statistics.
func LogSummary(logger logrus.FieldLogger, label string, sets []*loadrig.TrackerSet) {
	logger = logger.WithField("phase", label)
	logger.WithFields(logrus.Fields{
		"completed":           TotalCompleted(sets),
		"exceeding_threshold": TotalExceedingThreshold(sets),
	}).Info("Operations completed")

	merged := MergeCounts(sets)
	labels := make([]string, 0, len(merged))
	for l := range merged {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		logger.WithFields(logrus.Fields{
			"result_code": l,
			"count":       merged[l],
		}).Info("Result code")
	}

	for i, ts := range sets {
		timer, ok := ts.Duration.(*Timer)
		if !ok || timer.TotalCount() == 0 {
			continue
		}
		logger.WithFields(logrus.Fields{
			"worker": i,
			"mean":   timer.Mean(),
			"p99":    timer.Percentile(99),
			"max":    timer.Max(),
		}).Info("Operation latency")
	}
}
