package stats

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atlassian/loadrig"
	"github.com/atlassian/loadrig/internal/util"
)

// Reporter periodically logs job progress while a driver runs: operations
// completed in the last interval and overall.  Ticks are aligned to
// interval boundaries so lines from concurrent runs are comparable.
type Reporter struct {
	Logger   logrus.FieldLogger
	Interval time.Duration
	// Sets returns the current tracker sets.  Called on every tick; may
	// return nil before the driver has started.
	Sets func() []*loadrig.TrackerSet
}

// Run logs progress until ctx is canceled.  A non-positive interval
// disables reporting.
func (r *Reporter) Run(ctx context.Context) {
	if r.Interval <= 0 {
		return
	}
	tckr := util.NewAlignedTicker(ctx, r.Interval)
	defer tckr.Stop()

	var lastTotal uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-tckr.C:
			sets := r.Sets()
			if sets == nil {
				continue
			}
			total := TotalCompleted(sets)
			r.Logger.WithFields(logrus.Fields{
				"completed": total,
				"interval":  total - lastTotal,
			}).Info("Progress")
			lastTotal = total
		}
	}
}
