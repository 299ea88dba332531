package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
	"golang.org/x/time/rate"

	"github.com/atlassian/loadrig"
	"github.com/atlassian/loadrig/pkg/driver"
	"github.com/atlassian/loadrig/pkg/stats"
)

// Config is the immutable configuration for a replay driver.
type Config struct {
	Logger   logrus.FieldLogger
	Executor loadrig.Executor

	// Requests is the decoded capture, in capture order.
	Requests []CapturedRequest

	// PreserveTiming replays with the capture's inter-record deltas,
	// scaled by TimingMultiplier (which defaults to 1.0).  When it is
	// false every record after the first waits FixedDelay instead.
	PreserveTiming   bool
	TimingMultiplier float64
	FixedDelay       time.Duration

	// MaxRecordsPerSecond is an optional throughput ceiling applied on top
	// of the capture timing.  Zero means no ceiling.
	MaxRecordsPerSecond float64

	// Passes is how many times each worker replays the capture.  Zero
	// means replay until the duration elapses or the context is canceled.
	Passes int

	Workers               int
	Duration              time.Duration
	WarmUp                time.Duration
	CoolDown              time.Duration
	ResponseTimeThreshold time.Duration

	// NewTrackers builds the tracker set for one worker.  Defaults to
	// stats.NewTrackerSet.
	NewTrackers func(clck clock.Clock) *loadrig.TrackerSet
}

// Driver replays a capture with a fixed set of workers, each walking the
// capture independently at the configured timing.
type Driver struct {
	cfg     Config
	delays  []time.Duration
	limiter *rate.Limiter

	mu       sync.Mutex
	trackers []*loadrig.TrackerSet
}

// New validates cfg, precomputes the inter-record delays and builds a
// Driver.
func New(cfg Config) (*Driver, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("replay: an executor is required")
	}
	if len(cfg.Requests) == 0 {
		return nil, fmt.Errorf("replay: the capture contains no records")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.TimingMultiplier <= 0 {
		cfg.TimingMultiplier = 1.0
	}
	if cfg.NewTrackers == nil {
		cfg.NewTrackers = stats.NewTrackerSet
	}
	d := &Driver{
		cfg:    cfg,
		delays: computeDelays(cfg),
	}
	if cfg.MaxRecordsPerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.MaxRecordsPerSecond), 1)
	}
	return d, nil
}

// computeDelays turns the capture timestamps into per-record pre-dispatch
// delays.  The first record of a pass is never delayed.  Clock skew in the
// capture (a timestamp earlier than its predecessor) replays with no
// delay.
func computeDelays(cfg Config) []time.Duration {
	delays := make([]time.Duration, len(cfg.Requests))
	for i := 1; i < len(cfg.Requests); i++ {
		if !cfg.PreserveTiming {
			delays[i] = cfg.FixedDelay
			continue
		}
		delta := cfg.Requests[i].Timestamp.Sub(cfg.Requests[i-1].Timestamp)
		if delta <= 0 {
			continue
		}
		delays[i] = time.Duration(float64(delta) * cfg.TimingMultiplier)
	}
	return delays
}

// Delays exposes the computed pre-dispatch delay of each record.
func (d *Driver) Delays() []time.Duration {
	return d.delays
}

// Trackers returns the per-worker tracker sets.  Run publishes them before
// replaying the first record, so it is safe to poll this while Run
// executes; it returns nil before the first Run.  The counts are stable
// once Run returns.
func (d *Driver) Trackers() []*loadrig.TrackerSet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trackers
}

// Run replays the capture until every worker finishes its passes or the
// job ends.  Cancellation is a clean unwind, not an error.
func (d *Driver) Run(ctx context.Context) error {
	clck := clock.FromContext(ctx)
	if d.cfg.Duration > 0 {
		tctx, cancel := clck.TimeoutContext(ctx, d.cfg.Duration)
		defer cancel()
		ctx = tctx
	}
	var jobStop time.Time
	if deadline, ok := ctx.Deadline(); ok {
		jobStop = deadline
	}

	sets := make([]*loadrig.TrackerSet, d.cfg.Workers)
	for i := range sets {
		sets[i] = d.cfg.NewTrackers(clck)
	}
	d.mu.Lock()
	d.trackers = sets
	d.mu.Unlock()

	var wg wait.Group
	for i := 0; i < d.cfg.Workers; i++ {
		i := i
		ts := sets[i]
		wg.StartWithContext(ctx, func(ctx context.Context) {
			d.runWorker(ctx, i, ts, jobStop)
		})
	}
	wg.Wait()
	return nil
}

func (d *Driver) runWorker(ctx context.Context, id int, trackers *loadrig.TrackerSet, jobStop time.Time) {
	clck := clock.FromContext(ctx)
	window := driver.NewWindow(clck.Now(), d.cfg.WarmUp, d.cfg.CoolDown, jobStop, trackers)
	defer window.Finish()

	for pass := 0; ctx.Err() == nil && (d.cfg.Passes == 0 || pass < d.cfg.Passes); pass++ {
		for i, req := range d.cfg.Requests {
			if ctx.Err() != nil {
				return
			}
			if d.delays[i] > 0 {
				tmr := clck.NewTimer(d.delays[i])
				select {
				case <-tmr.C:
				case <-ctx.Done():
					tmr.Stop()
					return
				}
			}
			if d.limiter != nil {
				if err := d.limiter.Wait(ctx); err != nil {
					return
				}
			}
			collecting := window.Update(clck.Now())

			if collecting {
				trackers.Duration.StartTimer()
			}
			opErr := d.cfg.Executor.Execute(ctx, &loadrig.Request{Payload: req.Payload})
			if collecting {
				trackers.Duration.StopTimer()
				trackers.Completed.Increment()
				trackers.ResultCodes.Increment(loadrig.CodeOf(opErr).String())
				if d.cfg.ResponseTimeThreshold > 0 && trackers.Duration.LastDuration() > d.cfg.ResponseTimeThreshold {
					trackers.ExceedingThreshold.Increment()
				}
			}
		}
	}
}
