// Package driver contains the operation drivers: the loops that pull rate
// permits, generate payloads, dispatch operations against the target and
// classify the outcomes, between a configurable warm-up and cool-down.
package driver

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/atlassian/loadrig"
	"github.com/atlassian/loadrig/pkg/ratelimit"
	"github.com/atlassian/loadrig/pkg/stats"
	"github.com/atlassian/loadrig/pkg/template"
)

// Config is the immutable configuration for a synchronous driver.  It is
// built once, validated by New, and shared read-only by every worker.
type Config struct {
	Logger   logrus.FieldLogger
	Executor loadrig.Executor

	// Template, when set, generates a fresh record for every operation; the
	// record numbers are drawn from [FirstRecordNumber, LastRecordNumber].
	Template          *template.Template
	FirstRecordNumber int64
	LastRecordNumber  int64

	// Prepare builds the request for one operation.  rec is nil for jobs
	// without a template.  When Prepare is nil the record is passed through
	// as the request.
	Prepare func(rec *loadrig.Record, rnd *rand.Rand) (*loadrig.Request, error)

	Workers               int
	Duration              time.Duration // 0 = run until the context is canceled
	WarmUp                time.Duration
	CoolDown              time.Duration
	MaxRate               int           // permits per RateInterval, 0 = unlimited
	RateInterval          time.Duration // defaults to DefaultCollectionInterval
	TimeBetweenRequests   time.Duration
	ResponseTimeThreshold time.Duration
	Seed                  int64 // 0 = derive from the clock at Run time

	// NewTrackers builds the tracker set for one worker.  Defaults to
	// stats.NewTrackerSet.
	NewTrackers func(clck clock.Clock) *loadrig.TrackerSet
}

func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.RateInterval <= 0 {
		c.RateInterval = DefaultCollectionInterval
	}
	if c.NewTrackers == nil {
		c.NewTrackers = stats.NewTrackerSet
	}
}

func (c *Config) validate() error {
	if c.Executor == nil {
		return fmt.Errorf("driver: an executor is required")
	}
	if c.Template != nil && c.LastRecordNumber < c.FirstRecordNumber {
		return fmt.Errorf("driver: last record number %d is before first record number %d", c.LastRecordNumber, c.FirstRecordNumber)
	}
	return nil
}

// Driver is the synchronous operation driver: a fixed set of workers, each
// running the permit/dispatch/classify loop until the configured duration
// elapses, the record range is exhausted, or the context is canceled.
type Driver struct {
	cfg       Config
	barrier   *ratelimit.FixedRateBarrier
	allocator *RecordAllocator

	mu       sync.Mutex
	trackers []*loadrig.TrackerSet
}

// New validates cfg and builds a Driver.
func New(cfg Config) (*Driver, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	d := &Driver{
		cfg:     cfg,
		barrier: ratelimit.NewFixedRateBarrier(cfg.RateInterval, cfg.MaxRate),
	}
	if cfg.Template != nil {
		d.allocator = NewRecordAllocator(cfg.FirstRecordNumber, cfg.LastRecordNumber)
	}
	return d, nil
}

// Trackers returns the per-worker tracker sets.  Run publishes them before
// dispatching the first operation, so it is safe to poll this (for example
// from a progress reporter) while Run executes; it returns nil before the
// first Run.  The counts are stable once Run returns.
func (d *Driver) Trackers() []*loadrig.TrackerSet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trackers
}

// Run drives operations until the job ends.  Cancellation of ctx is the
// stop signal; it is a clean unwind, not an error.
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
	seed := d.cfg.Seed
	if seed == 0 {
		seed = clck.Now().UnixNano()
	}
	parent := rand.New(rand.NewSource(seed))

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
		workerSeed := parent.Int63()
		ts := sets[i]
		wg.StartWithContext(ctx, func(ctx context.Context) {
			d.runWorker(ctx, i, workerSeed, ts, jobStop)
		})
	}
	wg.Wait()
	return nil
}

func (d *Driver) runWorker(ctx context.Context, id int, seed int64, trackers *loadrig.TrackerSet, jobStop time.Time) {
	clck := clock.FromContext(ctx)
	logger := d.cfg.Logger.WithField("worker", id)
	rnd := rand.New(rand.NewSource(seed))
	window := NewWindow(clck.Now(), d.cfg.WarmUp, d.cfg.CoolDown, jobStop, trackers)
	defer window.Finish()
	pacer := ratelimit.NewPacer(d.cfg.TimeBetweenRequests)

	for ctx.Err() == nil {
		if d.barrier.Await(ctx) {
			continue
		}
		collecting := window.Update(clck.Now())
		pacer.Start(ctx)

		var rec *loadrig.Record
		if d.cfg.Template != nil {
			n, ok := d.allocator.Next()
			if !ok {
				return
			}
			generated, err := d.cfg.Template.Expand(&template.GenerationContext{
				RecordNumber:   n,
				SequenceOffset: n - d.cfg.FirstRecordNumber,
				Rand:           rnd,
			})
			if err != nil {
				logger.WithError(err).Warn("Record generation failed")
				if collecting {
					trackers.ResultCodes.Increment(loadrig.ResultClientError.String())
				}
				pacer.SleepRemaining(ctx)
				continue
			}
			rec = generated
		}

		req, err := d.prepare(rec, rnd)
		if err != nil {
			logger.WithError(err).Warn("Request preparation failed")
			if collecting {
				trackers.ResultCodes.Increment(loadrig.ResultClientError.String())
			}
			pacer.SleepRemaining(ctx)
			continue
		}

		if collecting {
			trackers.Duration.StartTimer()
		}
		opErr := d.cfg.Executor.Execute(ctx, req)
		if collecting {
			trackers.Duration.StopTimer()
			trackers.Completed.Increment()
			trackers.ResultCodes.Increment(loadrig.CodeOf(opErr).String())
			if d.cfg.ResponseTimeThreshold > 0 && trackers.Duration.LastDuration() > d.cfg.ResponseTimeThreshold {
				trackers.ExceedingThreshold.Increment()
			}
		}

		pacer.SleepRemaining(ctx)
	}
}

func (d *Driver) prepare(rec *loadrig.Record, rnd *rand.Rand) (*loadrig.Request, error) {
	if d.cfg.Prepare != nil {
		return d.cfg.Prepare(rec, rnd)
	}
	return &loadrig.Request{Record: rec}, nil
}
