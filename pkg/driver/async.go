package driver

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/atlassian/loadrig"
	"github.com/atlassian/loadrig/pkg/ratelimit"
	"github.com/atlassian/loadrig/pkg/template"
)

// AsyncConfig configures an asynchronous driver: a single dispatch loop
// spreading operations over a set of channels, with a bound on the number
// of operations in flight at once.
type AsyncConfig struct {
	Config

	// Channels are the concurrent transports operations are spread over.
	Channels []loadrig.Channel
	// SelectionMode picks the channel for each dispatch.
	SelectionMode SelectionMode
	// MaxOutstanding bounds the operations in flight across all channels.
	// Zero uses DefaultMaxOutstanding.
	MaxOutstanding int
}

// AsyncDriver dispatches operations without waiting for their responses.
// One goroutine owns the dispatch loop; completions arrive on the channels'
// callbacks.  Durations are measured dispatch to completion, and an
// operation counts toward the statistics if collection was active when it
// was dispatched.
type AsyncDriver struct {
	cfg       AsyncConfig
	barrier   *ratelimit.FixedRateBarrier
	allocator *RecordAllocator
	selector  *Selector
	permits   chan struct{}

	mu       sync.Mutex
	trackers []*loadrig.TrackerSet
}

// NewAsync validates cfg and builds an AsyncDriver.
func NewAsync(cfg AsyncConfig) (*AsyncDriver, error) {
	cfg.applyDefaults()
	if len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("driver: an async job requires at least one channel")
	}
	if cfg.Template != nil && cfg.LastRecordNumber < cfg.FirstRecordNumber {
		return nil, fmt.Errorf("driver: last record number %d is before first record number %d", cfg.LastRecordNumber, cfg.FirstRecordNumber)
	}
	if cfg.MaxOutstanding <= 0 {
		cfg.MaxOutstanding = DefaultMaxOutstanding
	}
	d := &AsyncDriver{
		cfg:      cfg,
		barrier:  ratelimit.NewFixedRateBarrier(cfg.RateInterval, cfg.MaxRate),
		selector: NewSelector(cfg.SelectionMode, cfg.Channels),
		permits:  make(chan struct{}, cfg.MaxOutstanding),
	}
	if cfg.Template != nil {
		d.allocator = NewRecordAllocator(cfg.FirstRecordNumber, cfg.LastRecordNumber)
	}
	return d, nil
}

// Trackers returns one tracker set per channel.  Run publishes them before
// dispatching the first operation, so it is safe to poll this while Run
// executes; it returns nil before the first Run.  The counts are stable
// once Run returns and the in-flight operations drain.
func (d *AsyncDriver) Trackers() []*loadrig.TrackerSet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trackers
}

// Run dispatches operations until the job ends, then waits for the
// in-flight operations to complete.
func (d *AsyncDriver) Run(ctx context.Context) error {
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
	rnd := rand.New(rand.NewSource(seed))
	logger := d.cfg.Logger

	sets := make([]*loadrig.TrackerSet, len(d.cfg.Channels))
	for i := range sets {
		sets[i] = d.cfg.NewTrackers(clck)
	}
	d.mu.Lock()
	d.trackers = sets
	d.mu.Unlock()
	window := NewWindow(clck.Now(), d.cfg.WarmUp, d.cfg.CoolDown, jobStop, sets...)
	pacer := ratelimit.NewPacer(d.cfg.TimeBetweenRequests)
	for i := 0; i < d.cfg.MaxOutstanding; i++ {
		d.permits <- struct{}{}
	}

dispatchLoop:
	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case <-d.permits:
			if d.barrier.Await(ctx) {
				// Shutdown arrived while holding a permit.  Put it back so
				// the drain below still accounts for every slot.
				d.permits <- struct{}{}
				continue
			}
			collecting := window.Update(clck.Now())
			pacer.Start(ctx)
			slot := d.selector.Select()
			if !d.dispatch(ctx, clck, logger, rnd, slot, collecting) {
				d.permits <- struct{}{}
				break dispatchLoop
			}
			pacer.SleepRemaining(ctx)
		}
	}

	// Wait for the outstanding operations; every completion, and every
	// failed dispatch, returns its permit.
	for i := 0; i < d.cfg.MaxOutstanding; i++ {
		<-d.permits
	}
	window.Finish()
	return nil
}

// dispatch starts one operation on the channel at slot.  It returns false
// when the record range is exhausted and the job should stop.  The permit
// held by the caller is released by the completion callback, or here on a
// dispatch failure.
func (d *AsyncDriver) dispatch(ctx context.Context, clck clock.Clock, logger logrus.FieldLogger, rnd *rand.Rand, slot int, collecting bool) bool {
	trackers := d.trackers[slot]
	req := &loadrig.Request{}
	if d.allocator != nil {
		n, ok := d.allocator.Next()
		if !ok {
			return false
		}
		rec, err := d.cfg.Template.Expand(&template.GenerationContext{
			RecordNumber:   n,
			SequenceOffset: n - d.cfg.FirstRecordNumber,
			Rand:           rnd,
		})
		if err != nil {
			logger.WithError(err).Warn("Record generation failed")
			if collecting {
				trackers.ResultCodes.Increment(loadrig.ResultClientError.String())
			}
			d.permits <- struct{}{}
			return true
		}
		req.Record = rec
	}
	if d.cfg.Prepare != nil {
		var err error
		req, err = d.cfg.Prepare(req.Record, rnd)
		if err != nil {
			logger.WithError(err).Warn("Request preparation failed")
			if collecting {
				trackers.ResultCodes.Increment(loadrig.ResultClientError.String())
			}
			d.permits <- struct{}{}
			return true
		}
	}

	started := clck.Now()
	err := d.cfg.Channels[slot].StartOperation(ctx, req, func(opErr error) {
		if collecting {
			elapsed := clck.Now().Sub(started)
			trackers.Completed.Increment()
			trackers.ResultCodes.Increment(loadrig.CodeOf(opErr).String())
			trackers.Duration.Record(elapsed)
			if d.cfg.ResponseTimeThreshold > 0 && elapsed > d.cfg.ResponseTimeThreshold {
				trackers.ExceedingThreshold.Increment()
			}
		}
		d.permits <- struct{}{}
	})
	if err != nil {
		logger.WithError(err).Warn("Operation dispatch failed")
		if collecting {
			trackers.ResultCodes.Increment(loadrig.CodeOf(err).String())
		}
		d.permits <- struct{}{}
	}
	return true
}
