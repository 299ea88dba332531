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
	"github.com/atlassian/loadrig/pkg/template"
)

// TwoPhaseConfig configures a create-then-remove job: phase one generates
// and creates every record in the configured range, then, once every
// worker has finished creating, phase two removes them all.  The rate
// budget and pacing apply to both phases.
type TwoPhaseConfig struct {
	Config

	// PhaseTwoExecutor performs the removal operations.
	PhaseTwoExecutor loadrig.Executor
	// PhaseTwoPrepare builds the removal request for a record number.
	PhaseTwoPrepare func(recordNumber int64, rnd *rand.Rand) (*loadrig.Request, error)
	// SettleDelay is how long to wait between the two phases.
	SettleDelay time.Duration
}

// TwoPhaseDriver runs a two-phase job.  All workers finish phase one
// before any worker starts phase two; the last worker to finish phase one
// performs the transition (settle delay plus record range rewind) exactly
// once.
type TwoPhaseDriver struct {
	cfg       TwoPhaseConfig
	barrier   *ratelimit.FixedRateBarrier
	allocator *RecordAllocator

	mu       sync.Mutex
	phaseOne []*loadrig.TrackerSet
	phaseTwo []*loadrig.TrackerSet
}

// NewTwoPhase validates cfg and builds a TwoPhaseDriver.
func NewTwoPhase(cfg TwoPhaseConfig) (*TwoPhaseDriver, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Template == nil {
		return nil, fmt.Errorf("driver: a two-phase job requires a template")
	}
	if cfg.PhaseTwoExecutor == nil {
		return nil, fmt.Errorf("driver: a two-phase job requires a phase-two executor")
	}
	if cfg.PhaseTwoPrepare == nil {
		return nil, fmt.Errorf("driver: a two-phase job requires a phase-two request builder")
	}
	return &TwoPhaseDriver{
		cfg:       cfg,
		barrier:   ratelimit.NewFixedRateBarrier(cfg.RateInterval, cfg.MaxRate),
		allocator: NewRecordAllocator(cfg.FirstRecordNumber, cfg.LastRecordNumber),
	}, nil
}

// PhaseOneTrackers returns the per-worker tracker sets for the creation
// phase.  Run publishes both phases' sets before dispatching the first
// operation, so it is safe to poll them while Run executes.
func (d *TwoPhaseDriver) PhaseOneTrackers() []*loadrig.TrackerSet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phaseOne
}

// PhaseTwoTrackers returns the per-worker tracker sets for the removal
// phase.
func (d *TwoPhaseDriver) PhaseTwoTrackers() []*loadrig.TrackerSet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phaseTwo
}

// Run executes both phases and returns when every worker has finished or
// the context is canceled.
func (d *TwoPhaseDriver) Run(ctx context.Context) error {
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

	rendezvous := NewRendezvous(d.cfg.Workers, func(ctx context.Context) {
		if d.cfg.SettleDelay > 0 {
			tmr := clck.NewTimer(d.cfg.SettleDelay)
			select {
			case <-tmr.C:
			case <-ctx.Done():
				tmr.Stop()
			}
		}
		d.allocator.Reset()
	})

	phaseOne := make([]*loadrig.TrackerSet, d.cfg.Workers)
	phaseTwo := make([]*loadrig.TrackerSet, d.cfg.Workers)
	for i := 0; i < d.cfg.Workers; i++ {
		phaseOne[i] = d.cfg.NewTrackers(clck)
		phaseTwo[i] = d.cfg.NewTrackers(clck)
	}
	d.mu.Lock()
	d.phaseOne = phaseOne
	d.phaseTwo = phaseTwo
	d.mu.Unlock()

	var wg wait.Group
	for i := 0; i < d.cfg.Workers; i++ {
		i := i
		workerSeed := parent.Int63()
		one := phaseOne[i]
		two := phaseTwo[i]
		wg.StartWithContext(ctx, func(ctx context.Context) {
			d.runWorker(ctx, i, workerSeed, one, two, jobStop, rendezvous)
		})
	}
	wg.Wait()
	return nil
}

func (d *TwoPhaseDriver) runWorker(ctx context.Context, id int, seed int64, one, two *loadrig.TrackerSet, jobStop time.Time, rendezvous *Rendezvous) {
	clck := clock.FromContext(ctx)
	logger := d.cfg.Logger.WithField("worker", id)
	rnd := rand.New(rand.NewSource(seed))
	start := clck.Now()
	window := NewWindow(start, d.cfg.WarmUp, d.cfg.CoolDown, jobStop, one)
	pacer := ratelimit.NewPacer(d.cfg.TimeBetweenRequests)

	d.runCreatePhase(ctx, logger, rnd, one, window, pacer)
	window.Finish()

	last, ok := rendezvous.Arrive(ctx)
	if !ok {
		return
	}
	if last {
		logger.Debug("Phase transition: all workers finished creating")
	}

	// The removal phase gets its own window so the phase-two collection
	// time covers only phase two.  Any warm-up not consumed by phase one
	// carries over.
	now := clck.Now()
	remainingWarmUp := d.cfg.WarmUp - now.Sub(start)
	if remainingWarmUp < 0 {
		remainingWarmUp = 0
	}
	windowTwo := NewWindow(now, remainingWarmUp, d.cfg.CoolDown, jobStop, two)
	defer windowTwo.Finish()

	d.runRemovePhase(ctx, logger, rnd, two, windowTwo, pacer)
}

func (d *TwoPhaseDriver) runCreatePhase(ctx context.Context, logger logrus.FieldLogger, rnd *rand.Rand, trackers *loadrig.TrackerSet, window *Window, pacer *ratelimit.Pacer) {
	clck := clock.FromContext(ctx)
	for ctx.Err() == nil {
		if d.barrier.Await(ctx) {
			continue
		}
		collecting := window.Update(clck.Now())
		pacer.Start(ctx)

		n, ok := d.allocator.Next()
		if !ok {
			return
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
			pacer.SleepRemaining(ctx)
			continue
		}
		req := &loadrig.Request{Record: rec}
		if d.cfg.Prepare != nil {
			req, err = d.cfg.Prepare(rec, rnd)
			if err != nil {
				logger.WithError(err).Warn("Request preparation failed")
				if collecting {
					trackers.ResultCodes.Increment(loadrig.ResultClientError.String())
				}
				pacer.SleepRemaining(ctx)
				continue
			}
		}

		d.execute(d.cfg.Executor, ctx, req, collecting, trackers)
		pacer.SleepRemaining(ctx)
	}
}

func (d *TwoPhaseDriver) runRemovePhase(ctx context.Context, logger logrus.FieldLogger, rnd *rand.Rand, trackers *loadrig.TrackerSet, window *Window, pacer *ratelimit.Pacer) {
	clck := clock.FromContext(ctx)
	for ctx.Err() == nil {
		if d.barrier.Await(ctx) {
			continue
		}
		collecting := window.Update(clck.Now())
		pacer.Start(ctx)

		n, ok := d.allocator.Next()
		if !ok {
			return
		}
		req, err := d.cfg.PhaseTwoPrepare(n, rnd)
		if err != nil {
			logger.WithError(err).Warn("Removal request preparation failed")
			if collecting {
				trackers.ResultCodes.Increment(loadrig.ResultClientError.String())
			}
			pacer.SleepRemaining(ctx)
			continue
		}

		d.execute(d.cfg.PhaseTwoExecutor, ctx, req, collecting, trackers)
		pacer.SleepRemaining(ctx)
	}
}

func (d *TwoPhaseDriver) execute(executor loadrig.Executor, ctx context.Context, req *loadrig.Request, collecting bool, trackers *loadrig.TrackerSet) {
	if collecting {
		trackers.Duration.StartTimer()
	}
	opErr := executor.Execute(ctx, req)
	if collecting {
		trackers.Duration.StopTimer()
		trackers.Completed.Increment()
		trackers.ResultCodes.Increment(loadrig.CodeOf(opErr).String())
		if d.cfg.ResponseTimeThreshold > 0 && trackers.Duration.LastDuration() > d.cfg.ResponseTimeThreshold {
			trackers.ExceedingThreshold.Increment()
		}
	}
}
