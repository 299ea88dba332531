package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/loadrig/internal/fixtures"
)

func TestBarrierDisabledWhenRateNotPositive(t *testing.T) {
	t.Parallel()
	assert.Nil(t, NewFixedRateBarrier(time.Second, 0))
	assert.Nil(t, NewFixedRateBarrier(time.Second, -5))
	assert.Nil(t, NewFixedRateBarrier(0, 10))

	// a nil barrier admits callers without blocking
	var b *FixedRateBarrier
	assert.False(t, b.Await(context.Background()))
}

func TestBarrierGrantsUpToRateWithinInterval(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx, mck := fixtures.NewMockClockContext(ctx, time.Unix(100, 0))

	b := NewFixedRateBarrier(time.Second, 3)
	for i := 0; i < 3; i++ {
		require.False(t, b.Await(ctx))
	}

	// fourth permit must wait for the next window
	granted := make(chan bool, 1)
	go func() {
		granted <- b.Await(ctx)
	}()
	select {
	case <-granted:
		t.Fatal("permit granted before the interval rolled over")
	case <-time.After(50 * time.Millisecond):
	}

	fixtures.NextStep(ctx, mck)
	select {
	case shutdown := <-granted:
		assert.False(t, shutdown)
	case <-time.After(5 * time.Second):
		t.Fatal("permit not granted after the interval rolled over")
	}
}

func TestBarrierResetsEachInterval(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx, mck := fixtures.NewMockClockContext(ctx, time.Unix(100, 0))

	b := NewFixedRateBarrier(time.Second, 2)
	for interval := 0; interval < 3; interval++ {
		require.False(t, b.Await(ctx))
		require.False(t, b.Await(ctx))
		mck.Add(time.Second)
	}
}

func TestBarrierSkipsMissedIntervals(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx, mck := fixtures.NewMockClockContext(ctx, time.Unix(100, 0))

	b := NewFixedRateBarrier(time.Second, 1)
	require.False(t, b.Await(ctx))

	// a long gap must not bank permits from the skipped windows
	mck.Add(2500 * time.Millisecond)
	require.False(t, b.Await(ctx))

	granted := make(chan bool, 1)
	go func() {
		granted <- b.Await(ctx)
	}()
	select {
	case <-granted:
		t.Fatal("extra permit granted within the same interval")
	case <-time.After(50 * time.Millisecond):
	}
	fixtures.NextStep(ctx, mck)
	assert.False(t, <-granted)
}

func TestBarrierAwaitReportsCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	ctx, _ = fixtures.NewMockClockContext(ctx, time.Unix(100, 0))

	b := NewFixedRateBarrier(time.Second, 1)
	require.False(t, b.Await(ctx))

	shutdown := make(chan bool, 1)
	go func() {
		shutdown <- b.Await(ctx)
	}()
	cancel()
	select {
	case woken := <-shutdown:
		assert.True(t, woken)
	case <-time.After(5 * time.Second):
		t.Fatal("Await did not observe cancellation")
	}

	// once canceled every Await reports shutdown immediately
	assert.True(t, b.Await(ctx))
}

func TestPacerSleepsOnlyTheRemainder(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx, mck := fixtures.NewMockClockContext(ctx, time.Unix(100, 0))

	p := NewPacer(100 * time.Millisecond)
	p.Start(ctx)

	// the operation itself consumed 40ms
	mck.Add(40 * time.Millisecond)

	done := make(chan time.Time, 1)
	go func() {
		p.SleepRemaining(ctx)
		done <- mck.Now()
	}()
	fixtures.NextStep(ctx, mck)
	select {
	case woke := <-done:
		assert.Equal(t, time.Unix(100, 0).Add(100*time.Millisecond), woke)
	case <-time.After(5 * time.Second):
		t.Fatal("pacer did not wake")
	}
}

func TestPacerSkipsSleepWhenDeadlinePassed(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx, mck := fixtures.NewMockClockContext(ctx, time.Unix(100, 0))

	p := NewPacer(50 * time.Millisecond)
	p.Start(ctx)
	mck.Add(80 * time.Millisecond)

	// returns without arming a timer; would hang under the mock clock otherwise
	p.SleepRemaining(ctx)
	assert.Equal(t, time.Unix(100, 0).Add(80*time.Millisecond), mck.Now())
}

func TestPacerNil(t *testing.T) {
	t.Parallel()
	var p *Pacer
	p.Start(context.Background())
	p.SleepRemaining(context.Background())
}
