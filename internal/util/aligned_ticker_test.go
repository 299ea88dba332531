package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tilinna/clock"

	"github.com/atlassian/loadrig/internal/fixtures"
)

func expectTick(t *testing.T, ctx context.Context, ch <-chan time.Time, expected time.Time) {
	select {
	case <-ctx.Done():
		require.FailNow(t, "timed out waiting for tick")
	case now := <-ch:
		require.Equal(t, expected.UnixNano(), now.UnixNano())
	}
}

func TestAlignedTickerFiresOnBoundaries(t *testing.T) {
	clck := clock.NewMock(time.Unix(1, 0))
	ctx, cancel := context.WithTimeout(clock.Context(context.Background(), clck), 100*time.Millisecond)
	defer cancel()

	tckr := NewAlignedTicker(ctx, time.Second)
	defer tckr.Stop()

	fixtures.NextStep(ctx, clck)
	expectTick(t, ctx, tckr.C, time.Unix(2, 0))
	fixtures.NextStep(ctx, clck)
	expectTick(t, ctx, tckr.C, time.Unix(3, 0))
	fixtures.NextStep(ctx, clck)
	expectTick(t, ctx, tckr.C, time.Unix(4, 0))
}

func TestAlignedTickerAlignsFirstTick(t *testing.T) {
	// Starting mid-interval, the first tick lands on the next boundary.
	clck := clock.NewMock(time.Unix(10, int64(300*time.Millisecond)))
	ctx, cancel := context.WithTimeout(clock.Context(context.Background(), clck), 100*time.Millisecond)
	defer cancel()

	tckr := NewAlignedTicker(ctx, time.Second)
	defer tckr.Stop()

	fixtures.NextStep(ctx, clck)
	expectTick(t, ctx, tckr.C, time.Unix(11, 0))
}
