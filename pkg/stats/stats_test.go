package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tilinna/clock"

	"github.com/atlassian/loadrig"
)

func TestIncrementalCountAndRate(t *testing.T) {
	t.Parallel()
	mck := clock.NewMock(time.Unix(100, 0))
	inc := NewIncremental(mck)

	inc.StartTracker()
	for i := 0; i < 50; i++ {
		inc.Increment()
	}
	mck.Add(10 * time.Second)
	inc.StopTracker()
	inc.Increment() // after the window; still counted, not re-windowed

	assert.EqualValues(t, 51, inc.Count())
	assert.Equal(t, 10*time.Second, inc.CollectionTime())
	assert.InDelta(t, 5.1, inc.Rate(), 0.0001)
}

func TestIncrementalRateWhileRunning(t *testing.T) {
	t.Parallel()
	mck := clock.NewMock(time.Unix(100, 0))
	inc := NewIncremental(mck)

	assert.Zero(t, inc.Rate(), "no rate before the tracker starts")
	inc.StartTracker()
	inc.Increment()
	mck.Add(2 * time.Second)
	assert.InDelta(t, 0.5, inc.Rate(), 0.0001)
}

func TestCategoricalCounts(t *testing.T) {
	t.Parallel()
	cat := NewCategorical()
	cat.Increment("success")
	cat.Increment("success")
	cat.Increment("timeout")

	counts := cat.Counts()
	assert.Equal(t, map[string]uint64{"success": 2, "timeout": 1}, counts)

	// The snapshot is detached from the tracker.
	counts["success"] = 99
	assert.Equal(t, map[string]uint64{"success": 2, "timeout": 1}, cat.Counts())
}

func TestTimerStartStop(t *testing.T) {
	t.Parallel()
	mck := clock.NewMock(time.Unix(100, 0))
	tmr := NewTimer(mck)

	tmr.StartTimer()
	mck.Add(25 * time.Millisecond)
	tmr.StopTimer()

	assert.Equal(t, 25*time.Millisecond, tmr.LastDuration())
	assert.EqualValues(t, 1, tmr.TotalCount())
}

func TestTimerRecordAndQuantiles(t *testing.T) {
	t.Parallel()
	tmr := NewTimer(clock.NewMock(time.Unix(100, 0)))
	for i := 1; i <= 100; i++ {
		tmr.Record(time.Duration(i) * time.Millisecond)
	}

	assert.Equal(t, 100*time.Millisecond, tmr.LastDuration())
	assert.EqualValues(t, 100, tmr.TotalCount())
	assert.InDelta(t, float64(50*time.Millisecond), float64(tmr.Mean()), float64(time.Millisecond))
	assert.InDelta(t, float64(99*time.Millisecond), float64(tmr.Percentile(99)), float64(time.Millisecond))
	assert.InDelta(t, float64(100*time.Millisecond), float64(tmr.Max()), float64(time.Millisecond))
}

func TestTrackerSetAggregation(t *testing.T) {
	t.Parallel()
	mck := clock.NewMock(time.Unix(100, 0))
	sets := []*loadrig.TrackerSet{NewTrackerSet(mck), NewTrackerSet(mck)}

	sets[0].Completed.Increment()
	sets[0].Completed.Increment()
	sets[0].ResultCodes.Increment("success")
	sets[0].ResultCodes.Increment("timeout")
	sets[1].Completed.Increment()
	sets[1].ResultCodes.Increment("success")
	sets[1].ExceedingThreshold.Increment()

	assert.EqualValues(t, 3, TotalCompleted(sets))
	assert.EqualValues(t, 1, TotalExceedingThreshold(sets))
	assert.Equal(t, map[string]uint64{"success": 2, "timeout": 1}, MergeCounts(sets))
}

func TestTrackerSetStartStopAll(t *testing.T) {
	t.Parallel()
	mck := clock.NewMock(time.Unix(100, 0))
	ts := NewTrackerSet(mck)

	ts.StartAll()
	mck.Add(time.Second)
	ts.StopAll()

	inc, ok := ts.Completed.(*Incremental)
	require.True(t, ok)
	assert.Equal(t, time.Second, inc.CollectionTime())
}
