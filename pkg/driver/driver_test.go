package driver

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/loadrig"
	"github.com/atlassian/loadrig/internal/fixtures"
	"github.com/atlassian/loadrig/pkg/stats"
	"github.com/atlassian/loadrig/pkg/template"
)

// recordingExecutor remembers every executed request and optionally fails
// some of them.
type recordingExecutor struct {
	mu       sync.Mutex
	requests []*loadrig.Request
	fail     func(req *loadrig.Request) error
}

func (e *recordingExecutor) Execute(ctx context.Context, req *loadrig.Request) error {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	if e.fail != nil {
		return e.fail(req)
	}
	return nil
}

func (e *recordingExecutor) values(attr string) map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[string]int)
	for _, req := range e.requests {
		v, ok := req.Record.First(attr)
		if ok {
			seen[v]++
		}
	}
	return seen
}

func mustCompile(t *testing.T, text string) *template.Template {
	tmpl, err := template.CompileText(text)
	require.NoError(t, err)
	return tmpl
}

func TestDriverValidation(t *testing.T) {
	t.Parallel()
	_, err := New(Config{})
	assert.Error(t, err, "an executor is required")

	_, err = New(Config{
		Executor:          &recordingExecutor{},
		Template:          mustCompile(t, "uid: <entrynumber>"),
		FirstRecordNumber: 10,
		LastRecordNumber:  5,
	})
	assert.Error(t, err, "an inverted record range is rejected")
}

func TestDriverCoversRecordRangeExactlyOnce(t *testing.T) {
	t.Parallel()
	exec := &recordingExecutor{}
	d, err := New(Config{
		Logger:            fixtures.NewTestLogger(t),
		Executor:          exec,
		Template:          mustCompile(t, "uid: user.<entrynumber>"),
		FirstRecordNumber: 1,
		LastRecordNumber:  25,
		Workers:           3,
		Seed:              42,
	})
	require.NoError(t, err)

	require.NoError(t, d.Run(context.Background()))

	seen := exec.values("uid")
	require.Len(t, seen, 25)
	for n := 1; n <= 25; n++ {
		assert.Equal(t, 1, seen[fmt.Sprintf("user.%d", n)])
	}
	sets := d.Trackers()
	require.Len(t, sets, 3)
	assert.EqualValues(t, 25, stats.TotalCompleted(sets))
	assert.Equal(t, map[string]uint64{"success": 25}, stats.MergeCounts(sets))
}

func TestDriverClassifiesResultCodes(t *testing.T) {
	t.Parallel()
	exec := &recordingExecutor{
		fail: func(req *loadrig.Request) error {
			uid, _ := req.Record.First("uid")
			if len(uid)%2 == 0 {
				return loadrig.NewCodedError(loadrig.ResultTimeout, context.DeadlineExceeded)
			}
			return nil
		},
	}
	d, err := New(Config{
		Logger:            fixtures.NewTestLogger(t),
		Executor:          exec,
		Template:          mustCompile(t, "uid: <random:alpha:1:6>"),
		FirstRecordNumber: 1,
		LastRecordNumber:  40,
		Workers:           2,
		Seed:              7,
	})
	require.NoError(t, err)

	require.NoError(t, d.Run(context.Background()))

	counts := stats.MergeCounts(d.Trackers())
	assert.EqualValues(t, 40, counts["success"]+counts["timeout"])
	assert.EqualValues(t, 40, stats.TotalCompleted(d.Trackers()))
}

func TestDriverPrepareFailureCountsAsClientError(t *testing.T) {
	t.Parallel()
	exec := &recordingExecutor{}
	d, err := New(Config{
		Logger:            fixtures.NewTestLogger(t),
		Executor:          exec,
		Template:          mustCompile(t, "uid: <entrynumber>"),
		FirstRecordNumber: 1,
		LastRecordNumber:  10,
		Prepare: func(rec *loadrig.Record, rnd *rand.Rand) (*loadrig.Request, error) {
			uid, _ := rec.First("uid")
			if uid == "5" {
				return nil, fmt.Errorf("cannot serialize record %s", uid)
			}
			return &loadrig.Request{Record: rec}, nil
		},
		Seed: 1,
	})
	require.NoError(t, err)

	require.NoError(t, d.Run(context.Background()))

	assert.Len(t, exec.requests, 9)
	counts := stats.MergeCounts(d.Trackers())
	assert.EqualValues(t, 9, counts["success"])
	assert.EqualValues(t, 1, counts["client-error"])
	// Only dispatched operations count as completed.
	assert.EqualValues(t, 9, stats.TotalCompleted(d.Trackers()))
}

func TestDriverTrackersSafeToPollDuringRun(t *testing.T) {
	t.Parallel()
	exec := &recordingExecutor{}
	d, err := New(Config{
		Logger:            fixtures.NewTestLogger(t),
		Executor:          exec,
		Template:          mustCompile(t, "uid: user.<entrynumber>"),
		FirstRecordNumber: 1,
		LastRecordNumber:  500,
		Workers:           4,
		Seed:              42,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	// Poll the accessor the way a progress reporter does, concurrently
	// with the run.
	for {
		select {
		case err := <-done:
			require.NoError(t, err)
			assert.EqualValues(t, 500, stats.TotalCompleted(d.Trackers()))
			return
		default:
			_ = stats.TotalCompleted(d.Trackers())
			runtime.Gosched()
		}
	}
}

func TestDriverStopsOnCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	exec := &recordingExecutor{
		fail: func(req *loadrig.Request) error {
			cancel()
			return nil
		},
	}
	d, err := New(Config{
		Logger:   fixtures.NewTestLogger(t),
		Executor: exec,
		Seed:     1,
	})
	require.NoError(t, err)

	require.NoError(t, d.Run(ctx))
	assert.NotEmpty(t, exec.requests)
}
