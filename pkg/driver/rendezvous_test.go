package driver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRendezvousRunsTransitionExactlyOnce(t *testing.T) {
	t.Parallel()
	const workers = 5
	var transitions int64
	var arrived int64
	r := NewRendezvous(workers, func(ctx context.Context) {
		// Every worker must have arrived before the transition runs.
		assert.EqualValues(t, workers, atomic.LoadInt64(&arrived))
		atomic.AddInt64(&transitions, 1)
	})

	var lastCount int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			atomic.AddInt64(&arrived, 1)
			last, ok := r.Arrive(context.Background())
			assert.True(t, ok)
			// Released workers observe the transition as already done.
			assert.EqualValues(t, 1, atomic.LoadInt64(&transitions))
			if last {
				atomic.AddInt64(&lastCount, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, transitions)
	assert.EqualValues(t, 1, lastCount)
}

func TestRendezvousCancellation(t *testing.T) {
	t.Parallel()
	r := NewRendezvous(2, nil)
	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan bool, 1)
	go func() {
		_, ok := r.Arrive(ctx)
		result <- ok
	}()

	cancel()
	select {
	case ok := <-result:
		require.False(t, ok, "a canceled wait must not release the worker into the next phase")
	case <-time.After(5 * time.Second):
		t.Fatal("Arrive did not observe the cancellation")
	}
}

func TestRendezvousSingleWorker(t *testing.T) {
	t.Parallel()
	ran := false
	r := NewRendezvous(1, func(ctx context.Context) {
		ran = true
	})

	last, ok := r.Arrive(context.Background())
	assert.True(t, last)
	assert.True(t, ok)
	assert.True(t, ran)
}
