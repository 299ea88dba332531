package driver

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorHandsOutWholeRangeExactlyOnce(t *testing.T) {
	t.Parallel()
	a := NewRecordAllocator(10, 109)

	var mu sync.Mutex
	seen := make(map[int64]int)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				n, ok := a.Next()
				if !ok {
					return
				}
				mu.Lock()
				seen[n]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, 100)
	for n := int64(10); n <= 109; n++ {
		assert.Equal(t, 1, seen[n], "record number %d", n)
	}
}

func TestAllocatorReset(t *testing.T) {
	t.Parallel()
	a := NewRecordAllocator(1, 2)

	n, ok := a.Next()
	require.True(t, ok)
	assert.EqualValues(t, 1, n)
	n, ok = a.Next()
	require.True(t, ok)
	assert.EqualValues(t, 2, n)
	_, ok = a.Next()
	require.False(t, ok)

	a.Reset()
	n, ok = a.Next()
	require.True(t, ok)
	assert.EqualValues(t, 1, n)
}

func TestAllocatorSingleRecordRange(t *testing.T) {
	t.Parallel()
	a := NewRecordAllocator(5, 5)

	n, ok := a.Next()
	require.True(t, ok)
	assert.EqualValues(t, 5, n)
	_, ok = a.Next()
	assert.False(t, ok)
}
