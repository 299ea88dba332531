package driver

import "sync/atomic"

// RecordAllocator hands out record numbers from an inclusive range, one at
// a time, to any number of concurrent workers.  Every number in the range
// is handed out exactly once per pass; which worker receives which number
// is first-come-first-served.
type RecordAllocator struct {
	next  int64 // atomic
	first int64
	last  int64
}

func NewRecordAllocator(first, last int64) *RecordAllocator {
	return &RecordAllocator{next: first, first: first, last: last}
}

// Next returns the next unallocated record number, or false when the range
// is exhausted.
func (a *RecordAllocator) Next() (int64, bool) {
	n := atomic.AddInt64(&a.next, 1) - 1
	if n > a.last {
		return 0, false
	}
	return n, true
}

// Reset rewinds the allocator to the start of the range for another pass.
// Callers must ensure no worker is pulling from the allocator while it is
// reset; the two-phase driver does this from the phase transition, which
// runs when every worker has finished the first pass.
func (a *RecordAllocator) Reset() {
	atomic.StoreInt64(&a.next, a.first)
}

// First returns the first record number of the range.
func (a *RecordAllocator) First() int64 {
	return a.first
}

// Last returns the last record number of the range.
func (a *RecordAllocator) Last() int64 {
	return a.last
}
