package stats

import (
	"sync"

	"github.com/atlassian/loadrig"
)

// Categorical counts occurrences bucketed by label, used for result code
// distributions.  Safe for concurrent use.
type Categorical struct {
	mu     sync.Mutex
	counts map[string]uint64
}

var _ loadrig.CategoricalTracker = (*Categorical)(nil)

func NewCategorical() *Categorical {
	return &Categorical{counts: make(map[string]uint64)}
}

func (t *Categorical) StartTracker() {}

func (t *Categorical) StopTracker() {}

func (t *Categorical) Increment(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[label]++
}

// Counts returns a snapshot of the per-label counts.
func (t *Categorical) Counts() map[string]uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]uint64, len(t.counts))
	for label, n := range t.counts {
		out[label] = n
	}
	return out
}
