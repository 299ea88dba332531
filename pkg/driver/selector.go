package driver

import (
	"fmt"

	"github.com/atlassian/loadrig"
)

// SelectionMode determines how the async driver picks a channel for the
// next operation.
type SelectionMode int

const (
	// SelectRoundRobin cycles through the channels in index order.
	SelectRoundRobin SelectionMode = iota
	// SelectFewestOutstanding picks the channel with the fewest in-flight
	// operations.
	SelectFewestOutstanding
)

func (m SelectionMode) String() string {
	switch m {
	case SelectRoundRobin:
		return "round-robin"
	case SelectFewestOutstanding:
		return "fewest-outstanding"
	}
	return "unknown"
}

// ParseSelectionMode parses a selection mode name from configuration.
func ParseSelectionMode(s string) (SelectionMode, error) {
	switch s {
	case "round-robin":
		return SelectRoundRobin, nil
	case "fewest-outstanding":
		return SelectFewestOutstanding, nil
	}
	return 0, fmt.Errorf("unknown connection selection mode %q", s)
}

// Selector picks a channel index for each operation dispatch.  It is owned
// by the single driver goroutine that dispatches operations and is not safe
// for concurrent use.
type Selector struct {
	mode     SelectionMode
	channels []loadrig.Channel
	next     int
}

func NewSelector(mode SelectionMode, channels []loadrig.Channel) *Selector {
	return &Selector{mode: mode, channels: channels}
}

// Select returns the index of the channel to use for the next operation.
// Round-robin advances one index per call.  Fewest-outstanding returns the
// first channel with no in-flight operations, or failing that the channel
// with the fewest, earliest index winning ties.  The outstanding counts may
// be slightly stale; the choice is a heuristic, not a correctness
// requirement.
func (s *Selector) Select() int {
	if s.mode == SelectRoundRobin {
		slot := s.next
		s.next++
		if s.next >= len(s.channels) {
			s.next = 0
		}
		return slot
	}

	best := 0
	min := int(^uint(0) >> 1)
	for i, ch := range s.channels {
		n := ch.Outstanding()
		if n == 0 {
			return i
		}
		if n < min {
			best = i
			min = n
		}
	}
	return best
}
