package engine

import (
	"sync"
	"time"
)

// runKey identifies a (symbol, period) pair.
type runKey struct {
	symbol string
	period string
}

// RunState tracks the last evaluated tick of every (symbol, period) pair. Entries only
// move forward and are never removed.
type RunState struct {
	last    map[runKey]time.Time
	lastMtx sync.Mutex
}

// NewRunState initializes a new run state.
func NewRunState() *RunState {
	return &RunState{
		last: make(map[runKey]time.Time),
	}
}

// Last returns the last evaluated tick of the provided pair.
func (s *RunState) Last(symbol string, period string) (time.Time, bool) {
	s.lastMtx.Lock()
	defer s.lastMtx.Unlock()

	t, ok := s.last[runKey{symbol: symbol, period: period}]
	return t, ok
}

// Record advances the last evaluated tick of the provided pair. It returns false when the
// provided time does not move the pair forward.
func (s *RunState) Record(symbol string, period string, now time.Time) bool {
	s.lastMtx.Lock()
	defer s.lastMtx.Unlock()

	key := runKey{symbol: symbol, period: period}
	if last, ok := s.last[key]; ok && !now.After(last) {
		return false
	}

	s.last[key] = now
	return true
}
