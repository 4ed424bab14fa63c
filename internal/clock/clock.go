// Package clock provides the time source the scheduler measures its
// per-pass budget against.
package clock

import (
	"sync"
	"time"
)

// Source returns the current wall-clock time.
type Source interface {
	Now() time.Time
}

// System reads the real clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Manual is a clock that only moves when told to.
// Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Stepping advances by a fixed step every time Now is called, which makes
// "how many reads fit in a budget" deterministic.
type Stepping struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func NewStepping(start time.Time, step time.Duration) *Stepping {
	return &Stepping{now: start, step: step}
}

// Now returns the current time, then moves the clock forward by one step.
func (s *Stepping) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now
	s.now = s.now.Add(s.step)
	return t
}
