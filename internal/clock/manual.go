package clock

import (
	"sync"
	"time"
)

// Manual is a Clock that only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual { return &Manual{now: start} }

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Scripted replays a fixed list of Float64 draws, cycling when exhausted.
// IntN maps the next draw onto [0, n).
type Scripted struct {
	mu    sync.Mutex
	draws []float64
	next  int
	calls int
}

func NewScripted(draws ...float64) *Scripted {
	if len(draws) == 0 {
		draws = []float64{0}
	}
	return &Scripted{draws: draws}
}

func (s *Scripted) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.draws[s.next%len(s.draws)]
	s.next++
	s.calls++
	return v
}

func (s *Scripted) IntN(n int) int {
	if n <= 0 {
		panic("clock: invalid argument to IntN")
	}
	i := int(s.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

// Calls reports how many draws have been consumed.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
