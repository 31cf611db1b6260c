// Package clock supplies time and randomness to the decision engine.
//
// Rules and the host loop never call time.Now or the global RNG directly, so tests
// can drive them with Manual and Scripted.
package clock

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Rand is a uniform random source.
type Rand interface {
	// Float64 returns a draw in [0, 1).
	Float64() float64
	// IntN returns a draw in [0, n). It panics if n <= 0.
	IntN(n int) int
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the wall clock.
func System() Clock { return systemClock{} }

// NewRand returns a PCG-backed source. A zero seed picks a time-based seed.
func NewRand(seed uint64) Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// lockedRand makes *rand.Rand safe to share between the loop and reply selection.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}
