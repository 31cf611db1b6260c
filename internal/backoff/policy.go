// Package backoff decides how long the host loop sleeps after a failed iteration.
package backoff

import (
	"math"
	"sync"
	"time"
)

const (
	DefaultBase   = 2.0
	DefaultFactor = 0.25
)

// Policy maps the stream of iteration failures to wait durations.
type Policy interface {
	// AcceptError records a failure and returns how long to wait before retrying.
	AcceptError(err error) time.Duration
	// Succeeded records a successful iteration.
	Succeeded()
}

// Exponential waits Base^(Factor*e) seconds after the e-th error.
//
// With the defaults the waits are 2^0.25, 2^0.5, 2^0.75, 2^1, ... seconds. The
// error counter only grows: Succeeded resets it only when ResetOnSuccess is set,
// so by default a long-running process accumulates its errors forever. Results
// beyond the time.Duration range saturate instead of overflowing. Base and
// Factor are used as set; NewExponential fills in the defaults.
type Exponential struct {
	Base   float64
	Factor float64
	// MaxDelay caps the wait when > 0.
	MaxDelay time.Duration
	// ResetOnSuccess clears the error counter on Succeeded.
	ResetOnSuccess bool

	mu     sync.Mutex
	errors int
}

// NewExponential returns a policy with the default base and factor.
func NewExponential() *Exponential {
	return &Exponential{Base: DefaultBase, Factor: DefaultFactor}
}

func (p *Exponential) AcceptError(err error) time.Duration {
	_ = err
	p.mu.Lock()
	p.errors++
	e := p.errors
	p.mu.Unlock()
	return p.wait(e)
}

func (p *Exponential) Succeeded() {
	if !p.ResetOnSuccess {
		return
	}
	p.mu.Lock()
	p.errors = 0
	p.mu.Unlock()
}

// Errors reports the current error count.
func (p *Exponential) Errors() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errors
}

func (p *Exponential) wait(e int) time.Duration {
	secs := math.Pow(p.Base, p.Factor*float64(e))
	d := saturate(secs)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func saturate(secs float64) time.Duration {
	const maxSecs = float64(math.MaxInt64) / float64(time.Second)
	switch {
	case math.IsNaN(secs) || secs <= 0:
		return 0
	case secs >= maxSecs:
		return time.Duration(math.MaxInt64)
	default:
		return time.Duration(secs * float64(time.Second))
	}
}
