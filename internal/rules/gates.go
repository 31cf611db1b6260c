package rules

import (
	"context"
	"fmt"
	"time"

	"contextbot/internal/clock"
)

// DefaultDelay is the Delay interval used by the default tree.
const DefaultDelay = 30 * time.Minute

// Delay is a debounce gate: it passes at most once per interval.
//
// Evaluating it is a side effect. A passing evaluation records the current time
// as the last fire, and later evaluations fail until interval has elapsed. A
// fresh gate has never fired and passes on its first evaluation.
type Delay struct {
	interval time.Duration
	clock    clock.Clock

	fired    bool
	lastFire time.Time
}

func NewDelay(interval time.Duration, clk clock.Clock) *Delay {
	if clk == nil {
		clk = clock.System()
	}
	return &Delay{interval: interval, clock: clk}
}

func (d *Delay) Evaluate(ctx context.Context, _ Activity) (bool, error) {
	_ = ctx
	now := d.clock.Now()
	if d.fired && now.Sub(d.lastFire) < d.interval {
		return false, nil
	}
	d.fired = true
	d.lastFire = now
	return true, nil
}

// LastFire reports when the gate last passed; ok is false if it never has.
func (d *Delay) LastFire() (t time.Time, ok bool) { return d.lastFire, d.fired }

func (d *Delay) Interval() time.Duration { return d.interval }

func (d *Delay) String() string { return "delay(" + d.interval.String() + ")" }

// Random passes when a uniform draw in [0, 1) is >= chance, i.e. with
// probability 1 - chance. Each evaluation consumes exactly one draw.
//
// chance is not range checked: values >= 1 make the gate never pass and values
// <= 0 make it always pass.
type Random struct {
	chance float64
	rng    clock.Rand
}

func NewRandom(chance float64, rng clock.Rand) *Random {
	if rng == nil {
		rng = clock.NewRand(0)
	}
	return &Random{chance: chance, rng: rng}
}

func (r *Random) Evaluate(ctx context.Context, _ Activity) (bool, error) {
	_ = ctx
	return r.rng.Float64() >= r.chance, nil
}

func (r *Random) Chance() float64 { return r.chance }

func (r *Random) String() string { return fmt.Sprintf("random(%g)", r.chance) }
