package rules

import (
	"context"
	"fmt"
	"math"
)

// DefaultDeviationFactor is the deviation above which LongThread fires.
const DefaultDeviationFactor = 0.25

// LongThread fires when the latest count-history entry stands out from the rest.
//
// With mean m and mean absolute deviation d over the whole history c_1..c_n,
// the score is sqrt(| |c_n - m| - d |). The statistic is recomputed over the
// full history on every call; the history is bounded so the cost is too.
type LongThread struct {
	// Factor overrides DefaultDeviationFactor when > 0.
	Factor float64
}

func (l LongThread) factor() float64 {
	if l.Factor > 0 {
		return l.Factor
	}
	return DefaultDeviationFactor
}

func (l LongThread) Evaluate(ctx context.Context, a Activity) (bool, error) {
	counts, err := a.CountHistory(ctx)
	if err != nil {
		return false, err
	}
	dev, ok := Deviation(counts)
	if !ok {
		return false, nil
	}
	return dev > l.factor(), nil
}

func (l LongThread) String() string {
	if l.Factor > 0 && l.Factor != DefaultDeviationFactor {
		return fmt.Sprintf("long_thread(%g)", l.Factor)
	}
	return "long_thread"
}

// Deviation computes the LongThread score. ok is false for an empty history.
func Deviation(counts []int) (float64, bool) {
	n := len(counts)
	if n == 0 {
		return 0, false
	}
	var sum float64
	for _, c := range counts {
		sum += float64(c)
	}
	mean := sum / float64(n)

	var abs float64
	for _, c := range counts {
		abs += math.Abs(float64(c) - mean)
	}
	mad := abs / float64(n)

	last := math.Abs(float64(counts[n-1]) - mean)
	return math.Sqrt(math.Abs(last - mad)), true
}
