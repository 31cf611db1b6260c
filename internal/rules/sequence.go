package rules

import (
	"context"
	"strings"
)

// Reducer folds child results, in child order, into one decision.
type Reducer func(results []bool) bool

func AllTrue(results []bool) bool {
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

func AnyTrue(results []bool) bool {
	for _, r := range results {
		if r {
			return true
		}
	}
	return false
}

// Sequence evaluates every child against the same activity and reduces the results.
// It never short-circuits: a stateful child further down the list still advances
// even when an earlier child already decided the outcome.
type Sequence struct {
	name   string
	reduce Reducer
	rules  []Rule
}

// All is true iff every child is true.
func All(rules ...Rule) *Sequence { return &Sequence{name: "all", reduce: AllTrue, rules: rules} }

// Any is true iff at least one child is true.
func Any(rules ...Rule) *Sequence { return &Sequence{name: "any", reduce: AnyTrue, rules: rules} }

// NewSequence builds a sequence with a custom reducer.
func NewSequence(name string, reduce Reducer, rules ...Rule) *Sequence {
	return &Sequence{name: name, reduce: reduce, rules: rules}
}

func (s *Sequence) Evaluate(ctx context.Context, a Activity) (bool, error) {
	results := make([]bool, len(s.rules))
	for i, r := range s.rules {
		ok, err := r.Evaluate(ctx, a)
		if err != nil {
			return false, err
		}
		results[i] = ok
	}
	return s.reduce(results), nil
}

func (s *Sequence) Rules() []Rule { return append([]Rule(nil), s.rules...) }

func (s *Sequence) String() string {
	parts := make([]string, len(s.rules))
	for i, r := range s.rules {
		parts[i] = r.String()
	}
	return s.name + "(" + strings.Join(parts, ", ") + ")"
}
