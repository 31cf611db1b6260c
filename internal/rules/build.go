package rules

import (
	"fmt"
	"strings"
	"time"

	"contextbot/internal/clock"
)

// Kinds accepted by Build.
const (
	KindAll           = "all"
	KindAny           = "any"
	KindLongThread    = "long_thread"
	KindDelay         = "delay"
	KindRandom        = "random"
	KindDefault       = "default"
	KindHighWordCount = "high_word_count"
)

// DefaultRandomChance is the Random parameter of the default tree.
//
// It lies outside [0, 1), so the default tree's Random gate never passes and the
// default tree never fires. The value is kept as shipped; see DESIGN.md.
const DefaultRandomChance = 75

// Spec describes a rule tree. Zero Interval/Factor mean "use the default".
type Spec struct {
	Kind     string
	Rules    []Spec
	Interval time.Duration
	Chance   float64
	Factor   float64
}

// Default returns a freshly built all(long_thread, delay(30m), random(75)).
func Default(clk clock.Clock, rng clock.Rand) Rule {
	return All(
		LongThread{},
		NewDelay(DefaultDelay, clk),
		NewRandom(DefaultRandomChance, rng),
	)
}

// Build constructs a rule tree from spec. Every call returns new gate state.
//
// Only implemented kinds can be built; high_word_count fails with
// ErrNotImplemented so a broken tree is rejected at startup instead of at
// evaluation time.
func Build(spec Spec, clk clock.Clock, rng clock.Rand) (Rule, error) {
	return build(spec, clk, rng, "rules")
}

func build(spec Spec, clk clock.Clock, rng clock.Rand, path string) (Rule, error) {
	kind := strings.ToLower(strings.TrimSpace(spec.Kind))
	switch kind {
	case KindAll, "and", KindAny, "or":
		if len(spec.Rules) == 0 {
			return nil, fmt.Errorf("%s: %w: %s needs at least one child", path, ErrInvalidRule, kind)
		}
		children := make([]Rule, 0, len(spec.Rules))
		for i, child := range spec.Rules {
			r, err := build(child, clk, rng, fmt.Sprintf("%s.rules[%d]", path, i))
			if err != nil {
				return nil, err
			}
			children = append(children, r)
		}
		if kind == KindAll || kind == "and" {
			return All(children...), nil
		}
		return Any(children...), nil
	case KindLongThread:
		if spec.Factor < 0 {
			return nil, fmt.Errorf("%s: %w: factor must be >= 0", path, ErrInvalidRule)
		}
		return LongThread{Factor: spec.Factor}, nil
	case KindDelay:
		if spec.Interval < 0 {
			return nil, fmt.Errorf("%s: %w: interval must be >= 0", path, ErrInvalidRule)
		}
		interval := spec.Interval
		if interval == 0 {
			interval = DefaultDelay
		}
		return NewDelay(interval, clk), nil
	case KindRandom:
		return NewRandom(spec.Chance, rng), nil
	case KindDefault:
		return Default(clk, rng), nil
	case "":
		// An empty root means the default tree; nested children must be explicit.
		if path != "rules" {
			return nil, fmt.Errorf("%s: %w: kind is required", path, ErrInvalidRule)
		}
		return Default(clk, rng), nil
	case KindHighWordCount:
		return nil, fmt.Errorf("%s: %s: %w", path, kind, ErrNotImplemented)
	default:
		return nil, fmt.Errorf("%s: %w %q", path, ErrUnknownKind, spec.Kind)
	}
}
