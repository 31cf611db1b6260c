// Package rules is the decision engine: small predicates over a channel's activity,
// combined into AND/OR trees.
//
// Rules are not referentially transparent. Delay and Random carry state that
// changes every time they are evaluated, and sequences always evaluate every
// child so that this state advances predictably. Build a fresh tree per consumer
// (Default and Build both do) rather than sharing one.
package rules

import (
	"context"
	"errors"

	"contextbot/internal/chat"
)

var (
	// ErrNotImplemented is returned for rule kinds that are declared but have no
	// evaluation body (high_word_count).
	ErrNotImplemented = errors.New("rule kind is not implemented")
	ErrUnknownKind    = errors.New("unknown rule kind")
	ErrInvalidRule    = errors.New("invalid rule")
)

// Activity is the read side of an oracle.
type Activity interface {
	CountHistory(ctx context.Context) ([]int, error)
	MessageCount(ctx context.Context) (int, error)
	Latest(ctx context.Context) (chat.Message, bool, error)
}

// Rule decides whether a context message should be sent for one channel.
type Rule interface {
	Evaluate(ctx context.Context, a Activity) (bool, error)
	// String renders the rule for logs, e.g. "all(long_thread, delay(30m0s))".
	String() string
}
