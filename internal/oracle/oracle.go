// Package oracle answers activity questions for a single chat channel.
//
// The oracle keeps no state of its own: every call reads from and writes to the
// storage.Store it wraps, so a persistent store makes the view survive restarts.
package oracle

import (
	"context"
	"fmt"
	"slices"
	"time"

	"contextbot/internal/chat"
	"contextbot/internal/storage"
)

const (
	// RecentWindow is how far back from the newest fed message a message stays recent.
	RecentWindow = 10 * time.Minute
	// MaxCounts bounds the count history.
	MaxCounts = 100000
)

type Oracle struct {
	store    storage.Store
	channel  string
	window   time.Duration
	capacity int
}

type Option func(*Oracle)

// WithWindow overrides RecentWindow.
func WithWindow(d time.Duration) Option {
	return func(o *Oracle) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithCapacity overrides MaxCounts.
func WithCapacity(n int) Option {
	return func(o *Oracle) {
		if n > 0 {
			o.capacity = n
		}
	}
}

func New(store storage.Store, channel string, opts ...Option) *Oracle {
	o := &Oracle{store: store, channel: channel, window: RecentWindow, capacity: MaxCounts}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Oracle) Channel() string { return o.channel }

// Feed ingests one batch of messages.
//
// The batch is merged into the recent list and stable-sorted by time, then
// everything older than (newest message in the batch - window) is dropped. The
// window is anchored to the batch, not to the wall clock, so a late batch of old
// messages does not evict itself. Each non-empty batch appends exactly one entry
// to the count history.
func (o *Oracle) Feed(ctx context.Context, msgs []chat.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	recent, err := o.store.Recent(ctx, o.channel)
	if err != nil {
		return fmt.Errorf("oracle %s: load recent: %w", o.channel, err)
	}

	newest, _ := chat.Latest(msgs)
	threshold := newest.Time.Add(-o.window)

	merged := make([]chat.Message, 0, len(recent)+len(msgs))
	merged = append(merged, recent...)
	merged = append(merged, msgs...)
	slices.SortStableFunc(merged, func(a, b chat.Message) int { return a.Time.Compare(b.Time) })

	kept := merged[:0]
	for _, m := range merged {
		if !m.Time.Before(threshold) {
			kept = append(kept, m)
		}
	}

	if err := o.store.SetRecent(ctx, o.channel, kept); err != nil {
		return fmt.Errorf("oracle %s: save recent: %w", o.channel, err)
	}
	if err := o.store.AppendCount(ctx, o.channel, len(kept), o.capacity); err != nil {
		return fmt.Errorf("oracle %s: append count: %w", o.channel, err)
	}
	return nil
}

// Latest returns the newest recent message; ok is false when there is none.
func (o *Oracle) Latest(ctx context.Context) (chat.Message, bool, error) {
	recent, err := o.store.Recent(ctx, o.channel)
	if err != nil {
		return chat.Message{}, false, fmt.Errorf("oracle %s: load recent: %w", o.channel, err)
	}
	if len(recent) == 0 {
		return chat.Message{}, false, nil
	}
	return recent[len(recent)-1], true, nil
}

func (o *Oracle) MessageCount(ctx context.Context) (int, error) {
	recent, err := o.store.Recent(ctx, o.channel)
	if err != nil {
		return 0, fmt.Errorf("oracle %s: load recent: %w", o.channel, err)
	}
	return len(recent), nil
}

// CountHistory returns the per-feed recent sizes, oldest first.
func (o *Oracle) CountHistory(ctx context.Context) ([]int, error) {
	counts, err := o.store.Counts(ctx, o.channel)
	if err != nil {
		return nil, fmt.Errorf("oracle %s: load counts: %w", o.channel, err)
	}
	return counts, nil
}
