package storage

import (
	"context"
	"errors"
	"time"

	"contextbot/internal/chat"
)

var (
	ErrClosed          = errors.New("storage closed")
	ErrInvalidCapacity = errors.New("storage: counts capacity must be > 0")
)

// Config configures storage.
//
// Driver values:
//   - "memory": process-lifetime state (default)
//   - "file": JSON snapshot + append-only journal next to Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// CompactEvery is the number of journal records after which the file
	// driver rewrites its snapshot. 0 means 1000.
	CompactEvery int
}

// Store is the persistence API used by the activity oracle.
type Store interface {
	// Recent returns the channel's recent messages in stored order.
	Recent(ctx context.Context, channel string) ([]chat.Message, error)
	// SetRecent replaces the channel's recent messages.
	SetRecent(ctx context.Context, channel string, msgs []chat.Message) error
	// Counts returns the channel's count history, oldest first.
	Counts(ctx context.Context, channel string) ([]int, error)
	// AppendCount pushes n and drops the oldest entries beyond capacity.
	AppendCount(ctx context.Context, channel string, n int, capacity int) error
	Close() error
}

// record is the on-disk shape of a message (file and sqlite drivers).
type record struct {
	ID       int64  `json:"id"`
	Author   string `json:"author"`
	Text     string `json:"text"`
	UnixNano int64  `json:"ts"`
}

func toRecords(msgs []chat.Message) []record {
	out := make([]record, len(msgs))
	for i, m := range msgs {
		out[i] = record{ID: m.ID, Author: m.Author, Text: m.Text, UnixNano: m.Time.UnixNano()}
	}
	return out
}

func fromRecords(recs []record) []chat.Message {
	out := make([]chat.Message, len(recs))
	for i, r := range recs {
		out[i] = chat.Message{ID: r.ID, Author: r.Author, Text: r.Text, Time: time.Unix(0, r.UnixNano)}
	}
	return out
}
