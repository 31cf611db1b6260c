// Package storage persists per-channel activity state.
//
// Each channel owns two slots:
//   - recent: the time-windowed message list (replaced wholesale on every feed)
//   - counts: a bounded FIFO of recent-list sizes (one append per feed)
//
// A channel that was never written reads as empty, so callers never need an
// explicit "create" step. Drivers: memory (default), file, sqlite.
package storage
