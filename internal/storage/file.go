package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"contextbot/internal/chat"
	logx "contextbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.history.snapshot.json (periodic snapshot)
//   - <prefix>.history.journal.jsonl (append-only journal)
//
// State is served from memory; every mutation is journaled first. The journal
// is periodically compacted into the snapshot. Journal records carry a
// sequence number and the snapshot records the last one it covers, so replay
// skips records a snapshot already holds even if truncation never happened.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	state        memState
	seq          uint64

	writes       int
	compactEvery int
}

type journalRecord struct {
	Seq     uint64   `json:"seq"`
	Op      string   `json:"op"` // "recent" | "count"
	Channel string   `json:"ch"`
	Recent  []record `json:"recent,omitempty"`
	N       int      `json:"n,omitempty"`
	Limit   int      `json:"limit,omitempty"`
}

type snapshotFile struct {
	Seq      uint64                     `json:"seq"`
	Channels map[string]snapshotChannel `json:"channels"`
}

type snapshotChannel struct {
	Recent []record `json:"recent"`
	Counts []int    `json:"counts"`
	Limit  int      `json:"limit"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".history.snapshot.json"
	journalPath := prefix + ".history.journal.jsonl"

	state := memState{}
	seq, err := loadSnapshot(snapPath, state)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	seq, err = replayJournal(journalPath, state, seq)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	every := cfg.CompactEvery
	if every <= 0 {
		every = 1000
	}
	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		state:        state,
		seq:          seq,
		compactEvery: every,
	}, nil
}

func (s *fileStore) Recent(ctx context.Context, channel string) ([]chat.Message, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return s.state.recent(channel), nil
}

func (s *fileStore) Counts(ctx context.Context, channel string) ([]int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return s.state.counts(channel), nil
}

func (s *fileStore) SetRecent(ctx context.Context, channel string, msgs []chat.Message) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalRecord{Op: "recent", Channel: channel, Recent: toRecords(msgs)}); err != nil {
		return err
	}
	s.state.setRecent(channel, msgs)
	s.afterWriteLocked()
	return nil
}

func (s *fileStore) AppendCount(ctx context.Context, channel string, n int, capacity int) error {
	_ = ctx
	if capacity <= 0 {
		return ErrInvalidCapacity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalRecord{Op: "count", Channel: channel, N: n, Limit: capacity}); err != nil {
		return err
	}
	s.state.get(channel).counts.push(n, capacity)
	s.afterWriteLocked()
	return nil
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if s.journal == nil {
		return ErrClosed
	}
	r.Seq = s.seq + 1
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	s.seq = r.Seq
	return nil
}

func (s *fileStore) afterWriteLocked() {
	s.writes++
	if s.writes%s.compactEvery == 0 {
		// Best-effort compact; the journal still holds everything on failure.
		if err := s.compactLocked(); err != nil {
			s.log.Warn("history compact failed", logx.Err(err))
		}
	}
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	if err := s.compactLocked(); err != nil {
		s.log.Warn("history compact on close failed", logx.Err(err))
	}
	err := s.journal.Close()
	s.journal = nil
	return err
}

func (s *fileStore) compactLocked() error {
	snap := snapshotFile{Seq: s.seq, Channels: make(map[string]snapshotChannel, len(s.state))}
	for ch, st := range s.state {
		snap.Channels[ch] = snapshotChannel{
			Recent: toRecords(st.recent),
			Counts: st.counts.values(),
			Limit:  st.counts.limit,
		}
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out memState) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var snap snapshotFile
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return 0, err
	}
	for ch, sc := range snap.Channels {
		out[ch] = &channelState{
			recent: fromRecords(sc.Recent),
			counts: restoreRing(sc.Counts, sc.Limit),
		}
	}
	return snap.Seq, nil
}

// replayJournal applies records above seq and returns the highest sequence seen.
func replayJournal(path string, out memState, seq uint64) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return seq, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// torn tail write
			continue
		}
		if r.Seq <= seq {
			continue
		}
		seq = r.Seq
		switch r.Op {
		case "recent":
			out.setRecent(r.Channel, fromRecords(r.Recent))
		case "count":
			if r.Limit > 0 {
				out.get(r.Channel).counts.push(r.N, r.Limit)
			}
		}
	}
	return seq, sc.Err()
}
