package storage

import (
	"context"
	"sync"

	"contextbot/internal/chat"
)

type channelState struct {
	recent []chat.Message
	counts countRing
}

// memState is the unlocked channel map shared by the memory and file drivers.
type memState map[string]*channelState

func (m memState) get(channel string) *channelState {
	st := m[channel]
	if st == nil {
		st = &channelState{}
		m[channel] = st
	}
	return st
}

func (m memState) recent(channel string) []chat.Message {
	st := m[channel]
	if st == nil {
		return []chat.Message{}
	}
	return append([]chat.Message(nil), st.recent...)
}

func (m memState) setRecent(channel string, msgs []chat.Message) {
	m.get(channel).recent = append([]chat.Message(nil), msgs...)
}

func (m memState) counts(channel string) []int {
	st := m[channel]
	if st == nil {
		return []int{}
	}
	return st.counts.values()
}

type memoryStore struct {
	mu     sync.Mutex
	state  memState
	closed bool
}

// NewMemory returns a store that lives as long as the process.
func NewMemory() Store {
	return &memoryStore{state: memState{}}
}

func (s *memoryStore) Recent(ctx context.Context, channel string) ([]chat.Message, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.state.recent(channel), nil
}

func (s *memoryStore) SetRecent(ctx context.Context, channel string, msgs []chat.Message) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.state.setRecent(channel, msgs)
	return nil
}

func (s *memoryStore) Counts(ctx context.Context, channel string) ([]int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.state.counts(channel), nil
}

func (s *memoryStore) AppendCount(ctx context.Context, channel string, n int, capacity int) error {
	_ = ctx
	if capacity <= 0 {
		return ErrInvalidCapacity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.state.get(channel).counts.push(n, capacity)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
