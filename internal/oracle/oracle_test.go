package oracle

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"contextbot/internal/chat"
	"contextbot/internal/storage"
)

var base = time.Unix(1_700_000_000, 0)

func at(id int64, sec int) chat.Message {
	return chat.Message{ID: id, Author: "u", Text: "x", Time: base.Add(time.Duration(sec) * time.Second)}
}

func ids(msgs []chat.Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func recentOf(t *testing.T, st storage.Store, ch string) []chat.Message {
	t.Helper()
	r, err := st.Recent(context.Background(), ch)
	require.NoError(t, err)
	return r
}

func TestFeedEmptyIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	o := New(st, "c")

	require.NoError(t, o.Feed(ctx, []chat.Message{at(1, 0)}))
	require.NoError(t, o.Feed(ctx, nil))
	require.NoError(t, o.Feed(ctx, []chat.Message{}))

	counts, err := o.CountHistory(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{1}, counts)
	require.Equal(t, []int64{1}, ids(recentOf(t, st, "c")))
}

func TestFeedPrunesAgainstNewestInBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	o := New(st, "c")

	require.NoError(t, o.Feed(ctx, []chat.Message{at(1, 0), at(2, 100)}))
	// newest = 700, threshold = 100: message 1 goes, message 2 sits exactly on the edge.
	require.NoError(t, o.Feed(ctx, []chat.Message{at(3, 700)}))
	require.Equal(t, []int64{2, 3}, ids(recentOf(t, st, "c")))

	counts, err := o.CountHistory(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{2, 2}, counts)

	n, err := o.MessageCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestFeedSortsStably(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	o := New(st, "c")

	require.NoError(t, o.Feed(ctx, []chat.Message{at(1, 10)}))
	require.NoError(t, o.Feed(ctx, []chat.Message{at(4, 30), at(2, 10), at(3, 5)}))
	// Ties keep existing messages first, then batch order.
	require.Equal(t, []int64{3, 1, 2, 4}, ids(recentOf(t, st, "c")))

	latest, ok, err := o.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(4), latest.ID)
}

func TestLateBatchDoesNotEvictItself(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	o := New(st, "c")

	require.NoError(t, o.Feed(ctx, []chat.Message{at(10, 5000)}))
	require.NoError(t, o.Feed(ctx, []chat.Message{at(1, 0), at(2, 60)}))
	require.Equal(t, []int64{1, 2, 10}, ids(recentOf(t, st, "c")))
}

func TestLatestEmpty(t *testing.T) {
	t.Parallel()
	o := New(storage.NewMemory(), "c")
	_, ok, err := o.Latest(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	counts, err := o.CountHistory(context.Background())
	require.NoError(t, err)
	require.Empty(t, counts)
}

func TestCountHistoryFIFO(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	o := New(storage.NewMemory(), "c", WithCapacity(3))

	for i := 0; i < 5; i++ {
		// Everything stays inside the window, so the count grows by one per feed.
		require.NoError(t, o.Feed(ctx, []chat.Message{at(int64(i), i)}))
	}
	counts, err := o.CountHistory(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{3, 4, 5}, counts)
}

func TestWindowInvariantRandomized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	window := 60 * time.Second
	o := New(st, "c", WithWindow(window), WithCapacity(50))
	rng := rand.New(rand.NewPCG(1, 2))

	var fed []chat.Message
	var id int64
	for round := 0; round < 200; round++ {
		batch := make([]chat.Message, rng.IntN(4))
		for i := range batch {
			id++
			batch[i] = at(id, round*5+rng.IntN(120)-60)
		}
		require.NoError(t, o.Feed(ctx, batch))
		if len(batch) == 0 {
			continue
		}
		fed = append(fed, batch...)

		newest, _ := chat.Latest(batch)
		recent := recentOf(t, st, "c")
		inRecent := map[int64]bool{}
		for i, m := range recent {
			inRecent[m.ID] = true
			require.False(t, m.Time.Before(newest.Time.Add(-window)), "message %d outside window", m.ID)
			if i > 0 {
				require.False(t, m.Time.Before(recent[i-1].Time), "recent not sorted")
			}
		}
		// No unintended drops from the batch that was just fed.
		for _, m := range batch {
			if !m.Time.Before(newest.Time.Add(-window)) {
				require.True(t, inRecent[m.ID], "message %d dropped", m.ID)
			}
		}

		counts, err := o.CountHistory(ctx)
		require.NoError(t, err)
		require.LessOrEqual(t, len(counts), 50)
		require.Equal(t, len(recent), counts[len(counts)-1])
	}
	require.NotEmpty(t, fed)
}

type failingStore struct {
	storage.Store
	err error
}

func (f failingStore) Recent(context.Context, string) ([]chat.Message, error) { return nil, f.err }

func TestStoreErrorsPropagate(t *testing.T) {
	t.Parallel()
	boom := errors.New("disk on fire")
	o := New(failingStore{Store: storage.NewMemory(), err: boom}, "c")

	require.ErrorIs(t, o.Feed(context.Background(), []chat.Message{at(1, 0)}), boom)
	_, _, err := o.Latest(context.Background())
	require.ErrorIs(t, err, boom)
	_, err = o.MessageCount(context.Background())
	require.ErrorIs(t, err, boom)
}
