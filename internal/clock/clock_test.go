package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualAdvance(t *testing.T) {
	t.Parallel()
	start := time.Unix(0, 0)
	m := NewManual(start)
	m.Advance(90 * time.Second)
	require.Equal(t, start.Add(90*time.Second), m.Now())

	m.Set(time.Unix(10, 0))
	require.Equal(t, time.Unix(10, 0), m.Now())
}

func TestScriptedCyclesDraws(t *testing.T) {
	t.Parallel()
	s := NewScripted(0.1, 0.9)
	require.Equal(t, 0.1, s.Float64())
	require.Equal(t, 0.9, s.Float64())
	require.Equal(t, 0.1, s.Float64())
	require.Equal(t, 3, s.Calls())

	require.Equal(t, 2, NewScripted(0.99).IntN(3))
	require.Equal(t, 0, NewScripted(0).IntN(3))
}

func TestNewRandRange(t *testing.T) {
	t.Parallel()
	r := NewRand(42)
	for i := 0; i < 1000; i++ {
		f := r.Float64()
		require.GreaterOrEqual(t, f, 0.0)
		require.Less(t, f, 1.0)
		require.Less(t, r.IntN(5), 5)
	}
}
