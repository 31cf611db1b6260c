package backoff

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func secs(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }

func TestExponentialGrowth(t *testing.T) {
	t.Parallel()
	p := NewExponential()
	err := errors.New("transient")

	want := []float64{math.Pow(2, 0.25), math.Pow(2, 0.5), math.Pow(2, 0.75), 2}
	var prev time.Duration
	for i, w := range want {
		got := p.AcceptError(err)
		require.Equal(t, secs(w), got, "call %d", i+1)
		require.Greater(t, got, prev)
		prev = got
	}
	require.Equal(t, 4, p.Errors())
}

func TestExponentialNeverResetsByDefault(t *testing.T) {
	t.Parallel()
	p := NewExponential()
	first := p.AcceptError(nil)
	p.Succeeded()
	second := p.AcceptError(nil)
	require.Greater(t, second, first)
	require.Equal(t, 2, p.Errors())
}

func TestExponentialResetOnSuccess(t *testing.T) {
	t.Parallel()
	p := &Exponential{Base: 2, Factor: 0.25, ResetOnSuccess: true}
	first := p.AcceptError(nil)
	p.AcceptError(nil)
	p.Succeeded()
	require.Zero(t, p.Errors())
	require.Equal(t, first, p.AcceptError(nil))
}

func TestExponentialCapsAndSaturates(t *testing.T) {
	t.Parallel()
	capped := &Exponential{Base: 2, Factor: 1, MaxDelay: 5 * time.Second}
	for i := 0; i < 10; i++ {
		require.LessOrEqual(t, capped.AcceptError(nil), 5*time.Second)
	}

	huge := &Exponential{Base: 10, Factor: 100}
	require.Equal(t, time.Duration(math.MaxInt64), huge.AcceptError(nil))
	require.Equal(t, time.Duration(math.MaxInt64), huge.AcceptError(nil))
}

func TestExponentialZeroFactorIsConstant(t *testing.T) {
	t.Parallel()
	p := &Exponential{Base: 2, Factor: 0}
	for i := 0; i < 3; i++ {
		require.Equal(t, time.Second, p.AcceptError(nil))
	}
}

func TestErrorWrappers(t *testing.T) {
	t.Parallel()
	base := errors.New("chat not found")

	require.Nil(t, NoRetry(nil))
	nr := NoRetry(base)
	require.True(t, IsNoRetry(nr))
	require.ErrorIs(t, nr, base)
	require.False(t, IsNoRetry(base))

	ra := RetryAfter(base, 3*time.Second)
	d, ok := RetryAfterHint(ra)
	require.True(t, ok)
	require.Equal(t, 3*time.Second, d)
	require.ErrorIs(t, ra, base)

	_, ok = RetryAfterHint(base)
	require.False(t, ok)

	d, _ = RetryAfterHint(RetryAfter(base, -time.Second))
	require.Zero(t, d)
}
