package rules

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"contextbot/internal/chat"
	"contextbot/internal/clock"
)

type fakeActivity struct {
	counts []int
	err    error
}

func (f fakeActivity) CountHistory(context.Context) ([]int, error) { return f.counts, f.err }
func (f fakeActivity) MessageCount(context.Context) (int, error)  { return 0, f.err }
func (f fakeActivity) Latest(context.Context) (chat.Message, bool, error) {
	return chat.Message{}, false, f.err
}

// constRule returns a fixed result and counts its evaluations.
type constRule struct {
	result bool
	calls  int
}

func (c *constRule) Evaluate(context.Context, Activity) (bool, error) {
	c.calls++
	return c.result, nil
}
func (c *constRule) String() string { return "const" }

func eval(t *testing.T, r Rule, a Activity) bool {
	t.Helper()
	ok, err := r.Evaluate(context.Background(), a)
	require.NoError(t, err)
	return ok
}

func TestLongThread(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		counts []int
		want   bool
	}{
		{name: "empty", counts: nil, want: false},
		{name: "flat", counts: []int{5, 5, 5, 5, 5}, want: false},
		{name: "spike", counts: []int{1, 1, 1, 1, 10}, want: true},
		{name: "single", counts: []int{3}, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, eval(t, LongThread{}, fakeActivity{counts: tt.counts}))
		})
	}
}

func TestDeviationValues(t *testing.T) {
	t.Parallel()
	_, ok := Deviation(nil)
	require.False(t, ok)

	dev, ok := Deviation([]int{5, 5, 5, 5, 5})
	require.True(t, ok)
	require.Zero(t, dev)

	dev, ok = Deviation([]int{1, 1, 1, 1, 10})
	require.True(t, ok)
	require.InDelta(t, math.Sqrt(4.32), dev, 1e-9)
}

func TestLongThreadCustomFactor(t *testing.T) {
	t.Parallel()
	a := fakeActivity{counts: []int{1, 1, 1, 1, 10}}
	require.False(t, eval(t, LongThread{Factor: 3}, a))
	require.Equal(t, "long_thread(3)", LongThread{Factor: 3}.String())
}

func TestLongThreadPropagatesErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	_, err := LongThread{}.Evaluate(context.Background(), fakeActivity{err: boom})
	require.ErrorIs(t, err, boom)
}

func TestDelayGating(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(time.Unix(0, 0))
	d := NewDelay(100*time.Second, clk)

	require.True(t, eval(t, d, nil))
	clk.Set(time.Unix(50, 0))
	require.False(t, eval(t, d, nil))
	clk.Set(time.Unix(150, 0))
	require.True(t, eval(t, d, nil))

	last, ok := d.LastFire()
	require.True(t, ok)
	require.Equal(t, time.Unix(150, 0), last)

	// Exactly one interval later passes again.
	clk.Set(time.Unix(250, 0))
	require.True(t, eval(t, d, nil))
}

func TestRandomKeepsInvertedSemantics(t *testing.T) {
	t.Parallel()
	rng := clock.NewScripted(0.2, 0.8, 0.5)
	r := NewRandom(0.5, rng)

	require.False(t, eval(t, r, nil)) // 0.2 < 0.5
	require.True(t, eval(t, r, nil))  // 0.8 >= 0.5
	require.True(t, eval(t, r, nil))  // 0.5 >= 0.5
	require.Equal(t, 3, rng.Calls())

	never := NewRandom(DefaultRandomChance, clock.NewScripted(0.999999))
	require.False(t, eval(t, never, nil))
}

func TestSequenceEvaluatesEveryChild(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(time.Unix(1000, 0))
	rng := clock.NewScripted(0.0)
	d := NewDelay(time.Hour, clk)
	r := NewRandom(0.5, rng)

	// random fails first, so a short-circuiting AND would never reach delay.
	seq := All(r, d)
	require.False(t, eval(t, seq, nil))

	require.Equal(t, 1, rng.Calls())
	_, fired := d.LastFire()
	require.True(t, fired, "delay must advance even though the result was decided")
}

func TestAllAndAny(t *testing.T) {
	t.Parallel()
	yes, no := &constRule{result: true}, &constRule{result: false}

	require.False(t, eval(t, All(yes, no), nil))
	require.True(t, eval(t, All(yes, yes), nil))
	require.True(t, eval(t, Any(no, yes), nil))
	require.False(t, eval(t, Any(no, no), nil))
	require.Equal(t, 4, no.calls)
	require.Equal(t, 4, yes.calls)
}

func TestSequenceReducerSeesOrderedResults(t *testing.T) {
	t.Parallel()
	var seen []bool
	seq := NewSequence("first", func(rs []bool) bool {
		seen = append([]bool(nil), rs...)
		return rs[0]
	}, &constRule{result: true}, &constRule{result: false}, &constRule{result: true})

	require.True(t, eval(t, seq, nil))
	require.Equal(t, []bool{true, false, true}, seen)
}

func TestSequenceStopsOnError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	_, err := All(LongThread{}).Evaluate(context.Background(), fakeActivity{err: boom})
	require.ErrorIs(t, err, boom)
}

func TestDefaultTree(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(time.Unix(0, 0))
	rng := clock.NewScripted(0.99)

	a := Default(clk, rng)
	b := Default(clk, rng)
	require.NotSame(t, a, b)
	require.Equal(t, "all(long_thread, delay(30m0s), random(75))", a.String())

	// Spiking activity still never fires: random(75) can't pass.
	require.False(t, eval(t, a, fakeActivity{counts: []int{1, 1, 1, 1, 10}}))
}

func TestBuild(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(time.Unix(0, 0))
	rng := clock.NewScripted(0.9)

	r, err := Build(Spec{Kind: "any", Rules: []Spec{
		{Kind: "long_thread"},
		{Kind: "all", Rules: []Spec{{Kind: "delay", Interval: time.Minute}, {Kind: "random", Chance: 0.5}}},
	}}, clk, rng)
	require.NoError(t, err)
	require.Equal(t, "any(long_thread, all(delay(1m0s), random(0.5)))", r.String())
	require.True(t, eval(t, r, fakeActivity{counts: []int{5, 5}}))

	r, err = Build(Spec{}, clk, rng)
	require.NoError(t, err)
	require.Equal(t, "all(long_thread, delay(30m0s), random(75))", r.String())

	r, err = Build(Spec{Kind: "delay"}, clk, rng)
	require.NoError(t, err)
	require.Equal(t, DefaultDelay, r.(*Delay).Interval())
}

func TestBuildRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		spec Spec
		want error
	}{
		{name: "high word count", spec: Spec{Kind: "high_word_count"}, want: ErrNotImplemented},
		{name: "nested high word count", spec: Spec{Kind: "all", Rules: []Spec{{Kind: "long_thread"}, {Kind: "high_word_count"}}}, want: ErrNotImplemented},
		{name: "unknown", spec: Spec{Kind: "sentiment"}, want: ErrUnknownKind},
		{name: "empty all", spec: Spec{Kind: "all"}, want: ErrInvalidRule},
		{name: "nested child without kind", spec: Spec{Kind: "any", Rules: []Spec{{Kind: "long_thread"}, {}}}, want: ErrInvalidRule},
		{name: "negative delay", spec: Spec{Kind: "delay", Interval: -time.Second}, want: ErrInvalidRule},
		{name: "negative factor", spec: Spec{Kind: "long_thread", Factor: -1}, want: ErrInvalidRule},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Build(tt.spec, clock.NewManual(time.Time{}), clock.NewScripted())
			require.ErrorIs(t, err, tt.want)
		})
	}
}
