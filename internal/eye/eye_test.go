package eye_test

import (
	"testing"
	"time"

	"codeberg.org/mutker/pmtablemon/internal/errors"
	"codeberg.org/mutker/pmtablemon/internal/eye"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Unix(3485, 0)

func series(n int, period time.Duration, state func(i int) int, value func(i int) float64) ([]time.Time, []int, []float64) {
	times := make([]time.Time, n)
	states := make([]int, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		times[i] = base.Add(time.Duration(i) * period)
		states[i] = state(i)
		values[i] = value(i)
	}

	return times, states, values
}

func step(at int) func(int) int {
	return func(i int) int {
		if i >= at {
			return 1
		}
		return 0
	}
}

func TestRisingEdges(t *testing.T) {
	assert.Equal(t, []int{2, 5}, eye.RisingEdges([]int{1, 0, 1, 1, 0, 1, 0}))
	assert.Empty(t, eye.RisingEdges([]int{1, 1, 1}))
	assert.Empty(t, eye.RisingEdges(nil))
}

func TestWindowGrid(t *testing.T) {
	grid := eye.Window{Before: 50 * time.Millisecond, After: 150 * time.Millisecond, Step: time.Millisecond}.Grid()
	require.Len(t, grid, 201)
	assert.Equal(t, -50*time.Millisecond, grid[0])
	assert.Equal(t, time.Duration(0), grid[50])
	assert.Equal(t, 150*time.Millisecond, grid[200])

	grid = eye.Window{Before: time.Millisecond, After: 2 * time.Millisecond, Step: 2 * time.Millisecond}.Grid()
	assert.Equal(t, []time.Duration{-time.Millisecond, time.Millisecond}, grid)
}

func TestExtractSingleEdge(t *testing.T) {
	times, state, values := series(100, time.Millisecond, step(50), func(i int) float64 { return float64(i * i) })

	b, err := eye.Extract(times, state, values, eye.Window{
		Before: 10 * time.Millisecond,
		After:  20 * time.Millisecond,
		Step:   time.Millisecond,
	})
	require.NoError(t, err)

	require.Len(t, b.Traces, 1)
	assert.Equal(t, 1, b.Edges)
	assert.Zero(t, b.Dropped)
	assert.True(t, times[50].Equal(b.Traces[0].Edge))

	require.Len(t, b.Grid, 31)
	assert.Equal(t, time.Duration(0), b.Grid[10])
	assert.InDelta(t, 2500.0, b.Traces[0].Values[10], 1e-9)
	assert.InDelta(t, 1600.0, b.Traces[0].Values[0], 1e-9)
	assert.InDelta(t, 4900.0, b.Traces[0].Values[30], 1e-9)
	assert.Equal(t, b.Traces[0].Values, b.Median)
}

func TestExtractInterpolatesBetweenSamples(t *testing.T) {
	times, state, values := series(100, time.Millisecond, step(50), func(i int) float64 { return float64(i * i) })

	b, err := eye.Extract(times, state, values, eye.Window{
		Before: 2 * time.Millisecond,
		After:  2 * time.Millisecond,
		Step:   500 * time.Microsecond,
	})
	require.NoError(t, err)
	require.Len(t, b.Traces, 1)

	// grid index 5 is +0.5ms, halfway between samples 50 and 51
	assert.Equal(t, 500*time.Microsecond, b.Grid[5])
	assert.InDelta(t, 2550.5, b.Traces[0].Values[5], 1e-9)
}

func TestExtractIrregularSampling(t *testing.T) {
	offsets := []time.Duration{0, 3, 4, 9, 10, 17, 20}
	times := make([]time.Time, len(offsets))
	for i, o := range offsets {
		times[i] = base.Add(o * time.Millisecond)
	}
	state := []int{0, 0, 0, 1, 1, 1, 1}
	// value equals milliseconds since base, so every interpolated point is exact
	values := []float64{0, 3, 4, 9, 10, 17, 20}

	b, err := eye.Extract(times, state, values, eye.Window{
		Before: 5 * time.Millisecond,
		After:  5 * time.Millisecond,
		Step:   time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, b.Traces, 1)

	for i, g := range b.Grid {
		want := 9 + float64(g)/float64(time.Millisecond)
		if want > 10 {
			// beyond the last sample in the window the trace holds its end value
			want = 10
		}
		assert.InDelta(t, want, b.Traces[0].Values[i], 1e-9, "grid %v", g)
	}
}

func TestExtractDropsSparseEdges(t *testing.T) {
	times, state, values := series(3, 100*time.Millisecond, step(1), func(i int) float64 { return float64(i) })

	b, err := eye.Extract(times, state, values, eye.Window{
		Before: 10 * time.Millisecond,
		After:  10 * time.Millisecond,
		Step:   time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, b.Empty())
	assert.Equal(t, 1, b.Edges)
	assert.Equal(t, 1, b.Dropped)
	assert.Nil(t, b.Median)
}

func TestExtractDropsDuplicateTimestamps(t *testing.T) {
	times, state, values := series(10, time.Millisecond, step(5), func(i int) float64 { return float64(i) })
	times[6] = times[5]

	b, err := eye.Extract(times, state, values, eye.Window{
		Before: 2 * time.Millisecond,
		After:  2 * time.Millisecond,
		Step:   time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, b.Empty())
	assert.Equal(t, 1, b.Dropped)
}

func TestExtractNoTransitions(t *testing.T) {
	times, state, values := series(10, time.Millisecond, func(int) int { return 1 }, func(int) float64 { return 1 })

	b, err := eye.Extract(times, state, values, eye.Window{Before: time.Millisecond, After: time.Millisecond, Step: time.Millisecond})
	require.NoError(t, err)
	assert.True(t, b.Empty())
	assert.Zero(t, b.Edges)
}

func TestExtractEnvelope(t *testing.T) {
	pulse := func(i int) int {
		if i%10 >= 5 {
			return 1
		}
		return 0
	}
	level := func(i int) float64 { return float64(10 * (i/10 + 1)) }
	times, state, values := series(30, time.Millisecond, pulse, level)

	b, err := eye.Extract(times, state, values, eye.Window{
		Before: 2 * time.Millisecond,
		After:  2 * time.Millisecond,
		Step:   time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, b.Traces, 3)

	for i := range b.Grid {
		assert.InDelta(t, 20.0, b.Median[i], 1e-9)
		assert.InDelta(t, 15.0, b.P25[i], 1e-9)
		assert.InDelta(t, 25.0, b.P75[i], 1e-9)
	}
}

func TestExtractInvalidInput(t *testing.T) {
	times, state, values := series(5, time.Millisecond, step(2), func(int) float64 { return 0 })

	_, err := eye.Extract(times, state[:4], values, eye.Window{Step: time.Millisecond})
	assert.Equal(t, eye.ErrInvalidInput, errors.CodeOf(err))

	_, err = eye.Extract(times, state, values, eye.Window{Before: time.Millisecond})
	assert.Equal(t, eye.ErrInvalidInput, errors.CodeOf(err))
}
