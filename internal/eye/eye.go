// Package eye aligns a sensor trace on every rising edge of a control state
// series and aggregates the aligned traces into an eye diagram.
package eye

import (
	"fmt"
	"math"
	"time"

	"codeberg.org/mutker/pmtablemon/internal/errors"
	"codeberg.org/mutker/pmtablemon/internal/stats"
	"gonum.org/v1/gonum/interp"
)

// Window is the span around each edge and the resampling step.
type Window struct {
	Before time.Duration
	After  time.Duration
	Step   time.Duration
}

// Grid returns the relative sample times -Before, -Before+Step, ... up to
// and including +After when it falls on the grid.
func (w Window) Grid() []time.Duration {
	if w.Step <= 0 {
		return nil
	}

	n := int(math.Floor(float64(w.Before+w.After)/float64(w.Step)+1e-9)) + 1
	if n < 1 {
		return nil
	}

	grid := make([]time.Duration, n)
	for i := range grid {
		grid[i] = -w.Before + time.Duration(i)*w.Step
	}

	return grid
}

// Trace is one edge's resampled values on the bundle grid.
type Trace struct {
	Edge   time.Time
	Values []float64
}

// Bundle aggregates all traces of one series.
type Bundle struct {
	Grid   []time.Duration
	Traces []Trace
	Median []float64
	P25    []float64
	P75    []float64
	// Edges counts detected rising edges, Dropped those without a trace.
	Edges   int
	Dropped int
}

// Empty reports that no transition produced a trace.
func (b *Bundle) Empty() bool {
	return len(b.Traces) == 0
}

// RisingEdges returns every index i > 0 where state goes from 0 to 1.
func RisingEdges(state []int) []int {
	var edges []int
	for i := 1; i < len(state); i++ {
		if state[i-1] == 0 && state[i] == 1 {
			edges = append(edges, i)
		}
	}

	return edges
}

// Extract builds the eye bundle for one series. times must be ascending and
// parallel to state and values. Edges with fewer than two samples in their
// window are dropped; a bundle with no traces is returned, not an error.
func Extract(times []time.Time, state []int, values []float64, w Window) (*Bundle, error) {
	errFactory := errors.New()

	if len(times) != len(state) || len(times) != len(values) {
		return nil, errFactory.WithData(ErrInvalidInput,
			fmt.Sprintf("length mismatch: %d times, %d states, %d values", len(times), len(state), len(values)))
	}
	if w.Step <= 0 || w.Before < 0 || w.After < 0 {
		return nil, errFactory.WithData(ErrInvalidInput, fmt.Sprintf("window %+v", w))
	}

	grid := w.Grid()
	at := make([]float64, len(grid))
	for i, g := range grid {
		at[i] = float64(g)
	}

	edges := RisingEdges(state)
	b := &Bundle{Grid: grid, Edges: len(edges)}

	for _, idx := range edges {
		edge := times[idx]
		trace, ok := resample(times, values, edge, w, at)
		if !ok {
			b.Dropped++
			continue
		}
		b.Traces = append(b.Traces, Trace{Edge: edge, Values: trace})
	}

	b.aggregate()

	return b, nil
}

func resample(times []time.Time, values []float64, edge time.Time, w Window, at []float64) ([]float64, bool) {
	start, end := edge.Add(-w.Before), edge.Add(w.After)

	var xs, ys []float64
	for i, t := range times {
		if t.Before(start) || t.After(end) {
			continue
		}
		xs = append(xs, float64(t.Sub(edge)))
		ys = append(ys, values[i])
	}
	if len(xs) < 2 {
		return nil, false
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, false
	}

	out := make([]float64, len(at))
	for i, x := range at {
		out[i] = pl.Predict(x)
	}

	return out, true
}

func (b *Bundle) aggregate() {
	if b.Empty() {
		return
	}

	n := len(b.Grid)
	b.Median = make([]float64, n)
	b.P25 = make([]float64, n)
	b.P75 = make([]float64, n)

	column := make([]float64, len(b.Traces))
	for i := 0; i < n; i++ {
		for j, tr := range b.Traces {
			column[j] = tr.Values[i]
		}
		b.Median[i] = stats.Percentile(column, 50)
		b.P25[i] = stats.Percentile(column, 25)
		b.P75[i] = stats.Percentile(column, 75)
	}
}
