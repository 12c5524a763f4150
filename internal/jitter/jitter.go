// Package jitter summarizes inter-sample timing of a sampled series against
// its nominal period.
package jitter

import (
	"math"
	"sort"
	"time"

	"codeberg.org/mutker/pmtablemon/internal/errors"
	"codeberg.org/mutker/pmtablemon/internal/stats"
	"gonum.org/v1/gonum/floats"
	gstat "gonum.org/v1/gonum/stat"
)

const (
	DefaultBins    = 500
	DefaultFloor   = 1e-3
	DefaultEpsilon = 1e-9
	DefaultUnit    = time.Millisecond
)

// Stats is a one-shot summary of jitter, expressed in Unit.
type Stats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	Std    float64
	// P99 is taken over absolute jitter.
	P99  float64
	Unit time.Duration

	Edges  []float64
	Counts []int
}

type options struct {
	unit    time.Duration
	bins    int
	floor   float64
	epsilon float64
}

type Option func(*options)

// WithUnit sets the unit all statistics are expressed in.
func WithUnit(unit time.Duration) Option {
	return func(o *options) { o.unit = unit }
}

// WithBins sets the number of positive histogram edges.
func WithBins(k int) Option {
	return func(o *options) { o.bins = k }
}

// WithFloor sets the smallest positive edge, in Unit.
func WithFloor(floor float64) Option {
	return func(o *options) { o.floor = floor }
}

// WithEpsilon sets the margin added to the largest magnitude, in Unit.
func WithEpsilon(eps float64) Option {
	return func(o *options) { o.epsilon = eps }
}

func newOptions(opts []Option) options {
	o := options{
		unit:    DefaultUnit,
		bins:    DefaultBins,
		floor:   DefaultFloor,
		epsilon: DefaultEpsilon,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.unit <= 0 {
		o.unit = DefaultUnit
	}

	return o
}

// Analyze computes jitter statistics for ordered capture instants. n
// timestamps give n-1 jitter samples; fewer than two is ErrInsufficientData.
func Analyze(ts []time.Time, nominal time.Duration, opts ...Option) (*Stats, error) {
	ns := make([]int64, len(ts))
	for i, t := range ts {
		ns[i] = t.UnixNano()
	}

	return AnalyzeNanos(ns, nominal, opts...)
}

// AnalyzeNanos is Analyze over raw nanosecond timestamps, as returned by the
// log codec's timestamp-only read.
func AnalyzeNanos(ns []int64, nominal time.Duration, opts ...Option) (*Stats, error) {
	errFactory := errors.New()
	o := newOptions(opts)

	if len(ns) < 2 {
		return nil, errFactory.WithData(ErrInsufficientData, len(ns))
	}
	if nominal <= 0 {
		return nil, errFactory.WithData(ErrInvalidPeriod, nominal)
	}

	unit := float64(o.unit)
	values := make([]float64, len(ns)-1)
	for i := 1; i < len(ns); i++ {
		values[i-1] = float64(ns[i]-ns[i-1]-int64(nominal)) / unit
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	abs := make([]float64, len(values))
	for i, v := range values {
		abs[i] = math.Abs(v)
	}

	s := &Stats{
		Count:  len(values),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   gstat.Mean(values, nil),
		Median: stats.PercentileSorted(sorted, 50),
		Std:    gstat.PopStdDev(values, nil),
		P99:    stats.Percentile(abs, 99),
		Unit:   o.unit,
	}

	limit := math.Max(math.Abs(s.Min), math.Abs(s.Max)) + o.epsilon
	edges, err := SymLogEdges(limit, o.bins, o.floor)
	if err != nil {
		return nil, err
	}
	s.Edges = edges
	s.Counts = Histogram(values, edges)

	return s, nil
}

// SymLogEdges returns 2k strictly increasing histogram edges symmetric about
// zero: k log-spaced edges from floor to limit, preceded by their mirror
// image. Resolution is finest near zero. When limit does not exceed floor it
// is raised to ten times floor.
func SymLogEdges(limit float64, k int, floor float64) ([]float64, error) {
	errFactory := errors.New()

	if !(floor > 0) {
		return nil, errFactory.WithData(ErrInvalidFloor, floor)
	}
	if k < 2 {
		return nil, errFactory.WithData(ErrInvalidBins, k)
	}
	if !(limit > floor) || math.IsInf(limit, 0) {
		limit = 10 * floor
	}

	pos := floats.LogSpan(make([]float64, k), floor, limit)

	edges := make([]float64, 2*k)
	for i, e := range pos {
		edges[k-1-i] = -e
		edges[k+i] = e
	}

	return edges, nil
}

// Histogram counts values into the bins delimited by edges. Bins are half
// open except the last, which includes its right edge. Values outside the
// edges are not counted.
func Histogram(values, edges []float64) []int {
	if len(edges) < 2 {
		return nil
	}

	counts := make([]int, len(edges)-1)
	first, last := edges[0], edges[len(edges)-1]
	for _, v := range values {
		if v < first || v > last || math.IsNaN(v) {
			continue
		}
		if v == last {
			counts[len(counts)-1]++
			continue
		}
		i := sort.Search(len(edges), func(i int) bool { return edges[i] > v }) - 1
		counts[i]++
	}

	return counts
}
