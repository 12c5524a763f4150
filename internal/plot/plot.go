// Package plot renders eye bundles and jitter histograms to PNG.
package plot

import (
	"fmt"
	"io"
	"math"
	"time"

	"codeberg.org/mutker/pmtablemon/internal/errors"
	"codeberg.org/mutker/pmtablemon/internal/eye"
	"codeberg.org/mutker/pmtablemon/internal/jitter"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	defaultWidth  = 1024
	defaultHeight = 400
)

var (
	traceColor  = drawing.Color{R: 31, G: 119, B: 180, A: 50}
	medianColor = drawing.Color{R: 255, G: 127, B: 14, A: 255}
	bandColor   = drawing.Color{R: 255, G: 127, B: 14, A: 140}
	histColor   = drawing.Color{R: 31, G: 119, B: 180, A: 255}
)

func frame(title, xName, yName string, yr yRange, series []chart.Series) chart.Chart {
	return chart.Chart{
		Title:      title,
		Width:      defaultWidth,
		Height:     defaultHeight,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		XAxis:      chart.XAxis{Name: xName},
		YAxis: chart.YAxis{
			Name:  yName,
			Range: &chart.ContinuousRange{Min: yr.min, Max: yr.max},
		},
		Series: series,
	}
}

type yRange struct {
	min, max float64
}

func (r *yRange) add(values []float64) {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		r.min = math.Min(r.min, v)
		r.max = math.Max(r.max, v)
	}
}

// padded widens the range by 5% on both sides; a flat range becomes +-1.
func (r yRange) padded() yRange {
	if math.IsInf(r.min, 1) {
		return yRange{min: 0, max: 1}
	}
	span := r.max - r.min
	if span == 0 {
		return yRange{min: r.min - 1, max: r.max + 1}
	}

	return yRange{min: r.min - 0.05*span, max: r.max + 0.05*span}
}

func newYRange() yRange {
	return yRange{min: math.Inf(1), max: math.Inf(-1)}
}

// RenderEye draws every trace of b with its median and interquartile band.
// The x axis is milliseconds relative to the rising edge.
func RenderEye(w io.Writer, b *eye.Bundle, title string) error {
	if b == nil || b.Empty() || len(b.Grid) < 2 {
		return errors.New().WithData(ErrNothingToRender, title)
	}

	xs := make([]float64, len(b.Grid))
	for i, g := range b.Grid {
		xs[i] = float64(g) / float64(time.Millisecond)
	}

	yr := newYRange()
	series := make([]chart.Series, 0, len(b.Traces)+3)
	for _, tr := range b.Traces {
		yr.add(tr.Values)
		series = append(series, chart.ContinuousSeries{
			XValues: xs,
			YValues: tr.Values,
			Style:   chart.Style{StrokeColor: traceColor, StrokeWidth: 1},
		})
	}

	band := chart.Style{StrokeColor: bandColor, StrokeWidth: 1.5, StrokeDashArray: []float64{5, 3}}
	series = append(series,
		chart.ContinuousSeries{Name: "P25", XValues: xs, YValues: b.P25, Style: band},
		chart.ContinuousSeries{Name: "P75", XValues: xs, YValues: b.P75, Style: band},
		chart.ContinuousSeries{
			Name:    "Median",
			XValues: xs,
			YValues: b.Median,
			Style:   chart.Style{StrokeColor: medianColor, StrokeWidth: 2.5},
		},
	)

	if title == "" {
		title = "Eye diagram"
	}
	ch := frame(fmt.Sprintf("%s (%d edges, %d dropped)", title, b.Edges, b.Dropped),
		"time relative to rising edge (ms)", "value", yr.padded(), series)

	if err := ch.Render(chart.PNG, w); err != nil {
		return errors.New().Wrap(ErrRender, err)
	}

	return nil
}

// RenderJitter draws the jitter histogram as a step curve over bin centers.
func RenderJitter(w io.Writer, s *jitter.Stats, title string) error {
	if s == nil || len(s.Counts) == 0 {
		return errors.New().WithData(ErrNothingToRender, title)
	}

	xs := make([]float64, 0, 2*len(s.Counts))
	ys := make([]float64, 0, 2*len(s.Counts))
	yr := yRange{min: 0, max: 0}
	for i, c := range s.Counts {
		xs = append(xs, s.Edges[i], s.Edges[i+1])
		ys = append(ys, float64(c), float64(c))
		yr.max = math.Max(yr.max, float64(c))
	}

	if title == "" {
		title = "Jitter"
	}
	unit := s.Unit.String()
	ch := frame(
		fmt.Sprintf("%s: mean %.4g, std %.4g, p99 |j| %.4g (%s)", title, s.Mean, s.Std, s.P99, unit),
		fmt.Sprintf("jitter (%s)", unit), "count", yr.padded(),
		[]chart.Series{chart.ContinuousSeries{
			Name:    "count",
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: histColor, StrokeWidth: 1.5},
		}},
	)

	if err := ch.Render(chart.PNG, w); err != nil {
		return errors.New().Wrap(ErrRender, err)
	}

	return nil
}
