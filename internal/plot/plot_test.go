package plot_test

import (
	"bytes"
	"testing"
	"time"

	"codeberg.org/mutker/pmtablemon/internal/errors"
	"codeberg.org/mutker/pmtablemon/internal/eye"
	"codeberg.org/mutker/pmtablemon/internal/jitter"
	"codeberg.org/mutker/pmtablemon/internal/plot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestRenderEye(t *testing.T) {
	n := 40
	times := make([]time.Time, n)
	state := make([]int, n)
	values := make([]float64, n)
	for i := range times {
		times[i] = time.Unix(0, int64(i)*int64(time.Millisecond))
		if i%20 >= 10 {
			state[i] = 1
		}
		values[i] = float64(state[i]*10 + i%3)
	}

	b, err := eye.Extract(times, state, values, eye.Window{Before: 3 * time.Millisecond, After: 5 * time.Millisecond, Step: time.Millisecond})
	require.NoError(t, err)
	require.False(t, b.Empty())

	var buf bytes.Buffer
	require.NoError(t, plot.RenderEye(&buf, b, "core 1 v17"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

func TestRenderEyeEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := plot.RenderEye(&buf, &eye.Bundle{}, "empty")
	assert.Equal(t, plot.ErrNothingToRender, errors.CodeOf(err))
	assert.Zero(t, buf.Len())
}

func TestRenderJitter(t *testing.T) {
	base := time.Unix(0, 0)
	ts := []time.Time{base}
	for i, d := range []time.Duration{1000, 1010, 990, 1200, 1000, 950} {
		ts = append(ts, ts[i].Add(d*time.Microsecond))
	}

	s, err := jitter.Analyze(ts, time.Millisecond, jitter.WithBins(20))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, plot.RenderJitter(&buf, s, "pm_table"))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))

	err = plot.RenderJitter(&buf, &jitter.Stats{}, "")
	assert.Equal(t, plot.ErrNothingToRender, errors.CodeOf(err))
}
