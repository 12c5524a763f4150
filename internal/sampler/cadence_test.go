package sampler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCadenceReport(t *testing.T) {
	c := newCadence()
	base := time.Unix(0, 0)

	assert.Zero(t, c.observe(base))
	for i := 1; i <= 100; i++ {
		period := c.observe(base.Add(time.Duration(i) * time.Millisecond))
		assert.Equal(t, time.Millisecond, period)
	}

	r := c.report()
	assert.Equal(t, 100, r.Count)
	assert.InDelta(t, float64(time.Millisecond), float64(r.EWMA), 1)
	assert.Equal(t, time.Millisecond, r.Mean)
	assert.Equal(t, time.Duration(0), r.StdDev)
	assert.Equal(t, time.Millisecond, r.Min)
	assert.Equal(t, time.Millisecond, r.Max)
	assert.InDelta(t, float64(time.Millisecond), float64(r.P50), 1)
	assert.InDelta(t, float64(time.Millisecond), float64(r.P99), 1)

	c.reset()
	assert.Zero(t, c.report().Count)
}

func TestCadenceEWMA(t *testing.T) {
	c := newCadence()
	base := time.Unix(0, 0)

	c.observe(base)
	c.observe(base.Add(10 * time.Millisecond))
	c.observe(base.Add(30 * time.Millisecond))

	// 0.1*20ms + 0.9*10ms
	assert.InDelta(t, float64(11*time.Millisecond), float64(c.report().EWMA), 1)
}
