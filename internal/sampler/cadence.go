package sampler

import (
	"math"
	"time"

	"github.com/influxdata/tdigest"
)

const ewmaAlpha = 0.1

// CadenceReport summarizes the observed cycle periods since the last report.
type CadenceReport struct {
	Count  int
	EWMA   time.Duration
	Mean   time.Duration
	StdDev time.Duration
	Min    time.Duration
	Max    time.Duration
	P1     time.Duration
	P50    time.Duration
	P99    time.Duration
}

// cadence tracks the interval between consecutive cycle starts. It is only
// touched by the sampling goroutine.
type cadence struct {
	last   time.Time
	ewma   float64
	digest *tdigest.TDigest

	n          int
	sum, sumSq float64
	min, max   float64
}

func newCadence() *cadence {
	c := &cadence{digest: tdigest.NewWithCompression(100)}
	c.reset()

	return c
}

func (c *cadence) reset() {
	c.digest.Reset()
	c.n = 0
	c.sum, c.sumSq = 0, 0
	c.min, c.max = math.Inf(1), 0
}

// observe records a cycle start and returns the measured period, or 0 for
// the first cycle.
func (c *cadence) observe(start time.Time) time.Duration {
	if c.last.IsZero() {
		c.last = start
		return 0
	}

	period := start.Sub(c.last)
	c.last = start

	v := float64(period)
	if c.ewma == 0 {
		c.ewma = v
	} else {
		c.ewma = ewmaAlpha*v + (1-ewmaAlpha)*c.ewma
	}

	c.digest.Add(v, 1)
	c.n++
	c.sum += v
	c.sumSq += v * v
	c.min = math.Min(c.min, v)
	c.max = math.Max(c.max, v)

	return period
}

func (c *cadence) report() CadenceReport {
	if c.n == 0 {
		return CadenceReport{EWMA: time.Duration(c.ewma)}
	}

	mean := c.sum / float64(c.n)
	variance := math.Max(0, c.sumSq/float64(c.n)-mean*mean)

	return CadenceReport{
		Count:  c.n,
		EWMA:   time.Duration(c.ewma),
		Mean:   time.Duration(mean),
		StdDev: time.Duration(math.Sqrt(variance)),
		Min:    time.Duration(c.min),
		Max:    time.Duration(c.max),
		P1:     time.Duration(c.digest.Quantile(0.01)),
		P50:    time.Duration(c.digest.Quantile(0.5)),
		P99:    time.Duration(c.digest.Quantile(0.99)),
	}
}
