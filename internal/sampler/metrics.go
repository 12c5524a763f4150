package sampler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pmtablemon"

// Metrics instruments the sampling loop itself. No telemetry values are
// exported through it.
type Metrics struct {
	Cycles       prometheus.Counter
	Emitted      prometheus.Counter
	Dropped      prometheus.Counter
	EmptyReads   prometheus.Counter
	DecodeErrors prometheus.Counter
	Overruns     prometheus.Counter
	CycleWork    prometheus.Histogram
	PeriodEWMA   prometheus.Gauge
}

// NewMetrics registers the sampler metrics with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "cycles_total",
			Help:      "Sampling cycles run",
		}),
		Emitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "samples_emitted_total",
			Help:      "Samples handed to the consumer",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "samples_dropped_total",
			Help:      "Samples dropped because the consumer buffer was full",
		}),
		EmptyReads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "empty_reads_total",
			Help:      "Cycles skipped because the source returned no bytes",
		}),
		DecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "decode_errors_total",
			Help:      "Records skipped because they failed to decode",
		}),
		Overruns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "overruns_total",
			Help:      "Cycles whose work time exceeded the period",
		}),
		CycleWork: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "cycle_work_seconds",
			Help:      "Read, decode and emit time per cycle",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
		PeriodEWMA: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sampler",
			Name:      "period_ewma_seconds",
			Help:      "Smoothed observed sampling period",
		}),
	}
}
