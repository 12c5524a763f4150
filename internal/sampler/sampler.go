// Package sampler re-reads a PM table source at a fixed frequency and hands
// each capture to a consumer over a bounded channel.
package sampler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/pmtablemon/internal/errors"
	"codeberg.org/mutker/pmtablemon/internal/logger"
	"codeberg.org/mutker/pmtablemon/internal/pmtable"
)

const (
	DefaultFrequency   = 1000
	DefaultBuffer      = 1024
	DefaultReportEvery = 10000
)

// Sample is one capture. Decoded is nil when the sampler runs without a
// schema.
type Sample struct {
	Raw     pmtable.RawRecord
	Decoded *pmtable.DecodedRecord
}

type Option func(*Sampler)

// WithSchema decodes every capture. Without it samples are raw.
func WithSchema(schema *pmtable.Schema) Option {
	return func(s *Sampler) { s.schema = schema }
}

func WithPeriod(period time.Duration) Option {
	return func(s *Sampler) { s.period = period }
}

// WithFrequency sets the period to 1/hz seconds.
func WithFrequency(hz float64) Option {
	return func(s *Sampler) {
		if hz > 0 {
			s.period = time.Duration(float64(time.Second) / hz)
		} else {
			s.period = 0
		}
	}
}

// WithBuffer sets the capacity of the sample channel.
func WithBuffer(n int) Option {
	return func(s *Sampler) { s.buffer = n }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Sampler) { s.metrics = m }
}

func WithLogger(log logger.Logger) Option {
	return func(s *Sampler) { s.log = log }
}

// WithReportEvery logs a cadence report every n cycles; 0 disables it.
func WithReportEvery(n int) Option {
	return func(s *Sampler) { s.reportEvery = n }
}

type Sampler struct {
	src         Source
	schema      *pmtable.Schema
	period      time.Duration
	buffer      int
	metrics     *Metrics
	log         logger.Logger
	reportEvery int

	out     chan Sample
	done    chan struct{}
	started atomic.Bool
	stopped atomic.Bool
	cadence *cadence

	mu  sync.Mutex
	err error
}

func New(src Source, opts ...Option) *Sampler {
	s := &Sampler{
		src:         src,
		period:      time.Second / DefaultFrequency,
		buffer:      DefaultBuffer,
		reportEvery: DefaultReportEvery,
		done:        make(chan struct{}),
		cadence:     newCadence(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.buffer < 0 {
		s.buffer = 0
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.log == nil {
		s.log = logger.Get()
	}
	s.log = s.log.With("sampler")
	s.out = make(chan Sample, s.buffer)

	return s
}

// Period returns the target cycle period.
func (s *Sampler) Period() time.Duration {
	return s.period
}

// Start opens the source and performs the first read before returning, so a
// missing or unreadable source fails the run here. The loop then runs in
// its own goroutine until Stop, ctx cancellation or a read error.
func (s *Sampler) Start(ctx context.Context) error {
	errFactory := errors.New()

	if !s.started.CompareAndSwap(false, true) {
		return errFactory.New(ErrAlreadyStarted)
	}
	if s.period <= 0 {
		s.finish()
		return errFactory.WithData(ErrInvalidPeriod, s.period)
	}

	if err := s.src.Open(); err != nil {
		s.finish()
		return errFactory.Wrap(ErrSourceUnavailable, err)
	}

	start := time.Now()
	payload, err := s.src.ReadAll()
	if err != nil {
		s.src.Close()
		s.finish()
		return errFactory.Wrap(ErrSourceUnavailable, err)
	}

	s.log.Info().
		Dur("period", s.period).
		Int("buffer", s.buffer).
		Bool("decode", s.schema != nil).
		Int("bytes", len(payload)).
		Msg("Sampler started")

	go s.run(ctx, start, payload)

	return nil
}

// Samples returns the output channel. It is closed when the loop exits.
func (s *Sampler) Samples() <-chan Sample {
	return s.out
}

// Stop asks the loop to exit. It is seen at the next cycle boundary.
func (s *Sampler) Stop() {
	s.stopped.Store(true)
}

// Done is closed once the loop has exited.
func (s *Sampler) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the loop exits and returns the read error that ended
// it, if any.
func (s *Sampler) Wait() error {
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

func (s *Sampler) finish() {
	close(s.out)
	close(s.done)
}

func (s *Sampler) run(ctx context.Context, start time.Time, payload []byte) {
	defer s.finish()
	defer s.src.Close()

	var cycles int
	for {
		s.cycle(start, payload)

		elapsed := time.Since(start)
		s.metrics.Cycles.Inc()
		s.metrics.CycleWork.Observe(elapsed.Seconds())

		cycles++
		if s.reportEvery > 0 && cycles%s.reportEvery == 0 {
			s.reportCadence()
		}

		if s.stopped.Load() {
			s.log.Debug().Int("cycles", cycles).Msg("Sampler stopped")
			return
		}

		if wait := s.period - elapsed; wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		} else {
			s.metrics.Overruns.Inc()
			if ctx.Err() != nil {
				return
			}
		}

		start = time.Now()
		var err error
		payload, err = s.src.ReadAll()
		if err != nil {
			readErr := errors.New().Wrap(ErrSourceRead, err)
			s.mu.Lock()
			s.err = readErr
			s.mu.Unlock()
			s.log.ErrorWithCode(readErr).Int("cycles", cycles).Msg("Sampling stopped on read failure")
			return
		}
	}
}

func (s *Sampler) cycle(start time.Time, payload []byte) {
	if period := s.cadence.observe(start); period > 0 {
		s.metrics.PeriodEWMA.Set(time.Duration(s.cadence.ewma).Seconds())
	}

	if len(payload) == 0 {
		s.metrics.EmptyReads.Inc()
		return
	}

	sample := Sample{Raw: pmtable.RawRecord{Timestamp: start, Payload: payload}}
	if s.schema != nil {
		rec, err := pmtable.DecodeRecord(sample.Raw, s.schema)
		if err != nil {
			s.metrics.DecodeErrors.Inc()
			s.log.Debug().Err(err).Msg("Skipping undecodable record")
			return
		}
		sample.Decoded = rec
	}

	select {
	case s.out <- sample:
		s.metrics.Emitted.Inc()
	default:
		s.metrics.Dropped.Inc()
	}
}

func (s *Sampler) reportCadence() {
	r := s.cadence.report()
	s.cadence.reset()

	s.log.Info().
		Int("samples", r.Count).
		Dur("target", s.period).
		Dur("ewma", r.EWMA).
		Dur("mean", r.Mean).
		Dur("stddev", r.StdDev).
		Dur("min", r.Min).
		Dur("max", r.Max).
		Dur("p1", r.P1).
		Dur("p50", r.P50).
		Dur("p99", r.P99).
		Msg("Sampling cadence")
}
