package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/pmtablemon/internal/config"
	"codeberg.org/mutker/pmtablemon/internal/errors"
	"codeberg.org/mutker/pmtablemon/internal/logcodec"
	"codeberg.org/mutker/pmtablemon/internal/logger"
	"codeberg.org/mutker/pmtablemon/internal/metrics"
	"codeberg.org/mutker/pmtablemon/internal/pid"
	"codeberg.org/mutker/pmtablemon/internal/pmtable"
	"codeberg.org/mutker/pmtablemon/internal/sampler"
	"codeberg.org/mutker/pmtablemon/internal/series"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const statusInterval = 5 * time.Second

func runSample(cfg *config.Config) error {
	log := logger.Get()

	pidFile := pid.New("", "")
	if err := pidFile.Write(); err != nil {
		return err
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	// Without a schema samples are captured raw, which is enough for logging
	var schema *pmtable.Schema
	if cfg.Schema != "" || len(cfg.Metrics) > 0 {
		var err error
		if schema, err = cfg.ResolveSchema(); err != nil {
			return err
		}
	} else if cfg.LogFile == "" {
		return errors.New().WithMessage(errors.ErrInvalidSchema, "raw sampling needs --log-file, otherwise select a --schema")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg)
		defer srv.Close()
	}

	var writer *logcodec.Writer
	if cfg.LogFile != "" {
		var err error
		if writer, err = logcodec.CreateFile(cfg.LogFile); err != nil {
			return err
		}
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close sample log")
			}
		}()
	}

	schemaName := ""
	if schema != nil {
		schemaName = schema.Version
	}
	store := cfg.StoreConfig()
	store.Enabled = store.Enabled && schema != nil
	collector, err := metrics.NewService(store, schemaName, log.With("metrics"))
	if err != nil {
		return err
	}
	defer func() {
		if err := collector.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close telemetry store")
		}
	}()

	cache := series.New(cfg.History())
	defer cache.Close()
	if schema != nil {
		cache.Subscribe(schema.Names()...)
	}

	s := sampler.New(sampler.NewFileSource(cfg.Source),
		sampler.WithSchema(schema),
		sampler.WithFrequency(cfg.Frequency),
		sampler.WithBuffer(cfg.Buffer),
		sampler.WithReportEvery(cfg.ReportEvery),
		sampler.WithMetrics(sampler.NewMetrics(reg)),
		sampler.WithLogger(log),
	)
	if err := s.Start(ctx); err != nil {
		return err
	}

	logger.Info().
		Str("source", cfg.Source).
		Str("schema", schemaName).
		Float64("frequency", cfg.Frequency).
		Str("log_file", cfg.LogFile).
		Str("session", collector.SessionID()).
		Msg("Sampling")

	consume(ctx, s, writer, collector, cache)

	return s.Wait()
}

// consume drains the sampler until it closes its channel.
func consume(ctx context.Context, s *sampler.Sampler, writer *logcodec.Writer, collector metrics.Collector, cache *series.Cache) {
	status := time.NewTicker(statusInterval)
	defer status.Stop()

	var written int
	for {
		select {
		case sample, ok := <-s.Samples():
			if !ok {
				logger.Info().Int("written", written).Msg("Sampler finished")
				return
			}

			if writer != nil {
				if err := writer.WriteRecord(sample.Raw); err != nil {
					logger.Error().Err(err).Msg("Failed to write sample log, stopping")
					s.Stop()
					writer = nil
				} else {
					written++
				}
			}

			if sample.Decoded == nil {
				continue
			}
			cache.Update(sample.Decoded)
			if err := collector.Record(ctx, sample.Decoded); err != nil {
				logger.Debug().Err(err).Msg("Failed to store sample")
			}

		case <-status.C:
			logStatus(cache)
		}
	}
}

func logStatus(cache *series.Cache) {
	event := logger.Info()
	for _, name := range cache.Subscribed() {
		if p, ok := cache.Latest(name); ok {
			event.Float64(name, p.Value)
		}
	}
	event.Msg("Latest values")
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Str("addr", addr).Msg("Metrics endpoint failed")
		}
	}()

	return srv
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
