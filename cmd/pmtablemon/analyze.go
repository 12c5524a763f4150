package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"codeberg.org/mutker/pmtablemon/internal/config"
	"codeberg.org/mutker/pmtablemon/internal/errors"
	"codeberg.org/mutker/pmtablemon/internal/eye"
	"codeberg.org/mutker/pmtablemon/internal/jitter"
	"codeberg.org/mutker/pmtablemon/internal/logcodec"
	"codeberg.org/mutker/pmtablemon/internal/logger"
	"codeberg.org/mutker/pmtablemon/internal/plot"
	"codeberg.org/mutker/pmtablemon/internal/pmtable"
)

func runDecode(cfg *config.Config) error {
	path, err := requireArg(cfg, "log file")
	if err != nil {
		return err
	}
	schema, err := cfg.ResolveSchema()
	if err != nil {
		return err
	}

	f, err := logcodec.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	records, res, err := logcodec.ReadAll(f)
	if err != nil {
		return err
	}
	if res.Truncated {
		logger.Warn().Str("file", path).Int("records", res.Records).Msg("Log ends in a partial record, ignoring it")
	}

	skipped, err := writeCSV(os.Stdout, schema, records)
	if err != nil {
		return err
	}

	logger.Info().Int("records", len(records)).Int("skipped", skipped).Str("schema", schema.Version).Msg("Decoded log")

	return nil
}

// writeCSV writes one row per decodable record: timestamp_ns followed by
// every scalar and derived metric of the schema. Missing values are empty.
func writeCSV(w io.Writer, schema *pmtable.Schema, records []pmtable.RawRecord) (int, error) {
	errFactory := errors.New()

	names := schema.Names()
	out := csv.NewWriter(w)
	if err := out.Write(append([]string{"timestamp_ns"}, names...)); err != nil {
		return 0, errFactory.Wrap(errors.ErrWriteOutput, err)
	}

	var skipped int
	row := make([]string, len(names)+1)
	for _, raw := range records {
		rec, err := pmtable.DecodeRecord(raw, schema)
		if err != nil {
			skipped++
			logger.Debug().Err(err).Time("timestamp", raw.Timestamp).Msg("Skipping undecodable record")
			continue
		}

		row[0] = strconv.FormatInt(rec.Timestamp.UnixNano(), 10)
		for i, name := range names {
			row[i+1] = formatValue(rec.Value(name))
		}
		if err := out.Write(row); err != nil {
			return skipped, errFactory.Wrap(errors.ErrWriteOutput, err)
		}
	}

	out.Flush()
	if err := out.Error(); err != nil {
		return skipped, errFactory.Wrap(errors.ErrWriteOutput, err)
	}

	return skipped, nil
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}

	return strconv.FormatFloat(v, 'g', -1, 64)
}

func runJitter(cfg *config.Config) error {
	path, err := requireArg(cfg, "log file")
	if err != nil {
		return err
	}

	f, err := logcodec.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ts, res, err := logcodec.ReadTimestamps(f)
	if err != nil {
		return err
	}
	if res.Truncated {
		logger.Warn().Str("file", path).Int("records", res.Records).Msg("Log ends in a partial record, ignoring it")
	}

	nominal := cfg.Nominal()
	st, err := jitter.AnalyzeNanos(ts, nominal,
		jitter.WithBins(cfg.JitterBins),
		jitter.WithFloor(cfg.JitterFloor),
	)
	if err != nil {
		return err
	}

	fmt.Printf("samples   %d\n", len(ts))
	fmt.Printf("intervals %d\n", st.Count)
	fmt.Printf("nominal   %s\n", nominal)
	fmt.Printf("min       %.6f ms\n", st.Min)
	fmt.Printf("max       %.6f ms\n", st.Max)
	fmt.Printf("mean      %.6f ms\n", st.Mean)
	fmt.Printf("median    %.6f ms\n", st.Median)
	fmt.Printf("std       %.6f ms\n", st.Std)
	fmt.Printf("p99 |j|   %.6f ms\n", st.P99)

	if cfg.PlotDir == "" {
		return nil
	}

	out := filepath.Join(cfg.PlotDir, "jitter.png")
	title := fmt.Sprintf("%s, nominal %s", filepath.Base(path), nominal)
	if err := writePlot(out, func(w *os.File) error { return plot.RenderJitter(w, st, title) }); err != nil {
		return err
	}
	logger.Info().Str("file", out).Msg("Wrote jitter histogram")

	return nil
}

func runEye(cfg *config.Config) error {
	path, err := requireArg(cfg, "measurement CSV")
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.New().Wrap(errors.ErrResourceNotFound, err)
	}
	defer f.Close()

	ds, err := eye.LoadCSV(f, cfg.SensorPrefix)
	if err != nil {
		return err
	}
	if ds.Skipped > 0 {
		logger.Warn().Int("rows", ds.Rows).Int("skipped", ds.Skipped).Msg("Skipped malformed rows")
	}

	bundles, err := eye.ExtractGroups(ds, cfg.Window())
	if err != nil {
		return err
	}

	var rendered int
	for _, sb := range bundles {
		if sb.Bundle.Empty() {
			logger.Info().
				Int("round", sb.Key.Round).
				Int("core", sb.Key.Core).
				Str("sensor", sb.Sensor).
				Msg("No transitions found")
			continue
		}

		fmt.Printf("round %d core %d %s: %d edges, %d traces, %d dropped\n",
			sb.Key.Round, sb.Key.Core, sb.Sensor, sb.Bundle.Edges, len(sb.Bundle.Traces), sb.Bundle.Dropped)

		if cfg.PlotDir == "" {
			continue
		}
		out := filepath.Join(cfg.PlotDir, fmt.Sprintf("eye_r%d_c%d_%s.png", sb.Key.Round, sb.Key.Core, sb.Sensor))
		title := fmt.Sprintf("round %d core %d %s", sb.Key.Round, sb.Key.Core, sb.Sensor)
		bundle := sb.Bundle
		if err := writePlot(out, func(w *os.File) error { return plot.RenderEye(w, bundle, title) }); err != nil {
			return err
		}
		rendered++
	}

	logger.Info().Int("groups", len(ds.Groups)).Int("plots", rendered).Msg("Eye extraction done")

	return nil
}

func writePlot(path string, render func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New().Wrap(errors.ErrWriteOutput, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.New().Wrap(errors.ErrWriteOutput, err)
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return errors.New().Wrap(errors.ErrWriteOutput, err)
	}

	return nil
}
