package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/pmtablemon/internal/errors"
	"codeberg.org/mutker/pmtablemon/internal/eye"
	"codeberg.org/mutker/pmtablemon/internal/jitter"
	"codeberg.org/mutker/pmtablemon/internal/metrics"
	"codeberg.org/mutker/pmtablemon/internal/pmtable"
	"codeberg.org/mutker/pmtablemon/internal/sampler"
	"codeberg.org/mutker/pmtablemon/internal/series"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel   = string(LogLevelWarning)
	DefaultConfigPath = "/etc/pmtablemon.toml"
	DefaultEnvPrefix  = "PMTABLEMON"
)

type Config struct {
	LogLevel string `mapstructure:"log_level"`

	// Live sampling
	Source         string  `mapstructure:"source"`
	Frequency      float64 `mapstructure:"frequency"`
	Schema         string  `mapstructure:"schema"`
	LogFile        string  `mapstructure:"log_file"`
	HistorySeconds float64 `mapstructure:"history_seconds"`
	Buffer         int     `mapstructure:"buffer"`
	ReportEvery    int     `mapstructure:"report_every"`
	MetricsAddr    string  `mapstructure:"metrics_addr"`

	// Decoded sample store
	Telemetry    bool          `mapstructure:"telemetry"`
	TelemetryDB  string        `mapstructure:"telemetry_db"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`

	// Offline analysis
	JitterBins    int           `mapstructure:"jitter_bins"`
	JitterFloor   float64       `mapstructure:"jitter_floor"`
	NominalPeriod time.Duration `mapstructure:"nominal_period"`
	EyeBefore     time.Duration `mapstructure:"eye_before"`
	EyeAfter      time.Duration `mapstructure:"eye_after"`
	EyeStep       time.Duration `mapstructure:"eye_step"`
	SensorPrefix  string        `mapstructure:"sensor_prefix"`
	PlotDir       string        `mapstructure:"plot_dir"`

	// Metrics defines a custom schema named by Schema
	Metrics map[string]pmtable.MetricConfig `mapstructure:"metrics"`

	// Args holds the positional arguments left after flag parsing
	Args []string `mapstructure:"-"`
}

type flagKey struct {
	flag string
	key  string
}

var boundFlags = []flagKey{
	{"log-level", "log_level"},
	{"source", "source"},
	{"frequency", "frequency"},
	{"schema", "schema"},
	{"log-file", "log_file"},
	{"history", "history_seconds"},
	{"buffer", "buffer"},
	{"report-every", "report_every"},
	{"metrics-addr", "metrics_addr"},
	{"telemetry", "telemetry"},
	{"telemetry-db", "telemetry_db"},
	{"batch-size", "batch_size"},
	{"batch-timeout", "batch_timeout"},
	{"bins", "jitter_bins"},
	{"floor", "jitter_floor"},
	{"nominal", "nominal_period"},
	{"before", "eye_before"},
	{"after", "eye_after"},
	{"step", "eye_step"},
	{"prefix", "sensor_prefix"},
	{"plot-dir", "plot_dir"},
}

func setDefaults(v *viper.Viper) {
	store := metrics.DefaultConfig()

	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("source", sampler.DefaultSourcePath)
	v.SetDefault("frequency", float64(sampler.DefaultFrequency))
	v.SetDefault("schema", "")
	v.SetDefault("log_file", "")
	v.SetDefault("history_seconds", series.DefaultHistory.Seconds())
	v.SetDefault("buffer", sampler.DefaultBuffer)
	v.SetDefault("report_every", sampler.DefaultReportEvery)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("telemetry", store.Enabled)
	v.SetDefault("telemetry_db", store.DBPath)
	v.SetDefault("batch_size", store.BatchSize)
	v.SetDefault("batch_timeout", store.BatchTimeout)
	v.SetDefault("jitter_bins", jitter.DefaultBins)
	v.SetDefault("jitter_floor", jitter.DefaultFloor)
	v.SetDefault("nominal_period", time.Duration(0))
	v.SetDefault("eye_before", 50*time.Millisecond)
	v.SetDefault("eye_after", 150*time.Millisecond)
	v.SetDefault("eye_step", time.Millisecond)
	v.SetDefault("sensor_prefix", eye.DefaultSensorPrefix)
	v.SetDefault("plot_dir", ".")
}

// NewFlagSet declares every command line flag understood by Load.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.String("config", "", "Path to the TOML config file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.String("source", sampler.DefaultSourcePath, "PM table source to sample")
	fs.Float64("frequency", sampler.DefaultFrequency, "Sampling frequency in Hz")
	fs.String("schema", "", "PM table schema version, e.g. 0x380905")
	fs.String("log-file", "", "Append raw samples to this binary log")
	fs.Float64("history", series.DefaultHistory.Seconds(), "Seconds of live history kept per metric")
	fs.Int("buffer", sampler.DefaultBuffer, "Sample channel capacity")
	fs.Int("report-every", sampler.DefaultReportEvery, "Log a cadence report every n cycles, 0 to disable")
	fs.String("metrics-addr", "", "Serve sampler metrics on this address, e.g. :9100")
	fs.Bool("telemetry", false, "Store decoded samples in sqlite")
	fs.String("telemetry-db", metrics.DefaultConfig().DBPath, "Path to the sqlite database")
	fs.Int("batch-size", metrics.DefaultConfig().BatchSize, "Records per sqlite flush")
	fs.Duration("batch-timeout", metrics.DefaultConfig().BatchTimeout, "Interval of the background sqlite flush")
	fs.Int("bins", jitter.DefaultBins, "Positive jitter histogram edges")
	fs.Float64("floor", jitter.DefaultFloor, "Smallest jitter histogram edge, in ms")
	fs.Duration("nominal", 0, "Nominal sampling period, defaults to 1/frequency")
	fs.Duration("before", 50*time.Millisecond, "Eye window before the rising edge")
	fs.Duration("after", 150*time.Millisecond, "Eye window after the rising edge")
	fs.Duration("step", time.Millisecond, "Eye resampling step")
	fs.String("prefix", eye.DefaultSensorPrefix, "Sensor column prefix in measurement CSVs")
	fs.String("plot-dir", ".", "Directory PNG plots are written to")

	return fs
}

// Load resolves the configuration from defaults, the config file,
// PMTABLEMON_* environment variables and args, in increasing priority.
// A missing config file is not an error.
func Load(args []string, opts ...Option) (*Config, error) {
	return LoadFlags(NewFlagSet("pmtablemon"), args, opts...)
}

// LoadFlags is Load with a caller supplied flag set, which must contain the
// flags declared by NewFlagSet.
func LoadFlags(fs *pflag.FlagSet, args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(ErrInvalidConfig, err)
		}
	}

	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(ErrParseFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	for _, bf := range boundFlags {
		f := fs.Lookup(bf.flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(bf.key, f); err != nil {
			return nil, errFactory.Wrap(ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	path := configPath(fs, o)
	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(ErrReadConfig, err)
	}
	cfg.Args = fs.Args()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func configPath(fs *pflag.FlagSet, o *options) string {
	if f := fs.Lookup("config"); f != nil && f.Changed {
		return f.Value.String()
	}
	if o.configPath != "" {
		return o.configPath
	}
	if env := os.Getenv(o.envPrefix + "_CONFIG"); env != "" {
		return env
	}

	return DefaultConfigPath
}

func readConfigFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.New().Wrap(ErrReadConfig, err)
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return errors.New().Wrap(ErrReadConfig, err)
	}

	return nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(ErrInvalidLogLevel, c.LogLevel)
	}
	if !(c.Frequency > 0) {
		return errFactory.WithData(ErrInvalidFrequency, c.Frequency)
	}

	invalid := func(field string, value any) error {
		return errFactory.WithData(ErrInvalidConfig, fmt.Sprintf("%s: %v", field, value))
	}

	switch {
	case c.HistorySeconds <= 0:
		return invalid("history_seconds", c.HistorySeconds)
	case c.Buffer < 0:
		return invalid("buffer", c.Buffer)
	case c.ReportEvery < 0:
		return invalid("report_every", c.ReportEvery)
	case c.JitterBins < 2:
		return invalid("jitter_bins", c.JitterBins)
	case !(c.JitterFloor > 0):
		return invalid("jitter_floor", c.JitterFloor)
	case c.NominalPeriod < 0:
		return invalid("nominal_period", c.NominalPeriod)
	case c.EyeStep <= 0:
		return invalid("eye_step", c.EyeStep)
	case c.EyeBefore < 0:
		return invalid("eye_before", c.EyeBefore)
	case c.EyeAfter < 0:
		return invalid("eye_after", c.EyeAfter)
	}

	return c.StoreConfig().Validate()
}

// Period is the sampling period implied by Frequency.
func (c *Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.Frequency)
}

// Nominal is the period jitter is measured against.
func (c *Config) Nominal() time.Duration {
	if c.NominalPeriod > 0 {
		return c.NominalPeriod
	}

	return c.Period()
}

// History is the live retention window.
func (c *Config) History() time.Duration {
	return time.Duration(c.HistorySeconds * float64(time.Second))
}

func (c *Config) Window() eye.Window {
	return eye.Window{Before: c.EyeBefore, After: c.EyeAfter, Step: c.EyeStep}
}

func (c *Config) StoreConfig() metrics.Config {
	store := metrics.DefaultConfig()
	store.Enabled = c.Telemetry
	store.DBPath = c.TelemetryDB
	store.BatchSize = c.BatchSize
	store.BatchTimeout = c.BatchTimeout

	return store
}

// ResolveSchema returns the configured custom schema when metrics are
// defined, otherwise the builtin schema named by Schema. The schema is never
// guessed.
func (c *Config) ResolveSchema() (*pmtable.Schema, error) {
	if c.Schema == "" {
		return nil, errors.New().WithMessage(ErrInvalidSchema,
			fmt.Sprintf("no schema selected, use --schema with one of %s", strings.Join(pmtable.Versions(), ", ")))
	}
	if len(c.Metrics) > 0 {
		return pmtable.FromConfig(c.Schema, c.Metrics)
	}

	return pmtable.Lookup(c.Schema)
}
