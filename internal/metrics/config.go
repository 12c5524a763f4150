package metrics

import (
	"time"

	"codeberg.org/mutker/pmtablemon/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm      = 0o755
	defaultDBPath       = "/var/lib/pmtablemon/telemetry.db"
	defaultBackupDir    = "/var/lib/pmtablemon/backups"
	defaultBatchSize    = 500
	defaultBatchTimeout = 5 * time.Second
)

type Config struct {
	DBPath    string
	BackupDir string
	Enabled   bool
	// BatchSize is the number of buffered records that forces a flush.
	BatchSize int
	// BatchTimeout is the interval of the background flush; 0 disables it.
	BatchTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		BackupDir:    defaultBackupDir,
		Enabled:      false, // Disabled by default
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate paths if the store is enabled
	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 1 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			Field string
			Value int
		}{
			Field: "batch_size",
			Value: c.BatchSize,
		})
	}

	return nil
}
