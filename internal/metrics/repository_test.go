package metrics_test

import (
	"context"
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/pmtablemon/internal/errors"
	"codeberg.org/mutker/pmtablemon/internal/logger"
	"codeberg.org/mutker/pmtablemon/internal/metrics"
	"codeberg.org/mutker/pmtablemon/internal/pmtable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) metrics.Config {
	t.Helper()

	dir := t.TempDir()
	cfg := metrics.DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = filepath.Join(dir, "telemetry.db")
	cfg.BackupDir = filepath.Join(dir, "backups")
	cfg.BatchSize = 2
	cfg.BatchTimeout = 0

	return cfg
}

func record(ts time.Time, power float64) *pmtable.DecodedRecord {
	return &pmtable.DecodedRecord{
		Timestamp: ts,
		Fields:    map[string]float64{"socket_power": power, "cpu_temp": math.NaN()},
		Derived:   map[string]float64{"total_core_power": power / 2},
	}
}

func TestRepositoryRoundTrip(t *testing.T) {
	cfg := testConfig(t)

	repo, err := metrics.NewRepository(cfg, "0x380905", logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Record(record(base.Add(time.Duration(i)*time.Millisecond), float64(10+i))))
	}

	ctx := context.Background()

	// two records reached the batch size, the third is still buffered
	got, err := repo.Samples(ctx, repo.SessionID(), "socket_power")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, repo.Flush())
	got, err = repo.Samples(ctx, repo.SessionID(), "socket_power")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 12.0, got[2].Value)
	assert.Equal(t, base.Add(2*time.Millisecond).UnixNano(), got[2].Timestamp.UnixNano())

	derived, err := repo.Samples(ctx, repo.SessionID(), "total_core_power")
	require.NoError(t, err)
	assert.Len(t, derived, 3)

	missing, err := repo.Samples(ctx, repo.SessionID(), "cpu_temp")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestRepositorySessionsAreSeparate(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 1

	first, err := metrics.NewRepository(cfg, "0x380905", logger.Nop())
	require.NoError(t, err)
	require.NoError(t, first.Record(record(time.Unix(1, 0), 1)))
	require.NoError(t, first.Close())
	require.NoError(t, first.Close())

	second, err := metrics.NewRepository(cfg, "0x380905", logger.Nop())
	require.NoError(t, err)
	defer second.Close()

	assert.NotEqual(t, first.SessionID(), second.SessionID())

	ctx := context.Background()
	old, err := second.Samples(ctx, first.SessionID(), "socket_power")
	require.NoError(t, err)
	assert.Len(t, old, 1)

	current, err := second.Samples(ctx, second.SessionID(), "socket_power")
	require.NoError(t, err)
	assert.Empty(t, current)
}

func TestRepositoryBackgroundFlush(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 1000
	cfg.BatchTimeout = 10 * time.Millisecond

	repo, err := metrics.NewRepository(cfg, "0x400005", logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.Record(record(time.Unix(1, 0), 5)))

	require.Eventually(t, func() bool {
		got, err := repo.Samples(context.Background(), repo.SessionID(), "socket_power")
		return err == nil && len(got) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSchemaMismatchBacksUp(t *testing.T) {
	cfg := testConfig(t)

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := metrics.NewRepository(cfg, "0x380905", logger.Nop())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	entries, err := os.ReadDir(cfg.BackupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "telemetry_v99_")

	db, err = sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	version, err := metrics.GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, metrics.SchemaVersion, version)
}

func TestServiceDisabledIsNoop(t *testing.T) {
	collector, err := metrics.NewService(metrics.DefaultConfig(), "0x380905", logger.Nop())
	require.NoError(t, err)

	assert.NoError(t, collector.Record(context.Background(), record(time.Now(), 1)))
	assert.Empty(t, collector.SessionID())
	assert.NoError(t, collector.Close())
}

func TestServiceRecords(t *testing.T) {
	cfg := testConfig(t)
	cfg.BatchSize = 1

	collector, err := metrics.NewService(cfg, "0x380905", logger.Nop())
	require.NoError(t, err)
	assert.NotEmpty(t, collector.SessionID())

	err = collector.Record(context.Background(), nil)
	assert.Equal(t, metrics.ErrInvalidRecord, errors.CodeOf(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = collector.Record(ctx, record(time.Now(), 1))
	assert.Equal(t, metrics.ErrOperationTimeout, errors.CodeOf(err))

	require.NoError(t, collector.Record(context.Background(), record(time.Now(), 1)))
	require.NoError(t, collector.Close())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, metrics.DefaultConfig().Validate())

	cfg := metrics.DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = ""
	assert.Equal(t, metrics.ErrInvalidDBPath, errors.CodeOf(cfg.Validate()))

	cfg.DBPath = "/tmp/x.db"
	cfg.BatchSize = 0
	assert.Equal(t, metrics.ErrInvalidConfig, errors.CodeOf(cfg.Validate()))
}

func TestRepositoryDropsFailedBatch(t *testing.T) {
	cfg := testConfig(t)

	repo, err := metrics.NewRepository(cfg, "0x380905", logger.Nop())
	require.NoError(t, err)
	defer repo.Close()

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`ALTER TABLE samples RENAME TO samples_offline`)
	require.NoError(t, err)

	base := time.Unix(1_700_000_000, 0)
	require.NoError(t, repo.Record(record(base, 1)))
	err = repo.Record(record(base.Add(time.Millisecond), 2))
	require.Error(t, err)
	assert.Equal(t, metrics.ErrTransactionFailed, errors.CodeOf(err))

	_, err = db.Exec(`ALTER TABLE samples_offline RENAME TO samples`)
	require.NoError(t, err)

	require.NoError(t, repo.Record(record(base.Add(2*time.Millisecond), 3)))
	require.NoError(t, repo.Record(record(base.Add(3*time.Millisecond), 4)))

	got, err := repo.Samples(context.Background(), repo.SessionID(), "socket_power")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3.0, got[0].Value)
	assert.Equal(t, 4.0, got[1].Value)
}
