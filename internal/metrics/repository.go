package metrics

import (
	"context"
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"codeberg.org/mutker/pmtablemon/internal/errors"
	"codeberg.org/mutker/pmtablemon/internal/logger"
	"codeberg.org/mutker/pmtablemon/internal/pmtable"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

type row struct {
	ns     int64
	metric string
	value  float64
}

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	sessionID     string
	mu            sync.Mutex
	buffer        []row
	records       int
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

// NewRepository opens the database and starts a session for schemaName.
// Every record written through the repository belongs to that session.
func NewRepository(cfg Config, schemaName string, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Join(filepath.Dir(cfg.DBPath), "backups")
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = defaultBatchSize
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.BackupDir, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	sessionID := uuid.NewString()
	if _, err := db.Exec(insertSessionSQL, sessionID, time.Now().UnixNano(), schemaName); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "create_session",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Str("session", sessionID).
		Str("schema", schemaName).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("Telemetry repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		sessionID:     sessionID,
		buffer:        make([]row, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(cfg.BatchTimeout)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) SessionID() string {
	return r.sessionID
}

// Record buffers every scalar and derived value of rec. NaN values are
// missing readings and are not stored.
func (r *repository) Record(rec *pmtable.DecodedRecord) error {
	if rec == nil {
		return errors.New().New(ErrInvalidRecord)
	}

	names := rec.Names()
	sort.Strings(names)

	ns := rec.Timestamp.UnixNano()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		v := rec.Value(name)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		r.buffer = append(r.buffer, row{ns: ns, metric: name, value: v})
	}
	r.records++

	if r.records >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *repository) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.flush()
}

func (r *repository) Samples(ctx context.Context, sessionID, metric string) ([]Sample, error) {
	errFactory := errors.New()

	rows, err := r.db.QueryContext(ctx, selectSamplesSQL, sessionID, metric)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			ns int64
			s  Sample
		)
		if err := rows.Scan(&ns, &s.Metric, &s.Value); err != nil {
			return nil, errFactory.Wrap(ErrStorageAccess, err)
		}
		s.Timestamp = time.Unix(0, ns)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageAccess, err)
	}

	return out, nil
}

func (r *repository) Close() error {
	var closeErr error

	r.closeOnce.Do(func() {
		// Signal the flusher goroutine to stop and wait for its final flush
		close(r.shutdownChan)
		if r.flushTicker != nil {
			r.flushTicker.Stop()
		}
		<-r.flushDoneChan

		if err := r.Flush(); err != nil {
			closeErr = err
			return
		}

		if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "checkpoint_wal",
				Error: err.Error(),
			})
			return
		}

		if err := r.db.Close(); err != nil {
			closeErr = errors.New().WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "close_database",
				Error: err.Error(),
			})
			return
		}

		r.logger.Info().Msg("Telemetry repository closed gracefully")
	})

	return closeErr
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes the buffer in one transaction. A failed batch is dropped so
// the buffer stays bounded while the database is unavailable. Callers hold
// r.mu.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		r.records = 0
		return nil
	}

	err := r.writeBatch()
	if err != nil {
		r.logger.Warn().
			Int("records", r.records).
			Int("values", len(r.buffer)).
			Msg("Dropped batch after failed flush")
	} else {
		r.logger.Debug().
			Int("records", r.records).
			Int("values", len(r.buffer)).
			Msg("Flushed samples to database")
	}

	r.buffer = r.buffer[:0]
	r.records = 0

	return err
}

func (r *repository) writeBatch() error {
	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertSampleSQL)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to prepare statement")
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, rw := range r.buffer {
		if _, err := stmt.Exec(r.sessionID, rw.ns, rw.metric, rw.value); err != nil {
			r.logger.Error().Err(err).Msg("Failed to execute insert")
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to commit transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	return nil
}
