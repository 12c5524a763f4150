package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/pmtablemon/internal/pmtable"
)

// Collector is what the sampling consumer records decoded samples through
type Collector interface {
	Record(ctx context.Context, rec *pmtable.DecodedRecord) error
	SessionID() string
	Close() error
}

// Repository defines the storage behind a Collector
type Repository interface {
	Record(rec *pmtable.DecodedRecord) error
	Flush() error
	SessionID() string
	Samples(ctx context.Context, sessionID, metric string) ([]Sample, error)
	Close() error
}

// Sample is one stored metric value
type Sample struct {
	Timestamp time.Time
	Metric    string
	Value     float64
}
