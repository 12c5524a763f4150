package pmtable

import (
	"math"
	"time"
)

// RawRecord is one captured PM table blob. Payload must not be modified
// once the record has been handed to another stage.
type RawRecord struct {
	Timestamp time.Time
	Payload   []byte
}

// DecodedRecord holds the named values extracted from one RawRecord.
type DecodedRecord struct {
	Timestamp time.Time
	// Fields holds scalar metrics; NaN marks a field outside the blob.
	Fields map[string]float64
	// Arrays holds fully decoded array metrics.
	Arrays map[string][]float64
	// Derived holds array reductions such as total_core_power.
	Derived map[string]float64
}

// Value returns a scalar or derived value by name. Unknown names are NaN.
func (r *DecodedRecord) Value(name string) float64 {
	if v, ok := r.Fields[name]; ok {
		return v
	}
	if v, ok := r.Derived[name]; ok {
		return v
	}

	return math.NaN()
}

// Names returns every scalar and derived name present in the record.
func (r *DecodedRecord) Names() []string {
	names := make([]string, 0, len(r.Fields)+len(r.Derived))
	for name := range r.Fields {
		names = append(names, name)
	}
	for name := range r.Derived {
		names = append(names, name)
	}

	return names
}
