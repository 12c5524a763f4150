package pmtable

import "codeberg.org/mutker/pmtablemon/internal/errors"

const (
	// Schema Errors
	ErrUnknownSchema = errors.ErrorCode("pmtable_unknown_schema")
	ErrInvalidMetric = errors.ErrorCode("pmtable_invalid_metric")

	// Decode Errors
	ErrDecode = errors.ErrorCode("pmtable_decode_failed")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrUnknownSchema: "Unknown PM table schema version",
		ErrInvalidMetric: "Invalid metric definition",
		ErrDecode:        "Failed to decode PM table record",
	})
}
