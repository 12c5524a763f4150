package sampler

import "codeberg.org/mutker/pmtablemon/internal/errors"

const (
	// Source Errors
	ErrSourceUnavailable = errors.ErrorCode("sampler_source_unavailable")
	ErrSourceRead        = errors.ErrorCode("sampler_source_read_failed")

	// Lifecycle Errors
	ErrAlreadyStarted = errors.ErrorCode("sampler_already_started")
	ErrInvalidPeriod  = errors.ErrorCode("sampler_invalid_period")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrSourceUnavailable: "Telemetry source unavailable",
		ErrSourceRead:        "Telemetry source read failed",
		ErrAlreadyStarted:    "Sampler already started",
		ErrInvalidPeriod:     "Sampling period must be positive",
	})
}
