package jitter

import "codeberg.org/mutker/pmtablemon/internal/errors"

const (
	ErrInsufficientData = errors.ErrorCode("jitter_insufficient_data")
	ErrInvalidFloor     = errors.ErrorCode("jitter_invalid_floor")
	ErrInvalidBins      = errors.ErrorCode("jitter_invalid_bins")
	ErrInvalidPeriod    = errors.ErrorCode("jitter_invalid_period")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrInsufficientData: "Not enough timestamps for jitter statistics",
		ErrInvalidFloor:     "Histogram floor must be positive",
		ErrInvalidBins:      "Histogram needs at least two positive edges",
		ErrInvalidPeriod:    "Nominal period must be positive",
	})
}
