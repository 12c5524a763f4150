package config

import "codeberg.org/mutker/pmtablemon/internal/errors"

const (
	ErrInvalidConfig    = errors.ErrInvalidConfig
	ErrInvalidLogLevel  = errors.ErrInvalidLogLevel
	ErrInvalidFrequency = errors.ErrInvalidFrequency
	ErrInvalidSchema    = errors.ErrInvalidSchema
	ErrReadConfig       = errors.ErrReadConfig
	ErrBindFlags        = errors.ErrBindFlags
	ErrParseFlags       = errors.ErrorCode("parse_flags_failed")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrParseFlags: "Failed to parse command line flags",
	})
}
