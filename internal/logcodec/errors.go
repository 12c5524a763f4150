package logcodec

import "codeberg.org/mutker/pmtablemon/internal/errors"

const (
	ErrLogNotFound = errors.ErrorCode("logcodec_not_found")
	ErrLogRead     = errors.ErrorCode("logcodec_read_failed")
	ErrLogWrite    = errors.ErrorCode("logcodec_write_failed")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrLogNotFound: "Log file not found",
		ErrLogRead:     "Failed to read log record",
		ErrLogWrite:    "Failed to write log record",
	})
}
