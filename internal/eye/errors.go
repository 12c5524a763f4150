package eye

import "codeberg.org/mutker/pmtablemon/internal/errors"

const (
	ErrInvalidInput = errors.ErrorCode("eye_invalid_input")
	ErrInvalidCSV   = errors.ErrorCode("eye_invalid_csv")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrInvalidInput: "Invalid eye diagram input",
		ErrInvalidCSV:   "Invalid measurement CSV",
	})
}
