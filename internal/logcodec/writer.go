package logcodec

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"time"

	"codeberg.org/mutker/pmtablemon/internal/errors"
	"codeberg.org/mutker/pmtablemon/internal/pmtable"
)

// HeaderSize is the fixed record header: u64 LE ns timestamp then u64 LE
// payload length.
const HeaderSize = 16

// MaxPayload bounds the declared payload length. Larger values only show up
// in a corrupt tail and are read as truncation.
const MaxPayload = 16 << 20

// Writer appends records to a log stream.
type Writer struct {
	bw     *bufio.Writer
	closer io.Closer
	header [HeaderSize]byte
	n      int
}

// NewWriter wraps w. If w is an io.Closer, Close closes it after flushing.
func NewWriter(w io.Writer) *Writer {
	lw := &Writer{bw: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		lw.closer = c
	}

	return lw
}

// CreateFile opens path for appending, creating it if needed.
func CreateFile(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.New().Wrap(ErrLogWrite, err)
	}

	return NewWriter(f), nil
}

// Write appends one record.
func (w *Writer) Write(ts time.Time, payload []byte) error {
	binary.LittleEndian.PutUint64(w.header[0:8], uint64(ts.UnixNano()))
	binary.LittleEndian.PutUint64(w.header[8:16], uint64(len(payload)))

	if _, err := w.bw.Write(w.header[:]); err != nil {
		return errors.New().Wrap(ErrLogWrite, err)
	}
	if _, err := w.bw.Write(payload); err != nil {
		return errors.New().Wrap(ErrLogWrite, err)
	}
	w.n++

	return nil
}

// WriteRecord is Write for a RawRecord.
func (w *Writer) WriteRecord(rec pmtable.RawRecord) error {
	return w.Write(rec.Timestamp, rec.Payload)
}

// Count returns the number of records written so far.
func (w *Writer) Count() int {
	return w.n
}

func (w *Writer) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return errors.New().Wrap(ErrLogWrite, err)
	}

	return nil
}

func (w *Writer) Close() error {
	err := w.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); cerr != nil && err == nil {
			err = errors.New().Wrap(ErrLogWrite, cerr)
		}
	}

	return err
}
