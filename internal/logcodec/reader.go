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

// Reader scans a log stream front to back. There is no index and no seek;
// each record is only reachable after every record before it.
type Reader struct {
	br        *bufio.Reader
	header    [HeaderSize]byte
	truncated bool
	done      bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64<<10)}
}

// Truncated reports whether the stream ended inside a record.
func (r *Reader) Truncated() bool {
	return r.truncated
}

// readHeader returns io.EOF for a clean end, including a partial header.
func (r *Reader) readHeader() (int64, uint64, error) {
	if r.done {
		return 0, 0, io.EOF
	}

	if _, err := io.ReadFull(r.br, r.header[:]); err != nil {
		r.done = true
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, 0, io.EOF
		}
		return 0, 0, errors.New().Wrap(ErrLogRead, err)
	}

	ns := int64(binary.LittleEndian.Uint64(r.header[0:8]))
	length := binary.LittleEndian.Uint64(r.header[8:16])

	if length > MaxPayload {
		r.done = true
		r.truncated = true
		return 0, 0, io.EOF
	}

	return ns, length, nil
}

func (r *Reader) payloadErr(err error) error {
	r.done = true
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		r.truncated = true
		return io.EOF
	}

	return errors.New().Wrap(ErrLogRead, err)
}

// Next returns the next full record, or io.EOF at the end of the stream.
// A trailing record with a short payload is never returned; Truncated
// reports it instead.
func (r *Reader) Next() (pmtable.RawRecord, error) {
	ns, length, err := r.readHeader()
	if err != nil {
		return pmtable.RawRecord{}, err
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		return pmtable.RawRecord{}, r.payloadErr(err)
	}

	return pmtable.RawRecord{Timestamp: time.Unix(0, ns), Payload: payload}, nil
}

// NextTimestamp skips over the next record's payload and returns only its
// timestamp in nanoseconds.
func (r *Reader) NextTimestamp() (int64, error) {
	ns, length, err := r.readHeader()
	if err != nil {
		return 0, err
	}

	n, err := io.CopyN(io.Discard, r.br, int64(length))
	if err != nil {
		return 0, r.payloadErr(err)
	}
	if uint64(n) != length {
		return 0, r.payloadErr(io.ErrUnexpectedEOF)
	}

	return ns, nil
}

// Result summarizes a whole-stream read.
type Result struct {
	Records   int
	Truncated bool
}

// ReadAll decodes every complete record in r.
func ReadAll(r io.Reader) ([]pmtable.RawRecord, Result, error) {
	lr := NewReader(r)

	var records []pmtable.RawRecord
	for {
		rec, err := lr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return records, Result{Records: len(records)}, err
		}
		records = append(records, rec)
	}

	return records, Result{Records: len(records), Truncated: lr.Truncated()}, nil
}

// ReadTimestamps is the fast path of ReadAll: payloads are skipped.
func ReadTimestamps(r io.Reader) ([]int64, Result, error) {
	lr := NewReader(r)

	var stamps []int64
	for {
		ns, err := lr.NextTimestamp()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stamps, Result{Records: len(stamps)}, err
		}
		stamps = append(stamps, ns)
	}

	return stamps, Result{Records: len(stamps), Truncated: lr.Truncated()}, nil
}

// OpenFile opens a log for reading. A missing file is ErrLogNotFound.
func OpenFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New().WithData(ErrLogNotFound, path)
		}
		return nil, errors.New().Wrap(ErrLogRead, err)
	}

	return f, nil
}
