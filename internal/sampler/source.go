package sampler

import (
	"bytes"
	"io"
	"os"
	"sync"
)

// DefaultSourcePath is the PM table node exposed by the ryzen_smu driver.
const DefaultSourcePath = "/sys/kernel/ryzen_smu_drv/pm_table"

// Source is a resettable byte source. ReadAll returns the whole current
// content on every call.
type Source interface {
	Open() error
	ReadAll() ([]byte, error)
	Close() error
}

// FileSource re-reads a file through one kept handle, seeking back to the
// start before each read.
type FileSource struct {
	Path string

	f   *os.File
	buf bytes.Buffer
}

func NewFileSource(path string) *FileSource {
	if path == "" {
		path = DefaultSourcePath
	}

	return &FileSource{Path: path}
}

func (s *FileSource) Open() error {
	f, err := os.Open(s.Path)
	if err != nil {
		return err
	}
	s.f = f

	return nil
}

func (s *FileSource) ReadAll() ([]byte, error) {
	if s.f == nil {
		return nil, os.ErrClosed
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	s.buf.Reset()
	if _, err := s.buf.ReadFrom(s.f); err != nil {
		return nil, err
	}

	// the buffer is reused, hand out a copy
	return bytes.Clone(s.buf.Bytes()), nil
}

func (s *FileSource) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil

	return err
}

// ReaderSource adapts an io.ReadSeeker, such as a bytes.Reader in tests.
type ReaderSource struct {
	mu sync.Mutex
	rs io.ReadSeeker
}

func NewReaderSource(rs io.ReadSeeker) *ReaderSource {
	return &ReaderSource{rs: rs}
}

func (s *ReaderSource) Open() error {
	return nil
}

func (s *ReaderSource) ReadAll() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	return io.ReadAll(s.rs)
}

func (s *ReaderSource) Close() error {
	if c, ok := s.rs.(io.Closer); ok {
		return c.Close()
	}

	return nil
}
