package aacfile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

var (
	ErrNotFound = errors.New("aac source not found")
	ErrIO       = errors.New("aac source i/o failure")
	ErrClosed   = errors.New("aac source already closed")
)

// Source is a seekable byte stream. Reads fill the whole buffer unless the
// stream ends first; once exhausted every read returns io.EOF.
type Source struct {
	rs     io.ReadSeeker
	closer io.Closer
	name   string
	pos    int64
	eof    bool
	closed bool
}

func OpenSource(path string) (*Source, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrNotFound)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return &Source{rs: f, closer: f, name: path}, nil
}

// NewSource wraps rs. If rs is also an io.Closer it is closed by Close.
func NewSource(rs io.ReadSeeker, name string) *Source {
	s := &Source{rs: rs, name: name}
	if c, ok := rs.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *Source) Name() string {
	return s.name
}

func (s *Source) Pos() int64 {
	return s.pos
}

// EOF reports whether a read has hit the end of the stream since the last
// seek.
func (s *Source) EOF() bool {
	return s.eof
}

func (s *Source) Read(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if s.eof {
		return 0, io.EOF
	}
	n, err := io.ReadFull(s.rs, p)
	s.pos += int64(n)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.eof = true
		return n, nil
	case errors.Is(err, io.EOF):
		s.eof = true
		return 0, io.EOF
	default:
		return n, fmt.Errorf("%w: read %s: %w", ErrIO, s.name, err)
	}
}

// Seek supports io.SeekStart and io.SeekCurrent only.
func (s *Source) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if whence != io.SeekStart && whence != io.SeekCurrent {
		return s.pos, fmt.Errorf("unsupported seek origin %d", whence)
	}
	pos, err := s.rs.Seek(offset, whence)
	if err != nil {
		return s.pos, fmt.Errorf("%w: seek %s: %w", ErrIO, s.name, err)
	}
	s.pos = pos
	s.eof = false
	return pos, nil
}

// Close releases the underlying resource. A second call returns ErrClosed.
func (s *Source) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	if s.closer == nil {
		return nil
	}
	if err := s.closer.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrIO, s.name, err)
	}
	return nil
}
