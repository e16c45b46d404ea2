package aacfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"aac-rtmp-pusher/pkg/adts"
)

var (
	ErrTruncated            = errors.New("aac stream truncated")
	ErrUnsupportedContainer = errors.New("unsupported aac container")
	ErrInvalidState         = errors.New("aac reader in terminal state")
)

type State int

const (
	StateOpened State = iota
	StateSniffed
	StateAwaitingHeader
	StateHeaderReady
	StatePayloadReady
	// StateEnded is reached when the stream is exhausted between frames.
	StateEnded
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateOpened:
		return "opened"
	case StateSniffed:
		return "sniffed"
	case StateAwaitingHeader:
		return "awaiting-header"
	case StateHeaderReady:
		return "header-ready"
	case StatePayloadReady:
		return "payload-ready"
	case StateEnded:
		return "ended"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Frame is one raw AAC access unit together with the header that framed it.
type Frame struct {
	Header  adts.Header
	Payload []byte
	// CRC is the check word that followed the header, if any. It is not
	// verified.
	CRC    uint16
	Offset int64
	Index  int
}

// Reader extracts ADTS frames one at a time from a Source. It is not safe
// for concurrent use.
type Reader struct {
	src    *Source
	kind   Kind
	state  State
	err    error
	header adts.Header
	asc    adts.AudioSpecificConfig
	hasASC bool
	frames int
	hdr    [adts.HeaderSize]byte
	crc    [adts.CRCSize]byte
}

// Open opens path and sniffs its container. The file is closed again on any
// failure.
func Open(path string) (*Reader, error) {
	src, err := OpenSource(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(src)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return r, nil
}

// NewReader sniffs src and returns a reader positioned at offset 0. The
// caller keeps ownership of src when an error is returned.
func NewReader(src *Source) (*Reader, error) {
	r := &Reader{src: src, state: StateOpened}
	kind, err := Sniff(src)
	if err != nil {
		return nil, err
	}
	r.kind = kind
	r.state = StateSniffed
	return r, nil
}

func (r *Reader) Kind() Kind {
	return r.kind
}

func (r *Reader) State() State {
	return r.state
}

// Err returns the error that moved the reader into StateError.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) Pos() int64 {
	return r.src.Pos()
}

func (r *Reader) Header() (adts.Header, bool) {
	switch r.state {
	case StateHeaderReady, StatePayloadReady:
		return r.header, true
	}
	return adts.Header{}, false
}

// AudioSpecificConfig returns the config derived from the first header.
func (r *Reader) AudioSpecificConfig() (adts.AudioSpecificConfig, bool) {
	return r.asc, r.hasASC
}

func (r *Reader) Frames() int {
	return r.frames
}

// Next returns the next frame. It returns io.EOF when the stream ends
// before a complete header. Any other error is terminal.
func (r *Reader) Next() (Frame, error) {
	switch r.state {
	case StateEnded:
		return Frame{}, io.EOF
	case StateClosed:
		return Frame{}, ErrClosed
	case StateError:
		return Frame{}, r.err
	case StateSniffed, StatePayloadReady:
		if r.kind != KindADTS {
			return Frame{}, r.fail(fmt.Errorf("%w: %s", ErrUnsupportedContainer, r.kind))
		}
		r.state = StateAwaitingHeader
	}

	offset := r.src.Pos()
	n, err := r.src.Read(r.hdr[:])
	if err != nil && !errors.Is(err, io.EOF) {
		return Frame{}, r.fail(err)
	}
	if n < adts.HeaderSize {
		r.state = StateEnded
		return Frame{}, io.EOF
	}
	h, err := adts.Decode(r.hdr[:])
	if err != nil {
		return Frame{}, r.fail(fmt.Errorf("frame %d at offset %d: %w", r.frames, offset, err))
	}
	if !r.hasASC {
		asc, err := adts.DeriveConfig(h)
		if err != nil {
			return Frame{}, r.fail(fmt.Errorf("frame %d at offset %d: %w", r.frames, offset, err))
		}
		r.asc = asc
		r.hasASC = true
	}
	r.header = h
	r.state = StateHeaderReady

	frame := Frame{Header: h, Offset: offset, Index: r.frames}
	if h.HasCRC() {
		if err := r.readFull(r.crc[:], "crc"); err != nil {
			return Frame{}, r.fail(err)
		}
		frame.CRC = binary.BigEndian.Uint16(r.crc[:])
	}
	length, err := adts.RawLength(h)
	if err != nil {
		return Frame{}, r.fail(fmt.Errorf("frame %d at offset %d: %w", r.frames, offset, err))
	}
	frame.Payload = make([]byte, length)
	if err := r.readFull(frame.Payload, "payload"); err != nil {
		return Frame{}, r.fail(err)
	}

	r.frames++
	r.state = StatePayloadReady
	return frame, nil
}

// Seek repositions the cursor; the next call to Next decodes a header at the
// new offset. Only io.SeekStart and io.SeekCurrent are supported.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	switch r.state {
	case StateClosed:
		return 0, ErrClosed
	case StateError:
		return 0, fmt.Errorf("%w: %w", ErrInvalidState, r.err)
	}
	pos, err := r.src.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	if r.state != StateSniffed {
		r.state = StateAwaitingHeader
	}
	return pos, nil
}

func (r *Reader) Close() error {
	if r.state == StateClosed {
		return ErrClosed
	}
	r.state = StateClosed
	return r.src.Close()
}

func (r *Reader) readFull(p []byte, what string) error {
	n, err := r.src.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if n < len(p) {
		return fmt.Errorf("%w: frame %d %s: got %d of %d bytes", ErrTruncated, r.frames, what, n, len(p))
	}
	return nil
}

func (r *Reader) fail(err error) error {
	r.state = StateError
	r.err = err
	return err
}
