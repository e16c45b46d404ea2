package aacfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"aac-rtmp-pusher/pkg/adts"
)

const (
	// A decoder may consume up to MinStreamSize bytes per channel for one
	// frame (6144 bits/channel), so the probe covers one worst-case frame
	// for MaxChannels channels.
	MinStreamSize = 768
	MaxChannels   = 6
	ProbeSize     = MinStreamSize * MaxChannels
)

var ErrUnrecognized = errors.New("unrecognized aac container")

type Kind int

const (
	KindUnknown Kind = iota
	KindADTS
	KindADIF
	// Reserved; never returned by Sniff.
	KindLATM
	KindLOAS
	KindDRM
)

func (k Kind) String() string {
	switch k {
	case KindADTS:
		return "adts"
	case KindADIF:
		return "adif"
	case KindLATM:
		return "latm"
	case KindLOAS:
		return "loas"
	case KindDRM:
		return "drm"
	default:
		return "unknown"
	}
}

var adifMagic = []byte("ADIF")

// Sniff classifies the container from the first bytes of src and rewinds it
// to offset 0.
func Sniff(src *Source) (Kind, error) {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return KindUnknown, err
	}
	probe := make([]byte, ProbeSize)
	n, err := src.Read(probe)
	if err != nil && !errors.Is(err, io.EOF) {
		return KindUnknown, err
	}
	probe = probe[:n]
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return KindUnknown, err
	}
	kind := classify(probe)
	if kind == KindUnknown {
		return kind, fmt.Errorf("%w: %s", ErrUnrecognized, describe(probe))
	}
	return kind, nil
}

func classify(probe []byte) Kind {
	switch {
	case adts.HasSync(probe):
		return KindADTS
	case bytes.HasPrefix(probe, adifMagic):
		return KindADIF
	default:
		return KindUnknown
	}
}

func describe(probe []byte) string {
	if len(probe) == 0 {
		return "empty stream"
	}
	if len(probe) > 4 {
		probe = probe[:4]
	}
	return fmt.Sprintf("leading bytes %x", probe)
}
