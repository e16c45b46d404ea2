package aacfile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"aac-rtmp-pusher/pkg/adts"
)

type frameOpts struct {
	payload []byte
	crc     bool
	crcWord uint16
	blocks  uint8
	// frameLength overrides the computed frame length when non-zero.
	frameLength uint16
}

func buildFrame(o frameOpts) []byte {
	h := adts.Header{
		SyncWord:                      adts.SyncWord,
		ProtectionAbsent:              1,
		Profile:                       1,
		SampleRateIndex:               4,
		ChannelConfiguration:          2,
		BufferFullness:                0x7FF,
		NumberOfRawDataBlocksMinusOne: o.blocks,
	}
	length := adts.HeaderSize + len(o.payload)
	if o.crc {
		h.ProtectionAbsent = 0
		length += adts.CRCSize
	}
	h.FrameLength = uint16(length)
	if o.frameLength != 0 {
		h.FrameLength = o.frameLength
	}
	hdr := h.Encode()
	out := append([]byte(nil), hdr[:]...)
	if o.crc {
		out = append(out, byte(o.crcWord>>8), byte(o.crcWord))
	}
	return append(out, o.payload...)
}

func buildStream(frames ...[]byte) []byte {
	return bytes.Join(frames, nil)
}

func memSource(data []byte) *Source {
	return NewSource(bytes.NewReader(data), "memory")
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.aac")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}
