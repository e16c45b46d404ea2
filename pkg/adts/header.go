// Package adts decodes the header of MPEG-4 AAC ADTS frames and derives the
// codec configuration that publishers need out of band.
//
// Layout of the 56 header bits (CRC not included):
//
//	AAAAAAAA AAAABCCD EEFFFFGH HHIJKLMM MMMMMMMM MMMOOOOO OOOOOOPP
//
//	A sync word (12)         B id (1)             C layer (2)
//	D protection absent (1)  E profile (2)        F sample rate index (4)
//	G private bit (1)        H channel config (3) I original/copy (1)
//	J home (1)               K copyright id (1)   L copyright start (1)
//	M frame length (13)      O buffer fullness (11)
//	P raw data blocks in frame minus one (2)
package adts

import (
	"errors"
	"fmt"
)

const (
	SyncWord = 0x0FFF

	// HeaderSize is the size of the fixed plus variable header.
	HeaderSize = 7

	// CRCSize is the size of the check word following the header when
	// ProtectionAbsent is 0.
	CRCSize = 2

	MaxFrameLength = 1<<13 - 1
)

var (
	ErrShortHeader   = errors.New("adts header needs 7 bytes")
	ErrInvalidSync   = errors.New("adts sync word not found")
	ErrCorruptHeader = errors.New("adts header corrupt")

	// ErrMultipleRawBlocks is returned when a frame carries more than one raw
	// data block. The payload length of such frames is indeterminate here.
	ErrMultipleRawBlocks = fmt.Errorf("%w: multiple raw data blocks in frame", ErrCorruptHeader)
)

// Header holds every field of an ADTS fixed and variable header. Values are
// stored right-aligned in their field width.
type Header struct {
	SyncWord                      uint16
	MPEGVersionID                 uint8
	Layer                         uint8
	ProtectionAbsent              uint8
	Profile                       uint8
	SampleRateIndex               uint8
	PrivateBit                    uint8
	ChannelConfiguration          uint8
	OriginalCopy                  uint8
	Home                          uint8
	CopyrightID                   uint8
	CopyrightStart                uint8
	FrameLength                   uint16
	BufferFullness                uint16
	NumberOfRawDataBlocksMinusOne uint8
}

func HasSync(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xF0 == 0xF0
}

// Decode extracts the header fields from the first 7 bytes of b. Extra bytes
// are ignored.
func Decode(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, fmt.Errorf("%w: got %d", ErrShortHeader, len(b))
	}
	if !HasSync(b) {
		return h, fmt.Errorf("%w: %02x %02x", ErrInvalidSync, b[0], b[1])
	}
	h.SyncWord = uint16(b[0])<<4 | uint16(b[1]>>4)
	h.MPEGVersionID = (b[1] & 0x08) >> 3
	h.Layer = (b[1] & 0x06) >> 1
	h.ProtectionAbsent = b[1] & 0x01
	h.Profile = (b[2] & 0xC0) >> 6
	h.SampleRateIndex = (b[2] & 0x3C) >> 2
	h.PrivateBit = (b[2] & 0x02) >> 1
	h.ChannelConfiguration = (b[2]&0x01)<<2 | (b[3]&0xC0)>>6
	h.OriginalCopy = (b[3] & 0x20) >> 5
	h.Home = (b[3] & 0x10) >> 4
	h.CopyrightID = (b[3] & 0x08) >> 3
	h.CopyrightStart = (b[3] & 0x04) >> 2
	h.FrameLength = uint16(b[3]&0x03)<<11 | uint16(b[4])<<3 | uint16(b[5]&0xE0)>>5
	h.BufferFullness = uint16(b[5]&0x1F)<<6 | uint16(b[6]&0xFC)>>2
	h.NumberOfRawDataBlocksMinusOne = b[6] & 0x03
	return h, nil
}

// Encode packs h into its 7-byte wire form. Fields wider than their slot are
// truncated to the slot width.
func (h Header) Encode() [HeaderSize]byte {
	var b [HeaderSize]byte
	b[0] = byte(h.SyncWord >> 4)
	b[1] = byte(h.SyncWord&0x0F)<<4 |
		(h.MPEGVersionID&0x01)<<3 |
		(h.Layer&0x03)<<1 |
		h.ProtectionAbsent&0x01
	b[2] = (h.Profile&0x03)<<6 |
		(h.SampleRateIndex&0x0F)<<2 |
		(h.PrivateBit&0x01)<<1 |
		(h.ChannelConfiguration&0x04)>>2
	b[3] = (h.ChannelConfiguration&0x03)<<6 |
		(h.OriginalCopy&0x01)<<5 |
		(h.Home&0x01)<<4 |
		(h.CopyrightID&0x01)<<3 |
		(h.CopyrightStart&0x01)<<2 |
		byte(h.FrameLength>>11)&0x03
	b[4] = byte(h.FrameLength >> 3)
	b[5] = byte(h.FrameLength&0x07)<<5 | byte(h.BufferFullness>>6)&0x1F
	b[6] = byte(h.BufferFullness&0x3F)<<2 | h.NumberOfRawDataBlocksMinusOne&0x03
	return b
}

func (h Header) HasCRC() bool {
	return h.ProtectionAbsent == 0
}

func (h Header) Size() int {
	if h.HasCRC() {
		return HeaderSize + CRCSize
	}
	return HeaderSize
}

// RawLength returns the length of the single raw data block carried by the
// frame, excluding header and CRC.
func RawLength(h Header) (int, error) {
	if h.NumberOfRawDataBlocksMinusOne != 0 {
		return 0, fmt.Errorf("%w: %d", ErrMultipleRawBlocks, int(h.NumberOfRawDataBlocksMinusOne)+1)
	}
	length := int(h.FrameLength) - HeaderSize
	if h.HasCRC() {
		length -= CRCSize
	}
	if length < 0 {
		return 0, fmt.Errorf("%w: frame length %d shorter than header %d", ErrCorruptHeader, h.FrameLength, h.Size())
	}
	return length, nil
}
