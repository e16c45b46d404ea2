package adts

import (
	"errors"
	"fmt"
)

// SamplesPerFrame is the number of PCM samples per channel carried by one
// AAC-LC raw data block.
const SamplesPerFrame = 1024

var ErrReservedSampleRate = errors.New("reserved sample rate index")

// SampleRates maps sample rate index to Hz (ISO 14496-3). Indices 13 and up
// are reserved or escape values.
var SampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

func SampleRate(index uint8) (int, error) {
	if int(index) >= len(SampleRates) {
		return 0, fmt.Errorf("%w: %d", ErrReservedSampleRate, index)
	}
	return SampleRates[index], nil
}

func (h Header) SampleRate() (int, error) {
	return SampleRate(h.SampleRateIndex)
}

// FrameDuration returns the media duration of one frame in milliseconds.
func FrameDuration(sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(SamplesPerFrame) * 1000 / float64(sampleRate)
}
