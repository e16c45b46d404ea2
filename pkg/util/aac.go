package util

import (
	"bytes"
	"fmt"

	"github.com/Eyevinn/mp4ff/aac"
	flvtag "github.com/yutopp/go-flv/tag"

	"aac-rtmp-pusher/pkg/adts"
)

type AACConfig struct {
	ASC        []byte
	ObjectType byte
	SampleRate int
	Channels   int
}

// ParseAudioSpecificConfig decodes data the way a receiving server does.
func ParseAudioSpecificConfig(data []byte) (AACConfig, error) {
	cfg := AACConfig{}
	if len(data) == 0 {
		return cfg, fmt.Errorf("aac config empty")
	}
	asc, err := aac.DecodeAudioSpecificConfig(bytes.NewReader(data))
	if err != nil {
		return cfg, err
	}
	cfg.ASC = append([]byte(nil), data...)
	cfg.ObjectType = asc.ObjectType
	cfg.SampleRate = asc.SamplingFrequency
	cfg.Channels = int(asc.ChannelConfiguration)
	return cfg, nil
}

// ConfigFromASC reads the fields of a 2-byte ASC directly, accepting every
// object type an ADTS header can signal.
func ConfigFromASC(data []byte) (AACConfig, error) {
	cfg := AACConfig{}
	if len(data) < 2 {
		return cfg, fmt.Errorf("aac config too short: %d bytes", len(data))
	}
	asc := adts.AudioSpecificConfig{data[0], data[1]}
	rate, err := adts.SampleRate(asc.SampleRateIndex())
	if err != nil {
		return cfg, err
	}
	cfg.ASC = asc.Bytes()
	cfg.ObjectType = asc.ObjectType()
	cfg.SampleRate = rate
	cfg.Channels = int(asc.ChannelConfiguration())
	return cfg, nil
}

func EqualAACConfig(a, b AACConfig) bool {
	if a.SampleRate != b.SampleRate || a.Channels != b.Channels || a.ObjectType != b.ObjectType {
		return false
	}
	return bytes.Equal(a.ASC, b.ASC)
}

// FLVAudioData returns an FLV AAC audio tag body carrying payload. FLV
// always signals AAC as 44 kHz stereo 16-bit; the real values travel in the
// ASC.
func FLVAudioData(packetType flvtag.AACPacketType, payload []byte) *flvtag.AudioData {
	return &flvtag.AudioData{
		SoundFormat:   flvtag.SoundFormatAAC,
		SoundRate:     flvtag.SoundRate44kHz,
		SoundSize:     flvtag.SoundSize16Bit,
		SoundType:     flvtag.SoundTypeStereo,
		AACPacketType: packetType,
		Data:          bytes.NewReader(payload),
	}
}
