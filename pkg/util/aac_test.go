package util

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	flvtag "github.com/yutopp/go-flv/tag"

	"aac-rtmp-pusher/pkg/adts"
)

func TestParseAudioSpecificConfig(t *testing.T) {
	cfg, err := ParseAudioSpecificConfig([]byte{0x12, 0x10})
	require.NoError(t, err)
	assert.Equal(t, byte(2), cfg.ObjectType)
	assert.Equal(t, 44100, cfg.SampleRate)
	assert.Equal(t, 2, cfg.Channels)
	assert.Equal(t, []byte{0x12, 0x10}, cfg.ASC)

	_, err = ParseAudioSpecificConfig(nil)
	assert.Error(t, err)
}

func TestConfigFromASC(t *testing.T) {
	// AAC Main, 22050 Hz, mono.
	cfg, err := ConfigFromASC([]byte{0x0B, 0x88})
	require.NoError(t, err)
	assert.Equal(t, byte(1), cfg.ObjectType)
	assert.Equal(t, 22050, cfg.SampleRate)
	assert.Equal(t, 1, cfg.Channels)

	_, err = ConfigFromASC([]byte{0x12})
	assert.Error(t, err)

	_, err = ConfigFromASC([]byte{0x16, 0x90})
	assert.ErrorIs(t, err, adts.ErrReservedSampleRate)
}

func TestEqualAACConfig(t *testing.T) {
	a := AACConfig{ASC: []byte{0x12, 0x10}, ObjectType: 2, SampleRate: 44100, Channels: 2}
	b := a
	b.ASC = []byte{0x12, 0x10}
	assert.True(t, EqualAACConfig(a, b))

	b.Channels = 1
	assert.False(t, EqualAACConfig(a, b))
}

func TestFLVAudioData(t *testing.T) {
	var buf bytes.Buffer
	audio := FLVAudioData(flvtag.AACPacketTypeSequenceHeader, []byte{0x12, 0x10})
	require.NoError(t, flvtag.EncodeAudioData(&buf, audio))
	assert.Equal(t, []byte{0xAF, 0x00, 0x12, 0x10}, buf.Bytes())

	buf.Reset()
	audio = FLVAudioData(flvtag.AACPacketTypeRaw, []byte{0x21, 0x00})
	require.NoError(t, flvtag.EncodeAudioData(&buf, audio))
	assert.Equal(t, []byte{0xAF, 0x01, 0x21, 0x00}, buf.Bytes())
}
