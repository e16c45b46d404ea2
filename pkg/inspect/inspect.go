package inspect

import (
	"math"
	"time"

	"aac-rtmp-pusher/pkg/adts"
	"aac-rtmp-pusher/pkg/util"
)

type Result struct {
	AudioCodec     string
	ObjectType     byte
	ASC            []byte
	SampleRate     int
	Channels       int
	Frames         int
	Bytes          int64
	CRCFrames      int
	DurationMS     int64
	InitialBitrate int64
	Bitrate        int64
	ConfigChanges  int
}

type Config struct {
	BitrateWindow time.Duration
}

// Inspector accumulates statistics over the frames of one push session.
type Inspector struct {
	cfg Config

	started bool
	// Unrounded sum of frame durations.
	mediaMS float64

	first     adts.Header
	haveFirst bool

	bitrateStartTS int64
	bitrateBytes   int64
	windowDone     bool

	result Result
}

func New(cfg Config) *Inspector {
	return &Inspector{cfg: cfg}
}

func (i *Inspector) OnAudioConfig(cfg util.AACConfig) {
	i.result.AudioCodec = "AAC"
	i.result.ASC = append([]byte(nil), cfg.ASC...)
	i.result.ObjectType = cfg.ObjectType
	i.result.SampleRate = cfg.SampleRate
	i.result.Channels = cfg.Channels
}

// OnFrame records a frame sent at tsMS. It reports whether the header
// describes a different codec than the first frame did.
func (i *Inspector) OnFrame(tsMS int64, h adts.Header, payloadLen int) bool {
	i.observeStart(tsMS)
	i.observeBitrate(tsMS, int64(payloadLen))
	i.result.Frames++
	i.result.Bytes += int64(payloadLen)
	if h.HasCRC() {
		i.result.CRCFrames++
	}
	if rate, err := h.SampleRate(); err == nil {
		i.mediaMS += adts.FrameDuration(rate)
	}

	if !i.haveFirst {
		i.first = h
		i.haveFirst = true
		return false
	}
	if h.Profile != i.first.Profile || h.SampleRateIndex != i.first.SampleRateIndex || h.ChannelConfiguration != i.first.ChannelConfiguration {
		i.result.ConfigChanges++
		return true
	}
	return false
}

func (i *Inspector) Result() Result {
	res := i.result
	res.DurationMS = int64(math.Round(i.mediaMS))
	if res.DurationMS > 0 {
		res.Bitrate = int64(float64(res.Bytes*8) / (float64(res.DurationMS) / 1000.0))
	}
	if res.InitialBitrate == 0 {
		res.InitialBitrate = res.Bitrate
	}
	return res
}

func (i *Inspector) observeStart(tsMS int64) {
	if i.started {
		return
	}
	i.started = true
	i.bitrateStartTS = tsMS
}

func (i *Inspector) observeBitrate(tsMS int64, bytes int64) {
	if i.windowDone || i.cfg.BitrateWindow <= 0 {
		return
	}
	if time.Duration(tsMS-i.bitrateStartTS)*time.Millisecond >= i.cfg.BitrateWindow {
		seconds := float64(tsMS-i.bitrateStartTS) / 1000.0
		if seconds > 0 {
			i.result.InitialBitrate = int64(float64(i.bitrateBytes*8) / seconds)
		}
		i.windowDone = true
		return
	}
	i.bitrateBytes += bytes
}
