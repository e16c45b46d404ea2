package archive

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/sirupsen/logrus"

	"aac-rtmp-pusher/pkg/adts"
	"aac-rtmp-pusher/pkg/storage"
	"aac-rtmp-pusher/pkg/util"
)

var (
	ErrNoCodecConfig = errors.New("codec config not set")
	ErrConfigChanged = errors.New("codec config changed")
	ErrRecorderDone  = errors.New("recorder closed")
)

type RecorderConfig struct {
	FragmentDuration time.Duration
}

// Recorder writes the pushed audio to an audio-only fragmented MP4 file.
type Recorder struct {
	mu     sync.Mutex
	cfg    RecorderConfig
	file   *storage.AtomicFile
	logger logrus.FieldLogger

	bytesWritten int64

	aacConfig   util.AACConfig
	initWritten bool
	trackID     uint32
	timescale   uint32

	baseTS         uint32
	started        bool
	nextDecodeTime uint64

	fragmentSeq        uint32
	samplesPerFragment int
	pending            []mp4.FullSample

	failed error
	closed bool
}

func NewRecorder(cfg RecorderConfig, path string, logger logrus.FieldLogger) (*Recorder, error) {
	if path == "" {
		return nil, fmt.Errorf("archive path empty")
	}
	f, err := storage.CreateAtomic(path)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		cfg:    cfg,
		file:   f,
		logger: logger.WithField("recorder", "mp4"),
	}, nil
}

func (r *Recorder) SetAudioTimebase(start uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baseTS = start
}

func (r *Recorder) SetCodecConfig(asc []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderDone
	}
	cfg, err := util.ConfigFromASC(asc)
	if err != nil {
		return err
	}
	if r.initWritten {
		if !util.EqualAACConfig(r.aacConfig, cfg) {
			return fmt.Errorf("%w: %x -> %x", ErrConfigChanged, r.aacConfig.ASC, cfg.ASC)
		}
		return nil
	}
	r.aacConfig = cfg
	r.timescale = uint32(cfg.SampleRate)
	r.samplesPerFragment = fragmentFrames(r.cfg.FragmentDuration, cfg.SampleRate)
	return r.writeInit()
}

func (r *Recorder) SendAudioFrame(payload []byte, ts uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderDone
	}
	if r.failed != nil {
		return r.failed
	}
	if !r.initWritten {
		return ErrNoCodecConfig
	}
	decodeTime := msToTimescale64(int64(relativeTS(ts, r.baseTS)), r.timescale)
	if r.started && decodeTime < r.nextDecodeTime {
		decodeTime = r.nextDecodeTime
	}
	r.started = true
	s := mp4.NewSample(0, adts.SamplesPerFrame, uint32(len(payload)), 0)
	r.pending = append(r.pending, mp4.FullSample{
		Sample:     s,
		DecodeTime: decodeTime,
		Data:       append([]byte(nil), payload...),
	})
	r.nextDecodeTime = decodeTime + adts.SamplesPerFrame
	if len(r.pending) >= r.samplesPerFragment {
		if err := r.finalizeFragment(); err != nil {
			return r.markFailed(err)
		}
	}
	return nil
}

// Close flushes the last fragment and moves the file into place. Nothing is
// kept if no codec config was ever set or a write failed.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.failed == nil && r.initWritten {
		if err := r.finalizeFragment(); err != nil {
			r.markFailed(err)
		}
	}
	if r.failed != nil || !r.initWritten {
		_ = r.file.Abort()
		return r.failed
	}
	if err := r.file.Commit(); err != nil {
		return err
	}
	r.logger.WithFields(logrus.Fields{
		"path":      r.file.Path(),
		"bytes":     r.bytesWritten,
		"fragments": r.fragmentSeq,
	}).Info("recording written")
	return nil
}

func (r *Recorder) writeInit() error {
	init := mp4.CreateEmptyInit()
	trak := addEmptyTrack(init, r.timescale, "audio", "und")
	esds := mp4.CreateEsdsBox(r.aacConfig.ASC)
	channels := r.aacConfig.Channels
	if channels == 0 {
		channels = 2
	}
	// The sample entry rate is 16.16 fixed point; rates above 65535 Hz are
	// carried by the esds only.
	sampleRate := r.aacConfig.SampleRate
	if sampleRate > 0xFFFF {
		sampleRate = 0
	}
	mp4a := mp4.CreateAudioSampleEntryBox("mp4a", uint16(channels), 16, uint16(sampleRate), esds)
	trak.Mdia.Minf.Stbl.Stsd.AddChild(mp4a)
	r.trackID = trak.Tkhd.TrackID

	var buf bytes.Buffer
	if err := init.Encode(&buf); err != nil {
		return r.markFailed(err)
	}
	if err := r.writeBytes(buf.Bytes()); err != nil {
		return r.markFailed(err)
	}
	r.initWritten = true
	return nil
}

func (r *Recorder) finalizeFragment() error {
	if len(r.pending) == 0 {
		return nil
	}
	frag, err := mp4.CreateMultiTrackFragment(r.fragmentSeq+1, []uint32{r.trackID})
	if err != nil {
		return err
	}
	for _, s := range r.pending {
		if err := frag.AddFullSampleToTrack(s, r.trackID); err != nil {
			return err
		}
	}
	var buf bytes.Buffer
	if err := frag.Encode(&buf); err != nil {
		return err
	}
	if err := r.writeBytes(buf.Bytes()); err != nil {
		return err
	}
	r.fragmentSeq++
	r.pending = r.pending[:0]
	return nil
}

func (r *Recorder) writeBytes(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n, err := r.file.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("archive short write")
	}
	r.bytesWritten += int64(n)
	return nil
}

func (r *Recorder) markFailed(err error) error {
	if r.failed == nil {
		r.failed = err
		r.logger.WithError(err).Warn("archive recorder stopped")
	}
	return r.failed
}

func addEmptyTrack(initSeg *mp4.InitSegment, timeScale uint32, mediaType, language string) *mp4.TrakBox {
	moov := initSeg.Moov
	trackID := uint32(len(moov.Traks) + 1)
	moov.Mvhd.NextTrackID = trackID + 1
	newTrak := mp4.CreateEmptyTrak(trackID, timeScale, mediaType, language)
	moov.AddChild(newTrak)
	moov.Mvex.AddChild(mp4.CreateTrex(trackID))
	return newTrak
}

func fragmentFrames(d time.Duration, sampleRate int) int {
	if d <= 0 || sampleRate <= 0 {
		d = 2 * time.Second
	}
	frames := int(int64(d) * int64(sampleRate) / int64(time.Second) / adts.SamplesPerFrame)
	if frames < 1 {
		frames = 1
	}
	return frames
}

// relativeTS is ts - base modulo 2^32, so timestamps that wrapped after the
// timebase keep increasing.
func relativeTS(ts, base uint32) uint32 {
	return ts - base
}

func msToTimescale64(ms int64, timescale uint32) uint64 {
	if ms <= 0 {
		return 0
	}
	return uint64((ms * int64(timescale)) / 1000)
}
