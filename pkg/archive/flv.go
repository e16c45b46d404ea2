package archive

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/yutopp/go-flv"
	flvtag "github.com/yutopp/go-flv/tag"

	"aac-rtmp-pusher/pkg/storage"
	"aac-rtmp-pusher/pkg/util"
)

// FLVRecorder writes the pushed audio as an audio-only FLV file, the same
// tags an RTMP server would receive.
type FLVRecorder struct {
	mu     sync.Mutex
	file   *storage.AtomicFile
	enc    *flv.Encoder
	logger logrus.FieldLogger

	baseTS    uint32
	asc       []byte
	configSet bool
	tags      int

	failed error
	closed bool
}

func NewFLVRecorder(path string, logger logrus.FieldLogger) (*FLVRecorder, error) {
	if path == "" {
		return nil, fmt.Errorf("archive path empty")
	}
	f, err := storage.CreateAtomic(path)
	if err != nil {
		return nil, err
	}
	enc, err := flv.NewEncoder(f, flv.FlagsAudio)
	if err != nil {
		_ = f.Abort()
		return nil, err
	}
	return &FLVRecorder{
		file:   f,
		enc:    enc,
		logger: logger.WithField("recorder", "flv"),
	}, nil
}

func (r *FLVRecorder) SetAudioTimebase(start uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baseTS = start
}

func (r *FLVRecorder) SetCodecConfig(asc []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderDone
	}
	if r.configSet {
		if string(r.asc) != string(asc) {
			return fmt.Errorf("%w: %x -> %x", ErrConfigChanged, r.asc, asc)
		}
		return nil
	}
	if err := r.writeTag(0, flvtag.AACPacketTypeSequenceHeader, asc); err != nil {
		return err
	}
	r.asc = append([]byte(nil), asc...)
	r.configSet = true
	return nil
}

func (r *FLVRecorder) SendAudioFrame(payload []byte, ts uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRecorderDone
	}
	if !r.configSet {
		return ErrNoCodecConfig
	}
	return r.writeTag(relativeTS(ts, r.baseTS), flvtag.AACPacketTypeRaw, payload)
}

func (r *FLVRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.failed != nil || !r.configSet {
		_ = r.file.Abort()
		return r.failed
	}
	if err := r.file.Commit(); err != nil {
		return err
	}
	r.logger.WithFields(logrus.Fields{
		"path": r.file.Path(),
		"tags": r.tags,
	}).Info("recording written")
	return nil
}

func (r *FLVRecorder) writeTag(ts uint32, packetType flvtag.AACPacketType, data []byte) error {
	if r.failed != nil {
		return r.failed
	}
	err := r.enc.Encode(&flvtag.FlvTag{
		TagType:   flvtag.TagTypeAudio,
		Timestamp: ts,
		Data:      util.FLVAudioData(packetType, data),
	})
	if err != nil {
		r.failed = err
		r.logger.WithError(err).Warn("flv recorder stopped")
		return err
	}
	r.tags++
	return nil
}
