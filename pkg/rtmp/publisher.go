package rtmp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	flvtag "github.com/yutopp/go-flv/tag"
	"github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"

	"aac-rtmp-pusher/pkg/util"
)

const audioChunkStreamID = 5

var ErrPublisherClosed = errors.New("publisher closed")

type Config struct {
	ChunkSize   uint32
	FlashVer    string
	DialTimeout time.Duration
}

type streamWriter interface {
	Write(chunkStreamID int, timestamp uint32, msg rtmpmsg.Message) error
	Close() error
}

// Publisher sends AAC audio to an RTMP server as FLV audio messages on a
// single published stream.
type Publisher struct {
	mu     sync.Mutex
	target Target
	stream streamWriter
	conn   io.Closer
	logger logrus.FieldLogger

	baseTS    uint32
	configSet bool
	frames    int
	closed    bool
}

// Dial connects to the server named by rawURL and publishes a live stream.
// ctx bounds the whole handshake.
func Dial(ctx context.Context, rawURL string, cfg Config, logger *logrus.Logger) (*Publisher, error) {
	target, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	log := logger.WithFields(targetFields(target))

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	client, err := dial(ctx, target.Addr, &rtmp.ConnConfig{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("rtmp dial %s: %w", target.Addr, err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	defer stop()

	fail := func(step string, err error) (*Publisher, error) {
		_ = client.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, fmt.Errorf("rtmp %s: %w", step, err)
	}
	err = client.Connect(&rtmpmsg.NetConnectionConnect{
		Command: rtmpmsg.NetConnectionConnectCommand{
			App:      target.App,
			Type:     "nonprivate",
			FlashVer: cfg.FlashVer,
			TCURL:    target.TCURL,
		},
	})
	if err != nil {
		return fail("connect", err)
	}
	stream, err := client.CreateStream(&rtmpmsg.NetConnectionCreateStream{}, cfg.ChunkSize)
	if err != nil {
		return fail("create stream", err)
	}
	err = stream.Publish(&rtmpmsg.NetStreamPublish{
		PublishingName: target.Stream,
		PublishingType: "live",
	})
	if err != nil {
		return fail("publish", err)
	}
	if !stop() {
		return fail("publish", ctx.Err())
	}
	log.Info("publish start")
	return newPublisher(target, stream, client, log), nil
}

func newPublisher(target Target, stream streamWriter, conn io.Closer, logger logrus.FieldLogger) *Publisher {
	return &Publisher{
		target: target,
		stream: stream,
		conn:   conn,
		logger: logger,
	}
}

func dial(ctx context.Context, addr string, cfg *rtmp.ConnConfig) (*rtmp.ClientConn, error) {
	type result struct {
		client *rtmp.ClientConn
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		client, err := rtmp.Dial("rtmp", addr, cfg)
		ch <- result{client: client, err: err}
	}()
	select {
	case r := <-ch:
		return r.client, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				_ = r.client.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (p *Publisher) Target() Target {
	return p.target
}

func (p *Publisher) SetAudioTimebase(start uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseTS = start
}

// SetCodecConfig sends the AAC sequence header. It must precede the first
// frame.
func (p *Publisher) SetCodecConfig(asc []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	if err := p.writeAudio(0, flvtag.AACPacketTypeSequenceHeader, asc); err != nil {
		return fmt.Errorf("send aac config: %w", err)
	}
	p.configSet = true
	p.logger.WithField("asc", fmt.Sprintf("%x", asc)).Debug("aac config sent")
	return nil
}

func (p *Publisher) SendAudioFrame(payload []byte, ts uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	if !p.configSet {
		return fmt.Errorf("aac frame before config")
	}
	rel := ts - p.baseTS
	if err := p.writeAudio(rel, flvtag.AACPacketTypeRaw, payload); err != nil {
		return fmt.Errorf("send aac frame at %dms: %w", rel, err)
	}
	p.frames++
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	streamErr := p.stream.Close()
	connErr := p.conn.Close()
	p.logger.WithField("frames", p.frames).Info("publish end")
	if streamErr != nil {
		return streamErr
	}
	return connErr
}

// Abort closes the connection without waiting for an in-flight write. Close
// must still be called.
func (p *Publisher) Abort() error {
	return p.conn.Close()
}

func (p *Publisher) writeAudio(ts uint32, packetType flvtag.AACPacketType, data []byte) error {
	buf := new(bytes.Buffer)
	if err := flvtag.EncodeAudioData(buf, util.FLVAudioData(packetType, data)); err != nil {
		return err
	}
	return p.stream.Write(audioChunkStreamID, ts, &rtmpmsg.AudioMessage{Payload: buf})
}
