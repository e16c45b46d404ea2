package pusher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"aac-rtmp-pusher/pkg/aacfile"
	"aac-rtmp-pusher/pkg/adts"
	"aac-rtmp-pusher/pkg/inspect"
	"aac-rtmp-pusher/pkg/policy"
)

type Config struct {
	// Realtime paces frames at their media timestamps instead of sending
	// as fast as the publisher accepts them.
	Realtime bool
	// Loop rewinds to the start of the file at end of stream.
	Loop           bool
	StartTimestamp uint32
	Policy         policy.Config
	Inspect        inspect.Config
}

type Summary struct {
	inspect.Result
	Loops         int
	LastTimestamp uint32
}

// Pusher reads ADTS frames and hands them to a Publisher with millisecond
// timestamps derived from the frame count.
type Pusher struct {
	cfg       Config
	reader    *aacfile.Reader
	pub       Publisher
	policy    *policy.Policy
	inspector *inspect.Inspector
	logger    logrus.FieldLogger

	sent    int64
	loops   int
	lastTS  uint32
	started bool
}

// New returns a pusher over reader. The caller keeps ownership of reader
// and pub.
func New(cfg Config, reader *aacfile.Reader, pub Publisher, logger logrus.FieldLogger) *Pusher {
	return &Pusher{
		cfg:       cfg,
		reader:    reader,
		pub:       pub,
		policy:    policy.New(cfg.Policy),
		inspector: inspect.New(cfg.Inspect),
		logger:    logger,
	}
}

// Run pushes frames until the stream ends, ctx is done or a step fails.
// Reaching the end of a non-looping stream returns a nil error.
func (p *Pusher) Run(ctx context.Context) (Summary, error) {
	if kind := p.reader.Kind(); kind != aacfile.KindADTS {
		return p.summary(), fmt.Errorf("%w: %s", aacfile.ErrUnsupportedContainer, kind)
	}
	var (
		rate      int
		t0        time.Time
		passCount int
	)
	for {
		if err := ctx.Err(); err != nil {
			return p.summary(), err
		}
		frame, err := p.reader.Next()
		if errors.Is(err, io.EOF) {
			if !p.cfg.Loop || passCount == 0 {
				return p.summary(), nil
			}
			if _, err := p.reader.Seek(0, io.SeekStart); err != nil {
				return p.summary(), fmt.Errorf("rewind: %w", err)
			}
			p.loops++
			passCount = 0
			p.logger.WithField("loop", p.loops).Debug("rewound input")
			continue
		}
		if err != nil {
			return p.summary(), err
		}

		if !p.started {
			rate, err = p.start()
			if err != nil {
				return p.summary(), err
			}
			t0 = time.Now()
		}

		ts := frameTimestamp(p.cfg.StartTimestamp, p.sent, rate)
		if p.cfg.Realtime {
			if err := sleepUntil(ctx, t0.Add(mediaOffset(p.sent, rate))); err != nil {
				return p.summary(), err
			}
		}
		if err := p.pub.SendAudioFrame(frame.Payload, ts); err != nil {
			return p.summary(), fmt.Errorf("frame %d: %w", p.sent, err)
		}
		if p.inspector.OnFrame(int64(ts), frame.Header, len(frame.Payload)) {
			p.logger.WithFields(logrus.Fields{
				"frame":    p.sent,
				"offset":   frame.Offset,
				"profile":  frame.Header.Profile,
				"rate_idx": frame.Header.SampleRateIndex,
				"channels": frame.Header.ChannelConfiguration,
			}).Warn("adts header differs from stream config")
		}
		p.sent++
		passCount++
		p.lastTS = ts
	}
}

func (p *Pusher) start() (int, error) {
	asc, ok := p.reader.AudioSpecificConfig()
	if !ok {
		return 0, fmt.Errorf("aac config not derived")
	}
	res := p.policy.Evaluate(asc)
	if err := res.Err(); err != nil {
		return 0, err
	}
	p.inspector.OnAudioConfig(res.Config)
	p.pub.SetAudioTimebase(p.cfg.StartTimestamp)
	if err := p.pub.SetCodecConfig(asc.Bytes()); err != nil {
		return 0, fmt.Errorf("codec config: %w", err)
	}
	p.started = true
	p.logger.WithFields(logrus.Fields{
		"asc":         asc.String(),
		"object_type": res.Config.ObjectType,
		"sample_rate": res.Config.SampleRate,
		"channels":    res.Config.Channels,
		"start_ts":    p.cfg.StartTimestamp,
	}).Info("aac stream accepted")
	return res.Config.SampleRate, nil
}

func (p *Pusher) summary() Summary {
	return Summary{
		Result:        p.inspector.Result(),
		Loops:         p.loops,
		LastTimestamp: p.lastTS,
	}
}

// frameTimestamp is start + n*1024*1000/rate in milliseconds, computed from
// n so rounding never accumulates. It wraps like an RTMP timestamp.
func frameTimestamp(start uint32, n int64, rate int) uint32 {
	return start + uint32(n*adts.SamplesPerFrame*1000/int64(rate))
}

func mediaOffset(n int64, rate int) time.Duration {
	samples := n * adts.SamplesPerFrame
	secs := samples / int64(rate)
	rem := samples % int64(rate)
	return time.Duration(secs)*time.Second + time.Duration(rem)*time.Second/time.Duration(rate)
}

func sleepUntil(ctx context.Context, deadline time.Time) error {
	d := time.Until(deadline)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
