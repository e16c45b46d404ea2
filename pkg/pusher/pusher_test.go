package pusher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aac-rtmp-pusher/pkg/aacfile"
	"aac-rtmp-pusher/pkg/adts"
	"aac-rtmp-pusher/pkg/policy"
)

type sentFrame struct {
	payload []byte
	ts      uint32
}

type fakePublisher struct {
	events   []string
	timebase uint32
	asc      []byte
	frames   []sentFrame
	closed   bool

	sendErr error
	onSend  func(n int)
}

func (f *fakePublisher) SetAudioTimebase(start uint32) {
	f.events = append(f.events, "timebase")
	f.timebase = start
}

func (f *fakePublisher) SetCodecConfig(asc []byte) error {
	f.events = append(f.events, "config")
	f.asc = append([]byte(nil), asc...)
	return nil
}

func (f *fakePublisher) SendAudioFrame(payload []byte, ts uint32) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.events = append(f.events, "frame")
	f.frames = append(f.frames, sentFrame{payload: append([]byte(nil), payload...), ts: ts})
	if f.onSend != nil {
		f.onSend(len(f.frames))
	}
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func adtsFrame(profile, rateIndex uint8, payload []byte) []byte {
	h := adts.Header{
		SyncWord:             adts.SyncWord,
		ProtectionAbsent:     1,
		Profile:              profile,
		SampleRateIndex:      rateIndex,
		ChannelConfiguration: 2,
		FrameLength:          uint16(adts.HeaderSize + len(payload)),
		BufferFullness:       0x7FF,
	}
	hdr := h.Encode()
	return append(hdr[:], payload...)
}

func adtsStream(profile, rateIndex uint8, frames int) []byte {
	var buf bytes.Buffer
	for n := 0; n < frames; n++ {
		buf.Write(adtsFrame(profile, rateIndex, []byte{0x21, byte(n), 0x40}))
	}
	return buf.Bytes()
}

func newReader(t *testing.T, data []byte) *aacfile.Reader {
	t.Helper()
	r, err := aacfile.NewReader(aacfile.NewSource(bytes.NewReader(data), "memory"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRunSendsConfigThenFrames(t *testing.T) {
	pub := &fakePublisher{}
	p := New(Config{StartTimestamp: 1000}, newReader(t, adtsStream(1, 4, 3)), pub, testLogger())

	sum, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"timebase", "config", "frame", "frame", "frame"}, pub.events)
	assert.Equal(t, uint32(1000), pub.timebase)
	assert.Equal(t, []byte{0x12, 0x10}, pub.asc)
	require.Len(t, pub.frames, 3)
	assert.Equal(t, uint32(1000), pub.frames[0].ts)
	assert.Equal(t, uint32(1023), pub.frames[1].ts)
	assert.Equal(t, uint32(1046), pub.frames[2].ts)
	assert.Equal(t, []byte{0x21, 0x02, 0x40}, pub.frames[2].payload)
	assert.False(t, pub.closed)

	assert.Equal(t, 3, sum.Frames)
	assert.Equal(t, int64(9), sum.Bytes)
	assert.Equal(t, 44100, sum.SampleRate)
	assert.Equal(t, 0, sum.Loops)
	assert.Equal(t, uint32(1046), sum.LastTimestamp)
}

func TestRunTimestampsDoNotDrift(t *testing.T) {
	pub := &fakePublisher{}
	// 22050 Hz: 46.439 ms per frame.
	p := New(Config{}, newReader(t, adtsStream(1, 7, 1000)), pub, testLogger())
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.frames, 1000)
	for n, f := range pub.frames {
		assert.Equal(t, uint32(int64(n)*1024*1000/22050), f.ts)
	}
	assert.Equal(t, uint32(46393), pub.frames[999].ts)
}

func TestRunLoopKeepsTimestampsIncreasing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pub := &fakePublisher{onSend: func(n int) {
		if n == 7 {
			cancel()
		}
	}}
	p := New(Config{Loop: true}, newReader(t, adtsStream(1, 3, 3)), pub, testLogger())

	sum, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, pub.frames, 7)
	for n := 1; n < len(pub.frames); n++ {
		assert.Greater(t, pub.frames[n].ts, pub.frames[n-1].ts)
	}
	assert.Equal(t, pub.frames[0].payload, pub.frames[3].payload)
	assert.Equal(t, 2, sum.Loops)
	assert.Equal(t, 7, sum.Frames)
	assert.Equal(t, 1, countEvents(pub.events, "config"))
}

func TestRunLoopOnEmptyStreamStops(t *testing.T) {
	pub := &fakePublisher{}
	// A sync word followed by too few bytes for a header.
	p := New(Config{Loop: true}, newReader(t, []byte{0xFF, 0xF1, 0x50}), pub, testLogger())
	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pub.events)
	assert.Zero(t, sum.Frames)
}

func TestRunPolicyRejects(t *testing.T) {
	pub := &fakePublisher{}
	cfg := Config{Policy: policy.Config{RequireAACLC: true}}
	p := New(cfg, newReader(t, adtsStream(0, 4, 3)), pub, testLogger())

	_, err := p.Run(context.Background())
	var rejectErr *policy.RejectError
	require.True(t, errors.As(err, &rejectErr))
	assert.Equal(t, policy.ReasonCodecUnsupported, rejectErr.Reason)
	assert.Empty(t, pub.events)
}

func TestRunRejectsADIF(t *testing.T) {
	pub := &fakePublisher{}
	data := append([]byte("ADIF"), make([]byte, 64)...)
	p := New(Config{}, newReader(t, data), pub, testLogger())

	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, aacfile.ErrUnsupportedContainer)
	assert.Empty(t, pub.events)
}

func TestRunStopsOnTruncatedFrame(t *testing.T) {
	pub := &fakePublisher{}
	data := adtsStream(1, 4, 2)
	data = append(data, adtsFrame(1, 4, make([]byte, 100))[:50]...)
	p := New(Config{}, newReader(t, data), pub, testLogger())

	sum, err := p.Run(context.Background())
	assert.ErrorIs(t, err, aacfile.ErrTruncated)
	assert.Len(t, pub.frames, 2)
	assert.Equal(t, 2, sum.Frames)
}

func TestRunPublisherError(t *testing.T) {
	pub := &fakePublisher{sendErr: errors.New("connection reset")}
	p := New(Config{}, newReader(t, adtsStream(1, 4, 3)), pub, testLogger())

	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, pub.sendErr)
}

func TestRunCountsConfigDrift(t *testing.T) {
	pub := &fakePublisher{}
	data := adtsStream(1, 4, 2)
	data = append(data, adtsFrame(1, 3, []byte{0x21})...)
	p := New(Config{}, newReader(t, data), pub, testLogger())

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ConfigChanges)
	assert.Len(t, pub.frames, 3)
}

func TestRunRealtimePacing(t *testing.T) {
	pub := &fakePublisher{}
	// 48 kHz: frame 4 is due 85 ms after the first.
	p := New(Config{Realtime: true}, newReader(t, adtsStream(1, 3, 5)), pub, testLogger())

	start := time.Now()
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Len(t, pub.frames, 5)
}

func TestRunRealtimeCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	pub := &fakePublisher{}
	// 8 kHz frames are 128 ms apart.
	p := New(Config{Realtime: true}, newReader(t, adtsStream(1, 11, 10)), pub, testLogger())

	start := time.Now()
	_, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, pub.frames, 1)
}

func TestFrameTimestamp(t *testing.T) {
	assert.Equal(t, uint32(0), frameTimestamp(0, 0, 44100))
	assert.Equal(t, uint32(23), frameTimestamp(0, 1, 44100))
	assert.Equal(t, uint32(500+64), frameTimestamp(500, 1, 16000))
	assert.Equal(t, uint32(5), frameTimestamp(0xFFFFFFF0, 1, 48000))
	assert.Equal(t, 21333333*time.Nanosecond, mediaOffset(1, 48000))
	assert.Equal(t, 2*time.Second, mediaOffset(125, 64000))
}

func TestMulti(t *testing.T) {
	a, b := &fakePublisher{}, &fakePublisher{}
	m := Multi{a, b}
	m.SetAudioTimebase(7)
	require.NoError(t, m.SetCodecConfig([]byte{0x12, 0x10}))
	require.NoError(t, m.SendAudioFrame([]byte{1}, 7))
	require.NoError(t, m.Close())
	for i, p := range []*fakePublisher{a, b} {
		assert.Equal(t, []string{"timebase", "config", "frame"}, p.events, fmt.Sprint(i))
		assert.True(t, p.closed)
	}

	b.sendErr = errors.New("down")
	assert.ErrorIs(t, m.SendAudioFrame([]byte{2}, 30), b.sendErr)
	assert.Len(t, a.frames, 2)
}

func countEvents(events []string, name string) int {
	n := 0
	for _, e := range events {
		if e == name {
			n++
		}
	}
	return n
}
