package pusher

import (
	"errors"
)

// Publisher receives the audio of one push session. SetAudioTimebase and
// SetCodecConfig are called once, before the first frame.
type Publisher interface {
	SetAudioTimebase(start uint32)
	SetCodecConfig(asc []byte) error
	SendAudioFrame(payload []byte, ts uint32) error
	Close() error
}

// Multi fans every call out to each publisher in order. The first error
// stops a send.
type Multi []Publisher

func (m Multi) SetAudioTimebase(start uint32) {
	for _, p := range m {
		p.SetAudioTimebase(start)
	}
}

func (m Multi) SetCodecConfig(asc []byte) error {
	for _, p := range m {
		if err := p.SetCodecConfig(asc); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) SendAudioFrame(payload []byte, ts uint32) error {
	for _, p := range m {
		if err := p.SendAudioFrame(payload, ts); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every publisher, even after a failure.
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
