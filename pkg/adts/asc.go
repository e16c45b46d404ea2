package adts

import "fmt"

// AudioSpecificConfig is the 2-byte MPEG-4 descriptor
//
//	ObjectType:5 SamplingFrequencyIndex:4 ChannelConfiguration:4 padding:3
type AudioSpecificConfig [2]byte

// DeriveConfig builds the AudioSpecificConfig described by an ADTS header.
// The ADTS profile field is the MPEG-4 object type minus one.
func DeriveConfig(h Header) (AudioSpecificConfig, error) {
	var asc AudioSpecificConfig
	if _, err := h.SampleRate(); err != nil {
		return asc, err
	}
	objectType := h.Profile&0x03 + 1
	asc[0] = objectType<<3 | (h.SampleRateIndex&0x0F)>>1
	asc[1] = (h.SampleRateIndex&0x01)<<7 | (h.ChannelConfiguration&0x0F)<<3
	return asc, nil
}

func (c AudioSpecificConfig) ObjectType() uint8 {
	return c[0] >> 3
}

func (c AudioSpecificConfig) SampleRateIndex() uint8 {
	return (c[0]&0x07)<<1 | c[1]>>7
}

func (c AudioSpecificConfig) ChannelConfiguration() uint8 {
	return (c[1] >> 3) & 0x0F
}

func (c AudioSpecificConfig) Bytes() []byte {
	return []byte{c[0], c[1]}
}

func (c AudioSpecificConfig) String() string {
	return fmt.Sprintf("%02x%02x", c[0], c[1])
}
