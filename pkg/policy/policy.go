package policy

import (
	"fmt"

	"aac-rtmp-pusher/pkg/adts"
	"aac-rtmp-pusher/pkg/util"
)

type Decision int

const (
	DecisionAccept Decision = iota
	DecisionReject
)

const (
	ReasonCodecUnsupported  = "CODEC_UNSUPPORTED"
	ReasonAudioUnsupported  = "AUDIO_UNSUPPORTED"
	ReasonSampleRateInvalid = "SAMPLE_RATE_INVALID"
)

type Result struct {
	Decision Decision
	Reason   string
	Message  string
	Config   util.AACConfig
}

func (r Result) Err() error {
	if r.Decision != DecisionReject {
		return nil
	}
	return &RejectError{Reason: r.Reason, Message: r.Message}
}

type RejectError struct {
	Reason  string
	Message string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("rejected: %s (%s)", e.Message, e.Reason)
}

type Config struct {
	RequireAACLC bool
	// ValidateASC requires the derived config to be decodable by a
	// standard ASC parser, which is what RTMP ingest servers run.
	ValidateASC bool
}

type Policy struct {
	Config Config
}

func New(cfg Config) *Policy {
	return &Policy{Config: cfg}
}

// Evaluate decides whether a stream with this codec config may be published.
func (p *Policy) Evaluate(asc adts.AudioSpecificConfig) Result {
	cfg, err := util.ConfigFromASC(asc.Bytes())
	if err != nil {
		return Result{Decision: DecisionReject, Reason: ReasonSampleRateInvalid, Message: err.Error()}
	}
	if p.Config.ValidateASC {
		parsed, err := util.ParseAudioSpecificConfig(cfg.ASC)
		if err != nil {
			return Result{Decision: DecisionReject, Reason: ReasonAudioUnsupported, Message: fmt.Sprintf("aac config %s: %v", asc, err), Config: cfg}
		}
		if parsed.SampleRate != cfg.SampleRate || parsed.Channels != cfg.Channels || parsed.ObjectType != cfg.ObjectType {
			return Result{Decision: DecisionReject, Reason: ReasonAudioUnsupported, Message: fmt.Sprintf("aac config %s decodes inconsistently", asc), Config: cfg}
		}
	}
	if p.Config.RequireAACLC && cfg.ObjectType != 2 {
		return Result{Decision: DecisionReject, Reason: ReasonCodecUnsupported, Message: fmt.Sprintf("object type %d is not AAC-LC", cfg.ObjectType), Config: cfg}
	}
	return Result{Decision: DecisionAccept, Config: cfg}
}
