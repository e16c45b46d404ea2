package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	RTMP    RTMPConfig
	Push    PushConfig
	Policy  PolicyConfig
	Record  RecordConfig
	Inspect InspectConfig
	Log     LogConfig
}

type RTMPConfig struct {
	ChunkSize   uint32
	FlashVer    string
	DialTimeout time.Duration
}

type PushConfig struct {
	Realtime       bool
	Loop           bool
	StartTimestamp uint32
}

type PolicyConfig struct {
	RequireAACLC bool
	ValidateASC  bool
}

type RecordConfig struct {
	Path             string
	Format           string // "mp4" or "flv"
	FragmentDuration time.Duration
}

type InspectConfig struct {
	BitrateWindow time.Duration
}

type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

func DefaultConfig() Config {
	return Config{
		RTMP: RTMPConfig{
			ChunkSize:   128,
			FlashVer:    "FMLE/3.0 (compatible; aac-rtmp-pusher)",
			DialTimeout: 10 * time.Second,
		},
		Push: PushConfig{
			Realtime:       true,
			Loop:           false,
			StartTimestamp: 0,
		},
		Policy: PolicyConfig{
			RequireAACLC: false,
			ValidateASC:  false,
		},
		Record: RecordConfig{
			Path:             "",
			Format:           "mp4",
			FragmentDuration: 2 * time.Second,
		},
		Inspect: InspectConfig{
			BitrateWindow: 2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("RTMP_CHUNK_SIZE"); v != "" {
		cfg.RTMP.ChunkSize = parseUint32(v, cfg.RTMP.ChunkSize)
	}
	if v := os.Getenv("RTMP_FLASH_VER"); v != "" {
		cfg.RTMP.FlashVer = v
	}
	if v := os.Getenv("RTMP_DIAL_TIMEOUT"); v != "" {
		cfg.RTMP.DialTimeout = parseDuration(v, cfg.RTMP.DialTimeout)
	}

	if v := os.Getenv("PUSH_REALTIME"); v != "" {
		cfg.Push.Realtime = parseBool(v, cfg.Push.Realtime)
	}
	if v := os.Getenv("PUSH_LOOP"); v != "" {
		cfg.Push.Loop = parseBool(v, cfg.Push.Loop)
	}
	if v := os.Getenv("PUSH_START_TIMESTAMP"); v != "" {
		cfg.Push.StartTimestamp = parseUint32(v, cfg.Push.StartTimestamp)
	}

	if v := os.Getenv("REQUIRE_AAC_LC"); v != "" {
		cfg.Policy.RequireAACLC = parseBool(v, cfg.Policy.RequireAACLC)
	}
	if v := os.Getenv("VALIDATE_ASC"); v != "" {
		cfg.Policy.ValidateASC = parseBool(v, cfg.Policy.ValidateASC)
	}

	if v := os.Getenv("RECORD_PATH"); v != "" {
		cfg.Record.Path = v
	}
	if v := os.Getenv("RECORD_FORMAT"); v != "" {
		cfg.Record.Format = strings.ToLower(v)
	}
	if v := os.Getenv("RECORD_FRAGMENT_DURATION"); v != "" {
		cfg.Record.FragmentDuration = parseDuration(v, cfg.Record.FragmentDuration)
	}

	if v := os.Getenv("INSPECT_BITRATE_WINDOW"); v != "" {
		cfg.Inspect.BitrateWindow = parseDuration(v, cfg.Inspect.BitrateWindow)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = strings.ToLower(v)
	}

	return cfg
}

func parseBool(value string, fallback bool) bool {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return v
}

func parseUint32(value string, fallback uint32) uint32 {
	v, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return fallback
	}
	return uint32(v)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return v
}
