package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"RTMP_CHUNK_SIZE", "RTMP_FLASH_VER", "RTMP_DIAL_TIMEOUT",
		"PUSH_REALTIME", "PUSH_LOOP", "PUSH_START_TIMESTAMP",
		"REQUIRE_AAC_LC", "VALIDATE_ASC",
		"RECORD_PATH", "RECORD_FORMAT", "RECORD_FRAGMENT_DURATION",
		"INSPECT_BITRATE_WINDOW", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
	assert.Equal(t, DefaultConfig(), Load())
}

func TestLoadOverlaysEnv(t *testing.T) {
	t.Setenv("RTMP_CHUNK_SIZE", "4096")
	t.Setenv("RTMP_FLASH_VER", "LNX 9,0,124,2")
	t.Setenv("RTMP_DIAL_TIMEOUT", "3s")
	t.Setenv("PUSH_REALTIME", "false")
	t.Setenv("PUSH_LOOP", "1")
	t.Setenv("PUSH_START_TIMESTAMP", "5000")
	t.Setenv("REQUIRE_AAC_LC", "true")
	t.Setenv("VALIDATE_ASC", "true")
	t.Setenv("RECORD_PATH", "/tmp/out.flv")
	t.Setenv("RECORD_FORMAT", "FLV")
	t.Setenv("RECORD_FRAGMENT_DURATION", "500ms")
	t.Setenv("INSPECT_BITRATE_WINDOW", "5s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg := Load()
	assert.Equal(t, uint32(4096), cfg.RTMP.ChunkSize)
	assert.Equal(t, "LNX 9,0,124,2", cfg.RTMP.FlashVer)
	assert.Equal(t, 3*time.Second, cfg.RTMP.DialTimeout)
	assert.False(t, cfg.Push.Realtime)
	assert.True(t, cfg.Push.Loop)
	assert.Equal(t, uint32(5000), cfg.Push.StartTimestamp)
	assert.True(t, cfg.Policy.RequireAACLC)
	assert.True(t, cfg.Policy.ValidateASC)
	assert.Equal(t, "/tmp/out.flv", cfg.Record.Path)
	assert.Equal(t, "flv", cfg.Record.Format)
	assert.Equal(t, 500*time.Millisecond, cfg.Record.FragmentDuration)
	assert.Equal(t, 5*time.Second, cfg.Inspect.BitrateWindow)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFallsBackOnBadValues(t *testing.T) {
	t.Setenv("RTMP_CHUNK_SIZE", "-1")
	t.Setenv("RTMP_DIAL_TIMEOUT", "soon")
	t.Setenv("PUSH_REALTIME", "maybe")
	t.Setenv("PUSH_START_TIMESTAMP", "99999999999")

	cfg := Load()
	def := DefaultConfig()
	assert.Equal(t, def.RTMP.ChunkSize, cfg.RTMP.ChunkSize)
	assert.Equal(t, def.RTMP.DialTimeout, cfg.RTMP.DialTimeout)
	assert.Equal(t, def.Push.Realtime, cfg.Push.Realtime)
	assert.Equal(t, def.Push.StartTimestamp, cfg.Push.StartTimestamp)
}
