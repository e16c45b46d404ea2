package rtmp

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/sirupsen/logrus"
)

// maskStreamKey returns a short hash of the key so logs can tell streams
// apart without exposing the key.
func maskStreamKey(streamKey string) string {
	if streamKey == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(streamKey))
	return hex.EncodeToString(sum[:4])
}

func targetFields(t Target) logrus.Fields {
	return logrus.Fields{
		"addr":            t.Addr,
		"app":             t.App,
		"stream_key_hash": maskStreamKey(t.Stream),
	}
}
