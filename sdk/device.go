package sdk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the device fingerprint the service uses as a lookup
// key. It mixes the persisted device id with stable environment attributes
// and must stay in lockstep with the server-side derivation.
func Fingerprint(deviceID string, attrs ...string) string {
	h := sha256.New()
	h.Write([]byte(deviceID))
	for _, a := range attrs {
		h.Write([]byte{0})
		h.Write([]byte(strings.TrimSpace(a)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
