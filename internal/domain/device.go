package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DeviceIdentity pairs the persisted opaque device id with its derived
// fingerprint. The id is stable for the lifetime of the device's local
// storage; the fingerprint is recomputed on demand and may change whenever
// environment attributes change, so it is a lookup hint, not an identity.
type DeviceIdentity struct {
	DeviceID    string `json:"device_id"`
	Fingerprint string `json:"fingerprint"`
}

// ComputeFingerprint derives the device fingerprint from the device id and
// ambient environment attributes. Pure function of its inputs at call time.
func ComputeFingerprint(deviceID string, attrs ...string) string {
	h := sha256.New()
	h.Write([]byte(deviceID))
	for _, a := range attrs {
		h.Write([]byte{0})
		h.Write([]byte(strings.TrimSpace(a)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ValidFingerprint rejects values that cannot be a hex SHA-256 digest before
// they reach the ledger as lookup keys.
func ValidFingerprint(fp string) bool {
	if len(fp) != 64 {
		return false
	}
	for _, c := range fp {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
