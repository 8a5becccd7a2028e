package application

import (
	"time"

	"github.com/verdantlabs/entitlement-service/internal/domain"
	"github.com/verdantlabs/entitlement-service/internal/ports"
)

type Config struct {
	Limits domain.TierLimits
	// PremiumCacheTTL bounds how long a payment-provider answer may be reused
	// across decisions. Tier derivation itself is never cached.
	PremiumCacheTTL time.Duration
	// ReconcileSessionTTL is how long a session's reconcile marker suppresses
	// repeat merges.
	ReconcileSessionTTL time.Duration
}

// Subject is the caller of one metered-action attempt, assembled by the
// transport adapter. AccountID is empty for anonymous callers. LocalCount is
// the device's self-reported local counter for the current window; it is
// trusted only in the max-merge direction (a device can only raise its own
// count, never lower a stored one).
type Subject struct {
	AccountID   string
	DeviceID    string
	Fingerprint string
	LocalCount  int
}

// Authenticated reports whether the subject carries a verified account id.
func (s Subject) Authenticated() bool { return s.AccountID != "" }

type CheckRequest struct {
	Subject Subject
}

type CheckResponse struct {
	Decision domain.EntitlementDecision `json:"decision"`
}

type RecordRequest struct {
	Subject Subject
}

type RecordResponse struct {
	Tier      domain.Tier `json:"tier"`
	WindowKey string      `json:"window_key"`
}

type ReconcileRequest struct {
	Subject   Subject
	SessionID string
}

type ReconcileResponse struct {
	WindowKey string `json:"window_key"`
	// Count is the merged winner. A client whose local counter is behind this
	// value overwrites local storage with it.
	Count   int  `json:"count"`
	Skipped bool `json:"skipped"`
}

type LinkDeviceRequest struct {
	Subject Subject
}

type DeviceUsageView struct {
	Fingerprint string    `json:"fingerprint"`
	WindowKey   string    `json:"window_key"`
	Count       int       `json:"count"`
	LastUsedAt  time.Time `json:"last_used_at"`
}

type UpsertDeviceUsageRequest struct {
	Fingerprint string
	DeviceID    string
	Count       int
}

type IdentifyRequest struct {
	Subject   Subject
	ImageURL  string
	ImageData []byte
	Locale    string
}

type IdentifyResponse struct {
	Result    ports.IdentificationResult `json:"result"`
	Decision  domain.EntitlementDecision `json:"decision"`
	WindowKey string                     `json:"window_key"`
}
