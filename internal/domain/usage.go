package domain

import "time"

// WindowKeyFormat renders calendar-month window keys, e.g. "2026-08".
// Rollover is implicit: a new month yields a new key and counts start at zero
// without any explicit reset operation. That behavior is deliberate and load
// bearing for the anonymous counting path.
const WindowKeyFormat = "2006-01"

// WindowKey returns the counting-period key for the given instant.
func WindowKey(at time.Time) string {
	return at.UTC().Format(WindowKeyFormat)
}

// DeviceUsage is the maintained per-device usage row for one window.
// Unlike account usage it is a running integer and CAN drift; drift is always
// assumed to be undercounting, which is why reconciliation max-merges.
type DeviceUsage struct {
	Fingerprint string
	DeviceID    string
	WindowKey   string
	Count       int
	LastUsedAt  time.Time
}

// AccountAction is one append-only action-log row. The account usage count is
// always derived by counting rows in the current window, never maintained, so
// the account-side count is immune to drift by construction.
type AccountAction struct {
	ActionID   string
	AccountID  string
	Kind       string
	OccurredAt time.Time
}

// ActionKindIdentification is the single metered action this service gates.
const ActionKindIdentification = "identification"

// DeviceAccountLink associates a device fingerprint with an account that has
// authenticated from it. The abuse guard walks these links.
type DeviceAccountLink struct {
	Fingerprint string
	AccountID   string
	LinkedAt    time.Time
}

// UsageSummary is the read model returned to callers asking "where do I stand".
type UsageSummary struct {
	Tier       Tier   `json:"tier"`
	WindowKey  string `json:"window_key"`
	Count      int    `json:"count"`
	MaxActions int    `json:"max_actions"`
	Remaining  int    `json:"remaining"`
	Unlimited  bool   `json:"unlimited"`
}

// EntitlementDecision is the transient outcome of a single gating check.
// It is computed fresh per attempt and never persisted.
type EntitlementDecision struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	Unlimited bool `json:"unlimited"`
	Tier      Tier `json:"tier"`
	// GuardTripped records that the cross-account device ceiling, not the
	// tier ceiling, produced the denial.
	GuardTripped bool `json:"guard_tripped,omitempty"`
}

// MaxCount resolves disagreeing counts for the same subject. Undercounting is
// the only assumed failure mode, so the larger value is always the truth.
func MaxCount(local, remote int) int {
	if local > remote {
		return local
	}
	return remote
}
