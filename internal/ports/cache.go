package ports

import (
	"context"
	"time"
)

// ReconcileMarkerStore keeps short-lived "already reconciled this session"
// markers. Reconciliation runs once per session for anonymous devices; the
// marker lets retried or duplicated session starts skip the merge cheaply.
type ReconcileMarkerStore interface {
	// MarkIfAbsent sets the marker and reports whether it was newly set.
	MarkIfAbsent(ctx context.Context, sessionKey string, ttl time.Duration) (bool, error)
	Clear(ctx context.Context, sessionKey string) error
}

// PremiumStatusCache shields the payment provider from one lookup per
// decision. Entries carry a short TTL; tier derivation itself still happens
// fresh on every decision from the cached provider answer.
type PremiumStatusCache interface {
	Get(ctx context.Context, accountID string) (active bool, found bool, err error)
	Put(ctx context.Context, accountID string, active bool, ttl time.Duration) error
}
