package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/verdantlabs/entitlement-service/internal/domain"
)

// DeviceUsageRepository persists the maintained per-device usage rows.
// Writes go through UpsertMax so a stored count can never decrease; upsert
// semantics are last-write-wins-by-maximum, which is the reason device-side
// drift is tolerated rather than prevented.
type DeviceUsageRepository interface {
	// GetByFingerprint returns the device row for (fingerprint, windowKey).
	// Fingerprint matches are best-effort: when more than one row matches the
	// same window the most recently used row wins and the ambiguity is
	// reported alongside the result.
	GetByFingerprint(ctx context.Context, fingerprint, windowKey string) (domain.DeviceUsage, bool, error)
	// UpsertMax writes max(stored, count) for the row, creating it if absent.
	UpsertMax(ctx context.Context, usage domain.DeviceUsage) (domain.DeviceUsage, error)
	// DeleteBeforeWindow removes rows whose window key sorts strictly before
	// the given key and returns how many were removed.
	DeleteBeforeWindow(ctx context.Context, windowKey string) (int64, error)
}

// AccountActionRepository is the append-only per-account action log.
// The count for an account is always COUNT(*) over the current window, never a
// maintained total, so concurrent appends cannot race on a shared counter.
type AccountActionRepository interface {
	// AppendWithOutboxTx writes the action row and its outbox event in one
	// transaction so recorded usage and emitted events cannot diverge.
	AppendWithOutboxTx(ctx context.Context, action domain.AccountAction, event OutboxEvent) error
	CountInWindow(ctx context.Context, accountID string, windowStart, windowEnd time.Time) (int, error)
}

// DeviceLinkRepository records which accounts have authenticated from which
// device fingerprints. The abuse guard reads these links to find the maximum
// usage across accounts sharing one device.
type DeviceLinkRepository interface {
	Link(ctx context.Context, link domain.DeviceAccountLink) error
	AccountsForFingerprint(ctx context.Context, fingerprint string) ([]string, error)
}

// PremiumUsageRepository maintains the best-effort analytics counter for
// premium identifications. It is fed asynchronously through the outbox and is
// never consulted for gating.
type PremiumUsageRepository interface {
	IncrementAnalytics(ctx context.Context, accountID, windowKey string, at time.Time) error
}

// OutboxEvent is the write-side event payload prior to storage.
// It is adapter-neutral to keep application code independent of broker specifics.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	FirstSeenAt    time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls publish-retry workflow for usage events.
// This explicit contract enables transactional outbox patterns without leaking DB details.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}
