package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/verdantlabs/entitlement-service/internal/domain"
	"github.com/verdantlabs/entitlement-service/internal/ports"
)

// OutboxWorker pulls unpublished outbox records and publishes them.
// This separates transactional writes from broker delivery for reliability.
// Premium usage events additionally feed the analytics counter projection
// before they leave the service.
type OutboxWorker struct {
	logger       *slog.Logger
	outbox       ports.OutboxRepository
	publisher    ports.EventPublisher
	premiumUsage ports.PremiumUsageRepository
	interval     time.Duration
	batchSize    int
	claimTTL     time.Duration
	maxRetries   int
}

// NewOutboxWorker constructs the outbox publisher loop with sane defaults.
func NewOutboxWorker(
	logger *slog.Logger,
	outbox ports.OutboxRepository,
	publisher ports.EventPublisher,
	premiumUsage ports.PremiumUsageRepository,
	interval time.Duration,
	batchSize int,
	claimTTL time.Duration,
	maxRetries int,
) *OutboxWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if claimTTL <= 0 {
		claimTTL = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &OutboxWorker{
		logger:       logger,
		outbox:       outbox,
		publisher:    publisher,
		premiumUsage: premiumUsage,
		interval:     interval,
		batchSize:    batchSize,
		claimTTL:     claimTTL,
		maxRetries:   maxRetries,
	}
}

// Run executes the periodic outbox publish loop until context cancellation.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.processOnce(ctx); err != nil {
			w.logger.ErrorContext(ctx, "outbox iteration failed",
				"module", "usage.outbox_worker",
				"layer", "adapter",
				"operation", "outbox_process_once",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *OutboxWorker) processOnce(ctx context.Context) error {
	claimToken := uuid.NewString()
	records, err := w.outbox.ClaimUnpublished(ctx, w.batchSize, claimToken, time.Now().UTC().Add(w.claimTTL))
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	published := 0
	failed := 0
	deadLettered := 0
	for _, rec := range records {
		if rec.RetryCount >= w.maxRetries {
			deadLettered++
			_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, "retry threshold reached before publish", now)
			continue
		}

		if err := w.publisher.Publish(ctx, rec.EventType, rec.Payload); err != nil {
			failed++
			retriesAfterFailure := rec.RetryCount + 1
			if retriesAfterFailure >= w.maxRetries {
				deadLettered++
				w.logger.ErrorContext(ctx, "outbox message moved to dlq",
					"module", "usage.outbox_worker",
					"layer", "adapter",
					"operation", "publish_event",
					"outcome", "failure",
					"outbox_id", rec.OutboxID,
					"event_type", rec.EventType,
					"payload_bytes", len(rec.Payload),
					"retry_count", retriesAfterFailure,
					"error", err,
				)
				_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, err.Error(), now)
				continue
			}

			w.logger.WarnContext(ctx, "outbox publish failed; retry scheduled",
				"module", "usage.outbox_worker",
				"layer", "adapter",
				"operation", "publish_event",
				"outcome", "failure",
				"outbox_id", rec.OutboxID,
				"event_type", rec.EventType,
				"payload_bytes", len(rec.Payload),
				"retry_count", retriesAfterFailure,
				"error", err,
			)
			_ = w.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, err.Error(), now)
			continue
		}
		published++
		_ = w.outbox.MarkPublished(ctx, rec.OutboxID, claimToken, now)

		if rec.EventType == ports.EventPremiumRecorded {
			w.projectPremiumUsage(ctx, rec)
		}
	}
	if len(records) > 0 {
		w.logger.InfoContext(ctx, "outbox batch processed",
			"module", "usage.outbox_worker",
			"layer", "adapter",
			"operation", "outbox_process_once",
			"outcome", "success",
			"batch_size", len(records),
			"published_count", published,
			"failed_count", failed,
			"dead_lettered_count", deadLettered,
		)
	}
	return nil
}

// projectPremiumUsage folds a premium action event into the per-account
// analytics counter. The projection is best effort: the event has already
// been published and the counter is never consulted for gating.
func (w *OutboxWorker) projectPremiumUsage(ctx context.Context, rec ports.OutboxRecord) {
	var body struct {
		AccountID string `json:"account_id"`
		WindowKey string `json:"window_key"`
	}
	if err := json.Unmarshal(rec.Payload, &body); err != nil || body.AccountID == "" {
		w.logger.WarnContext(ctx, "premium usage payload undecodable",
			"module", "usage.outbox_worker",
			"layer", "adapter",
			"operation", "project_premium_usage",
			"outcome", "failure",
			"outbox_id", rec.OutboxID,
			"error", err,
		)
		return
	}
	if body.WindowKey == "" {
		body.WindowKey = domain.WindowKey(rec.CreatedAt)
	}
	if err := w.premiumUsage.IncrementAnalytics(ctx, body.AccountID, body.WindowKey, rec.CreatedAt); err != nil {
		w.logger.WarnContext(ctx, "premium usage projection failed",
			"module", "usage.outbox_worker",
			"layer", "adapter",
			"operation", "project_premium_usage",
			"outcome", "failure",
			"account_id", body.AccountID,
			"window_key", body.WindowKey,
			"error", err,
		)
	}
}
