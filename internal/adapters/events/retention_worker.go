package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/verdantlabs/entitlement-service/internal/application"
)

// RetentionWorker periodically prunes device counter rows from closed usage
// windows. Runs alongside the outbox loop in the worker process.
type RetentionWorker struct {
	logger        *slog.Logger
	service       *application.Service
	interval      time.Duration
	retainWindows int
}

func NewRetentionWorker(
	logger *slog.Logger,
	service *application.Service,
	interval time.Duration,
	retainWindows int,
) *RetentionWorker {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if retainWindows <= 0 {
		retainWindows = 3
	}
	return &RetentionWorker{
		logger:        logger,
		service:       service,
		interval:      interval,
		retainWindows: retainWindows,
	}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.service.PruneStaleDeviceUsage(ctx, w.retainWindows); err != nil {
			w.logger.ErrorContext(ctx, "retention iteration failed",
				"module", "usage.retention_worker",
				"layer", "adapter",
				"operation", "prune_device_usage",
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
