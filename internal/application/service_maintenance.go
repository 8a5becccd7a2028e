package application

import (
	"context"
	"fmt"
	"time"

	"github.com/verdantlabs/entitlement-service/internal/domain"
)

// PruneStaleDeviceUsage removes device counter rows from windows older than
// retainWindows months before the current one. Closed windows never gate
// anything again, so the rows are pure storage cost once the window turns.
func (s *Service) PruneStaleDeviceUsage(ctx context.Context, retainWindows int) (int64, error) {
	if retainWindows < 1 {
		retainWindows = 1
	}
	now := s.nowFn()
	// Anchor at the first of the month so AddDate cannot normalize across a
	// short month and land in the wrong window.
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	cutoff := domain.WindowKey(monthStart.AddDate(0, -retainWindows, 0))

	removed, err := s.deviceUsage.DeleteBeforeWindow(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune device usage before %s: %w", cutoff, err)
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "stale device usage pruned",
			"operation", "prune_device_usage",
			"outcome", "success",
			"cutoff_window", cutoff,
			"rows_removed", removed,
		)
	}
	return removed, nil
}
