package postgres

import (
	"context"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/verdantlabs/entitlement-service/internal/domain"
)

type deviceUsageRepository struct {
	db *gorm.DB
}

// GetByFingerprint resolves the device row for (fingerprint, windowKey).
// Fingerprints are probabilistic join keys: when several rows share one
// fingerprint in the same window the most recently used row wins and the
// ambiguity is logged rather than treated as corruption.
func (r *deviceUsageRepository) GetByFingerprint(ctx context.Context, fingerprint, windowKey string) (domain.DeviceUsage, bool, error) {
	var rows []deviceUsageModel
	err := r.db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		Where("window_key = ?", windowKey).
		Order("last_used_at DESC").
		Limit(2).
		Find(&rows).Error
	if err != nil {
		return domain.DeviceUsage{}, false, err
	}
	if len(rows) == 0 {
		return domain.DeviceUsage{}, false, nil
	}
	if len(rows) > 1 {
		slog.Default().WarnContext(ctx, "ambiguous fingerprint match; most recent row selected",
			"module", "postgres",
			"layer", "adapter",
			"operation", "get_device_usage",
			"outcome", "degraded",
			"fingerprint", fingerprint,
			"window_key", windowKey,
		)
	}
	return toDomainDeviceUsage(rows[0]), true, nil
}

// UpsertMax writes max(stored, reported) for the row. GREATEST on conflict
// keeps the monotone non-decreasing invariant even under concurrent writers;
// last-write-wins applies only to the metadata columns.
func (r *deviceUsageRepository) UpsertMax(ctx context.Context, usage domain.DeviceUsage) (domain.DeviceUsage, error) {
	rec := deviceUsageModel{
		Fingerprint: usage.Fingerprint,
		DeviceID:    usage.DeviceID,
		WindowKey:   usage.WindowKey,
		UsageCount:  usage.Count,
		LastUsedAt:  usage.LastUsedAt,
		CreatedAt:   usage.LastUsedAt,
		UpdatedAt:   usage.LastUsedAt,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "fingerprint"}, {Name: "window_key"}},
			DoUpdates: clause.Assignments(map[string]any{
				"usage_count":  gorm.Expr("GREATEST(device_usage.usage_count, EXCLUDED.usage_count)"),
				"device_id":    gorm.Expr("EXCLUDED.device_id"),
				"last_used_at": gorm.Expr("EXCLUDED.last_used_at"),
				"updated_at":   gorm.Expr("EXCLUDED.updated_at"),
			}),
		}).
		Create(&rec).Error
	if err != nil {
		return domain.DeviceUsage{}, err
	}

	var stored deviceUsageModel
	if err := r.db.WithContext(ctx).
		Where("fingerprint = ?", usage.Fingerprint).
		Where("window_key = ?", usage.WindowKey).
		Order("last_used_at DESC").
		Take(&stored).Error; err != nil {
		return domain.DeviceUsage{}, err
	}
	return toDomainDeviceUsage(stored), nil
}

// DeleteBeforeWindow drops rows from closed windows. Window keys are
// zero-padded year-month strings, so lexical order is chronological order.
func (r *deviceUsageRepository) DeleteBeforeWindow(ctx context.Context, windowKey string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("window_key < ?", windowKey).
		Delete(&deviceUsageModel{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
