package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type premiumUsageRepository struct {
	db *gorm.DB
}

// IncrementAnalytics bumps the best-effort premium counter. The counter is
// analytics-only and never gates anything, so a lost increment here is an
// accepted failure mode.
func (r *premiumUsageRepository) IncrementAnalytics(ctx context.Context, accountID, windowKey string, at time.Time) error {
	id, err := parseAccountID(accountID)
	if err != nil {
		return err
	}
	rec := premiumUsageModel{
		AccountID:  id,
		WindowKey:  windowKey,
		UsageCount: 1,
		UpdatedAt:  at,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account_id"}, {Name: "window_key"}},
			DoUpdates: clause.Assignments(map[string]any{
				"usage_count": gorm.Expr("premium_usage_counters.usage_count + 1"),
				"updated_at":  gorm.Expr("EXCLUDED.updated_at"),
			}),
		}).
		Create(&rec).Error
}
