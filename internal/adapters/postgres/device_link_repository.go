package postgres

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/verdantlabs/entitlement-service/internal/domain"
)

type deviceLinkRepository struct {
	db *gorm.DB
}

// Link records the (fingerprint, account) association idempotently. Re-linking
// an existing pair refreshes linked_at instead of duplicating the row.
func (r *deviceLinkRepository) Link(ctx context.Context, link domain.DeviceAccountLink) error {
	accountID, err := parseAccountID(link.AccountID)
	if err != nil {
		return err
	}
	rec := deviceAccountLinkModel{
		Fingerprint: link.Fingerprint,
		AccountID:   accountID,
		LinkedAt:    link.LinkedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "fingerprint"}, {Name: "account_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"linked_at": gorm.Expr("EXCLUDED.linked_at"),
			}),
		}).
		Create(&rec).Error
}

func (r *deviceLinkRepository) AccountsForFingerprint(ctx context.Context, fingerprint string) ([]string, error) {
	var rows []deviceAccountLinkModel
	if err := r.db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		Order("linked_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	accounts := make([]string, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, row.AccountID.String())
	}
	return accounts, nil
}
