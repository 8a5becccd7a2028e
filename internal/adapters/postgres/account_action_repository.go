package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/verdantlabs/entitlement-service/internal/domain"
	"github.com/verdantlabs/entitlement-service/internal/ports"
)

type accountActionRepository struct {
	db *gorm.DB
}

// AppendWithOutboxTx writes the action-log row and the outbox event in one
// transaction. The log is append-only: the account count is always derived by
// counting rows, so concurrent appends never race on a shared counter.
func (r *accountActionRepository) AppendWithOutboxTx(ctx context.Context, action domain.AccountAction, event ports.OutboxEvent) error {
	accountID, err := parseAccountID(action.AccountID)
	if err != nil {
		return err
	}
	actionID, err := parseActionID(action.ActionID)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := accountActionModel{
			ActionID:   actionID,
			AccountID:  accountID,
			Kind:       action.Kind,
			OccurredAt: action.OccurredAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}

		payload := event.Payload
		if len(payload) == 0 {
			payload = []byte(`{}`)
		}
		outbox := usageOutboxModel{
			OutboxID:     event.EventID,
			EventType:    event.EventType,
			PartitionKey: event.PartitionKey,
			Payload:      string(payload),
			CreatedAt:    event.OccurredAt,
			FirstSeenAt:  event.OccurredAt,
		}
		return tx.Create(&outbox).Error
	})
}

func (r *accountActionRepository) CountInWindow(ctx context.Context, accountID string, windowStart, windowEnd time.Time) (int, error) {
	id, err := parseAccountID(accountID)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&accountActionModel{}).
		Where("account_id = ?", id).
		Where("occurred_at >= ? AND occurred_at < ?", windowStart, windowEnd).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}
