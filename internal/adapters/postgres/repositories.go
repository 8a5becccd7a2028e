package postgres

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/verdantlabs/entitlement-service/internal/domain"
	"github.com/verdantlabs/entitlement-service/internal/ports"
)

type Repositories struct {
	DeviceUsage  ports.DeviceUsageRepository
	Actions      ports.AccountActionRepository
	Links        ports.DeviceLinkRepository
	PremiumUsage ports.PremiumUsageRepository
	Outbox       ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		DeviceUsage:  &deviceUsageRepository{db: db},
		Actions:      &accountActionRepository{db: db},
		Links:        &deviceLinkRepository{db: db},
		PremiumUsage: &premiumUsageRepository{db: db},
		Outbox:       &outboxRepository{db: db},
	}
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func parseAccountID(accountID string) (uuid.UUID, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: account id must be a uuid", domain.ErrInvalidInput)
	}
	return id, nil
}

func parseActionID(actionID string) (uuid.UUID, error) {
	id, err := uuid.Parse(actionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: action id must be a uuid", domain.ErrInvalidInput)
	}
	return id, nil
}

func toDomainDeviceUsage(row deviceUsageModel) domain.DeviceUsage {
	return domain.DeviceUsage{
		Fingerprint: row.Fingerprint,
		DeviceID:    row.DeviceID,
		WindowKey:   row.WindowKey,
		Count:       row.UsageCount,
		LastUsedAt:  row.LastUsedAt,
	}
}
