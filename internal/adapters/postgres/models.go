package postgres

import (
	"time"

	"github.com/google/uuid"
)

type deviceUsageModel struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Fingerprint string    `gorm:"column:fingerprint"`
	DeviceID    string    `gorm:"column:device_id"`
	WindowKey   string    `gorm:"column:window_key"`
	UsageCount  int       `gorm:"column:usage_count"`
	LastUsedAt  time.Time `gorm:"column:last_used_at"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (deviceUsageModel) TableName() string { return "device_usage" }

type accountActionModel struct {
	ActionID   uuid.UUID `gorm:"column:action_id;type:uuid;primaryKey"`
	AccountID  uuid.UUID `gorm:"column:account_id"`
	Kind       string    `gorm:"column:kind"`
	OccurredAt time.Time `gorm:"column:occurred_at"`
}

func (accountActionModel) TableName() string { return "account_actions" }

type deviceAccountLinkModel struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Fingerprint string    `gorm:"column:fingerprint"`
	AccountID   uuid.UUID `gorm:"column:account_id"`
	LinkedAt    time.Time `gorm:"column:linked_at"`
}

func (deviceAccountLinkModel) TableName() string { return "device_account_links" }

type premiumUsageModel struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	AccountID  uuid.UUID `gorm:"column:account_id"`
	WindowKey  string    `gorm:"column:window_key"`
	UsageCount int       `gorm:"column:usage_count"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (premiumUsageModel) TableName() string { return "premium_usage_counters" }

type usageOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	FirstSeenAt    time.Time  `gorm:"column:first_seen_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (usageOutboxModel) TableName() string { return "usage_outbox" }
