package application

import (
	"log/slog"
	"time"

	"github.com/verdantlabs/entitlement-service/internal/ports"
)

type Service struct {
	cfg         Config
	deviceUsage ports.DeviceUsageRepository
	actions     ports.AccountActionRepository
	links       ports.DeviceLinkRepository
	outbox      ports.OutboxRepository
	markers     ports.ReconcileMarkerStore
	premium     ports.PremiumStatusCache
	entitlement ports.EntitlementProvider
	identifier  ports.IdentificationClient
	logger      *slog.Logger
	nowFn       func() time.Time
}

type Dependencies struct {
	Config      Config
	DeviceUsage ports.DeviceUsageRepository
	Actions     ports.AccountActionRepository
	Links       ports.DeviceLinkRepository
	Outbox      ports.OutboxRepository
	Markers     ports.ReconcileMarkerStore
	Premium     ports.PremiumStatusCache
	Entitlement ports.EntitlementProvider
	Identifier  ports.IdentificationClient
	Logger      *slog.Logger
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg.Limits.DeviceCeiling <= 0 {
		cfg.Limits = applyLimitDefaults(cfg.Limits)
	}
	if cfg.PremiumCacheTTL <= 0 {
		cfg.PremiumCacheTTL = 30 * time.Second
	}
	if cfg.ReconcileSessionTTL <= 0 {
		cfg.ReconcileSessionTTL = 12 * time.Hour
	}
	return &Service{
		cfg:         cfg,
		deviceUsage: deps.DeviceUsage,
		actions:     deps.Actions,
		links:       deps.Links,
		outbox:      deps.Outbox,
		markers:     deps.Markers,
		premium:     deps.Premium,
		entitlement: deps.Entitlement,
		identifier:  deps.Identifier,
		logger: logger.With(
			"module", "entitlement",
			"layer", "application",
		),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}
