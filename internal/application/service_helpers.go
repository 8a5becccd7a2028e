package application

import (
	"context"
	"fmt"
	"time"

	"github.com/verdantlabs/entitlement-service/internal/domain"
)

func applyLimitDefaults(l domain.TierLimits) domain.TierLimits {
	d := domain.DefaultTierLimits()
	if l.UnregisteredMax <= 0 {
		l.UnregisteredMax = d.UnregisteredMax
	}
	if l.RegisteredMax <= 0 {
		l.RegisteredMax = d.RegisteredMax
	}
	if l.DeviceCeiling <= 0 {
		l.DeviceCeiling = d.DeviceCeiling
	}
	return l
}

// windowBounds returns the half-open [start, end) interval of the calendar
// month containing at. Account counting uses the same monthly window as
// devices; billing-anchored periods would need provider data this service
// does not hold.
func windowBounds(at time.Time) (time.Time, time.Time) {
	at = at.UTC()
	start := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// deriveTier computes the caller's tier fresh for this decision. A failed
// payment-provider lookup propagates ErrUnavailable: the gating path is
// uniformly fail-closed, and the adapter turns it into a retryable response.
func (s *Service) deriveTier(ctx context.Context, subject Subject) (domain.Tier, error) {
	if !subject.Authenticated() {
		return domain.TierUnregistered, nil
	}
	active, err := s.hasActivePremium(ctx, subject.AccountID)
	if err != nil {
		return "", fmt.Errorf("%w: premium lookup: %v", domain.ErrUnavailable, err)
	}
	return domain.DeriveTier(true, active), nil
}

func (s *Service) hasActivePremium(ctx context.Context, accountID string) (bool, error) {
	if s.premium != nil {
		if active, found, err := s.premium.Get(ctx, accountID); err == nil && found {
			return active, nil
		} else if err != nil {
			s.logger.WarnContext(ctx, "premium cache read failed",
				"operation", "premium_lookup",
				"outcome", "failure",
				"account_id", accountID,
				"error", err,
			)
		}
	}
	active, err := s.entitlement.HasActivePremium(ctx, accountID)
	if err != nil {
		return false, err
	}
	if s.premium != nil {
		if cacheErr := s.premium.Put(ctx, accountID, active, s.cfg.PremiumCacheTTL); cacheErr != nil {
			s.logger.WarnContext(ctx, "premium cache write failed",
				"operation", "premium_lookup",
				"outcome", "failure",
				"account_id", accountID,
				"error", cacheErr,
			)
		}
	}
	return active, nil
}

// accountCount derives the registered-tier usage count from the action log.
func (s *Service) accountCount(ctx context.Context, accountID string, now time.Time) (int, error) {
	start, end := windowBounds(now)
	count, err := s.actions.CountInWindow(ctx, accountID, start, end)
	if err != nil {
		return 0, fmt.Errorf("%w: account usage lookup: %v", domain.ErrUnavailable, err)
	}
	return count, nil
}
