package application

import (
	"context"
	"time"

	"github.com/verdantlabs/entitlement-service/internal/domain"
)

// Check decides whether the subject may perform one more metered action.
// The decision is computed fresh on every attempt and never persisted.
//
// Failure policy, applied uniformly: lookups feeding the grant itself
// (tier derivation, tier-ceiling counts) fail closed by propagating
// domain.ErrUnavailable; the secondary abuse-guard lookups fail open.
func (s *Service) Check(ctx context.Context, req CheckRequest) (CheckResponse, error) {
	now := s.nowFn()
	tier, err := s.deriveTier(ctx, req.Subject)
	if err != nil {
		return CheckResponse{}, err
	}

	// Premium bypasses every counter: no reads, no ceilings.
	if tier == domain.TierPremium {
		return CheckResponse{Decision: domain.EntitlementDecision{
			Allowed:   true,
			Unlimited: true,
			Tier:      tier,
		}}, nil
	}

	if s.deviceGuardReached(ctx, req.Subject.Fingerprint, now) {
		s.logger.InfoContext(ctx, "entitlement denied by device guard",
			"operation", "check_entitlement",
			"outcome", "denied",
			"tier", string(tier),
			"fingerprint", req.Subject.Fingerprint,
		)
		return CheckResponse{Decision: domain.EntitlementDecision{
			Allowed:      false,
			Remaining:    0,
			Tier:         tier,
			GuardTripped: true,
		}}, nil
	}

	count, err := s.tierCount(ctx, req.Subject, tier, now)
	if err != nil {
		return CheckResponse{}, err
	}

	maxActions := s.cfg.Limits.MaxActions(tier)
	remaining := maxActions - count
	if remaining < 0 {
		remaining = 0
	}
	return CheckResponse{Decision: domain.EntitlementDecision{
		Allowed:   count < maxActions,
		Remaining: remaining,
		Tier:      tier,
	}}, nil
}

// tierCount fetches the count the tier ceiling is compared against:
// the device-reported local counter (max-merged with the remote device row
// when one exists) for anonymous callers, the account action log otherwise.
func (s *Service) tierCount(ctx context.Context, subject Subject, tier domain.Tier, now time.Time) (int, error) {
	if tier == domain.TierRegistered {
		return s.accountCount(ctx, subject.AccountID, now)
	}

	count := subject.LocalCount
	if count < 0 {
		count = 0
	}
	if !domain.ValidFingerprint(subject.Fingerprint) {
		// Degraded identity: local storage was unavailable on the device, so
		// only the reported local count is usable.
		return count, nil
	}
	usage, found, err := s.deviceUsage.GetByFingerprint(ctx, subject.Fingerprint, domain.WindowKey(now))
	if err != nil {
		s.logger.WarnContext(ctx, "device usage lookup failed; using local count",
			"operation", "check_entitlement",
			"outcome", "degraded",
			"fingerprint", subject.Fingerprint,
			"error", err,
		)
		return count, nil
	}
	if found {
		count = domain.MaxCount(count, usage.Count)
	}
	return count, nil
}

// deviceGuardReached evaluates the cross-account abuse guard: the device's own
// maintained count and the maximum usage among accounts linked to the device,
// each compared against the device ceiling. Lookup failures leave the guard
// untripped; this is the only fail-open path in the evaluator.
func (s *Service) deviceGuardReached(ctx context.Context, fingerprint string, now time.Time) bool {
	if !domain.ValidFingerprint(fingerprint) {
		return false
	}
	ceiling := s.cfg.Limits.DeviceCeiling

	usage, found, err := s.deviceUsage.GetByFingerprint(ctx, fingerprint, domain.WindowKey(now))
	if err != nil {
		s.logger.WarnContext(ctx, "device guard lookup failed; guard treated as not reached",
			"operation", "device_guard",
			"outcome", "degraded",
			"fingerprint", fingerprint,
			"error", err,
		)
	} else if found && usage.Count >= ceiling {
		return true
	}

	accounts, err := s.links.AccountsForFingerprint(ctx, fingerprint)
	if err != nil {
		s.logger.WarnContext(ctx, "device link lookup failed; guard treated as not reached",
			"operation", "device_guard",
			"outcome", "degraded",
			"fingerprint", fingerprint,
			"error", err,
		)
		return false
	}
	for _, accountID := range accounts {
		count, err := s.accountCount(ctx, accountID, now)
		if err != nil {
			s.logger.WarnContext(ctx, "linked account usage lookup failed; account skipped by guard",
				"operation", "device_guard",
				"outcome", "degraded",
				"account_id", accountID,
				"error", err,
			)
			continue
		}
		if count >= ceiling {
			return true
		}
	}
	return false
}

// UsageSummary reports where the subject stands in the current window.
func (s *Service) UsageSummary(ctx context.Context, subject Subject) (domain.UsageSummary, error) {
	now := s.nowFn()
	tier, err := s.deriveTier(ctx, subject)
	if err != nil {
		return domain.UsageSummary{}, err
	}

	summary := domain.UsageSummary{
		Tier:      tier,
		WindowKey: domain.WindowKey(now),
	}
	if tier == domain.TierPremium {
		summary.Unlimited = true
		summary.MaxActions = domain.UnlimitedActions
		summary.Remaining = domain.UnlimitedActions
		return summary, nil
	}

	count, err := s.tierCount(ctx, subject, tier, now)
	if err != nil {
		return domain.UsageSummary{}, err
	}
	summary.Count = count
	summary.MaxActions = s.cfg.Limits.MaxActions(tier)
	summary.Remaining = summary.MaxActions - count
	if summary.Remaining < 0 {
		summary.Remaining = 0
	}
	return summary, nil
}
