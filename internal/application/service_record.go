package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verdantlabs/entitlement-service/internal/domain"
	"github.com/verdantlabs/entitlement-service/internal/ports"
)

// Record runs the post-action hook. By the time it is called the metered
// action already succeeded, so every failure here is best-effort telemetry
// loss: logged, never retried, never surfaced to the end user.
func (s *Service) Record(ctx context.Context, req RecordRequest) (RecordResponse, error) {
	now := s.nowFn()
	windowKey := domain.WindowKey(now)

	tier, err := s.deriveTier(ctx, req.Subject)
	if err != nil {
		// Recording must not fail the already-performed action. Fall back to
		// the cheapest consistent classification.
		s.logger.WarnContext(ctx, "tier derivation failed during record; assuming registered",
			"operation", "record_action",
			"outcome", "degraded",
			"account_id", req.Subject.AccountID,
			"error", err,
		)
		tier = domain.DeriveTier(req.Subject.Authenticated(), false)
	}

	switch tier {
	case domain.TierUnregistered:
		s.mergeDeviceCount(ctx, req.Subject, windowKey, now)
	case domain.TierRegistered:
		s.appendAccountAction(ctx, req.Subject.AccountID, ports.EventActionRecorded, now)
	case domain.TierPremium:
		// Premium usage never gates anything; the action row still lands in
		// the log and an analytics event rides the outbox.
		s.appendAccountAction(ctx, req.Subject.AccountID, ports.EventPremiumRecorded, now)
	}

	return RecordResponse{Tier: tier, WindowKey: windowKey}, nil
}

// mergeDeviceCount pushes the device's self-reported local count into the
// remote device row. The repository max-merges, so a stale or lagging report
// can never lower the stored count.
func (s *Service) mergeDeviceCount(ctx context.Context, subject Subject, windowKey string, now time.Time) {
	if !domain.ValidFingerprint(subject.Fingerprint) {
		return
	}
	_, err := s.deviceUsage.UpsertMax(ctx, domain.DeviceUsage{
		Fingerprint: subject.Fingerprint,
		DeviceID:    subject.DeviceID,
		WindowKey:   windowKey,
		Count:       subject.LocalCount,
		LastUsedAt:  now,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "device usage upsert failed",
			"operation", "record_action",
			"outcome", "failure",
			"fingerprint", subject.Fingerprint,
			"error", err,
		)
	}
}

func (s *Service) appendAccountAction(ctx context.Context, accountID, eventType string, now time.Time) {
	action := domain.AccountAction{
		ActionID:   uuid.NewString(),
		AccountID:  accountID,
		Kind:       domain.ActionKindIdentification,
		OccurredAt: now,
	}
	payload, _ := json.Marshal(map[string]any{
		"action_id":   action.ActionID,
		"account_id":  accountID,
		"kind":        action.Kind,
		"window_key":  domain.WindowKey(now),
		"occurred_at": now,
	})
	event := ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: accountID,
		Payload:      payload,
		OccurredAt:   now,
	}
	if err := s.actions.AppendWithOutboxTx(ctx, action, event); err != nil {
		s.logger.WarnContext(ctx, "account action append failed",
			"operation", "record_action",
			"outcome", "failure",
			"account_id", accountID,
			"error", err,
		)
	}
}

// LinkDevice associates the subject's fingerprint with its account so the
// abuse guard can see usage across accounts sharing one device. Called on
// authenticated use from a known device.
func (s *Service) LinkDevice(ctx context.Context, req LinkDeviceRequest) error {
	if !req.Subject.Authenticated() {
		return fmt.Errorf("%w: account required to link a device", domain.ErrUnauthorized)
	}
	if !domain.ValidFingerprint(req.Subject.Fingerprint) {
		return fmt.Errorf("%w: fingerprint must be a hex sha-256 digest", domain.ErrInvalidInput)
	}
	now := s.nowFn()
	if err := s.links.Link(ctx, domain.DeviceAccountLink{
		Fingerprint: req.Subject.Fingerprint,
		AccountID:   req.Subject.AccountID,
		LinkedAt:    now,
	}); err != nil {
		return fmt.Errorf("%w: link device: %v", domain.ErrUnavailable, err)
	}

	payload, _ := json.Marshal(map[string]any{
		"fingerprint": req.Subject.Fingerprint,
		"account_id":  req.Subject.AccountID,
		"linked_at":   now,
	})
	if err := s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    ports.EventDeviceLinked,
		PartitionKey: req.Subject.Fingerprint,
		Payload:      payload,
		OccurredAt:   now,
	}); err != nil {
		s.logger.WarnContext(ctx, "device link event enqueue failed",
			"operation", "link_device",
			"outcome", "failure",
			"fingerprint", req.Subject.Fingerprint,
			"error", err,
		)
	}
	return nil
}
