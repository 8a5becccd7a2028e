package application

import (
	"context"
	"fmt"

	"github.com/verdantlabs/entitlement-service/internal/domain"
	"github.com/verdantlabs/entitlement-service/internal/ports"
)

// Identify performs the full metered flow: gate, invoke the identification
// endpoint once, then run the post-action hook. Recording happens after the
// provider call succeeds, so a provider failure costs the caller nothing.
func (s *Service) Identify(ctx context.Context, req IdentifyRequest) (IdentifyResponse, error) {
	if req.ImageURL == "" && len(req.ImageData) == 0 {
		return IdentifyResponse{}, fmt.Errorf("%w: image_url or image payload is required", domain.ErrInvalidInput)
	}

	check, err := s.Check(ctx, CheckRequest{Subject: req.Subject})
	if err != nil {
		return IdentifyResponse{}, err
	}
	if !check.Decision.Allowed {
		return IdentifyResponse{Decision: check.Decision}, domain.ErrLimitReached
	}

	result, err := s.identifier.Identify(ctx, ports.IdentificationRequest{
		ImageURL:  req.ImageURL,
		ImageData: req.ImageData,
		Locale:    req.Locale,
	})
	if err != nil {
		return IdentifyResponse{}, err
	}

	// For anonymous callers the device increments its local counter first and
	// reports the new value; mirror that ordering here so the merge below sees
	// the post-action count.
	subject := req.Subject
	if !subject.Authenticated() {
		subject.LocalCount++
	}
	rec, _ := s.Record(ctx, RecordRequest{Subject: subject})

	return IdentifyResponse{
		Result:    result,
		Decision:  check.Decision,
		WindowKey: rec.WindowKey,
	}, nil
}

// DeviceUsageByFingerprint exposes the ledger's device row for SDK
// reconciliation reads.
func (s *Service) DeviceUsageByFingerprint(ctx context.Context, fingerprint string) (DeviceUsageView, error) {
	if !domain.ValidFingerprint(fingerprint) {
		return DeviceUsageView{}, fmt.Errorf("%w: fingerprint must be a hex sha-256 digest", domain.ErrInvalidInput)
	}
	now := s.nowFn()
	windowKey := domain.WindowKey(now)
	usage, found, err := s.deviceUsage.GetByFingerprint(ctx, fingerprint, windowKey)
	if err != nil {
		return DeviceUsageView{}, fmt.Errorf("%w: device usage lookup: %v", domain.ErrUnavailable, err)
	}
	if !found {
		return DeviceUsageView{}, domain.ErrNotFound
	}
	return DeviceUsageView{
		Fingerprint: usage.Fingerprint,
		WindowKey:   usage.WindowKey,
		Count:       usage.Count,
		LastUsedAt:  usage.LastUsedAt,
	}, nil
}

// UpsertDeviceUsage raises the ledger's device row to the reported count.
// The repository max-merges, so this can only move counts upward.
func (s *Service) UpsertDeviceUsage(ctx context.Context, req UpsertDeviceUsageRequest) (DeviceUsageView, error) {
	if !domain.ValidFingerprint(req.Fingerprint) {
		return DeviceUsageView{}, fmt.Errorf("%w: fingerprint must be a hex sha-256 digest", domain.ErrInvalidInput)
	}
	if req.Count < 0 {
		return DeviceUsageView{}, fmt.Errorf("%w: count must be non-negative", domain.ErrInvalidInput)
	}
	now := s.nowFn()
	usage, err := s.deviceUsage.UpsertMax(ctx, domain.DeviceUsage{
		Fingerprint: req.Fingerprint,
		DeviceID:    req.DeviceID,
		WindowKey:   domain.WindowKey(now),
		Count:       req.Count,
		LastUsedAt:  now,
	})
	if err != nil {
		return DeviceUsageView{}, fmt.Errorf("%w: device usage upsert: %v", domain.ErrUnavailable, err)
	}
	return DeviceUsageView{
		Fingerprint: usage.Fingerprint,
		WindowKey:   usage.WindowKey,
		Count:       usage.Count,
		LastUsedAt:  usage.LastUsedAt,
	}, nil
}
