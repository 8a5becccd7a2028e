package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/verdantlabs/entitlement-service/internal/domain"
	"github.com/verdantlabs/entitlement-service/internal/ports"
)

// Reconcile merges the device's local counter with the remote device row at
// session start. winner = max(local, remote); the remote side is raised when
// behind, and the response carries the winner so the client can raise its
// local counter when it is the one behind. This is a last-writer-wins-by-
// maximum merge, correct only because counts never legitimately decrease and
// undercounting is the only drift direction.
//
// Reconciliation exists for anonymous devices only: account usage is derived
// from an append-only log and has no drift to reconcile.
func (s *Service) Reconcile(ctx context.Context, req ReconcileRequest) (ReconcileResponse, error) {
	now := s.nowFn()
	windowKey := domain.WindowKey(now)
	local := req.Subject.LocalCount
	if local < 0 {
		local = 0
	}

	if !domain.ValidFingerprint(req.Subject.Fingerprint) {
		return ReconcileResponse{}, fmt.Errorf("%w: fingerprint must be a hex sha-256 digest", domain.ErrInvalidInput)
	}

	if req.SessionID != "" && s.markers != nil {
		fresh, err := s.markers.MarkIfAbsent(ctx, reconcileMarkerKey(req.SessionID, req.Subject.Fingerprint), s.cfg.ReconcileSessionTTL)
		if err != nil {
			s.logger.WarnContext(ctx, "reconcile marker check failed; merging anyway",
				"operation", "reconcile_device",
				"outcome", "degraded",
				"fingerprint", req.Subject.Fingerprint,
				"error", err,
			)
		} else if !fresh {
			return ReconcileResponse{WindowKey: windowKey, Count: local, Skipped: true}, nil
		}
	}

	remote := 0
	usage, found, err := s.deviceUsage.GetByFingerprint(ctx, req.Subject.Fingerprint, windowKey)
	if err != nil {
		// Log, skip, let the next session retry.
		s.logger.WarnContext(ctx, "reconcile remote read failed; skipped",
			"operation", "reconcile_device",
			"outcome", "failure",
			"fingerprint", req.Subject.Fingerprint,
			"error", err,
		)
		return ReconcileResponse{WindowKey: windowKey, Count: local, Skipped: true}, nil
	}
	if found {
		remote = usage.Count
	}

	winner := domain.MaxCount(local, remote)
	if remote < winner || !found {
		if _, err := s.deviceUsage.UpsertMax(ctx, domain.DeviceUsage{
			Fingerprint: req.Subject.Fingerprint,
			DeviceID:    req.Subject.DeviceID,
			WindowKey:   windowKey,
			Count:       winner,
			LastUsedAt:  now,
		}); err != nil {
			s.logger.WarnContext(ctx, "reconcile remote write failed; skipped",
				"operation", "reconcile_device",
				"outcome", "failure",
				"fingerprint", req.Subject.Fingerprint,
				"error", err,
			)
			return ReconcileResponse{WindowKey: windowKey, Count: winner, Skipped: true}, nil
		}
	}

	payload, _ := json.Marshal(map[string]any{
		"fingerprint": req.Subject.Fingerprint,
		"window_key":  windowKey,
		"local":       local,
		"remote":      remote,
		"winner":      winner,
	})
	if err := s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    ports.EventDeviceReconciled,
		PartitionKey: req.Subject.Fingerprint,
		Payload:      payload,
		OccurredAt:   now,
	}); err != nil {
		s.logger.WarnContext(ctx, "reconcile event enqueue failed",
			"operation", "reconcile_device",
			"outcome", "failure",
			"fingerprint", req.Subject.Fingerprint,
			"error", err,
		)
	}

	s.logger.InfoContext(ctx, "device usage reconciled",
		"operation", "reconcile_device",
		"outcome", "success",
		"fingerprint", req.Subject.Fingerprint,
		"window_key", windowKey,
		"local", local,
		"remote", remote,
		"winner", winner,
	)
	return ReconcileResponse{WindowKey: windowKey, Count: winner}, nil
}

func reconcileMarkerKey(sessionID, fingerprint string) string {
	return sessionID + ":" + fingerprint
}
