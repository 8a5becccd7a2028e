package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/verdantlabs/entitlement-service/internal/ports"
)

type stubOutbox struct {
	pending      []ports.OutboxRecord
	published    []uuid.UUID
	failed       []uuid.UUID
	deadLettered []uuid.UUID
}

func (s *stubOutbox) Enqueue(context.Context, ports.OutboxEvent) error { return nil }

func (s *stubOutbox) ClaimUnpublished(_ context.Context, limit int, _ string, _ time.Time) ([]ports.OutboxRecord, error) {
	if limit > len(s.pending) {
		limit = len(s.pending)
	}
	batch := s.pending[:limit]
	s.pending = s.pending[limit:]
	return batch, nil
}

func (s *stubOutbox) MarkPublished(_ context.Context, id uuid.UUID, _ string, _ time.Time) error {
	s.published = append(s.published, id)
	return nil
}

func (s *stubOutbox) MarkFailed(_ context.Context, id uuid.UUID, _, _ string, _ time.Time) error {
	s.failed = append(s.failed, id)
	return nil
}

func (s *stubOutbox) MarkDeadLettered(_ context.Context, id uuid.UUID, _, _ string, _ time.Time) error {
	s.deadLettered = append(s.deadLettered, id)
	return nil
}

type stubPublisher struct {
	err       error
	delivered []string
}

func (p *stubPublisher) Publish(_ context.Context, eventType string, _ []byte) error {
	if p.err != nil {
		return p.err
	}
	p.delivered = append(p.delivered, eventType)
	return nil
}

type stubPremiumUsage struct {
	increments []string
	err        error
}

func (p *stubPremiumUsage) IncrementAnalytics(_ context.Context, accountID, windowKey string, _ time.Time) error {
	if p.err != nil {
		return p.err
	}
	p.increments = append(p.increments, accountID+"@"+windowKey)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(eventType string, payload map[string]any, retries int) ports.OutboxRecord {
	raw, _ := json.Marshal(payload)
	return ports.OutboxRecord{
		OutboxID:   uuid.New(),
		EventType:  eventType,
		Payload:    raw,
		RetryCount: retries,
		CreatedAt:  time.Date(2026, time.August, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestProcessOncePublishesBatch(t *testing.T) {
	outbox := &stubOutbox{pending: []ports.OutboxRecord{
		record(ports.EventActionRecorded, map[string]any{"account_id": "acct-1"}, 0),
		record(ports.EventDeviceReconciled, map[string]any{"fingerprint": "fp"}, 0),
	}}
	publisher := &stubPublisher{}
	premium := &stubPremiumUsage{}
	worker := NewOutboxWorker(discardLogger(), outbox, publisher, premium, 0, 0, 0, 0)

	if err := worker.processOnce(context.Background()); err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if len(publisher.delivered) != 2 || len(outbox.published) != 2 {
		t.Fatalf("delivered %d, marked %d; want 2 and 2", len(publisher.delivered), len(outbox.published))
	}
	if len(premium.increments) != 0 {
		t.Fatal("non-premium events must not touch the analytics counter")
	}
}

func TestProcessOnceProjectsPremiumUsage(t *testing.T) {
	outbox := &stubOutbox{pending: []ports.OutboxRecord{
		record(ports.EventPremiumRecorded, map[string]any{"account_id": "acct-9", "window_key": "2026-08"}, 0),
	}}
	premium := &stubPremiumUsage{}
	worker := NewOutboxWorker(discardLogger(), outbox, &stubPublisher{}, premium, 0, 0, 0, 0)

	if err := worker.processOnce(context.Background()); err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if len(premium.increments) != 1 || premium.increments[0] != "acct-9@2026-08" {
		t.Fatalf("increments = %v", premium.increments)
	}
}

func TestProcessOnceDerivesWindowFromCreatedAt(t *testing.T) {
	outbox := &stubOutbox{pending: []ports.OutboxRecord{
		record(ports.EventPremiumRecorded, map[string]any{"account_id": "acct-9"}, 0),
	}}
	premium := &stubPremiumUsage{}
	worker := NewOutboxWorker(discardLogger(), outbox, &stubPublisher{}, premium, 0, 0, 0, 0)

	if err := worker.processOnce(context.Background()); err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if len(premium.increments) != 1 || premium.increments[0] != "acct-9@2026-08" {
		t.Fatalf("increments = %v, want window derived from the record timestamp", premium.increments)
	}
}

func TestProcessOnceRetriesThenDeadLetters(t *testing.T) {
	worker := NewOutboxWorker(discardLogger(), &stubOutbox{}, &stubPublisher{err: errors.New("broker down")}, &stubPremiumUsage{}, 0, 0, 0, 3)

	fresh := record(ports.EventActionRecorded, map[string]any{"account_id": "acct-1"}, 0)
	nearLimit := record(ports.EventActionRecorded, map[string]any{"account_id": "acct-2"}, 2)
	overLimit := record(ports.EventActionRecorded, map[string]any{"account_id": "acct-3"}, 3)

	outbox := &stubOutbox{pending: []ports.OutboxRecord{fresh, nearLimit, overLimit}}
	worker.outbox = outbox

	if err := worker.processOnce(context.Background()); err != nil {
		t.Fatalf("processOnce: %v", err)
	}
	if len(outbox.failed) != 1 || outbox.failed[0] != fresh.OutboxID {
		t.Fatalf("failed = %v, want only the fresh record scheduled for retry", outbox.failed)
	}
	if len(outbox.deadLettered) != 2 {
		t.Fatalf("dead lettered = %v, want records at and over the retry threshold", outbox.deadLettered)
	}
}
