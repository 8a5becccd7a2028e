package application

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/verdantlabs/entitlement-service/internal/domain"
	"github.com/verdantlabs/entitlement-service/internal/ports"
)

var testNow = time.Date(2026, time.August, 15, 10, 0, 0, 0, time.UTC)

type fakeDeviceUsage struct {
	rows      map[string]domain.DeviceUsage
	getErr    error
	upsertErr error
	deleted   []string
	upserts   int
}

func newFakeDeviceUsage() *fakeDeviceUsage {
	return &fakeDeviceUsage{rows: map[string]domain.DeviceUsage{}}
}

func usageKey(fingerprint, windowKey string) string { return fingerprint + "|" + windowKey }

func (f *fakeDeviceUsage) GetByFingerprint(_ context.Context, fingerprint, windowKey string) (domain.DeviceUsage, bool, error) {
	if f.getErr != nil {
		return domain.DeviceUsage{}, false, f.getErr
	}
	row, ok := f.rows[usageKey(fingerprint, windowKey)]
	return row, ok, nil
}

func (f *fakeDeviceUsage) UpsertMax(_ context.Context, usage domain.DeviceUsage) (domain.DeviceUsage, error) {
	if f.upsertErr != nil {
		return domain.DeviceUsage{}, f.upsertErr
	}
	f.upserts++
	key := usageKey(usage.Fingerprint, usage.WindowKey)
	if stored, ok := f.rows[key]; ok && stored.Count > usage.Count {
		usage.Count = stored.Count
	}
	f.rows[key] = usage
	return usage, nil
}

func (f *fakeDeviceUsage) DeleteBeforeWindow(_ context.Context, windowKey string) (int64, error) {
	var removed int64
	for key := range f.rows {
		parts := strings.SplitN(key, "|", 2)
		if len(parts) == 2 && parts[1] < windowKey {
			delete(f.rows, key)
			removed++
		}
	}
	f.deleted = append(f.deleted, windowKey)
	return removed, nil
}

type fakeActions struct {
	rows      []domain.AccountAction
	events    []ports.OutboxEvent
	appendErr error
	countErr  error
}

func (f *fakeActions) AppendWithOutboxTx(_ context.Context, action domain.AccountAction, event ports.OutboxEvent) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rows = append(f.rows, action)
	f.events = append(f.events, event)
	return nil
}

func (f *fakeActions) CountInWindow(_ context.Context, accountID string, windowStart, windowEnd time.Time) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	count := 0
	for _, row := range f.rows {
		if row.AccountID != accountID {
			continue
		}
		if row.OccurredAt.Before(windowStart) || !row.OccurredAt.Before(windowEnd) {
			continue
		}
		count++
	}
	return count, nil
}

type fakeLinks struct {
	byFingerprint map[string][]string
	linkErr       error
	accountsErr   error
}

func newFakeLinks() *fakeLinks {
	return &fakeLinks{byFingerprint: map[string][]string{}}
}

func (f *fakeLinks) Link(_ context.Context, link domain.DeviceAccountLink) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	for _, id := range f.byFingerprint[link.Fingerprint] {
		if id == link.AccountID {
			return nil
		}
	}
	f.byFingerprint[link.Fingerprint] = append(f.byFingerprint[link.Fingerprint], link.AccountID)
	return nil
}

func (f *fakeLinks) AccountsForFingerprint(_ context.Context, fingerprint string) ([]string, error) {
	if f.accountsErr != nil {
		return nil, f.accountsErr
	}
	return f.byFingerprint[fingerprint], nil
}

type fakeOutbox struct {
	events     []ports.OutboxEvent
	enqueueErr error
}

func (f *fakeOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}
func (f *fakeOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }
func (f *fakeOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
func (f *fakeOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

type fakeMarkers struct {
	seen    map[string]bool
	markErr error
}

func newFakeMarkers() *fakeMarkers { return &fakeMarkers{seen: map[string]bool{}} }

func (f *fakeMarkers) MarkIfAbsent(_ context.Context, sessionKey string, _ time.Duration) (bool, error) {
	if f.markErr != nil {
		return false, f.markErr
	}
	if f.seen[sessionKey] {
		return false, nil
	}
	f.seen[sessionKey] = true
	return true, nil
}

func (f *fakeMarkers) Clear(_ context.Context, sessionKey string) error {
	delete(f.seen, sessionKey)
	return nil
}

type fakePremiumCache struct {
	entries map[string]bool
	getErr  error
	putErr  error
	puts    int
}

func newFakePremiumCache() *fakePremiumCache { return &fakePremiumCache{entries: map[string]bool{}} }

func (f *fakePremiumCache) Get(_ context.Context, accountID string) (bool, bool, error) {
	if f.getErr != nil {
		return false, false, f.getErr
	}
	active, found := f.entries[accountID]
	return active, found, nil
}

func (f *fakePremiumCache) Put(_ context.Context, accountID string, active bool, _ time.Duration) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.puts++
	f.entries[accountID] = active
	return nil
}

type fakeEntitlement struct {
	active bool
	err    error
	calls  int
}

func (f *fakeEntitlement) HasActivePremium(context.Context, string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.active, nil
}

type fakeIdentifier struct {
	result ports.IdentificationResult
	err    error
	calls  int
}

func (f *fakeIdentifier) Identify(context.Context, ports.IdentificationRequest) (ports.IdentificationResult, error) {
	f.calls++
	if f.err != nil {
		return ports.IdentificationResult{}, f.err
	}
	return f.result, nil
}

type testEnv struct {
	svc         *Service
	deviceUsage *fakeDeviceUsage
	actions     *fakeActions
	links       *fakeLinks
	outbox      *fakeOutbox
	markers     *fakeMarkers
	premium     *fakePremiumCache
	entitlement *fakeEntitlement
	identifier  *fakeIdentifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		deviceUsage: newFakeDeviceUsage(),
		actions:     &fakeActions{},
		links:       newFakeLinks(),
		outbox:      &fakeOutbox{},
		markers:     newFakeMarkers(),
		premium:     newFakePremiumCache(),
		entitlement: &fakeEntitlement{},
		identifier:  &fakeIdentifier{result: ports.IdentificationResult{ScientificName: "Monstera deliciosa", Confidence: 0.93}},
	}
	env.svc = NewService(Dependencies{
		DeviceUsage: env.deviceUsage,
		Actions:     env.actions,
		Links:       env.links,
		Outbox:      env.outbox,
		Markers:     env.markers,
		Premium:     env.premium,
		Entitlement: env.entitlement,
		Identifier:  env.identifier,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	env.svc.nowFn = func() time.Time { return testNow }
	return env
}

func (e *testEnv) seedActions(accountID string, n int) {
	for i := 0; i < n; i++ {
		e.actions.rows = append(e.actions.rows, domain.AccountAction{
			AccountID:  accountID,
			Kind:       domain.ActionKindIdentification,
			OccurredAt: testNow.Add(-time.Duration(i) * time.Hour),
		})
	}
}

func testFingerprint(seed string) string {
	return domain.ComputeFingerprint(seed, "ios", "iPhone15,2")
}
