package application

import (
	"context"
	"errors"
	"testing"

	"github.com/verdantlabs/entitlement-service/internal/domain"
)

func TestIdentifyDeniedCostsNothing(t *testing.T) {
	env := newTestEnv(t)
	fp := testFingerprint("dev-1")

	res, err := env.svc.Identify(context.Background(), IdentifyRequest{
		Subject:  Subject{DeviceID: "dev-1", Fingerprint: fp, LocalCount: 3},
		ImageURL: "https://img.example/leaf.jpg",
	})
	if !errors.Is(err, domain.ErrLimitReached) {
		t.Fatalf("err = %v, want ErrLimitReached", err)
	}
	if res.Decision.Allowed {
		t.Fatalf("decision = %+v", res.Decision)
	}
	if env.identifier.calls != 0 {
		t.Fatal("denied attempt must not reach the identification endpoint")
	}
	if len(env.deviceUsage.rows) != 0 {
		t.Fatal("denied attempt must not be recorded")
	}
}

func TestIdentifyProviderFailureCostsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.identifier.err = errors.New("upstream 500")
	fp := testFingerprint("dev-1")

	_, err := env.svc.Identify(context.Background(), IdentifyRequest{
		Subject:  Subject{DeviceID: "dev-1", Fingerprint: fp, LocalCount: 0},
		ImageURL: "https://img.example/leaf.jpg",
	})
	if err == nil {
		t.Fatal("want provider error surfaced")
	}
	if len(env.deviceUsage.rows) != 0 {
		t.Fatal("failed identification must not consume an action")
	}
}

func TestIdentifyAnonymousRecordsPostActionCount(t *testing.T) {
	env := newTestEnv(t)
	fp := testFingerprint("dev-1")

	res, err := env.svc.Identify(context.Background(), IdentifyRequest{
		Subject:  Subject{DeviceID: "dev-1", Fingerprint: fp, LocalCount: 1},
		ImageURL: "https://img.example/leaf.jpg",
	})
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if res.Result.ScientificName == "" {
		t.Fatal("want identification result")
	}
	if got := env.deviceUsage.rows[usageKey(fp, "2026-08")].Count; got != 2 {
		t.Fatalf("merged count = %d, want local+1 = 2", got)
	}
}

func TestIdentifyRequiresImage(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Identify(context.Background(), IdentifyRequest{
		Subject: Subject{DeviceID: "dev-1", Fingerprint: testFingerprint("dev-1")},
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestDeviceUsageByFingerprintNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.DeviceUsageByFingerprint(context.Background(), testFingerprint("dev-unknown"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertDeviceUsageMaxMerges(t *testing.T) {
	env := newTestEnv(t)
	fp := testFingerprint("dev-1")
	env.deviceUsage.rows[usageKey(fp, "2026-08")] = domain.DeviceUsage{
		Fingerprint: fp, WindowKey: "2026-08", Count: 4,
	}

	view, err := env.svc.UpsertDeviceUsage(context.Background(), UpsertDeviceUsageRequest{
		Fingerprint: fp,
		DeviceID:    "dev-1",
		Count:       2,
	})
	if err != nil {
		t.Fatalf("UpsertDeviceUsage: %v", err)
	}
	if view.Count != 4 {
		t.Fatalf("count = %d, want stored maximum 4", view.Count)
	}

	if _, err := env.svc.UpsertDeviceUsage(context.Background(), UpsertDeviceUsageRequest{
		Fingerprint: fp,
		DeviceID:    "dev-1",
		Count:       -1,
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput for negative count", err)
	}
}
