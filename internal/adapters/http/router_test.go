package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/verdantlabs/entitlement-service/internal/application"
	"github.com/verdantlabs/entitlement-service/internal/domain"
	"github.com/verdantlabs/entitlement-service/internal/ports"
	"github.com/verdantlabs/entitlement-service/sdk"
)

type memDeviceUsage struct {
	rows   map[string]domain.DeviceUsage
	getErr error
}

func (m *memDeviceUsage) key(fp, window string) string { return fp + "|" + window }

func (m *memDeviceUsage) GetByFingerprint(_ context.Context, fp, window string) (domain.DeviceUsage, bool, error) {
	if m.getErr != nil {
		return domain.DeviceUsage{}, false, m.getErr
	}
	row, ok := m.rows[m.key(fp, window)]
	return row, ok, nil
}

func (m *memDeviceUsage) UpsertMax(_ context.Context, usage domain.DeviceUsage) (domain.DeviceUsage, error) {
	key := m.key(usage.Fingerprint, usage.WindowKey)
	if stored, ok := m.rows[key]; ok && stored.Count > usage.Count {
		usage.Count = stored.Count
	}
	m.rows[key] = usage
	return usage, nil
}

func (m *memDeviceUsage) DeleteBeforeWindow(context.Context, string) (int64, error) { return 0, nil }

type memActions struct {
	rows []domain.AccountAction
}

func (m *memActions) AppendWithOutboxTx(_ context.Context, action domain.AccountAction, _ ports.OutboxEvent) error {
	m.rows = append(m.rows, action)
	return nil
}

func (m *memActions) CountInWindow(_ context.Context, accountID string, start, end time.Time) (int, error) {
	count := 0
	for _, row := range m.rows {
		if row.AccountID == accountID && !row.OccurredAt.Before(start) && row.OccurredAt.Before(end) {
			count++
		}
	}
	return count, nil
}

type memLinks struct{ byFP map[string][]string }

func (m *memLinks) Link(_ context.Context, link domain.DeviceAccountLink) error {
	m.byFP[link.Fingerprint] = append(m.byFP[link.Fingerprint], link.AccountID)
	return nil
}

func (m *memLinks) AccountsForFingerprint(_ context.Context, fp string) ([]string, error) {
	return m.byFP[fp], nil
}

type memOutbox struct{}

func (memOutbox) Enqueue(context.Context, ports.OutboxEvent) error { return nil }
func (memOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}
func (memOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }
func (memOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
func (memOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

type staticEntitlement struct {
	active bool
	err    error
}

func (s staticEntitlement) HasActivePremium(context.Context, string) (bool, error) {
	return s.active, s.err
}

type staticIdentifier struct {
	result ports.IdentificationResult
	err    error
}

func (s staticIdentifier) Identify(context.Context, ports.IdentificationRequest) (ports.IdentificationResult, error) {
	return s.result, s.err
}

type tokenVerifier struct {
	accounts map[string]string
}

func (v tokenVerifier) Verify(_ context.Context, token string) (ports.AuthClaims, error) {
	accountID, ok := v.accounts[token]
	if !ok {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	return ports.AuthClaims{AccountID: accountID}, nil
}

type routerEnv struct {
	router      http.Handler
	deviceUsage *memDeviceUsage
	actions     *memActions
	links       *memLinks
}

func newRouterEnv(t *testing.T, entitlement ports.EntitlementProvider, identifier ports.IdentificationClient) *routerEnv {
	t.Helper()
	env := &routerEnv{
		deviceUsage: &memDeviceUsage{rows: map[string]domain.DeviceUsage{}},
		actions:     &memActions{},
		links:       &memLinks{byFP: map[string][]string{}},
	}
	svc := application.NewService(application.Dependencies{
		DeviceUsage: env.deviceUsage,
		Actions:     env.actions,
		Links:       env.links,
		Outbox:      memOutbox{},
		Entitlement: entitlement,
		Identifier:  identifier,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	handler := NewHandler(svc, tokenVerifier{accounts: map[string]string{"valid-token": "acct-1"}})
	env.router = NewRouter(handler)
	return env
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func deviceBody(fp string, localCount int) map[string]any {
	return map[string]any{"device": map[string]any{
		"device_id":   "dev-1",
		"fingerprint": fp,
		"local_count": localCount,
	}}
}

func TestCheckEndpointAnonymous(t *testing.T) {
	env := newRouterEnv(t, staticEntitlement{}, staticIdentifier{})
	fp := domain.ComputeFingerprint("dev-1")

	rec := doJSON(t, env.router, http.MethodPost, "/entitlements/v1/check", "", deviceBody(fp, 1))
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Status string `json:"status"`
		Data   struct {
			Decision domain.EntitlementDecision `json:"decision"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "success", envelope.Status)
	require.True(t, envelope.Data.Decision.Allowed)
	require.Equal(t, 2, envelope.Data.Decision.Remaining)
}

func TestCheckEndpointRejectsInvalidToken(t *testing.T) {
	env := newRouterEnv(t, staticEntitlement{}, staticIdentifier{})
	fp := domain.ComputeFingerprint("dev-1")

	rec := doJSON(t, env.router, http.MethodPost, "/entitlements/v1/check", "forged", deviceBody(fp, 0))
	require.Equal(t, http.StatusUnauthorized, rec.Code, "an invalid token must not downgrade to anonymous")
}

func TestCheckEndpointUnavailableWhenProviderDown(t *testing.T) {
	env := newRouterEnv(t, staticEntitlement{err: errors.New("stripe down")}, staticIdentifier{})
	fp := domain.ComputeFingerprint("dev-1")

	rec := doJSON(t, env.router, http.MethodPost, "/entitlements/v1/check", "valid-token", deviceBody(fp, 0))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "STATE_UNAVAILABLE", body.Code)
}

func TestRecordEndpointAccepted(t *testing.T) {
	env := newRouterEnv(t, staticEntitlement{}, staticIdentifier{})
	fp := domain.ComputeFingerprint("dev-1")

	rec := doJSON(t, env.router, http.MethodPost, "/entitlements/v1/actions", "", deviceBody(fp, 2))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 2, env.deviceUsage.rows[env.deviceUsage.key(fp, domain.WindowKey(time.Now()))].Count)
}

func TestDeviceUsageEndpointNotFound(t *testing.T) {
	env := newRouterEnv(t, staticEntitlement{}, staticIdentifier{})
	fp := domain.ComputeFingerprint("dev-unknown")

	rec := doJSON(t, env.router, http.MethodGet, fmt.Sprintf("/entitlements/v1/devices/%s/usage", fp), "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpsertDeviceUsageEndpointMaxMerges(t *testing.T) {
	env := newRouterEnv(t, staticEntitlement{}, staticIdentifier{})
	fp := domain.ComputeFingerprint("dev-1")
	window := domain.WindowKey(time.Now())
	env.deviceUsage.rows[env.deviceUsage.key(fp, window)] = domain.DeviceUsage{
		Fingerprint: fp, WindowKey: window, Count: 4,
	}

	rec := doJSON(t, env.router, http.MethodPut, fmt.Sprintf("/entitlements/v1/devices/%s/usage", fp), "", map[string]any{
		"device_id": "dev-1",
		"count":     2,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, 4, envelope.Data.Count)
}

func TestLinkDeviceEndpointRequiresAuth(t *testing.T) {
	env := newRouterEnv(t, staticEntitlement{}, staticIdentifier{})
	fp := domain.ComputeFingerprint("dev-1")

	rec := doJSON(t, env.router, http.MethodPost, "/entitlements/v1/devices/link", "", deviceBody(fp, 0))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, env.router, http.MethodPost, "/entitlements/v1/devices/link", "valid-token", deviceBody(fp, 0))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"acct-1"}, env.links.byFP[fp])
}

func TestIdentifyEndpointLimitCarriesDecision(t *testing.T) {
	env := newRouterEnv(t, staticEntitlement{}, staticIdentifier{
		result: ports.IdentificationResult{ScientificName: "Ficus lyrata", Confidence: 0.9},
	})
	fp := domain.ComputeFingerprint("dev-1")

	body := deviceBody(fp, 3)
	body["image_url"] = "https://img.example/leaf.jpg"
	rec := doJSON(t, env.router, http.MethodPost, "/identify/v1/identifications", "", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	var envelope struct {
		Status  string `json:"status"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Data    struct {
			Decision domain.EntitlementDecision `json:"decision"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "error", envelope.Status)
	require.Equal(t, "LIMIT_REACHED", envelope.Code, "clients branch on the code, not the message")
	require.NotEmpty(t, envelope.Message)
	require.False(t, envelope.Data.Decision.Allowed)
}

// Drives the published client against the real router so the refusal
// contract cannot drift between the handler and the error predicate.
func TestIdentifyLimitDetectedByClient(t *testing.T) {
	env := newRouterEnv(t, staticEntitlement{}, staticIdentifier{
		result: ports.IdentificationResult{ScientificName: "Ficus lyrata", Confidence: 0.9},
	})
	server := httptest.NewServer(env.router)
	t.Cleanup(server.Close)

	client, err := sdk.NewClient(sdk.Config{
		BaseURL:     server.URL,
		StateDir:    t.TempDir(),
		DeviceAttrs: []string{"ios", "iPhone15,2"},
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := client.RecordAction(context.Background())
		require.NoError(t, err)
	}

	_, err = client.Identify(context.Background(), sdk.IdentifyParams{ImageURL: "https://img.example/leaf.jpg"})
	require.Error(t, err)
	require.True(t, sdk.IsLimitReached(err), "the 429 refusal must satisfy the limit predicate")
	require.False(t, sdk.IsUnavailable(err))
}

func TestIdentifyEndpointSuccess(t *testing.T) {
	env := newRouterEnv(t, staticEntitlement{}, staticIdentifier{
		result: ports.IdentificationResult{ScientificName: "Ficus lyrata", Confidence: 0.9},
	})
	fp := domain.ComputeFingerprint("dev-1")

	body := deviceBody(fp, 0)
	body["image_url"] = "https://img.example/leaf.jpg"
	rec := doJSON(t, env.router, http.MethodPost, "/identify/v1/identifications", "", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data struct {
			Result ports.IdentificationResult `json:"result"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "Ficus lyrata", envelope.Data.Result.ScientificName)
}

func TestUnknownBodyFieldRejected(t *testing.T) {
	env := newRouterEnv(t, staticEntitlement{}, staticIdentifier{})

	rec := doJSON(t, env.router, http.MethodPost, "/entitlements/v1/check", "", map[string]any{
		"device":     map[string]any{},
		"unexpected": true,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
