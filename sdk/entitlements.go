package sdk

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
)

// Decision mirrors the service's per-attempt entitlement verdict.
type Decision struct {
	Allowed      bool   `json:"allowed"`
	Remaining    int    `json:"remaining"`
	Unlimited    bool   `json:"unlimited"`
	Tier         string `json:"tier"`
	GuardTripped bool   `json:"guard_tripped"`
}

type checkResponse struct {
	Decision Decision `json:"decision"`
}

// RecordResult reports the tier and window an action was recorded in.
type RecordResult struct {
	Tier      string `json:"tier"`
	WindowKey string `json:"window_key"`
}

// ReconcileResult carries the merged counter the device should adopt.
type ReconcileResult struct {
	WindowKey string `json:"window_key"`
	Count     int    `json:"count"`
	Skipped   bool   `json:"skipped"`
}

// UsageSummary is the current window's usage standing for the caller.
type UsageSummary struct {
	Tier       string `json:"tier"`
	WindowKey  string `json:"window_key"`
	Count      int    `json:"count"`
	MaxActions int    `json:"max_actions"`
	Remaining  int    `json:"remaining"`
	Unlimited  bool   `json:"unlimited"`
}

// IdentificationResult is the plant identification payload.
type IdentificationResult struct {
	ScientificName string   `json:"scientific_name"`
	CommonNames    []string `json:"common_names"`
	Confidence     float64  `json:"confidence"`
	Description    string   `json:"description"`
	CareSummary    string   `json:"care_summary"`
}

// IdentifyResult pairs the identification with the entitlement outcome.
type IdentifyResult struct {
	Result    IdentificationResult `json:"result"`
	Decision  Decision             `json:"decision"`
	WindowKey string               `json:"window_key"`
}

type devicePayload struct {
	DeviceID    string `json:"device_id"`
	Fingerprint string `json:"fingerprint"`
	LocalCount  int    `json:"local_count"`
}

func (c *Client) devicePayload() devicePayload {
	return devicePayload{
		DeviceID:    c.state.DeviceID(),
		Fingerprint: c.fingerprint,
		LocalCount:  c.state.Count(),
	}
}

// Check asks whether the device (or signed-in account) may perform another
// metered action right now. It never mutates any counter.
func (c *Client) Check(ctx context.Context) (Decision, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/entitlements/v1/check", map[string]any{
		"device": c.devicePayload(),
	})
	if err != nil {
		return Decision{}, err
	}
	var out checkResponse
	if err := c.send(req, &out); err != nil {
		return Decision{}, err
	}
	return out.Decision, nil
}

// RecordAction reports one consumed action to the service. For anonymous
// devices the local counter is incremented first so local state stays the
// source of truth even when the report is lost.
func (c *Client) RecordAction(ctx context.Context) (RecordResult, error) {
	if !c.Authenticated() {
		if _, err := c.state.Increment(); err != nil {
			return RecordResult{}, err
		}
	}
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/entitlements/v1/actions", map[string]any{
		"device": c.devicePayload(),
	})
	if err != nil {
		return RecordResult{}, err
	}
	var out RecordResult
	if err := c.send(req, &out); err != nil {
		return RecordResult{}, err
	}
	return out, nil
}

// Usage fetches the caller's standing for the current window.
func (c *Client) Usage(ctx context.Context) (UsageSummary, error) {
	q := url.Values{}
	q.Set("device_id", c.state.DeviceID())
	q.Set("fingerprint", c.fingerprint)
	req, err := c.newJSONRequest(ctx, http.MethodGet, "/entitlements/v1/usage?"+q.Encode(), nil)
	if err != nil {
		return UsageSummary{}, err
	}
	var out UsageSummary
	if err := c.send(req, &out); err != nil {
		return UsageSummary{}, err
	}
	return out, nil
}

// Reconcile merges the local counter with the service's device row and adopts
// the winner locally. The service deduplicates by session, so calling this on
// every app start is safe; repeat calls within one session are no-ops.
func (c *Client) Reconcile(ctx context.Context) (ReconcileResult, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/entitlements/v1/reconcile", map[string]any{
		"device":     c.devicePayload(),
		"session_id": c.sessionID,
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	var out ReconcileResult
	if err := c.send(req, &out); err != nil {
		return ReconcileResult{}, err
	}
	if !out.Skipped {
		if err := c.state.AdoptIfGreater(out.WindowKey, out.Count); err != nil {
			return ReconcileResult{}, err
		}
	}
	return out, nil
}

// LinkDevice associates this device with the signed-in account. Requires an
// access token.
func (c *Client) LinkDevice(ctx context.Context) error {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/entitlements/v1/devices/link", map[string]any{
		"device": c.devicePayload(),
	})
	if err != nil {
		return err
	}
	return c.send(req, nil)
}

// IdentifyParams selects the image to identify, by URL or inline bytes.
type IdentifyParams struct {
	ImageURL string
	Image    []byte
	Locale   string
}

// Identify runs one gated identification. On a LIMIT_REACHED refusal the
// returned error satisfies IsLimitReached and no local count is consumed.
func (c *Client) Identify(ctx context.Context, params IdentifyParams) (IdentifyResult, error) {
	body := map[string]any{
		"device":    c.devicePayload(),
		"image_url": params.ImageURL,
		"locale":    params.Locale,
	}
	if len(params.Image) > 0 {
		body["image_data"] = base64.StdEncoding.EncodeToString(params.Image)
	}
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/identify/v1/identifications", body)
	if err != nil {
		return IdentifyResult{}, err
	}
	var out IdentifyResult
	if err := c.send(req, &out); err != nil {
		return IdentifyResult{}, err
	}
	// The service merged the post-action count into the ledger; mirror the
	// bump locally so the next request reports an in-sync counter.
	if !c.Authenticated() {
		if _, err := c.state.Increment(); err != nil {
			return out, err
		}
	}
	return out, nil
}
