package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const defaultBaseURL = "https://api.verdantlabs.io/entitlements"
const defaultUserAgent = "verdant-entitlement-sdk/0.1"

// Config wires the base URL, optional account credentials, and local state
// location for the client.
type Config struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
	UserAgent   string
	// StateDir is where the device identity and local usage counter live.
	// Required. If the directory turns out to be unusable at runtime the
	// client falls back to an ephemeral in-memory identity.
	StateDir string
	// DeviceAttrs are stable hardware properties mixed into the device
	// fingerprint, e.g. platform, model. Order matters.
	DeviceAttrs []string
}

// Client tracks metered usage for one device and talks to the entitlement
// service. Safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	accessToken string
	userAgent   string
	state       *StateStore
	fingerprint string
	sessionID   string
}

// NewClient validates the configuration, opens (or creates) the device state
// file, and returns a ready-to-use Client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	normalized, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if cfg.StateDir == "" {
		return nil, errors.New("sdk: state dir required")
	}
	state, err := OpenStateStore(cfg.StateDir)
	if err != nil {
		slog.Warn("entitlement sdk: state dir unusable, using ephemeral device identity",
			"state_dir", cfg.StateDir,
			"error", err,
		)
		state = newEphemeralStateStore()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Client{
		baseURL:     normalized,
		httpClient:  httpClient,
		accessToken: normalizeBearer(cfg.AccessToken),
		userAgent:   ua,
		state:       state,
		fingerprint: Fingerprint(state.DeviceID(), cfg.DeviceAttrs...),
		sessionID:   uuid.NewString(),
	}, nil
}

// DeviceID returns the persisted device identifier.
func (c *Client) DeviceID() string { return c.state.DeviceID() }

// Fingerprint returns the derived device fingerprint sent with every request.
func (c *Client) Fingerprint() string { return c.fingerprint }

// Ephemeral reports whether the device identity survives only for this
// process because local state could not be persisted.
func (c *Client) Ephemeral() bool { return c.state.Ephemeral() }

// Authenticated reports whether the client carries an account access token.
func (c *Client) Authenticated() bool { return c.accessToken != "" }

func normalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("sdk: base URL required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("sdk: invalid base URL: %w", err)
	}
	if u.Scheme == "" {
		return "", errors.New("sdk: base URL missing scheme (http/https)")
	}
	if u.Host == "" {
		return "", errors.New("sdk: base URL missing host")
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return strings.TrimSuffix(u.String(), "/"), nil
}

func normalizeBearer(token string) string {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("sdk: decode response: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("sdk: decode response data: %w", err)
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}
