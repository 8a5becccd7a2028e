package identify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/verdantlabs/entitlement-service/internal/domain"
	"github.com/verdantlabs/entitlement-service/internal/ports"
)

// Client calls the generative plant-identification endpoint. Responses are
// decoded into an explicit schema; anything malformed fails with
// domain.ErrParse at this boundary rather than leaking partial values upward.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("identification base url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

var _ ports.IdentificationClient = (*Client)(nil)

type identifyRequestBody struct {
	ImageURL    string `json:"image_url,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

type identifyResponseBody struct {
	ScientificName string   `json:"scientific_name"`
	CommonNames    []string `json:"common_names"`
	Confidence     *float64 `json:"confidence"`
	Description    string   `json:"description"`
	CareSummary    string   `json:"care_summary"`
}

func (c *Client) Identify(ctx context.Context, req ports.IdentificationRequest) (ports.IdentificationResult, error) {
	body := identifyRequestBody{
		ImageURL: req.ImageURL,
		Locale:   req.Locale,
	}
	if len(req.ImageData) > 0 {
		body.ImageBase64 = base64.StdEncoding.EncodeToString(req.ImageData)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return ports.IdentificationResult{}, fmt.Errorf("encode identify request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/identify", bytes.NewReader(payload))
	if err != nil {
		return ports.IdentificationResult{}, fmt.Errorf("build identify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ports.IdentificationResult{}, fmt.Errorf("identify request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ports.IdentificationResult{}, fmt.Errorf("read identify response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return ports.IdentificationResult{}, fmt.Errorf("identify endpoint returned %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var decoded identifyResponseBody
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return ports.IdentificationResult{}, fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	if decoded.ScientificName == "" || decoded.Confidence == nil {
		return ports.IdentificationResult{}, fmt.Errorf("%w: response missing scientific_name or confidence", domain.ErrParse)
	}
	if *decoded.Confidence < 0 || *decoded.Confidence > 1 {
		return ports.IdentificationResult{}, fmt.Errorf("%w: confidence %v out of range", domain.ErrParse, *decoded.Confidence)
	}

	return ports.IdentificationResult{
		ScientificName: decoded.ScientificName,
		CommonNames:    decoded.CommonNames,
		Confidence:     *decoded.Confidence,
		Description:    decoded.Description,
		CareSummary:    decoded.CareSummary,
	}, nil
}

func truncate(raw []byte, n int) string {
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n]) + "..."
}
