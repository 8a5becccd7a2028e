package ports

import (
	"context"
	"time"
)

// AuthClaims is the caller identity extracted from a bearer token issued by
// the platform auth service. A present, valid AccountID is the registered /
// premium branch trigger; this service never issues tokens itself.
type AuthClaims struct {
	AccountID string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenVerifier parses and validates platform access tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (AuthClaims, error)
}

// EntitlementProvider answers "does this account hold an active paid
// entitlement right now". The answer is a read-only view of state the payment
// provider maintains through its own webhook flow; this service never writes it.
type EntitlementProvider interface {
	HasActivePremium(ctx context.Context, accountID string) (bool, error)
}

// IdentificationRequest is the metered action's input: one image to identify.
type IdentificationRequest struct {
	ImageURL  string
	ImageData []byte
	Locale    string
}

// IdentificationResult is the typed, schema-validated response of the
// generative identification endpoint. Malformed provider payloads surface as
// domain.ErrParse at the boundary instead of propagating zero values.
type IdentificationResult struct {
	ScientificName string   `json:"scientific_name"`
	CommonNames    []string `json:"common_names"`
	Confidence     float64  `json:"confidence"`
	Description    string   `json:"description"`
	CareSummary    string   `json:"care_summary,omitempty"`
}

// IdentificationClient invokes the generative-AI identification endpoint.
// The gating core is agnostic to its request/response shape beyond "this is
// the metered action".
type IdentificationClient interface {
	Identify(ctx context.Context, req IdentificationRequest) (IdentificationResult, error)
}
