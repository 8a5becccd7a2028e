package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404/NOT_FOUND.
	ErrNotFound = errors.New("resource not found")
	// ErrLimitReached signals that the caller has exhausted its metered-action ceiling.
	// It is the only failure in this subsystem that is ever shown to an end user.
	ErrLimitReached = errors.New("identification limit reached")
	// ErrUnavailable wraps remote lookup failures on the gating path.
	// Gating fails closed: the adapter maps this to a retryable response instead of
	// silently allowing or silently blocking.
	ErrUnavailable  = errors.New("entitlement state unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrTokenExpired = errors.New("token expired")
	ErrRateLimited  = errors.New("rate limited")
	// ErrAmbiguousDevice is returned when a fingerprint matches more than one
	// device row in the same window. Fingerprints are best-effort join keys,
	// never identities, so ambiguity is an expected state rather than corruption.
	ErrAmbiguousDevice = errors.New("ambiguous device fingerprint match")
	// ErrParse signals a malformed payload from a remote collaborator.
	// Boundary decoding fails with this sentinel instead of propagating zero values.
	ErrParse = errors.New("malformed remote response")
)
