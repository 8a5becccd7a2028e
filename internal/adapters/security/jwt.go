package security

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/verdantlabs/entitlement-service/internal/domain"
	"github.com/verdantlabs/entitlement-service/internal/ports"
)

// JWTVerifier validates RS256 access tokens issued by the platform auth
// service. This service only ever verifies; signing stays with the issuer.
type JWTVerifier struct {
	publicKey *rsa.PublicKey
	issuer    string
}

// NewJWTVerifier builds a verifier from the auth service's public key PEM.
func NewJWTVerifier(publicKeyPEM, issuer string) (*JWTVerifier, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("auth public key is required")
	}
	pub, err := parseRSAPublic(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse auth public key: %w", err)
	}
	return &JWTVerifier{publicKey: pub, issuer: issuer}, nil
}

type accessClaims struct {
	AccountID string `json:"user_id"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (ports.AuthClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &accessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.publicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ports.AuthClaims{}, domain.ErrTokenExpired
		}
		return ports.AuthClaims{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid {
		return ports.AuthClaims{}, domain.ErrUnauthorized
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return ports.AuthClaims{}, fmt.Errorf("%w: issuer mismatch", domain.ErrUnauthorized)
	}
	if claims.AccountID == "" {
		return ports.AuthClaims{}, fmt.Errorf("%w: token missing user id", domain.ErrUnauthorized)
	}

	out := ports.AuthClaims{
		AccountID: claims.AccountID,
		Email:     claims.Email,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	} else {
		out.ExpiresAt = time.Now().UTC().Add(time.Minute)
	}
	return out, nil
}

func parseRSAPublic(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("invalid public key PEM")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		if cert, certErr := x509.ParseCertificate(block.Bytes); certErr == nil {
			if pub, ok := cert.PublicKey.(*rsa.PublicKey); ok {
				return pub, nil
			}
		}
		return nil, err
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return pub, nil
}
