package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rotator/cmd/internal/lifecycle"
)

// Claims is what Verify extracts from a token.
type Claims struct {
	ID        string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Data      map[string]any
}

type es256Claims struct {
	jwt.RegisteredClaims
	Data map[string]any `json:"data,omitempty"`
}

// ES256Signer signs compact JWS tokens with ECDSA P-256 / SHA-256.
type ES256Signer struct {
	issuer string
	key    *ecdsa.PrivateKey
}

// NewES256Signer builds a signer from a P-256 private key.
func NewES256Signer(issuer string, key *ecdsa.PrivateKey) (*ES256Signer, error) {
	if key == nil || key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: es256 requires a P-256 private key", ErrConfig)
	}
	return &ES256Signer{issuer: issuer, key: key}, nil
}

// NewES256SignerFromPEM parses a PEM encoded EC private key (SEC 1 or PKCS #8).
func NewES256SignerFromPEM(issuer string, pemKey []byte) (*ES256Signer, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("%w: es256 private key: %w", ErrConfig, err)
	}
	return NewES256Signer(issuer, key)
}

// GenerateES256Signer creates a signer with a fresh in-memory key.
// Tokens it signs cannot be verified after a restart.
func GenerateES256Signer(issuer string) (*ES256Signer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: generate es256 key: %w", ErrConfig, err)
	}
	return NewES256Signer(issuer, key)
}

// Sign implements lifecycle.Signer.
func (s *ES256Signer) Sign(ctx context.Context, p lifecycle.Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	claims := es256Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			ID:        p.ID,
			IssuedAt:  jwt.NewNumericDate(p.IssuedAt),
			NotBefore: jwt.NewNumericDate(p.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
		},
		Data: p.Claims,
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("es256 sign: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer and validity window at now.
func (s *ES256Signer) Verify(token string, now time.Time) (Claims, error) {
	var claims es256Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return &s.key.PublicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{
		ID:     claims.ID,
		Issuer: claims.Issuer,
		Data:   claims.Data,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
