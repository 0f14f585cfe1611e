package signer

import (
	"context"
	"fmt"
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"rotator/cmd/internal/lifecycle"
)

// PasetoV4Signer signs PASETO v4.public tokens with an Ed25519 key.
type PasetoV4Signer struct {
	issuer string
	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoV4Signer builds a signer from a hex encoded Ed25519 secret key.
func NewPasetoV4Signer(issuer, secretKeyHex string) (*PasetoV4Signer, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(secretKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: paseto v4 secret key: %w", ErrConfig, err)
	}
	return &PasetoV4Signer{issuer: issuer, secret: secret, public: secret.Public()}, nil
}

// GeneratePasetoV4Signer creates a signer with a fresh in-memory key.
func GeneratePasetoV4Signer(issuer string) *PasetoV4Signer {
	secret := paseto.NewV4AsymmetricSecretKey()
	return &PasetoV4Signer{issuer: issuer, secret: secret, public: secret.Public()}
}

// PublicKeyHex exports the verification key.
func (s *PasetoV4Signer) PublicKeyHex() string {
	return s.public.ExportHex()
}

// Sign implements lifecycle.Signer.
func (s *PasetoV4Signer) Sign(ctx context.Context, p lifecycle.Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tok := paseto.NewToken()
	tok.SetIssuer(s.issuer)
	tok.SetJti(p.ID)
	tok.SetIssuedAt(p.IssuedAt)
	tok.SetNotBefore(p.IssuedAt)
	tok.SetExpiration(p.ExpiresAt)

	if len(p.Claims) > 0 {
		if err := tok.Set("data", p.Claims); err != nil {
			return "", fmt.Errorf("paseto v4 claims: %w", err)
		}
	}

	return tok.V4Sign(s.secret, nil), nil
}

// Verify checks signature, issuer and validity window at now.
func (s *PasetoV4Signer) Verify(token string, now time.Time) (Claims, error) {
	// Fresh parser per call so rules do not accumulate.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(s.issuer))
	p.AddRule(paseto.ValidAt(now))

	parsed, err := p.ParseV4Public(s.public, token, nil)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{}
	out.Issuer, _ = parsed.GetIssuer()
	out.ID, _ = parsed.GetJti()
	out.IssuedAt, _ = parsed.GetIssuedAt()
	out.ExpiresAt, _ = parsed.GetExpiration()

	var data map[string]any
	if err := parsed.Get("data", &data); err == nil {
		out.Data = data
	}
	return out, nil
}
