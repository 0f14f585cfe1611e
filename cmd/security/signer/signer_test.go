package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"rotator/cmd/internal/lifecycle"
)

var now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func testPayload() lifecycle.Payload {
	return lifecycle.Payload{
		ID:        "01JGZ2V4S5Q3W6Y8A0C2E4G6J8",
		IssuedAt:  now,
		ExpiresAt: now.Add(3 * time.Minute),
		Claims:    map[string]any{"message": "hello"},
	}
}

type verifier interface {
	lifecycle.Signer
	Verify(token string, now time.Time) (Claims, error)
}

func mustES256(t *testing.T) *ES256Signer {
	t.Helper()
	s, err := GenerateES256Signer("rotator-test")
	if err != nil {
		t.Fatalf("GenerateES256Signer: %v", err)
	}
	return s
}

func TestSigners_SignAndVerify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		signer verifier
		prefix string
	}{
		{"es256", mustES256(t), "eyJ"},
		{"paseto-v4", GeneratePasetoV4Signer("rotator-test"), "v4.public."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tok, err := tc.signer.Sign(context.Background(), testPayload())
			if err != nil {
				t.Fatalf("Sign: %v", err)
			}
			if !strings.HasPrefix(tok, tc.prefix) {
				t.Fatalf("unexpected token format %q", tok)
			}

			claims, err := tc.signer.Verify(tok, now.Add(time.Minute))
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if claims.Issuer != "rotator-test" || claims.ID != testPayload().ID {
				t.Fatalf("unexpected claims %+v", claims)
			}
			if !claims.ExpiresAt.Equal(now.Add(3 * time.Minute)) {
				t.Fatalf("exp=%v", claims.ExpiresAt)
			}
			if claims.Data["message"] != "hello" {
				t.Fatalf("data claim lost: %+v", claims.Data)
			}

			if _, err := tc.signer.Verify(tok, now.Add(4*time.Minute)); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expired token must not verify, got %v", err)
			}
			if _, err := tc.signer.Verify(tok+"x", now.Add(time.Minute)); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("tampered token must not verify, got %v", err)
			}
		})
	}
}

func TestSigners_DistinctTokensPerPayload(t *testing.T) {
	t.Parallel()

	s := mustES256(t)
	p1 := testPayload()
	p2 := testPayload()
	p2.ID = "01JGZ2V4S5Q3W6Y8A0C2E4G6J9"

	a, err := s.Sign(context.Background(), p1)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	b, err := s.Sign(context.Background(), p2)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if a == b {
		t.Fatalf("tokens with different jti must differ")
	}
}

func TestES256_WrongKeyRejected(t *testing.T) {
	t.Parallel()

	a, b := mustES256(t), mustES256(t)
	tok, err := a.Sign(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := b.Verify(tok, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestES256_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mustES256(t).Sign(ctx, testPayload()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewES256Signer_RejectsOtherCurves(t *testing.T) {
	t.Parallel()

	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if _, err := NewES256Signer("x", key); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestNew_FromConfig(t *testing.T) {
	t.Parallel()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey: %v", err)
	}
	pemKey := string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))

	s, err := New(Config{Kind: KindES256, Issuer: "rotator", PrivateKeyPEM: pemKey}, nil)
	if err != nil {
		t.Fatalf("New es256: %v", err)
	}
	if _, ok := s.(*ES256Signer); !ok {
		t.Fatalf("expected *ES256Signer, got %T", s)
	}

	secret := paseto.NewV4AsymmetricSecretKey()
	s, err = New(Config{Kind: KindPasetoV4, Issuer: "rotator", PasetoV4SecretKeyHex: secret.ExportHex()}, nil)
	if err != nil {
		t.Fatalf("New paseto-v4: %v", err)
	}
	ps, ok := s.(*PasetoV4Signer)
	if !ok {
		t.Fatalf("expected *PasetoV4Signer, got %T", s)
	}
	if ps.PublicKeyHex() != secret.Public().ExportHex() {
		t.Fatalf("configured key not used")
	}

	if _, err := New(Config{Kind: KindES256, Issuer: "rotator", PrivateKeyPEM: "not a key"}, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for a bad PEM, got %v", err)
	}
	if _, err := New(Config{Kind: KindPasetoV4, Issuer: "rotator", PasetoV4SecretKeyHex: "zz"}, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for a bad hex key, got %v", err)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("ROTATOR_SIGNER", "PASETO-V4")
	t.Setenv("ROTATOR_SIGNER_ISSUER", "issuer-x")
	t.Setenv("ROTATOR_JWS_PRIVATE_KEY_PEM", "")
	t.Setenv("ROTATOR_PASETO_V4_SECRET_KEY_HEX", "")
	t.Setenv("ROTATOR_SIGNER_EPHEMERAL_KEY", "true")

	cfg, err := LoadConfigFromEnv(DefaultConfig())
	if err != nil {
		t.Fatalf("LoadConfigFromEnv: %v", err)
	}
	if cfg.Kind != KindPasetoV4 || cfg.Issuer != "issuer-x" || !cfg.Ephemeral {
		t.Fatalf("unexpected cfg %+v", cfg)
	}
}

func TestLoadConfigFromEnv_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing es256 key", map[string]string{"ROTATOR_SIGNER": "es256", "ROTATOR_SIGNER_EPHEMERAL_KEY": "false"}},
		{"missing paseto key", map[string]string{"ROTATOR_SIGNER": "paseto-v4", "ROTATOR_SIGNER_EPHEMERAL_KEY": "false"}},
		{"unknown kind", map[string]string{"ROTATOR_SIGNER": "hs256", "ROTATOR_SIGNER_EPHEMERAL_KEY": "true"}},
		{"bad bool", map[string]string{"ROTATOR_SIGNER_EPHEMERAL_KEY": "maybe"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ROTATOR_JWS_PRIVATE_KEY_PEM", "")
			t.Setenv("ROTATOR_PASETO_V4_SECRET_KEY_HEX", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfigFromEnv(DefaultConfig()); !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestSigners_WithController(t *testing.T) {
	t.Parallel()

	s := mustES256(t)
	ctrl, err := lifecycle.NewController(lifecycle.DefaultConfig(), lifecycle.Deps{
		Signer:  s,
		Store:   lifecycle.NewMemoryStore(),
		Payload: lifecycle.StaticPayload{"message": "hello"},
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	active, err := ctrl.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	claims, err := s.Verify(active.Token(), time.Now())
	if err != nil {
		t.Fatalf("published token does not verify: %v", err)
	}
	if !claims.ExpiresAt.Equal(active.ExpiresAt().Truncate(time.Second)) {
		t.Fatalf("exp claim %v does not match record %v", claims.ExpiresAt, active.ExpiresAt())
	}
}
