package signer

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"rotator/cmd/internal/lifecycle"
)

const (
	KindES256    = "es256"
	KindPasetoV4 = "paseto-v4"
)

// Config selects and keys a signer.
type Config struct {
	// Kind is KindES256 or KindPasetoV4.
	Kind string

	// Issuer is set in the "iss" claim.
	Issuer string

	// PrivateKeyPEM is the EC P-256 key for KindES256.
	PrivateKeyPEM string

	// PasetoV4SecretKeyHex is the Ed25519 secret key for KindPasetoV4.
	PasetoV4SecretKeyHex string

	// Ephemeral generates a key in memory when none is configured.
	// Development only: tokens do not verify across restarts.
	Ephemeral bool
}

func DefaultConfig() Config {
	return Config{
		Kind:   KindES256,
		Issuer: "rotator",
	}
}

// LoadConfigFromEnv overlays environment variables on base.
//
// Optional:
//   - ROTATOR_SIGNER (es256|paseto-v4)
//   - ROTATOR_SIGNER_ISSUER
//   - ROTATOR_JWS_PRIVATE_KEY_PEM
//   - ROTATOR_PASETO_V4_SECRET_KEY_HEX
//   - ROTATOR_SIGNER_EPHEMERAL_KEY (bool)
//
// The key for the selected kind is required unless ephemeral keys are enabled.
func LoadConfigFromEnv(base Config) (Config, error) {
	cfg := base

	if v := strings.TrimSpace(os.Getenv("ROTATOR_SIGNER")); v != "" {
		cfg.Kind = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("ROTATOR_SIGNER_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := os.Getenv("ROTATOR_JWS_PRIVATE_KEY_PEM"); strings.TrimSpace(v) != "" {
		cfg.PrivateKeyPEM = v
	}
	if v := strings.TrimSpace(os.Getenv("ROTATOR_PASETO_V4_SECRET_KEY_HEX")); v != "" {
		cfg.PasetoV4SecretKeyHex = v
	}
	if v := strings.TrimSpace(os.Getenv("ROTATOR_SIGNER_EPHEMERAL_KEY")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: ROTATOR_SIGNER_EPHEMERAL_KEY=%q", ErrConfig, v)
		}
		cfg.Ephemeral = b
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("%w: issuer is empty", ErrConfig)
	}
	switch c.Kind {
	case KindES256:
		if c.PrivateKeyPEM == "" && !c.Ephemeral {
			return fmt.Errorf("%w: es256 requires ROTATOR_JWS_PRIVATE_KEY_PEM", ErrConfig)
		}
	case KindPasetoV4:
		if c.PasetoV4SecretKeyHex == "" && !c.Ephemeral {
			return fmt.Errorf("%w: paseto-v4 requires ROTATOR_PASETO_V4_SECRET_KEY_HEX", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown signer %q", ErrConfig, c.Kind)
	}
	return nil
}

// New builds the signer cfg selects.
func New(cfg Config, log *slog.Logger) (lifecycle.Signer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	switch cfg.Kind {
	case KindPasetoV4:
		if cfg.PasetoV4SecretKeyHex == "" {
			s := GeneratePasetoV4Signer(cfg.Issuer)
			log.Warn("signer.key.ephemeral", "kind", cfg.Kind, "public_key", s.PublicKeyHex())
			return s, nil
		}
		return NewPasetoV4Signer(cfg.Issuer, cfg.PasetoV4SecretKeyHex)
	default:
		if cfg.PrivateKeyPEM == "" {
			log.Warn("signer.key.ephemeral", "kind", cfg.Kind)
			return GenerateES256Signer(cfg.Issuer)
		}
		return NewES256SignerFromPEM(cfg.Issuer, []byte(cfg.PrivateKeyPEM))
	}
}
