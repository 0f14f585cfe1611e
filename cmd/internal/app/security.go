package app

import (
	"errors"
	"fmt"

	"rotator/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
// Fingerprints of signed tokens end up in logs and status pages, so when
// keyed fingerprints are required the key must be present and long enough.
func ValidateSecurityConfig(cfg Config) error {
	if cfg.AdminToken != "" && len(cfg.AdminToken) < 16 {
		return fmt.Errorf("%w: ROTATOR_ADMIN_TOKEN is too short (min 16 bytes)", ErrConfig)
	}

	if !cfg.RequireTokenHMAC {
		return nil
	}

	// Bytes, not runes: the key is used as raw bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return fmt.Errorf("%w: ROTATOR_REQUIRE_TOKEN_HMAC=true but %s is missing", ErrConfig, token.HMACEnvKey)
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return fmt.Errorf("%w: ROTATOR_REQUIRE_TOKEN_HMAC=true but %s is too short (min 32 bytes)", ErrConfig, token.HMACEnvKey)
		default:
			return err
		}
	}
	return nil
}
