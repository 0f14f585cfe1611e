package app

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"

	"rotator/cmd/internal/lifecycle"
	"rotator/cmd/security/signer"
)

const sampleYAML = `
http:
  addr: 127.0.0.1:9000
log:
  level: debug
  format: text
jws:
  ttl-minutes: 10
  rotation-period-minutes: 2
  maintenance-interval-seconds: 5
  shutdown-grace: 1s
  persistence-path: /var/lib/rotator
  signer: paseto-v4
  ephemeral-key: true
  claims:
    message: hi
    tenant: acme
`

func clearRotatorEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ROTATOR_HTTP_ADDR", "ROTATOR_LOG_LEVEL", "ROTATOR_LOG_FORMAT",
		"ROTATOR_DATABASE_URL", "ROTATOR_DB_MAX_CONNS", "ROTATOR_DB_MIN_CONNS",
		"ROTATOR_ADMIN_TOKEN", "ROTATOR_REQUIRE_TOKEN_HMAC", "ROTATOR_READINESS_REQUIRE_DB",
		"ROTATOR_HTTP_READ_HEADER_TIMEOUT", "ROTATOR_HTTP_READ_TIMEOUT",
		"ROTATOR_HTTP_WRITE_TIMEOUT", "ROTATOR_HTTP_IDLE_TIMEOUT", "ROTATOR_HTTP_SHUTDOWN_TIMEOUT",
		"ROTATOR_HTTP_MAX_HEADER_BYTES", "ROTATOR_WS_ORIGIN_PATTERNS",
		"ROTATOR_JWS_TTL_MINUTES", "ROTATOR_JWS_ROTATION_MINUTES", "ROTATOR_JWS_MAINTENANCE_SECONDS",
		"ROTATOR_JWS_SHUTDOWN_GRACE",
		"ROTATOR_SIGNER", "ROTATOR_SIGNER_ISSUER", "ROTATOR_JWS_PRIVATE_KEY_PEM",
		"ROTATOR_PASETO_V4_SECRET_KEY_HEX", "ROTATOR_SIGNER_EPHEMERAL_KEY",
	} {
		t.Setenv(k, "")
	}
}

func mustFileConfig(t *testing.T, yaml string) FileConfig {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/etc/rotator.yaml", []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	fc, err := LoadFileConfig(fs, "/etc/rotator.yaml")
	if err != nil {
		t.Fatalf("LoadFileConfig: %v", err)
	}
	return fc
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	clearRotatorEnv(t)
	t.Setenv("ROTATOR_JWS_ROTATION_MINUTES", "3")
	t.Setenv("ROTATOR_HTTP_ADDR", "127.0.0.1:9100")

	cfg, err := LoadConfig(mustFileConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.HTTPAddr != "127.0.0.1:9100" {
		t.Fatalf("env must win over file, addr=%q", cfg.HTTPAddr)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "text" {
		t.Fatalf("log settings from file not applied: %q/%q", cfg.LogLevel, cfg.LogFormat)
	}

	want := lifecycle.Config{
		TTL:                 10 * time.Minute,
		RotationPeriod:      3 * time.Minute,
		MaintenanceInterval: 5 * time.Second,
		ShutdownGrace:       time.Second,
		PersistencePath:     "/var/lib/rotator",
	}
	if cfg.Lifecycle != want {
		t.Fatalf("lifecycle=%+v\nwant=%+v", cfg.Lifecycle, want)
	}
	if cfg.Signer.Kind != signer.KindPasetoV4 || !cfg.Signer.Ephemeral {
		t.Fatalf("signer from file not applied: %+v", cfg.Signer)
	}
	if cfg.Claims["tenant"] != "acme" {
		t.Fatalf("claims from file not applied: %+v", cfg.Claims)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearRotatorEnv(t)
	t.Setenv("ROTATOR_SIGNER_EPHEMERAL_KEY", "true")

	cfg, err := LoadConfig(FileConfig{})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HTTPAddr != "0.0.0.0:8080" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Lifecycle.TTL != 3*time.Minute || cfg.Lifecycle.RotationPeriod != time.Minute {
		t.Fatalf("unexpected lifecycle defaults: %+v", cfg.Lifecycle)
	}
	if cfg.Claims["message"] != "hello" {
		t.Fatalf("unexpected default claims: %+v", cfg.Claims)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want error
	}{
		{"bad timeout", map[string]string{"ROTATOR_HTTP_READ_TIMEOUT": "fast"}, ErrConfig},
		{"bad bool", map[string]string{"ROTATOR_REQUIRE_TOKEN_HMAC": "perhaps"}, ErrConfig},
		{"bad format", map[string]string{"ROTATOR_LOG_FORMAT": "xml"}, ErrConfig},
		{"min over max", map[string]string{"ROTATOR_DB_MIN_CONNS": "20", "ROTATOR_DB_MAX_CONNS": "5"}, ErrConfig},
		{"bad ttl", map[string]string{"ROTATOR_JWS_TTL_MINUTES": "0"}, lifecycle.ErrConfig},
		{"no signing key", map[string]string{"ROTATOR_SIGNER_EPHEMERAL_KEY": "false"}, signer.ErrConfig},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearRotatorEnv(t)
			t.Setenv("ROTATOR_SIGNER_EPHEMERAL_KEY", "true")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadConfig(FileConfig{}); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()

	if fc, err := LoadFileConfig(fs, ""); err != nil || fc.JWS.TTLMinutes != 0 {
		t.Fatalf("empty path must yield empty config, got %+v, %v", fc, err)
	}
	if _, err := LoadFileConfig(fs, "/missing.yaml"); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for a missing file, got %v", err)
	}

	_ = afero.WriteFile(fs, "/typo.yaml", []byte("jws:\n  ttl-minuets: 3\n"), 0o600)
	if _, err := LoadFileConfig(fs, "/typo.yaml"); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for an unknown key, got %v", err)
	}

	_ = afero.WriteFile(fs, "/empty.yaml", nil, 0o600)
	if _, err := LoadFileConfig(fs, "/empty.yaml"); err != nil {
		t.Fatalf("empty file must be accepted: %v", err)
	}
}

func TestFileConfig_ApplyRejectsNegative(t *testing.T) {
	t.Parallel()

	var fc FileConfig
	fc.JWS.TTLMinutes = -1
	cfg := DefaultConfig()
	if err := fc.apply(&cfg); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}

	fc = FileConfig{}
	fc.JWS.ShutdownGrace = "soon"
	if err := fc.apply(&cfg); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	t.Setenv("ROTATOR_TOKEN_HMAC_KEY", "")

	if err := ValidateSecurityConfig(Config{}); err != nil {
		t.Fatalf("default policy must pass: %v", err)
	}
	if err := ValidateSecurityConfig(Config{AdminToken: "short"}); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for a short admin token, got %v", err)
	}
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for a missing hmac key, got %v", err)
	}

	t.Setenv("ROTATOR_TOKEN_HMAC_KEY", "too-short")
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for a short hmac key, got %v", err)
	}

	t.Setenv("ROTATOR_TOKEN_HMAC_KEY", "0123456789abcdef0123456789abcdef")
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err != nil {
		t.Fatalf("valid hmac key rejected: %v", err)
	}
}
