package app

import (
	"errors"
	"fmt"
	"time"

	"rotator/cmd/internal/lifecycle"
	"rotator/cmd/security/signer"
)

// Config contains all runtime configuration.
// Sources in increasing precedence: defaults, YAML file, environment.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // json | text

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	// DatabaseURL switches token persistence to Postgres when set.
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// WSOriginPatterns are extra host patterns allowed to open /ws/jws
	// cross-origin. Same-host requests are always allowed.
	WSOriginPatterns []string

	// AdminToken guards the rotate and reset endpoints. Empty disables them.
	AdminToken string

	// If true, ROTATOR_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) so token
	// fingerprints in logs are keyed.
	RequireTokenHMAC bool

	// Claims are signed into every token under "data".
	Claims map[string]any

	Lifecycle lifecycle.Config
	Signer    signer.Config
}

// DefaultConfig returns development defaults.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:  "0.0.0.0:8080",
		LogLevel:  "info",
		LogFormat: "json",

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxHeaderBytes:    1 << 20,

		DBMaxConns: 10,
		DBMinConns: 0,

		Claims: map[string]any{"message": "hello"},

		Lifecycle: lifecycle.DefaultConfig(),
		Signer:    signer.DefaultConfig(),
	}
}

// LoadConfig layers file and then environment variables over the defaults.
// Every malformed value is reported; errors wrap ErrConfig or the
// subsystem's own ErrConfig.
func LoadConfig(file FileConfig) (Config, error) {
	cfg := DefaultConfig()
	if err := file.apply(&cfg); err != nil {
		return Config{}, err
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	duration := func(key string, dst *time.Duration) {
		d, err := EnvDuration(key, *dst)
		collect(err)
		*dst = d
	}

	cfg.HTTPAddr = EnvString("ROTATOR_HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = EnvString("ROTATOR_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = EnvString("ROTATOR_LOG_FORMAT", cfg.LogFormat)

	duration("ROTATOR_HTTP_READ_HEADER_TIMEOUT", &cfg.ReadHeaderTimeout)
	duration("ROTATOR_HTTP_READ_TIMEOUT", &cfg.ReadTimeout)
	duration("ROTATOR_HTTP_WRITE_TIMEOUT", &cfg.WriteTimeout)
	duration("ROTATOR_HTTP_IDLE_TIMEOUT", &cfg.IdleTimeout)
	duration("ROTATOR_HTTP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	var err error
	cfg.MaxHeaderBytes, err = EnvInt("ROTATOR_HTTP_MAX_HEADER_BYTES", cfg.MaxHeaderBytes)
	collect(err)

	cfg.DatabaseURL = EnvString("ROTATOR_DATABASE_URL", cfg.DatabaseURL)
	cfg.DBMaxConns, err = EnvInt32("ROTATOR_DB_MAX_CONNS", cfg.DBMaxConns)
	collect(err)
	cfg.DBMinConns, err = EnvInt32("ROTATOR_DB_MIN_CONNS", cfg.DBMinConns)
	collect(err)
	cfg.ReadinessRequireDB, err = EnvBool("ROTATOR_READINESS_REQUIRE_DB", cfg.ReadinessRequireDB)
	collect(err)

	cfg.WSOriginPatterns = EnvCSV("ROTATOR_WS_ORIGIN_PATTERNS", cfg.WSOriginPatterns)
	cfg.AdminToken = EnvString("ROTATOR_ADMIN_TOKEN", cfg.AdminToken)
	cfg.RequireTokenHMAC, err = EnvBool("ROTATOR_REQUIRE_TOKEN_HMAC", cfg.RequireTokenHMAC)
	collect(err)

	cfg.Lifecycle, err = lifecycle.LoadConfigFromEnv(cfg.Lifecycle)
	collect(err)
	cfg.Signer, err = signer.LoadConfigFromEnv(cfg.Signer)
	collect(err)

	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		collect(fmt.Errorf("%w: log format must be json or text, got %q", ErrConfig, cfg.LogFormat))
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		collect(fmt.Errorf("%w: db min conns %d exceeds max conns %d", ErrConfig, cfg.DBMinConns, cfg.DBMaxConns))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
