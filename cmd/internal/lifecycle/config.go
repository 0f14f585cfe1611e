package lifecycle

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the token lifecycle policy. It is fixed for the life of a Controller.
type Config struct {
	// TTL is how long a token stays valid after it is signed.
	TTL time.Duration

	// RotationPeriod is the interval between mandatory rotations.
	// It is expected, not enforced, to be <= TTL so a passive token is
	// always around as a grace credential.
	RotationPeriod time.Duration

	// MaintenanceInterval is the scheduler tick interval.
	MaintenanceInterval time.Duration

	// ShutdownGrace bounds how long shutdown waits for an in-flight tick.
	ShutdownGrace time.Duration

	// PersistencePath is the directory used by FileStore.
	// Empty keeps state in memory only.
	PersistencePath string
}

// DefaultConfig is the stock policy: 3 minute tokens rotated every
// minute, checked every 10 seconds.
func DefaultConfig() Config {
	return Config{
		TTL:                 3 * time.Minute,
		RotationPeriod:      1 * time.Minute,
		MaintenanceInterval: 10 * time.Second,
		ShutdownGrace:       5 * time.Second,
		PersistencePath:     "jws-data",
	}
}

// Validate rejects policies that make no sense. Errors wrap ErrConfig.
func (c Config) Validate() error {
	switch {
	case c.TTL <= 0:
		return fmt.Errorf("%w: ttl must be > 0, got %s", ErrConfig, c.TTL)
	case c.RotationPeriod <= 0:
		return fmt.Errorf("%w: rotation period must be > 0, got %s", ErrConfig, c.RotationPeriod)
	case c.MaintenanceInterval <= 0:
		return fmt.Errorf("%w: maintenance interval must be > 0, got %s", ErrConfig, c.MaintenanceInterval)
	case c.ShutdownGrace < 0:
		return fmt.Errorf("%w: shutdown grace must be >= 0, got %s", ErrConfig, c.ShutdownGrace)
	}
	return nil
}

// GraceGap reports whether the rotation period exceeds the TTL, which leaves
// windows with no passive token.
func (c Config) GraceGap() bool { return c.RotationPeriod > c.TTL }

// LoadConfigFromEnv overlays environment variables on base.
//
// Optional:
//   - ROTATOR_JWS_TTL_MINUTES (int > 0)
//   - ROTATOR_JWS_ROTATION_MINUTES (int > 0)
//   - ROTATOR_JWS_MAINTENANCE_SECONDS (int > 0)
//   - ROTATOR_JWS_SHUTDOWN_GRACE (Go duration >= 0)
//   - ROTATOR_JWS_DATA_DIR (set to "-" to disable file persistence)
//
// Returns an error wrapping ErrConfig if a value is malformed or the result is invalid.
func LoadConfigFromEnv(base Config) (Config, error) {
	cfg := base

	if d, ok, err := envPositiveUnits("ROTATOR_JWS_TTL_MINUTES", time.Minute); err != nil {
		return Config{}, err
	} else if ok {
		cfg.TTL = d
	}

	if d, ok, err := envPositiveUnits("ROTATOR_JWS_ROTATION_MINUTES", time.Minute); err != nil {
		return Config{}, err
	} else if ok {
		cfg.RotationPeriod = d
	}

	if d, ok, err := envPositiveUnits("ROTATOR_JWS_MAINTENANCE_SECONDS", time.Second); err != nil {
		return Config{}, err
	} else if ok {
		cfg.MaintenanceInterval = d
	}

	if v := strings.TrimSpace(os.Getenv("ROTATOR_JWS_SHUTDOWN_GRACE")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("%w: ROTATOR_JWS_SHUTDOWN_GRACE=%q", ErrConfig, v)
		}
		cfg.ShutdownGrace = d
	}

	if v, ok := os.LookupEnv("ROTATOR_JWS_DATA_DIR"); ok {
		v = strings.TrimSpace(v)
		if v == "-" {
			v = ""
		}
		cfg.PersistencePath = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envPositiveUnits(key string, unit time.Duration) (time.Duration, bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false, fmt.Errorf("%w: %s=%q must be a positive integer", ErrConfig, key, v)
	}
	return time.Duration(n) * unit, true, nil
}
