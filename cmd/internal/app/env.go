package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString reads a string env var, falling back to def when unset or blank.
func EnvString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// EnvBool reads a bool env var. A malformed value is an error wrapping ErrConfig.
func EnvBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%w: %s=%q is not a bool", ErrConfig, key, v)
	}
	return b, nil
}

// EnvInt reads a positive int env var.
func EnvInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def, fmt.Errorf("%w: %s=%q must be a positive integer", ErrConfig, key, v)
	}
	return n, nil
}

// EnvInt32 reads a non-negative int32 env var.
func EnvInt32(key string, def int32) (int32, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < 0 {
		return def, fmt.Errorf("%w: %s=%q must be a non-negative int32", ErrConfig, key, v)
	}
	return int32(n), nil
}

// EnvDuration reads a positive Go duration env var.
func EnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def, fmt.Errorf("%w: %s=%q must be a positive duration", ErrConfig, key, v)
	}
	return d, nil
}

// EnvCSV reads a comma separated list, dropping blanks.
func EnvCSV(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
