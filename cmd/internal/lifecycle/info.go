package lifecycle

import (
	"log/slog"
	"time"

	"rotator/cmd/security/token"
)

// PlaceholderToken is served to readers when no token has ever been signed.
const PlaceholderToken = "JWS_INIT_FAILED"

// displayLayout matches the timestamp layout operators know from status pages.
const displayLayout = "2006-01-02 15:04:05"

// Info is an immutable record of one signed token.
// The zero value means "no token".
type Info struct {
	token       string
	createdAt   time.Time
	expiresAt   time.Time
	placeholder bool
}

// NewInfo validates and builds an Info.
// Timestamps are normalized to UTC without a monotonic reading so that values
// survive persistence unchanged.
func NewInfo(tok string, createdAt, expiresAt time.Time) (Info, error) {
	if tok == "" {
		return Info{}, ErrEmptyToken
	}
	createdAt = createdAt.Round(0).UTC()
	expiresAt = expiresAt.Round(0).UTC()
	if !expiresAt.After(createdAt) {
		return Info{}, ErrInvalidExpiry
	}
	return Info{token: tok, createdAt: createdAt, expiresAt: expiresAt}, nil
}

func placeholderInfo(now time.Time) Info {
	now = now.Round(0).UTC()
	return Info{token: PlaceholderToken, createdAt: now, expiresAt: now, placeholder: true}
}

func (i Info) Token() string        { return i.token }
func (i Info) CreatedAt() time.Time { return i.createdAt }
func (i Info) ExpiresAt() time.Time { return i.expiresAt }

// IsZero reports whether i holds no token.
func (i Info) IsZero() bool { return i.token == "" }

// IsPlaceholder reports whether i is the degraded stand-in served before any
// token was signed successfully.
func (i Info) IsPlaceholder() bool { return i.placeholder }

// IsExpired reports whether now is strictly after the expiry.
func (i Info) IsExpired(now time.Time) bool { return now.After(i.expiresAt) }

// Equal reports whether both records carry the same token and timestamps.
func (i Info) Equal(o Info) bool {
	return i.token == o.token &&
		i.placeholder == o.placeholder &&
		i.createdAt.Equal(o.createdAt) &&
		i.expiresAt.Equal(o.expiresAt)
}

// Fingerprint identifies the token in logs without revealing it.
func (i Info) Fingerprint() string { return token.Fingerprint(i.token) }

// LogValue implements slog.LogValuer. The token itself is never logged.
func (i Info) LogValue() slog.Value {
	if i.IsZero() {
		return slog.StringValue("none")
	}
	return slog.GroupValue(
		slog.String("fp", i.Fingerprint()),
		slog.Time("created", i.createdAt),
		slog.Time("expires", i.expiresAt),
		slog.Bool("placeholder", i.placeholder),
	)
}

func (i Info) describe() string {
	return i.createdAt.Format(displayLayout) + " (expires " + i.expiresAt.Format(displayLayout) + ")"
}
