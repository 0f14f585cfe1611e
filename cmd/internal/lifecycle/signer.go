package lifecycle

import (
	"context"
	"time"
)

// Payload is what the Controller hands to a Signer when minting a token.
// ID, IssuedAt and ExpiresAt are set by the Controller; Claims come from the
// PayloadSource supplied by the caller.
type Payload struct {
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Claims    map[string]any
}

// Signer turns a payload into an opaque signed token.
// The Controller never inspects the result beyond checking it is non-empty.
type Signer interface {
	Sign(ctx context.Context, p Payload) (string, error)
}

// PayloadSource supplies the external claims signed into each new token.
type PayloadSource interface {
	Payload(ctx context.Context) (map[string]any, error)
}

// PayloadFunc adapts a function to PayloadSource.
type PayloadFunc func(ctx context.Context) (map[string]any, error)

func (f PayloadFunc) Payload(ctx context.Context) (map[string]any, error) { return f(ctx) }

// StaticPayload signs the same claims into every token.
type StaticPayload map[string]any

func (p StaticPayload) Payload(_ context.Context) (map[string]any, error) {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out, nil
}
