package signer

import "errors"

var (
	// ErrConfig is returned when signer configuration is missing or invalid.
	ErrConfig = errors.New("signer: invalid config")

	// ErrInvalidToken is returned by Verify for any token that does not check out.
	// The cause is not exposed to callers.
	ErrInvalidToken = errors.New("signer: invalid token")
)
