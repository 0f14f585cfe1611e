package lifecycle

import "errors"

var (
	// ErrEmptyToken is returned when an Info is built from an empty token string.
	ErrEmptyToken = errors.New("empty token")

	// ErrInvalidExpiry is returned when an Info would expire at or before its creation.
	ErrInvalidExpiry = errors.New("expiry must be after creation")

	// ErrSigning is returned when a new token could not be signed.
	// Rotation is deferred to the next tick; the previous active token keeps serving.
	ErrSigning = errors.New("token signing failed")

	// ErrStore is returned for persistence I/O failures.
	// In-memory state stays authoritative; the next successful save reconciles.
	ErrStore = errors.New("token store failure")

	// ErrCorruptRecord marks a persisted record that was dropped during load.
	ErrCorruptRecord = errors.New("corrupt persisted record")

	// ErrConfig is returned for a nonsensical lifecycle policy. It is fatal at startup.
	ErrConfig = errors.New("invalid lifecycle config")

	// ErrShutdownGrace is returned when an in-flight tick outlives the shutdown grace period.
	ErrShutdownGrace = errors.New("maintenance tick abandoned after shutdown grace")
)
