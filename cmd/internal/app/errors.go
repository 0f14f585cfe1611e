package app

import "errors"

// ErrConfig is returned when runtime configuration is malformed.
var ErrConfig = errors.New("app: invalid config")
