package gate

import "errors"

// Sentinel errors returned by guards built on top of the resolver.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)
