package store

import "errors"

var (
	// ErrProviderConfigNotFound is returned when no integration exists for a
	// provider config key in an environment
	ErrProviderConfigNotFound = errors.New("provider config not found")

	// ErrConnectionNotFound is returned when a connection lookup misses
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrConnectSessionNotFound is returned when a connect session id does
	// not resolve
	ErrConnectSessionNotFound = errors.New("connect session not found")

	// ErrEndUserNotFound is returned when a connect session references a
	// missing end user
	ErrEndUserNotFound = errors.New("end user not found")

	// ErrEnvironmentNotFound is returned when a session's stored environment
	// no longer resolves at callback time
	ErrEnvironmentNotFound = errors.New("environment not found")
)
