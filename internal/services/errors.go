package services

import "errors"

// Canonical error set for the auth and streaming paths. Handlers map
// these onto HTTP statuses; services never surface the underlying
// cause of an auth failure to the caller.
var (
	// ErrInvalidCredentials covers both unknown username and wrong
	// password on login. The two cases are indistinguishable.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrAlreadyExists is returned when registering a username that is
	// already taken (case-insensitive).
	ErrAlreadyExists = errors.New("user already exists")

	// ErrUnauthorized is returned for every refresh failure: missing
	// user or record, expired record, digest mismatch, revoked record.
	ErrUnauthorized = errors.New("authorization denied")

	// ErrInvalidToken is the single outcome of access-token validation
	// failure; the specific cause is logged internally only.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrTokenIssuance is returned when the refresh record could not be
	// persisted after token generation.
	ErrTokenIssuance = errors.New("failed to issue tokens")

	// ErrInvalidOperation is returned when revoking a missing or
	// already-revoked refresh record.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrSessionBusy is returned in reject mode when a turn arrives
	// while the previous one is still generating.
	ErrSessionBusy = errors.New("session busy")

	// ErrEngineFailure wraps generation-engine errors.
	ErrEngineFailure = errors.New("generation engine failure")
)
