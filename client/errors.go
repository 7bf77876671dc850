package client

import "errors"

var (
	// ErrUnauthorized is returned when the server rejects the caller's
	// credential and no recovery applies (guest routes surface this as-is).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoRefreshToken means renewal was needed but no refresh token is
	// stored; the session is logged out without a network call.
	ErrNoRefreshToken = errors.New("no refresh token")

	// ErrRefreshFailed is terminal: the refresh call itself was rejected
	// or failed on the network, and the credential has been cleared.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrNotFound is returned for missing projects.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned for operations on a closed component.
	ErrClosed = errors.New("closed")
)
