// Package common defines shared constants and sentinel errors used across
// client and server layers of TradeGate. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrUnavailable    = errors.New("service unavailable")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrForbidden    = errors.New("forbidden")

	// Registration flow.
	ErrExtractionIncomplete = errors.New("could not complete registration automatically")

	// Authorization verdicts.
	ErrInactiveBlocked = errors.New("account is deactivated")
	ErrNotRegistered   = errors.New("account is not registered")
	ErrTransient       = errors.New("authorization store unreachable")

	// Local session.
	ErrNoSession = errors.New("no active session")
)
