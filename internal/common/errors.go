// Package common defines shared constants and sentinel errors used across
// client and server layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Sync errors. ErrPreconditionFailed signals that a conditional remote
	// write lost against a concurrent writer; it is recoverable and must
	// never be surfaced to the user.
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrOffline            = errors.New("offline")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Account errors.
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
)
