package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. Unknown usernames and wrong
	// passwords both map to it.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicate indicates a unique key collision.
	ErrDuplicate = errors.New("already exists")
	// ErrLastAdmin rejects changes that would leave no ADMIN principal.
	ErrLastAdmin = errors.New("at least one admin must remain")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrTooManyAttempts indicates the failed-login limit was reached.
	ErrTooManyAttempts = errors.New("too many failed login attempts")
)
