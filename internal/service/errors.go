// Package service holds the account and identity logic behind the HTTP
// layer: resolving tokens to live identities, registration, sign-in and
// account maintenance.
package service

import "errors"

var (
	// ErrNoToken is returned when a request carries no access token.
	ErrNoToken = errors.New("no access token")

	// ErrStaleCredential means the token was issued before the user's
	// password changed.
	ErrStaleCredential = errors.New("token credentials do not match stored user")

	ErrMissingCredentials = errors.New("username and password are required")
	ErrIncorrectPassword  = errors.New("incorrect password")

	// ErrNotAuthorised is returned when an authenticated caller lacks the
	// role or ownership an operation requires.
	ErrNotAuthorised = errors.New("not authorised")

	// ErrMissingPrecondition signals a wiring bug: a step ran before the
	// step that provides what it needs.
	ErrMissingPrecondition = errors.New("missing precondition")
)
