// Package errors provides common domain error types for eventhint.
//
// This package defines sentinel errors for common domain conditions like
// "not found" or "invalid state" that can be used across all packages.
// Using typed errors enables consistent error handling with errors.Is()
// checks, and the Kind taxonomy in codes.go maps errors onto HTTP status
// codes and retry decisions.
//
// Usage:
//
//	import eherrors "github.com/eventhint/eventhint/pkg/errors"
//
//	// Return a domain error
//	return nil, eherrors.ErrNotFound
//
//	// Check for domain errors
//	if eherrors.IsNotFound(err) {
//	    // handle not found case
//	}
package errors

import "errors"

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrNotFound indicates the requested resource was not found. Cross-user
	// access is reported as ErrNotFound too, never as a permission error.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input or validation failure.
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized indicates the request lacks valid authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState indicates the operation is not valid for the current
	// lifecycle state (e.g. approving an event that is not pending).
	ErrInvalidState = errors.New("invalid state")

	// ErrAlreadyProcessed indicates the message was already processed; the
	// pipeline treats re-runs as no-ops.
	ErrAlreadyProcessed = errors.New("already processed")

	// ErrOAuthMisconfigured indicates OAuth credentials are missing.
	ErrOAuthMisconfigured = errors.New("oauth not configured")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsUnauthorized reports whether any error in err's chain is ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsAlreadyProcessed reports whether any error in err's chain is ErrAlreadyProcessed.
func IsAlreadyProcessed(err error) bool {
	return errors.Is(err, ErrAlreadyProcessed)
}
