// Package common defines the sentinel errors shared by the client and server
// halves of the upload pipeline. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the caller does not own the referenced session.
	// Handlers must return it for existing sessions under another tenant so
	// that existence is never leaked across tenants.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState means the requested transition violates the upload
	// state machine (double init, complete before init, and so on).
	ErrInvalidState = errors.New("invalid state")

	// ErrPartMismatch is the store-reported inconsistency in a submitted
	// part list: gaps, duplicate part numbers, or an ETag that does not
	// match an uploaded part. Recoverable by resubmitting a corrected list.
	ErrPartMismatch = errors.New("part mismatch")

	// ErrStoreUnavailable marks a transient object-store failure. Safe to
	// retry with backoff everywhere except after completion stitching has
	// begun.
	ErrStoreUnavailable = errors.New("object store unavailable")

	// ErrInvalidKey means a storage key violates the tenant prefix contract.
	ErrInvalidKey = errors.New("invalid storage key")

	// Validation / request-shape errors.
	ErrValidation = errors.New("validation error")

	// ErrEmptyParts rejects a completion request carrying no parts. It is a
	// validation failure, raised before any store call.
	ErrEmptyParts = errors.New("empty part list")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)

// IsTransient reports whether err is worth retrying with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
