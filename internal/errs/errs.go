// Package errs holds the error categories shared by the assistant packages.
//
// Callers wrap these with goerr so errors.Is can classify a failure without
// parsing messages.
package errs

import "errors"

var (
	// ErrInvalidConfig covers bad settings and unknown record kinds or roles.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrPermissionDenied is returned when content comes from outside an allow list.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrStorageUnavailable means the database could not be opened or written.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrProviderFailure wraps embedding or generation provider failures.
	ErrProviderFailure = errors.New("provider failure")
)
