// Package common defines shared sentinel errors and small helpers used across
// the enclave components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Startup errors.
	ErrConfiguration = errors.New("configuration error")

	// Repository-level errors.
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Service-level errors.
	ErrInvalidInput   = errors.New("invalid input")
	ErrResetForbidden = errors.New("reset is not allowed in production")

	// Best-effort collaborators (metadata service, external ledger, archive).
	ErrExternalCall = errors.New("external call failed")
)
