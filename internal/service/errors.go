// Package service contains the application's business logic.
package service

import "errors"

// Error taxonomy shared by the handlers. Anything not covered maps to an
// internal error.
var (
	// ErrUnauthenticated means the credential was missing or invalid.
	// Terminal; never retried.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrTenantNotFound means the credential resolved but the tenant
	// record is gone.
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrUsageExceeded means the tenant's plan limit is exhausted for the
	// current period.
	ErrUsageExceeded = errors.New("usage limit exceeded")
	// ErrValidation means the request body failed validation.
	ErrValidation = errors.New("validation failed")
	// ErrUpstreamUnavailable means the generation provider failed or timed
	// out before any output was streamed. Retryable by the caller.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
