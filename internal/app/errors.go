/**
 * @description
 * Error kinds for the orchestration core. Operations return one of these
 * sentinel values wrapped with context via fmt.Errorf("%w: ..."), so callers
 * classify failures with errors.Is and the HTTP layer maps kinds to status
 * codes without parsing messages.
 */

package app

import "errors"

var (
	// ErrValidation marks malformed or inconsistent caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing rate, bank account, transaction or verification.
	ErrNotFound = errors.New("resource not found")
	// ErrAlreadyExists marks a duplicate in-flight verification.
	ErrAlreadyExists = errors.New("resource already exists")
	// ErrUpstream marks a failed provider or storage call.
	ErrUpstream = errors.New("upstream call failed")
	// ErrRateLimited marks a submission rejected by the request limiter.
	ErrRateLimited = errors.New("rate limit exceeded")
)
