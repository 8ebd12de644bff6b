package types

import "errors"

// Failure taxonomy. Validation and auth failures are terminal: the client
// never retries them. Storage and network failures are retryable.
var (
	ErrValidation = errors.New("invalid request")
	ErrAuth       = errors.New("unauthorized")
	ErrStorage    = errors.New("storage failure")
	ErrNetwork    = errors.New("network failure")
)

// Backend lifecycle errors.
var (
	ErrAlreadyAttached = errors.New("backend is already attached")
	ErrDetached        = errors.New("backend is detached")
)

// Entity errors.
var (
	ErrNotFound  = errors.New("item not found")
	ErrInvalidID = errors.New("invalid ID")
)

// Event validation errors. All of them unwrap to ErrValidation.
var (
	ErrEventIDEmpty     = validationError("event id must not be empty")
	ErrItemIDEmpty      = validationError("event item id must not be empty")
	ErrEventTypeUnknown = validationError("unknown event type")
	ErrPayloadMissing   = validationError("event payload missing")
	ErrPayloadMismatch  = validationError("event payload does not match event type")
)

// validationError builds a sentinel that matches ErrValidation via errors.Is.
func validationError(msg string) error {
	return &taggedError{msg: msg, tag: ErrValidation}
}

type taggedError struct {
	msg string
	tag error
}

func (e *taggedError) Error() string { return e.msg }
func (e *taggedError) Unwrap() error { return e.tag }
