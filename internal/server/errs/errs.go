// Package errs holds the error kinds shared by the pipeline components.
// Components wrap a kind with context (`fmt.Errorf("%w: session %s", errs.ErrNotFound, id)`)
// and the HTTP layer maps the kind back to a status and API code.
package errs

import "errors"

var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrExpired             = errors.New("expired")
	ErrIncomplete          = errors.New("upload incomplete")
	ErrOutOfRange          = errors.New("chunk index out of range")
	ErrIntegrityMismatch   = errors.New("integrity mismatch")
	ErrRateLimited         = errors.New("rate limited")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
	ErrInternal            = errors.New("internal error")
)

// IncompleteError reports which chunk indices are still missing at finalize time.
type IncompleteError struct {
	Missing []int
}

func (e *IncompleteError) Error() string {
	return ErrIncomplete.Error()
}

func (e *IncompleteError) Unwrap() error {
	return ErrIncomplete
}

// Internal wraps an unexpected failure so it is reported as ErrInternal while keeping the cause.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &internalError{op: op, err: err}
}

type internalError struct {
	op  string
	err error
}

func (e *internalError) Error() string {
	return e.op + ": " + e.err.Error()
}

func (e *internalError) Unwrap() []error {
	return []error{ErrInternal, e.err}
}
