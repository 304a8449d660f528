package errs

import (
	"errors"
	"fmt"
)

// Common sentinel errors for cross-layer signaling.
var (
	// ErrUnauthorized means the caller identity could not be resolved.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound covers both absent rows and rows owned by another user.
	ErrNotFound = errors.New("not_found")
	// ErrInvalid is matched by every ValidationError.
	ErrInvalid = errors.New("validation_error")
	// ErrStoreFailure marks an aborted store transaction.
	ErrStoreFailure = errors.New("store_failure")
	ErrConflict     = errors.New("conflict")
)

// ValidationError reports a schema violation detected before the store is touched.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// Invalid builds a ValidationError for field.
func Invalid(field, msg string) error { return &ValidationError{Field: field, Msg: msg} }

type storeFailure struct{ err error }

func (e *storeFailure) Error() string        { return e.err.Error() }
func (e *storeFailure) Unwrap() error        { return e.err }
func (e *storeFailure) Is(target error) bool { return target == ErrStoreFailure }

// StoreFailure wraps err as a store failure unless it already carries a domain
// meaning (not found, validation, unauthorized, conflict). The message is kept as-is.
func StoreFailure(err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) || errors.Is(err, ErrStoreFailure) {
		return err
	}
	return &storeFailure{err: err}
}

// IsDomain reports whether err is one of the engine's own error kinds.
func IsDomain(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalid) ||
		errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrConflict)
}

// Code returns the stable machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return ErrUnauthorized.Error()
	case errors.Is(err, ErrNotFound):
		return ErrNotFound.Error()
	case errors.Is(err, ErrInvalid):
		return ErrInvalid.Error()
	case errors.Is(err, ErrConflict):
		return ErrConflict.Error()
	default:
		return ErrStoreFailure.Error()
	}
}

// Wrapf annotates err with an operation name while keeping errors.Is behaviour.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
