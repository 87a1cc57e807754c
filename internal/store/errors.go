package store

import "errors"

// Errors returned by Gateway operations.
//
// Every failure wraps exactly one of these, so callers can branch with
// errors.Is while the message still carries the driver's text:
//
//	if errors.Is(err, store.ErrConstraintViolation) {
//	    // the store rejected the data
//	}
var (
	// ErrStorageUnavailable is returned when the backing store cannot be
	// reached or a DDL/DML statement fails for a reason other than the data.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrConstraintViolation is returned when the store rejects the data,
	// e.g. a name longer than MaxNameLength or a NULL name.
	ErrConstraintViolation = errors.New("constraint violation")
)

// IsUnavailable reports whether err is a connectivity or statement failure.
func IsUnavailable(err error) bool {
	return err != nil && errors.Is(err, ErrStorageUnavailable)
}

// IsConstraint reports whether err is a data rejection by the store.
func IsConstraint(err error) bool {
	return err != nil && errors.Is(err, ErrConstraintViolation)
}
