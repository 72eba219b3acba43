package identity

import (
	"errors"
	"fmt"
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Msg may include human-readable context; it never includes access keys.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// NotFoundError reports that a lookup matched no row.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrNotFound)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// StoreError carries a failure that originated in the persistent store.
//
// Err is the driver error exactly as returned, so errors.As against driver
// types (*pgconn.PgError, *sqlite.Error) keeps working. Conflict names the
// unique constraint's logical field when the driver reported a unique
// violation; in that case the error also matches ErrConflict.
type StoreError struct {
	Op       string
	Conflict string
	Err      error
}

func (e StoreError) Error() string {
	if e.Conflict != "" {
		return fmt.Sprintf("%s: %v: %s: %v", e.Op, ErrConflict, e.Conflict, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e StoreError) Unwrap() []error {
	if e.Conflict == "" {
		return []error{e.Err}
	}
	return []error{e.Err, ErrConflict}
}

// IsNotFound reports whether err represents ErrNotFound (including NotFoundError).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsConflict reports whether err is a store-reported unique violation.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsStoreError reports whether err originated in the persistent store.
func IsStoreError(err error) bool {
	var se StoreError
	return errors.As(err, &se)
}
