package pager

import "github.com/pkg/errors"

// FatalError wraps a condition that spec §7 classifies as fatal: I/O
// failure, corrupt on-disk structure, resource exhaustion, or a cell
// that cannot fit in half a page. Callers at the db façade should treat
// a FatalError as "abort the process", not "abort the statement".
type FatalError struct {
	cause error
}

func (e *FatalError) Error() string { return e.cause.Error() }
func (e *FatalError) Unwrap() error { return e.cause }

func fatalf(format string, args ...any) error {
	return &FatalError{cause: errors.Errorf(format, args...)}
}

func wrapFatal(cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &FatalError{cause: errors.Wrap(cause, msg)}
}

// IsFatal reports whether err (or something it wraps) is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
