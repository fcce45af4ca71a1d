package model

import "errors"

// Error kinds returned by the core. Wrap them with fmt.Errorf("%w: ...") and
// test with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrDependency         = errors.New("dependency failure")
)

// ErrorKind names one of the error kinds.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindNotFound           ErrorKind = "not_found"
	KindForbidden          ErrorKind = "forbidden"
	KindInvalidArgument    ErrorKind = "invalid_argument"
	KindPreconditionFailed ErrorKind = "precondition_failed"
	KindDependency         ErrorKind = "dependency_failure"
	KindInternal           ErrorKind = "internal"
)

// KindOf classifies err. Nil maps to KindNone, unclassified errors to KindInternal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrPreconditionFailed):
		return KindPreconditionFailed
	case errors.Is(err, ErrDependency):
		return KindDependency
	default:
		return KindInternal
	}
}
