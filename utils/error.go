package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so collaborators (HTTP layer, sweepers)
// can react without string matching.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindInvalidTransition  ErrorKind = "INVALID_TRANSITION"
	KindDuplicateStatus    ErrorKind = "DUPLICATE_STATUS"
	KindPreconditionFailed ErrorKind = "PRECONDITION_FAILED"
	KindExternalSyncFailed ErrorKind = "EXTERNAL_SYNC_FAILED"
	KindCapacityExceeded   ErrorKind = "CAPACITY_EXCEEDED"
	KindNoSlotAvailable    ErrorKind = "NO_SLOT_AVAILABLE"
	KindInsufficientSlots  ErrorKind = "INSUFFICIENT_SLOTS"
	KindValidationFailed   ErrorKind = "VALIDATION_FAILED"
	KindForbidden          ErrorKind = "FORBIDDEN"
	KindConflict           ErrorKind = "CONFLICT"
	KindInvalidState       ErrorKind = "INVALID_STATE"
	KindInvalidType        ErrorKind = "INVALID_TYPE"
)

// AppError carries a kind plus a caller-safe message. Internal detail
// (upstream response bodies etc.) stays in the wrapped cause and is only
// ever logged, never returned to callers.
type AppError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *AppError) Error() string { return e.Message }

func (e *AppError) Unwrap() error { return e.cause }

func Errf(kind ErrorKind, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrapf(kind ErrorKind, cause error, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf returns the kind of err, or "" when err carries no AppError.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
