package gdhcn

import (
	"errors"
	"fmt"
)

// ErrorCode classifies service errors so the transport layer can map them to
// protocol responses without inspecting messages.
type ErrorCode string

const (
	// ErrCodeValidation indicates malformed or mismatched caller input,
	// including a wrong passcode.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeNotFound indicates the referenced identifier resolves to no record.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidRequest indicates the operation is not valid for the
	// record's access policy (e.g. manifest resolution of an unprotected record).
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	// ErrCodeAlreadyAccessed indicates a single-use retrieval identity has
	// already been consumed.
	ErrCodeAlreadyAccessed ErrorCode = "ALREADY_ACCESSED"

	// ErrCodeStorage indicates a persistence or blob store failure.
	ErrCodeStorage ErrorCode = "STORAGE"

	// ErrCodeIssuance indicates a failure while building or signing a credential.
	ErrCodeIssuance ErrorCode = "ISSUANCE"
)

// Error is a structured service error carrying a stable code.
type Error struct {
	code    ErrorCode
	message string
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Code() ErrorCode { return e.code }
func (e *Error) Unwrap() error   { return e.wrapped }

// CodeOf extracts the error code from err, or "" when err is not a service error.
func CodeOf(err error) ErrorCode {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Code()
	}
	return ""
}

// NewValidationError creates a validation error for bad caller input.
func NewValidationError(msg string) error {
	return &Error{code: ErrCodeValidation, message: msg}
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(msg string) error {
	return &Error{code: ErrCodeNotFound, message: msg}
}

// NewInvalidRequestError creates an error for operations that do not match
// the record's access policy.
func NewInvalidRequestError(msg string) error {
	return &Error{code: ErrCodeInvalidRequest, message: msg}
}

// NewAlreadyAccessedError creates an error for consumed retrieval identities.
func NewAlreadyAccessedError(msg string) error {
	return &Error{code: ErrCodeAlreadyAccessed, message: msg}
}

// WrapStorageError wraps a persistence or blob failure.
func WrapStorageError(err error, msg string) error {
	return &Error{code: ErrCodeStorage, message: msg, wrapped: err}
}

// WrapIssuanceError wraps a failure during credential issuance.
func WrapIssuanceError(err error, msg string) error {
	return &Error{code: ErrCodeIssuance, message: msg, wrapped: err}
}
