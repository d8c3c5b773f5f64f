package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Parley error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrInvalidConfig      ErrorCode = "INVALID_CONFIG"      // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrFileNotFound       ErrorCode = "FILE_NOT_FOUND"      // 404
	ErrNameAlreadyExists  ErrorCode = "NAME_ALREADY_EXISTS" // 409
	ErrInputTooLarge      ErrorCode = "INPUT_TOO_LARGE"     // 413
	ErrUnsupportedLocale  ErrorCode = "UNSUPPORTED_LOCALE"  // 422
	ErrMalformedTimestamp ErrorCode = "MALFORMED_TIMESTAMP" // 422
	ErrCancelled          ErrorCode = "CANCELLED"           // 499
	ErrInternal           ErrorCode = "INTERNAL"            // 500
)

// ParleyError represents a structured error with code, status, and details.
type ParleyError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *ParleyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *ParleyError {
	return &ParleyError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewInvalidConfig creates a 400 error for a configuration that fails validation.
func NewInvalidConfig(msg string) *ParleyError {
	return &ParleyError{
		Code:    ErrInvalidConfig,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a chat cannot be found.
func NewNotFound(identifier string) *ParleyError {
	return &ParleyError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("chat not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing input or attachment file.
func NewFileNotFound(path string) *ParleyError {
	return &ParleyError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewNameAlreadyExists creates a 409 error for chat name collisions.
func NewNameAlreadyExists(name string) *ParleyError {
	return &ParleyError{
		Code:    ErrNameAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("chat with name %q already exists", name),
		Details: map[string]any{"name": name},
	}
}

// NewInputTooLarge creates a 413 error when an export exceeds the size limit.
func NewInputTooLarge(max, actual int64) *ParleyError {
	return &ParleyError{
		Code:    ErrInputTooLarge,
		Status:  413,
		Message: fmt.Sprintf("input exceeds maximum size: %d bytes (max %d)", actual, max),
		Details: map[string]any{"max_bytes": max, "actual_bytes": actual},
	}
}

// NewUnsupportedLocale creates a 422 error when no registered locale matches the sample.
// The sample is truncated so a huge first line never ends up in the error payload.
func NewUnsupportedLocale(sample string) *ParleyError {
	const maxSample = 80
	r := []rune(sample)
	if len(r) > maxSample {
		sample = string(r[:maxSample]) + "..."
	}
	return &ParleyError{
		Code:    ErrUnsupportedLocale,
		Status:  422,
		Message: "no registered locale matches the export",
		Details: map[string]any{"sample": sample},
	}
}

// NewUnknownLocale creates a 422 error when a locale is requested by a name nobody registered.
func NewUnknownLocale(name string) *ParleyError {
	return &ParleyError{
		Code:    ErrUnsupportedLocale,
		Status:  422,
		Message: fmt.Sprintf("unknown locale: %q", name),
		Details: map[string]any{"locale": name},
	}
}

// NewMalformedTimestamp creates a 422 error for a boundary whose text does not parse.
func NewMalformedTimestamp(index, offset int, raw string, cause error) *ParleyError {
	msg := fmt.Sprintf("segment %d: malformed timestamp %q", index, raw)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &ParleyError{
		Code:    ErrMalformedTimestamp,
		Status:  422,
		Message: msg,
		Details: map[string]any{"index": index, "offset": offset, "raw": raw},
	}
}

// NewCancelled creates a 499 error when an operation is interrupted by its context.
func NewCancelled(op string) *ParleyError {
	return &ParleyError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *ParleyError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &ParleyError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error (or anything it wraps) is a ParleyError with the given code.
func Is(err error, code ErrorCode) bool {
	var pErr *ParleyError
	if stderrors.As(err, &pErr) {
		return pErr.Code == code
	}
	return false
}

// As is a convenience wrapper returning the ParleyError inside err, if any.
func As(err error) (*ParleyError, bool) {
	var pErr *ParleyError
	ok := stderrors.As(err, &pErr)
	return pErr, ok
}
