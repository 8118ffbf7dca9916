// Package errors defines the error taxonomy rendered by the REST and
// realtime transports as {"error": <code>, "message": <text>}.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode is the error kind rendered in the "error" field of the envelope.
type ErrorCode string

const (
	ErrCodeBadRequest         ErrorCode = "BadRequest"
	ErrCodeUnauthorized       ErrorCode = "Unauthorized"
	ErrCodeForbidden          ErrorCode = "Forbidden"
	ErrCodeNotFound           ErrorCode = "NotFound"
	ErrCodeConflict           ErrorCode = "Conflict"
	ErrCodeRateLimit          ErrorCode = "TooManyRequests"
	ErrCodeInternal           ErrorCode = "InternalError"
	ErrCodeServiceUnavailable ErrorCode = "ServiceUnavailable"
)

var statusByCode = map[ErrorCode]int{
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeRateLimit:          http.StatusTooManyRequests,
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
}

// AppError is returned by services for every failure a client should see.
// Message is rendered verbatim; Cause and Fields are only logged.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Fields are zap key/value pairs.
	Fields []any
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Status maps the code to its HTTP status; unknown codes are 500.
func (e *AppError) Status() int {
	if s, ok := statusByCode[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// With appends log fields.
func (e *AppError) With(keysAndValues ...any) *AppError {
	e.Fields = append(e.Fields, keysAndValues...)
	return e
}

// Envelope is the JSON body returned for every failed REST call.
type Envelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e *AppError) Envelope() Envelope {
	return Envelope{Error: string(e.Code), Message: e.Message}
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Wrap(cause error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func NewBadRequestError(message string) *AppError {
	return New(ErrCodeBadRequest, message)
}

func NewUnauthorizedError(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func NewForbiddenError(message string) *AppError {
	return New(ErrCodeForbidden, message)
}

func NewNotFoundError(message string) *AppError {
	return New(ErrCodeNotFound, message)
}

func NewConflictError(message string) *AppError {
	return New(ErrCodeConflict, message)
}

func NewRateLimitError() *AppError {
	return New(ErrCodeRateLimit, "Rate limit exceeded")
}

func NewInternalError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeInternal, message)
}

func NewServiceUnavailableError(message string) *AppError {
	return New(ErrCodeServiceUnavailable, message)
}

// GetAppError returns the first AppError in err's chain, or nil.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}
