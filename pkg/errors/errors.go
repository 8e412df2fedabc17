// Package errors defines the sentinel errors shared across the indexer and
// maps them onto HTTP statuses and the numeric error codes carried by the
// reindex action protocol.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnknownContentType = errors.New("unknown content type")
	ErrItemNotFound       = errors.New("content item not found")
	ErrStorageWrite       = errors.New("index storage write failed")
	ErrTimeout            = errors.New("operation timed out")
	ErrFatalAbort         = errors.New("reindex aborted")
	ErrInternal           = errors.New("internal error")
)

// Protocol error codes. Zero means success.
const (
	CodeOK             = 0
	CodeInvalidInput   = 1
	CodeUnknownType    = 2
	CodeItemNotFound   = 3
	CodeStorageFailure = 4
	CodeTimeout        = 5
	CodeInternal       = 99
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrUnknownContentType):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code maps err onto the protocol error code reported in action responses.
func Code(err error) int {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrUnknownContentType):
		return CodeUnknownType
	case errors.Is(err, ErrItemNotFound):
		return CodeItemNotFound
	case errors.Is(err, ErrStorageWrite):
		return CodeStorageFailure
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	default:
		return CodeInternal
	}
}
