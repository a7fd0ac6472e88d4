package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Request errors, recoverable and scoped to a single request
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeInvalidRegion ErrorType = "invalid_region"
	ErrorTypeOutOfBounds   ErrorType = "out_of_bounds"

	// Service errors
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// Error codes exposed to API clients
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeInvalidRegion    = "INVALID_REGION"
	CodeOutOfBounds      = "OUT_OF_BOUNDS"
	CodeConfiguration    = "CONFIGURATION_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
)

// InvalidRegionMessage is returned whenever a crop rectangle has no area.
const InvalidRegionMessage = "x0/x1 and y0/y1 must define a positive area"

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType      `json:"type"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	InnerError error          `json:"-"`
	Stack      []string       `json:"-"`
	HTTPStatus int            `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.InnerError != nil {
		return e.InnerError.Error()
	}
	return string(e.Type)
}

// Unwrap returns the inner error
func (e *AppError) Unwrap() error {
	return e.InnerError
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithHTTPStatus sets the HTTP status code
func (e *AppError) WithHTTPStatus(status int) *AppError {
	e.HTTPStatus = status
	return e
}

// WithInnerError sets the inner error
func (e *AppError) WithInnerError(err error) *AppError {
	e.InnerError = err
	return e
}

// WithStack captures the call stack
func (e *AppError) WithStack() *AppError {
	e.Stack = captureStack(3)
	return e
}

// Is reports whether target is an AppError of the same type.
func (e *AppError) Is(target error) bool {
	if targetApp, ok := target.(*AppError); ok {
		return e.Type == targetApp.Type
	}
	return false
}

// New creates a new AppError
func New(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// FromError converts a standard error to AppError
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return &AppError{
		Type:       ErrorTypeUnknown,
		Code:       CodeInternalError,
		Message:    err.Error(),
		InnerError: err,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewValidation reports a malformed request parameter.
func NewValidation(message string) *AppError {
	return New(ErrorTypeValidation, CodeValidationFailed, message).
		WithHTTPStatus(http.StatusBadRequest)
}

// NewInvalidRegion reports a crop rectangle with zero or negative area.
func NewInvalidRegion() *AppError {
	return New(ErrorTypeInvalidRegion, CodeInvalidRegion, InvalidRegionMessage).
		WithHTTPStatus(http.StatusBadRequest)
}

// NewOutOfBounds reports a crop rectangle that extends past the base image.
// The message always carries the real image dimensions.
func NewOutOfBounds(width, height int) *AppError {
	return New(ErrorTypeOutOfBounds, CodeOutOfBounds,
		fmt.Sprintf("Requested region exceeds image bounds %dx%d", width, height)).
		WithDetail("width", width).
		WithDetail("height", height).
		WithHTTPStatus(http.StatusBadRequest)
}

// NewConfiguration reports a deployment problem that no request can recover from.
func NewConfiguration(message string, inner error) *AppError {
	return New(ErrorTypeConfiguration, CodeConfiguration, message).
		WithInnerError(inner).
		WithHTTPStatus(http.StatusInternalServerError)
}

// NewInternal reports an unexpected failure while serving a request.
// The caller's stack is captured for the error log.
func NewInternal(message string, inner error) *AppError {
	return New(ErrorTypeInternal, CodeInternalError, message).
		WithInnerError(inner).
		WithHTTPStatus(http.StatusInternalServerError).
		WithStack()
}

// HTTPStatus maps any error onto an HTTP status code.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	appErr := FromError(err)
	if appErr.HTTPStatus > 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Sentinels usable with errors.Is.
var (
	ErrInvalidRegion = &AppError{Type: ErrorTypeInvalidRegion}
	ErrOutOfBounds   = &AppError{Type: ErrorTypeOutOfBounds}
	ErrConfiguration = &AppError{Type: ErrorTypeConfiguration}
	ErrValidation    = &AppError{Type: ErrorTypeValidation}
)

// ErrorFormatter formats errors for log output
type ErrorFormatter struct {
	showStack bool
	showInner bool
}

// NewErrorFormatter creates a new error formatter
func NewErrorFormatter(showStack bool, showInner bool) *ErrorFormatter {
	return &ErrorFormatter{
		showStack: showStack,
		showInner: showInner,
	}
}

// Format formats an error as a single line
func (f *ErrorFormatter) Format(err error) string {
	if err == nil {
		return ""
	}

	appErr := FromError(err)

	parts := []string{fmt.Sprintf("[%s] %s", appErr.Type, appErr.Message)}
	if appErr.Code != "" {
		parts = append(parts, "code="+appErr.Code)
	}
	if f.showStack && len(appErr.Stack) > 0 {
		parts = append(parts, "stack:")
		for _, s := range appErr.Stack {
			parts = append(parts, "  "+s)
		}
	}
	if f.showInner && appErr.InnerError != nil {
		parts = append(parts, "caused_by: "+appErr.InnerError.Error())
	}

	return strings.Join(parts, " | ")
}

func captureStack(skip int) []string {
	var stack []string
	for i := skip; i < 10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		funcName := fn.Name()
		if idx := strings.LastIndex(funcName, "/"); idx >= 0 {
			funcName = funcName[idx+1:]
		}

		stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, funcName))
	}
	return stack
}
