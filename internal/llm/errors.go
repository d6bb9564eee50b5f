package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// ErrorType classifies provider failures.
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeUnavailable    ErrorType = "unavailable"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// Error is a typed provider error.
type Error struct {
	Type     ErrorType
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s %s: %v", e.Type, e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s %s", e.Type, e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a provider error.
func NewError(errType ErrorType, provider, message string, err error) *Error {
	return &Error{Type: errType, Provider: provider, Message: message, Err: err}
}

// AsError extracts a provider error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether a failed call may succeed when repeated.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	e, ok := AsError(err)
	if !ok {
		return false
	}
	return e.Type == ErrorTypeRateLimit || e.Type == ErrorTypeUnavailable
}

var statusPattern = regexp.MustCompile(`(?i)status(?:\s+code)?[:=\s]+(\d{3})`)

// statusFromError digs an HTTP status code out of a client error message.
// The OpenAI-compatible client only surfaces the code inside its error text.
func statusFromError(err error) int {
	m := statusPattern.FindStringSubmatch(err.Error())
	if len(m) < 2 {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}

// typeForStatus maps an HTTP status code to an error type.
func typeForStatus(code int) ErrorType {
	switch {
	case code == 400 || code == 422:
		return ErrorTypeValidation
	case code == 401 || code == 403:
		return ErrorTypeAuthentication
	case code == 429:
		return ErrorTypeRateLimit
	case code == 404 || code == 408 || code >= 500:
		return ErrorTypeUnavailable
	default:
		return ErrorTypeUnknown
	}
}

// WrapProviderError wraps a raw client error into a typed provider error.
// Errors that are already typed are returned as is.
func WrapProviderError(provider string, err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorTypeUnavailable, provider, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewError(ErrorTypeUnavailable, provider, "connection failed", err)
	}

	if code := statusFromError(err); code != 0 {
		t := typeForStatus(code)
		return NewError(t, provider, fmt.Sprintf("request failed with status %d", code), err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "timeout"), strings.Contains(msg, "eof"):
		return NewError(ErrorTypeUnavailable, provider, "connection failed", err)
	case strings.Contains(msg, "api key"), strings.Contains(msg, "unauthorized"):
		return NewError(ErrorTypeAuthentication, provider, "authentication failed", err)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "quota"):
		return NewError(ErrorTypeRateLimit, provider, "rate limit exceeded", err)
	}
	return NewError(ErrorTypeUnknown, provider, "request failed", err)
}
