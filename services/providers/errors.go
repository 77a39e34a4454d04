package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code is a canonical provider error kind
type Code string

const (
	CodeBadRequest           Code = "bad_request"
	CodeAuth                 Code = "auth"
	CodeQuota                Code = "quota"
	CodeForbidden            Code = "forbidden"
	CodeNotFound             Code = "not_found"
	CodeTimeout              Code = "timeout"
	CodeConflict             Code = "conflict"
	CodeUnprocessable        Code = "unprocessable"
	CodeRateLimited          Code = "rate_limited"
	CodeInternal             Code = "internal"
	CodeBadGateway           Code = "bad_gateway"
	CodeUnavailable          Code = "unavailable"
	CodeProviderError        Code = "provider_error"
	CodeInvalidConfiguration Code = "invalid_configuration"
	CodeStreamError          Code = "provider_stream_error"
	CodeProviderUnavailable  Code = "provider_unavailable"
)

var statusCodes = map[int]Code{
	http.StatusBadRequest:          CodeBadRequest,
	http.StatusUnauthorized:        CodeAuth,
	http.StatusPaymentRequired:     CodeQuota,
	http.StatusForbidden:           CodeForbidden,
	http.StatusNotFound:            CodeNotFound,
	http.StatusRequestTimeout:      CodeTimeout,
	http.StatusConflict:            CodeConflict,
	http.StatusUnprocessableEntity: CodeUnprocessable,
	http.StatusTooManyRequests:     CodeRateLimited,
	http.StatusInternalServerError: CodeInternal,
	http.StatusBadGateway:          CodeBadGateway,
	http.StatusServiceUnavailable:  CodeUnavailable,
	http.StatusGatewayTimeout:      CodeTimeout,
}

// CodeForStatus maps an upstream HTTP status to a canonical code
func CodeForStatus(status int) Code {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	return CodeProviderError
}

// Retryable reports whether a failure with this code may succeed on another provider
func (c Code) Retryable() bool {
	switch c {
	case CodeRateLimited, CodeUnavailable, CodeTimeout:
		return true
	default:
		return false
	}
}

// ProviderError represents a failed upstream exchange
type ProviderError struct {
	// Provider that generated the error
	Provider ID

	// Code is the canonical error kind
	Code Code

	// Message is safe to show to clients
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error

	// Body is the raw upstream error body, for debug logs only
	Body string
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Code, e.Message)
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsTransport reports whether the failure happened before any HTTP status
// was received
func (e *ProviderError) IsTransport() bool {
	return e.StatusCode == 0 && e.Cause != nil && (e.Code == CodeUnavailable || e.Code == CodeTimeout)
}

// Result converts the error to a failed normalized result
func (e *ProviderError) Result() Result {
	return Failure(e.Code, e.Message)
}

// NewProviderError creates a new provider error
func NewProviderError(provider ID, code Code, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Code.Retryable()
	}
	return false
}

// TransportError classifies a failed round trip. Deadlines become timeout,
// everything else unavailable.
func TransportError(provider ID, err error) *ProviderError {
	code := CodeUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		code = CodeTimeout
	}
	return NewProviderError(provider, code, provider.DisplayName()+" request failed.", 0, err)
}

// MissingConfig builds the invalid_configuration error for a provider
func MissingConfig(provider ID, what string) *ProviderError {
	return NewProviderError(provider, CodeInvalidConfiguration, fmt.Sprintf("%s %s is missing.", provider.DisplayName(), what), 0, nil)
}
