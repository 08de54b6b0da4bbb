package fetcher

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error that occurred during a fetch operation
type ErrorType string

const (
	// ErrorTypeNetwork indicates a network-level error (connection refused, DNS, etc.)
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit indicates the request was rejected due to rate limiting (HTTP 429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeServer indicates a server error (HTTP 5xx)
	ErrorTypeServer ErrorType = "server"
	// ErrorTypeAuth indicates the provider rejected the credential (HTTP 401/403)
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeClient indicates a client error (HTTP 4xx except 401/403/408/429),
	// typically an unknown or delisted symbol
	ErrorTypeClient ErrorType = "client"
	// ErrorTypeValidation indicates the response was received but data validation failed
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeTimeout indicates the request timed out
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeUnknown indicates an error of unknown type
	ErrorTypeUnknown ErrorType = "unknown"
)

// FetchError represents a structured error from a fetch operation.
// Retryable errors have already been through the HTTP client's retry
// ceiling by the time the caller sees them; the flag tells the
// orchestrator whether the failure was transient or permanent.
type FetchError struct {
	Symbol     string
	Type       ErrorType
	Retryable  bool
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s error (status %d): %s", e.Symbol, e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Symbol, e.Type, e.Message)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// NewNetworkError creates a network error
func NewNetworkError(symbol string, cause error) *FetchError {
	return &FetchError{
		Symbol:    symbol,
		Type:      ErrorTypeNetwork,
		Retryable: true,
		Message:   "network request failed",
		Cause:     cause,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(symbol string, statusCode int) *FetchError {
	return &FetchError{
		Symbol:     symbol,
		Type:       ErrorTypeRateLimit,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "rate limit exceeded",
	}
}

// NewServerError creates a server error
func NewServerError(symbol string, statusCode int) *FetchError {
	return &FetchError{
		Symbol:     symbol,
		Type:       ErrorTypeServer,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "server returned an error",
	}
}

// NewAuthError creates an authentication error
func NewAuthError(symbol string, statusCode int) *FetchError {
	return &FetchError{
		Symbol:     symbol,
		Type:       ErrorTypeAuth,
		Retryable:  false,
		StatusCode: statusCode,
		Message:    "provider rejected credentials",
	}
}

// NewClientError creates a client error
func NewClientError(symbol string, statusCode int, message string) *FetchError {
	return &FetchError{
		Symbol:     symbol,
		Type:       ErrorTypeClient,
		Retryable:  false,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewValidationError creates a validation error
func NewValidationError(symbol, message string) *FetchError {
	return &FetchError{
		Symbol:    symbol,
		Type:      ErrorTypeValidation,
		Retryable: false,
		Message:   message,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(symbol string, cause error) *FetchError {
	return &FetchError{
		Symbol:    symbol,
		Type:      ErrorTypeTimeout,
		Retryable: true,
		Message:   "request timed out",
		Cause:     cause,
	}
}

// ClassifyHTTPError classifies an HTTP status code into an appropriate FetchError
func ClassifyHTTPError(symbol string, statusCode int) *FetchError {
	switch {
	case statusCode == 401 || statusCode == 403:
		return NewAuthError(symbol, statusCode)
	case statusCode == 408:
		return &FetchError{
			Symbol:     symbol,
			Type:       ErrorTypeTimeout,
			Retryable:  true,
			StatusCode: statusCode,
			Message:    "request timed out",
		}
	case statusCode == 429:
		return NewRateLimitError(symbol, statusCode)
	case statusCode >= 500:
		return NewServerError(symbol, statusCode)
	case statusCode >= 400:
		return NewClientError(symbol, statusCode, fmt.Sprintf("client error: HTTP %d", statusCode))
	default:
		return &FetchError{
			Symbol:     symbol,
			Type:       ErrorTypeUnknown,
			Retryable:  false,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("unexpected status code: %d", statusCode),
		}
	}
}

// IsTransient reports whether err is a FetchError that failed after the
// retry ceiling (as opposed to a permanent rejection).
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}
