package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors shared across the service.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrAlreadyExists       = errors.New("resource already exists")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInternal            = errors.New("internal error")
	ErrRateLimited         = errors.New("rate limited")
	ErrStateMismatch       = errors.New("state mismatch")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrExchangeFailed      = errors.New("authorization code exchange failed")
	ErrIDTokenInvalid      = errors.New("id token invalid")
	ErrVerifierFault       = errors.New("verifier fault")
)

// AppError is a structured application error with an HTTP status mapping.
type AppError struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	Status     int           `json:"-"`
	RetryAfter time.Duration `json:"-"`
	Err        error         `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return &AppError{
		Code:    "ALREADY_EXISTS",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Status:  http.StatusConflict,
		Err:     ErrAlreadyExists,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// RateLimited creates a 429 error carrying the retry-after hint.
func RateLimited(retryAfter time.Duration) *AppError {
	return &AppError{
		Code:       "RATE_LIMITED",
		Message:    "too many requests, retry later",
		Status:     http.StatusTooManyRequests,
		RetryAfter: retryAfter,
		Err:        ErrRateLimited,
	}
}

// StateMismatch creates a 400 error for a failed CSRF state check.
// The presented state will never become valid, so the error is terminal.
func StateMismatch(provider string) *AppError {
	return &AppError{
		Code:    "STATE_MISMATCH",
		Message: fmt.Sprintf("state parameter does not match the configured value for %s", provider),
		Status:  http.StatusBadRequest,
		Err:     ErrStateMismatch,
	}
}

// UnsupportedProvider creates a 400 error for an unregistered provider.
func UnsupportedProvider(provider string) *AppError {
	return &AppError{
		Code:    "UNSUPPORTED_PROVIDER",
		Message: fmt.Sprintf("provider %q is not supported", provider),
		Status:  http.StatusBadRequest,
		Err:     ErrUnsupportedProvider,
	}
}

// ExchangeFailed creates a 400 error for a rejected authorization code.
// Codes are single use, so this is never retryable.
func ExchangeFailed(provider, detail string) *AppError {
	return &AppError{
		Code:    "EXCHANGE_FAILED",
		Message: fmt.Sprintf("%s authorization code exchange failed: %s", provider, detail),
		Status:  http.StatusBadRequest,
		Err:     ErrExchangeFailed,
	}
}

// IDTokenInvalid creates a 400 error for a failed ID token check.
// The reason distinguishes issuer, audience, expiry, and signature failures.
func IDTokenInvalid(reason string) *AppError {
	return &AppError{
		Code:    "ID_TOKEN_INVALID",
		Message: fmt.Sprintf("id token rejected: %s", reason),
		Status:  http.StatusBadRequest,
		Err:     ErrIDTokenInvalid,
	}
}

// VerifierFault creates a 500 error for an internal verification failure
// (malformed key material, key set unavailable). Deliberately distinct
// from IDTokenInvalid: the token may be fine, the verifier is not.
func VerifierFault(err error) *AppError {
	return &AppError{
		Code:    "VERIFIER_FAULT",
		Message: "token verification is temporarily unavailable",
		Status:  http.StatusInternalServerError,
		Err:     fmt.Errorf("%w: %w", ErrVerifierFault, err),
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrStateMismatch),
		errors.Is(err, ErrUnsupportedProvider),
		errors.Is(err, ErrExchangeFailed),
		errors.Is(err, ErrIDTokenInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
