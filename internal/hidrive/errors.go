// Package hidrive provides an authenticated client for the HiDrive HTTP API:
// OAuth2 token lifecycle, parameterized request dispatch, response and error
// decoding, streaming transfers, and the WebSocket notification session.
package hidrive

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, hidrive.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("hidrive: bad request")
	ErrUnauthorized = errors.New("hidrive: unauthorized")
	ErrForbidden    = errors.New("hidrive: forbidden")
	ErrNotFound     = errors.New("hidrive: not found")
	ErrConflict     = errors.New("hidrive: conflict")
	ErrGone         = errors.New("hidrive: resource gone")
	ErrTooLarge     = errors.New("hidrive: payload too large")
	ErrThrottled    = errors.New("hidrive: throttled")
	ErrLocked       = errors.New("hidrive: resource locked")
	ErrServerError  = errors.New("hidrive: server error")
)

// ErrAuth matches every *AuthError via errors.Is.
var ErrAuth = errors.New("hidrive: authorization failed")

// AuthError reports that no valid access token could be obtained, or that the
// server rejected a request even after a fresh token was used. It is fatal:
// the client does not retry it further.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("hidrive: authorization failed (%s): %v", e.Op, e.Err)
	}

	return fmt.Sprintf("hidrive: authorization failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrAuth) true for any AuthError.
func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

// TransportError wraps connection, timeout, and stream interruption failures.
// Whether to retry is the caller's decision.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("hidrive: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPError is a non-2xx response whose body is not a HiDrive error envelope.
type HTTPError struct {
	StatusCode int
	Body       string
	Err        error // status sentinel, for errors.Is()
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("hidrive: HTTP %d", e.StatusCode)
	}

	return fmt.Sprintf("hidrive: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// APIError is the structured error envelope returned by HiDrive on failure.
// Auth carries a re-authorization hint such as "expired" when present.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	Auth       string
	Err        error // status sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("hidrive: HTTP %d: %s", e.StatusCode, e.Message)
	if e.Code != "" {
		msg += " (code " + e.Code + ")"
	}

	if e.Auth != "" {
		msg += " [auth: " + e.Auth + "]"
	}

	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// DecodeError is a 2xx response whose body does not match the expected shape.
// It indicates an API contract mismatch rather than a transient failure.
type DecodeError struct {
	StatusCode int
	Err        error
}

func (e *DecodeError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("hidrive: decoding message: %v", e.Err)
	}

	return fmt.Sprintf("hidrive: decoding HTTP %d response: %v", e.StatusCode, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status from an HTTPError or APIError in err's
// chain. Returns 0 when err carries no status.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}

	return 0
}

// IsTransient reports whether err is worth retrying by a caller: transport
// failures and 408, 429, and 5xx responses. Auth and decode errors never are.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrAuth) {
		return false
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}

	return isRetryable(StatusCode(err))
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusGone:
		return ErrGone
	case http.StatusRequestEntityTooLarge:
		return ErrTooLarge
	case http.StatusTooManyRequests:
		return ErrThrottled
	case http.StatusLocked:
		return ErrLocked
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code is transient.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
