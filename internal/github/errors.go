package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrRetryExhausted is returned when a call stayed retryable past the
// attempt budget. Callers report it as a failed outcome and move on.
var ErrRetryExhausted = errors.New("retry budget exhausted")

// ErrNotModified is returned for conditional requests answered with 304.
var ErrNotModified = errors.New("not modified")

// APIError is a terminal non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s (status %d)", e.Message, e.StatusCode)
}

// IsAuthError reports whether err is an authentication or authorization
// failure. Hard 403s without a rate-limit signal land here.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// rateLimitError marks a retryable response: primary or secondary rate
// limiting, or a server error. retryAfter carries the server's explicit
// hint when present.
type rateLimitError struct {
	status     int
	retryAfter time.Duration
	message    string
}

func (e *rateLimitError) Error() string {
	if e.status > 0 {
		return fmt.Sprintf("retryable API response: %s (status %d)", e.message, e.status)
	}
	return fmt.Sprintf("retryable API response: %s", e.message)
}

// transportError marks a retryable network-level failure.
type transportError struct {
	err error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.err)
}

func (e *transportError) Unwrap() error {
	return e.err
}

// apiMessage extracts the server-provided message from an error body,
// folding in nested error codes ("Validation Failed (already_exists)") and
// falling back to a truncated copy of the body itself.
func apiMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Errors  []struct {
			Code string `json:"code"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		msg := payload.Message
		for _, e := range payload.Errors {
			if e.Code != "" {
				msg += " (" + e.Code + ")"
			}
		}
		return msg
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}
