package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"regexp"
	"strings"
)

// APIError is a non-2xx response from the Groq API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("groq API error (status %d): %s", e.StatusCode, e.Message)
}

// IsRateLimit reports whether the call was rejected for rate limiting.
func (e *APIError) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == "rate_limit_exceeded"
}

// IsAuth reports whether the credential was rejected.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden ||
		e.Code == "invalid_api_key"
}

// Groq 429 messages embed a wait duration, e.g. "Please try again in 7.66s"
// or "try again in 2m59.56s". Best-effort text match; the hint degrades to
// empty if the provider changes the format.
var retryAfterPattern = regexp.MustCompile(`try again in ([0-9][0-9a-z.]*[a-z])`)

// RetryAfter extracts the provider's suggested wait from the error message,
// or "" when none is present.
func (e *APIError) RetryAfter() string {
	m := retryAfterPattern.FindStringSubmatch(e.Message)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func parseAPIError(status int, body []byte) *APIError {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}

	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Code = envelope.Error.Code
	}
	return apiErr
}

// IsTransientNetworkError reports whether err is a transport-level failure
// worth retrying: timeout, connection reset, or DNS resolution failure.
// API-level errors (bad key, unsupported format) are never transient.
func IsTransientNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if os.IsTimeout(err) {
		return true
	}

	// syscall-level resets surface as *net.OpError without a typed cause
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe")
}
