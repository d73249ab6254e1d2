package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	KindRateLimit   ErrorKind = "rate_limit"
	KindTimeout     ErrorKind = "timeout"
	KindServer      ErrorKind = "server"
	KindUnavailable ErrorKind = "unavailable"
	KindRejected    ErrorKind = "rejected"
	KindMalformed   ErrorKind = "malformed"
)

// ProviderError is returned by every Provider.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether another provider may succeed where this one
// failed: rate limits, timeouts, 5xx and explicit unavailability.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindTimeout, KindServer, KindUnavailable:
		return true
	}
	return false
}

// IsRetryable reports whether err is a retryable provider failure. A bare
// deadline expiry counts as a timeout.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// KindOf returns the failure kind of err, or "" if err is not a
// *ProviderError.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// statusError classifies a non-200 HTTP response.
func statusError(provider string, status int, body string) *ProviderError {
	kind := KindRejected
	switch {
	case status == http.StatusTooManyRequests:
		kind = KindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = KindTimeout
	case status == http.StatusServiceUnavailable,
		status == http.StatusUnauthorized, status == http.StatusForbidden:
		// A provider we cannot authenticate against is as good as down.
		kind = KindUnavailable
	case status >= 500:
		kind = KindServer
	}
	if kind == KindRejected && mentionsUnavailable(body) {
		kind = KindUnavailable
	}
	return &ProviderError{
		Provider: provider,
		Kind:     kind,
		Status:   status,
		Err:      fmt.Errorf("api error: %s", truncate(body, 300)),
	}
}

// transportError classifies a failure to complete the HTTP exchange.
func transportError(provider string, err error) *ProviderError {
	kind := KindUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

func malformedError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindMalformed, Err: err}
}

func mentionsUnavailable(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "service unavailable") || strings.Contains(lower, "overloaded")
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
