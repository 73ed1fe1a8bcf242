package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies a generation failure for the batch controller.
// Configuration errors fail the whole job, retryable errors get a bounded
// retry with backoff, terminal errors fail only the item.
type ErrorKind string

const (
	KindConfiguration ErrorKind = "configuration"
	KindRetryable     ErrorKind = "retryable"
	KindTerminal      ErrorKind = "terminal"
)

// ConfigurationError marks a failure caused by invalid service or job
// setup rather than by a single item. The controller treats it as fatal.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// NewConfigurationError creates a ConfigurationError with a formatted reason.
func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// APIError is a non-2xx response from the generation provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generation API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the response status indicates a transient
// condition: rate limiting, overload, or an upstream outage.
func (e *APIError) Retryable() bool {
	switch {
	case e.StatusCode == 408, e.StatusCode == 429:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// Classify maps an error from a generation attempt onto the retry
// taxonomy. Timeouts and transport failures are retryable; provider
// rejections of the request content are terminal.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindTerminal
	}

	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return KindConfiguration
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			return KindConfiguration
		}
		if apiErr.Retryable() {
			return KindRetryable
		}
		return KindTerminal
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindRetryable
	}

	// resty wraps transport errors; fall back to message inspection
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "timed out", "connection refused", "connection reset", "no such host", "eof"} {
		if strings.Contains(msg, marker) {
			return KindRetryable
		}
	}

	return KindTerminal
}
