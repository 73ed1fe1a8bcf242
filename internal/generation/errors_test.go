package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindTerminal},
		{"configuration error", NewConfigurationError("missing api key"), KindConfiguration},
		{"wrapped configuration error", fmt.Errorf("startup: %w", NewConfigurationError("bad model")), KindConfiguration},
		{"unauthorized", &APIError{StatusCode: 401, Message: "invalid key"}, KindConfiguration},
		{"forbidden", &APIError{StatusCode: 403, Message: "no access"}, KindConfiguration},
		{"rate limited", &APIError{StatusCode: 429, Message: "slow down"}, KindRetryable},
		{"request timeout status", &APIError{StatusCode: 408, Message: "timeout"}, KindRetryable},
		{"server error", &APIError{StatusCode: 503, Message: "overloaded"}, KindRetryable},
		{"bad request", &APIError{StatusCode: 400, Message: "invalid payload"}, KindTerminal},
		{"unprocessable", &APIError{StatusCode: 422, Message: "rejected"}, KindTerminal},
		{"deadline exceeded", context.DeadlineExceeded, KindRetryable},
		{"wrapped deadline", fmt.Errorf("generate: %w", context.DeadlineExceeded), KindRetryable},
		{"net error", &net.DNSError{Err: "lookup failed", IsTimeout: false}, KindRetryable},
		{"connection refused message", errors.New("dial tcp: connection refused"), KindRetryable},
		{"unexpected eof message", errors.New("unexpected EOF"), KindRetryable},
		{"plain error", errors.New("malformed model output"), KindTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestAPIError_Retryable(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: 429}).Retryable())
	assert.True(t, (&APIError{StatusCode: 500}).Retryable())
	assert.True(t, (&APIError{StatusCode: 408}).Retryable())
	assert.False(t, (&APIError{StatusCode: 400}).Retryable())
	assert.False(t, (&APIError{StatusCode: 404}).Retryable())
}

func TestConfigurationError_Message(t *testing.T) {
	err := NewConfigurationError("template %s not found", "tpl-1")
	assert.Equal(t, "configuration error: template tpl-1 not found", err.Error())
}
