package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutingErrorIsMatchesByKind(t *testing.T) {
	err := NewBackendError("openai/gpt-4", "boom", 500, true, nil)

	assert.True(t, errors.Is(err, ErrBackend))
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.False(t, errors.Is(err, ErrQuotaExceeded))
}

func TestRoutingErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewBackendError("a", "call failed", 502, true, cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection reset")
	assert.Contains(t, err.Error(), "backend a")
}

func TestRoutingErrorThroughWrapping(t *testing.T) {
	err := fmt.Errorf("attempt 2: %w", NewTimeout("local/llama3", nil))

	assert.Equal(t, KindTimeout, KindOf(err))
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "server error is transient", err: NewBackendError("a", "boom", 503, true, nil), want: true},
		{name: "auth failure is permanent", err: NewBackendError("a", "bad key", 401, false, nil), want: false},
		{name: "rate limit is transient", err: NewRateLimited("a", "ceiling"), want: true},
		{name: "timeout is transient", err: NewTimeout("a", nil), want: true},
		{name: "quota halt is permanent", err: NewQuotaExceeded("over budget"), want: false},
		{name: "foreign errors treated transient", err: errors.New("conn refused"), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestNewAllProvidersFailedCarriesLastError(t *testing.T) {
	last := NewBackendError("local/llama3", "boom", 500, true, nil)
	err := NewAllProvidersFailed(3, last)

	require.Equal(t, KindAllProvidersFailed, KindOf(err))
	assert.Contains(t, err.Error(), "3 candidate backends")
	assert.True(t, errors.Is(err, ErrBackend))
}
