package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUnknownKey(t *testing.T) {
	s := NewStore()
	_, ok := s.Get("local/llama3")
	assert.False(t, ok)
}

func TestMarkSuccess(t *testing.T) {
	s := NewStore()
	s.MarkSuccess("a", 120)

	h, ok := s.Get("a")
	require.True(t, ok)
	assert.True(t, h.Available)
	assert.Equal(t, 120.0, h.ResponseTimeMs)
	assert.Equal(t, 0.0, h.ErrorRate)
	assert.False(t, h.LastChecked.IsZero())
	assert.Empty(t, h.LastError)
}

func TestMarkFailure(t *testing.T) {
	s := NewStore()
	s.MarkFailure("a", 0, errors.New("connection refused"))

	h, ok := s.Get("a")
	require.True(t, ok)
	assert.False(t, h.Available)
	assert.InDelta(t, 0.5, h.ErrorRate, 1e-9)
	assert.Equal(t, "connection refused", h.LastError)
}

func TestErrorRateDecaysTowardBounds(t *testing.T) {
	s := NewStore()

	// Repeated failures converge toward 1 without exceeding it.
	for i := 0; i < 10; i++ {
		s.MarkFailure("a", 0, errors.New("boom"))
	}
	h, _ := s.Get("a")
	assert.LessOrEqual(t, h.ErrorRate, 1.0)
	assert.Greater(t, h.ErrorRate, 0.99)

	// A success halves the rate and restores availability.
	s.MarkSuccess("a", 50)
	h, _ = s.Get("a")
	assert.True(t, h.Available)
	assert.InDelta(t, h.ErrorRate*2, 1.0, 0.02)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.MarkSuccess("a", 10)

	snap := s.Snapshot()
	snap["a"] = snap["b"]

	h, ok := s.Get("a")
	require.True(t, ok)
	assert.True(t, h.Available)
}
