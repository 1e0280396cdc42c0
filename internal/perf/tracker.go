// Package perf keeps a bounded rolling history of observed latencies per
// backend, used to refine candidate ranking over time.
package perf

import (
	"sync"
)

// DefaultWindowSize caps the number of latency samples retained per backend.
const DefaultWindowSize = 50

// Tracker records latency samples in a fixed-size FIFO window per backend
// key. Append-and-evict is atomic per key.
type Tracker struct {
	mu      sync.RWMutex
	cap     int
	windows map[string][]float64
}

// NewTracker creates a tracker with the given window cap. A non-positive
// cap falls back to DefaultWindowSize.
func NewTracker(windowSize int) *Tracker {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Tracker{
		cap:     windowSize,
		windows: make(map[string][]float64),
	}
}

// RecordLatency appends a sample for the key, evicting the oldest sample
// once the window is full.
func (t *Tracker) RecordLatency(key string, ms float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.windows[key]
	window = append(window, ms)
	if len(window) > t.cap {
		window = window[len(window)-t.cap:]
	}
	t.windows[key] = window
}

// Average returns the arithmetic mean of the current window, or 0 when no
// samples have been recorded for the key.
func (t *Tracker) Average(key string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	window := t.windows[key]
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, s := range window {
		sum += s
	}
	return sum / float64(len(window))
}

// Count returns the number of samples currently held for the key.
func (t *Tracker) Count(key string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.windows[key])
}

// Summary is a read-only view of one backend's recent performance.
type Summary struct {
	Samples   int     `json:"samples"`
	AverageMs float64 `json:"average_ms"`
	LatestMs  float64 `json:"latest_ms"`
}

// Snapshot returns a summary per backend key for introspection.
func (t *Tracker) Snapshot() map[string]Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Summary, len(t.windows))
	for key, window := range t.windows {
		if len(window) == 0 {
			continue
		}
		var sum float64
		for _, s := range window {
			sum += s
		}
		out[key] = Summary{
			Samples:   len(window),
			AverageMs: sum / float64(len(window)),
			LatestMs:  window[len(window)-1],
		}
	}
	return out
}
