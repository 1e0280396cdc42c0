// Package health monitors backend availability: a per-key health store read
// by the request path and a cancellable background monitor that probes each
// backend independently of live traffic.
package health

import (
	"sync"
	"time"

	"github.com/mindnote/mindroute/internal/models"
)

// errorRateDecay controls how fast the observed error rate reacts to new
// outcomes: a success halves it, a failure moves it halfway toward 1.
const errorRateDecay = 0.5

// Store holds the latest ServiceHealth per backend key. Updates are atomic
// per key; the request path only ever reads the cached snapshot.
type Store struct {
	mu      sync.RWMutex
	entries map[string]models.ServiceHealth
	now     func() time.Time
}

// NewStore creates an empty health store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]models.ServiceHealth),
		now:     time.Now,
	}
}

// Get returns the latest health entry for a key. A backend with no entry
// has not been probed yet and is treated as available by the selector.
func (s *Store) Get(key string) (models.ServiceHealth, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.entries[key]
	return h, ok
}

// Snapshot returns a copy of all entries.
func (s *Store) Snapshot() map[string]models.ServiceHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.ServiceHealth, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// MarkSuccess records a successful call or probe outcome.
func (s *Store) MarkSuccess(key string, responseTimeMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.entries[key]
	s.entries[key] = models.ServiceHealth{
		Available:      true,
		ResponseTimeMs: responseTimeMs,
		ErrorRate:      prev.ErrorRate * errorRateDecay,
		LastChecked:    s.now(),
	}
}

// MarkFailure records a failed call or probe outcome. The backend becomes
// unavailable and its error rate is elevated.
func (s *Store) MarkFailure(key string, responseTimeMs float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.entries[key]
	rate := prev.ErrorRate*errorRateDecay + errorRateDecay
	if rate > 1 {
		rate = 1
	}
	h := models.ServiceHealth{
		Available:      false,
		ResponseTimeMs: responseTimeMs,
		ErrorRate:      rate,
		LastChecked:    s.now(),
	}
	if err != nil {
		h.LastError = err.Error()
	}
	s.entries[key] = h
}
