// Package ratelimit implements pre-call admission control: a sliding
// one-minute window over request count and token volume, rejecting before
// any network call is made.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Span is the sliding window length.
const Span = time.Minute

type event struct {
	at       time.Time
	requests int
	tokens   int
}

// Window tracks recent request and token volume for one backend family.
// A zero ceiling disables that dimension.
type Window struct {
	mu          sync.Mutex
	maxRequests int
	maxTokens   int
	events      []event
	now         func() time.Time
}

// NewWindow creates a window with the given per-minute ceilings.
func NewWindow(maxRequests, maxTokens int) *Window {
	return &Window{
		maxRequests: maxRequests,
		maxTokens:   maxTokens,
		now:         time.Now,
	}
}

// Admit checks both ceilings against the last minute of traffic and, when
// allowed, records the request with its estimated token volume. The error
// describes which ceiling would be exceeded.
func (w *Window) Admit(estimatedTokens int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)

	requests, tokens := 0, 0
	for _, e := range w.events {
		requests += e.requests
		tokens += e.tokens
	}

	if w.maxRequests > 0 && requests+1 > w.maxRequests {
		return fmt.Errorf("request ceiling of %d per minute reached", w.maxRequests)
	}
	if w.maxTokens > 0 && tokens+estimatedTokens > w.maxTokens {
		return fmt.Errorf("token ceiling of %d per minute reached", w.maxTokens)
	}

	w.events = append(w.events, event{at: now, requests: 1, tokens: estimatedTokens})
	return nil
}

// Observe records extra token volume discovered after a call completed,
// when actual usage exceeded the admission estimate. Best-effort
// housekeeping; it never rejects.
func (w *Window) Observe(extraTokens int) {
	if extraTokens <= 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)
	w.events = append(w.events, event{at: now, tokens: extraTokens})
}

// Usage returns the request count and token volume inside the current
// window.
func (w *Window) Usage() (requests, tokens int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(w.now())
	for _, e := range w.events {
		requests += e.requests
		tokens += e.tokens
	}
	return requests, tokens
}

// prune drops events older than the window span. Caller holds the lock.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-Span)
	i := 0
	for i < len(w.events) && w.events[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.events = append(w.events[:0], w.events[i:]...)
	}
}
