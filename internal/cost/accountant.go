// Package cost tracks cumulative per-backend spend and enforces the global
// budget ceiling. State is in-memory only; the reset operation is the only
// operator surface.
package cost

import (
	"sync"

	"go.uber.org/zap"
)

// Accountant holds monotonically non-decreasing spend counters per backend
// key. Counters reset only through Reset.
type Accountant struct {
	mu     sync.RWMutex
	totals map[string]float64
	logger *zap.Logger
}

// NewAccountant creates an empty ledger.
func NewAccountant(logger *zap.Logger) *Accountant {
	return &Accountant{
		totals: make(map[string]float64),
		logger: logger,
	}
}

// RecordCost adds amount to the backend's counter. Negative amounts are
// rejected so the ledger stays monotonic.
func (a *Accountant) RecordCost(key string, amount float64) {
	if amount < 0 {
		a.logger.Warn("ignoring negative cost amount",
			zap.String("backend", key),
			zap.Float64("amount", amount))
		return
	}

	a.mu.Lock()
	a.totals[key] += amount
	a.mu.Unlock()
}

// Total returns the cumulative spend for one backend.
func (a *Accountant) Total(key string) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.totals[key]
}

// TotalAll returns the cumulative spend across all backends.
func (a *Accountant) TotalAll() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var sum float64
	for _, t := range a.totals {
		sum += t
	}
	return sum
}

// Snapshot returns a copy of the per-backend counters.
func (a *Accountant) Snapshot() map[string]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]float64, len(a.totals))
	for k, v := range a.totals {
		out[k] = v
	}
	return out
}

// Reset clears all counters. Explicit operator action only.
func (a *Accountant) Reset() {
	a.mu.Lock()
	a.totals = make(map[string]float64)
	a.mu.Unlock()

	a.logger.Info("cost counters reset")
}

// WithinBudget reports whether totalSoFar is still under the limit. A
// non-positive limit means no budget is configured.
func WithinBudget(totalSoFar, limit float64) bool {
	if limit <= 0 {
		return true
	}
	return totalSoFar < limit
}
