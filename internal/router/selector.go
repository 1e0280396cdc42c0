// Package router implements candidate selection, preference-weighted
// ranking, and the fallback coordinator that walks the ranked list until a
// backend succeeds.
package router

import (
	"github.com/mindnote/mindroute/internal/health"
	"github.com/mindnote/mindroute/internal/models"
)

// SelectCandidates filters the descriptor list down to backends that are
// enabled, healthy, and satisfy the request's constraints. Registration
// order is preserved. A backend never probed yet counts as available.
func SelectCandidates(req models.Request, descs []models.ServiceDescriptor, healthStore *health.Store) []models.ServiceDescriptor {
	var allowed map[string]bool
	if req.Constraints != nil && len(req.Constraints.AllowedBackends) > 0 {
		allowed = make(map[string]bool, len(req.Constraints.AllowedBackends))
		for _, key := range req.Constraints.AllowedBackends {
			allowed[key] = true
		}
	}

	var out []models.ServiceDescriptor
	for _, d := range descs {
		if !d.Enabled {
			continue
		}
		if h, probed := healthStore.Get(d.Key()); probed && !h.Available {
			continue
		}
		if req.Constraints != nil {
			c := req.Constraints
			if c.MaxResponseTimeMs > 0 && d.AvgResponseTimeMs > c.MaxResponseTimeMs {
				continue
			}
			if c.MaxCostPerToken > 0 && d.CostPerToken > c.MaxCostPerToken {
				continue
			}
			if allowed != nil && !allowed[d.Key()] {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}
