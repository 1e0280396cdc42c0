package router

import (
	"sort"

	"github.com/mindnote/mindroute/internal/models"
	"github.com/mindnote/mindroute/internal/perf"
)

// Scoring weights for the tie-break terms. Quality scores live on a 1-10
// scale, so the quality term is normalized into the same magnitude as the
// others.
const (
	costWeight    = 1.0
	speedWeight   = 1.0
	qualityWeight = 0.1
)

// Rank orders candidates by configured priority ascending; ties are broken
// by a weighted preference score, lower first. The sort is stable, so full
// ties keep registration order. Given identical descriptors, health,
// history, and preferences the order is deterministic.
func Rank(candidates []models.ServiceDescriptor, prefs models.Preferences, history *perf.Tracker) []models.ServiceDescriptor {
	ranked := make([]models.ServiceDescriptor, len(candidates))
	copy(ranked, candidates)

	scores := make(map[string]float64, len(ranked))
	for _, d := range ranked {
		scores[d.Key()] = score(d, prefs, history)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Priority != ranked[j].Priority {
			return ranked[i].Priority < ranked[j].Priority
		}
		return scores[ranked[i].Key()] < scores[ranked[j].Key()]
	})
	return ranked
}

// score combines the preference terms; lower is better, consistent with the
// priority key. The cost term is asymmetric on purpose: a "high" cost
// preference treats price as a quality signal and rewards expensive
// backends instead of cheap ones.
func score(d models.ServiceDescriptor, prefs models.Preferences, history *perf.Tracker) float64 {
	var s float64

	switch prefs.Cost {
	case models.CostPreferenceLow:
		s += d.CostPerToken * costWeight
	case models.CostPreferenceHigh:
		s -= d.CostPerToken * costWeight
	}

	if prefs.Speed == models.SpeedPreferenceFast && d.AvgResponseTimeMs > 0 {
		s -= speedWeight / d.AvgResponseTimeMs
	}

	if prefs.Quality == models.QualityPreferenceExcellent {
		s -= float64(d.QualityScore) * qualityWeight
	}

	if history != nil {
		if avg := history.Average(d.Key()); avg > 0 {
			s -= 1 / avg
		}
	}

	return s
}
