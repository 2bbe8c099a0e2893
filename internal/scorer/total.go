package scorer

import (
	"sort"
	"strings"

	"github.com/sells-group/city-synergy/internal/config"
)

// TotalScore is a city's final blended score.
type TotalScore struct {
	City     string
	Affinity float64
	Synergy  float64
	Total    float64
	Rank     int
}

// Total blends affinity and synergy scores over the union of their cities.
// City names are compared upper-cased; a city missing from one stage gets 0
// for it. Results are sorted by total descending, then city, and ranked
// from 1.
func Total(affinity, synergy []CityScore, cfg config.TotalConfig) []TotalScore {
	aff := scoreMap(affinity)
	syn := scoreMap(synergy)

	cities := make(map[string]bool, len(aff)+len(syn))
	for c := range aff {
		cities[c] = true
	}
	for c := range syn {
		cities[c] = true
	}

	out := make([]TotalScore, 0, len(cities))
	for city := range cities {
		a, s := aff[city], syn[city]
		out = append(out, TotalScore{
			City:     city,
			Affinity: a,
			Synergy:  s,
			Total:    (a*cfg.AffinityWeight + s*cfg.SynergyWeight) * cfg.Scale,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].City < out[j].City
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// scoreMap keys scores by upper-cased city. The first entry for a city wins.
func scoreMap(scores []CityScore) map[string]float64 {
	m := make(map[string]float64, len(scores))
	for _, s := range scores {
		city := strings.ToUpper(strings.TrimSpace(s.City))
		if city == "" {
			continue
		}
		if _, ok := m[city]; !ok {
			m[city] = s.Score
		}
	}
	return m
}
