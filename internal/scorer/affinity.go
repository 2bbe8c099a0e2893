package scorer

import (
	"github.com/sells-group/city-synergy/internal/aggregate"
	"github.com/sells-group/city-synergy/internal/config"
)

// MinMax scales each city's count in list to [0, 1] using the list's own
// minimum and maximum. When every count is equal all cities score 0.
func MinMax(list []aggregate.CityCount) map[string]float64 {
	out := make(map[string]float64, len(list))
	if len(list) == 0 {
		return out
	}

	lo, hi := list[0].Count, list[0].Count
	for _, c := range list[1:] {
		lo = min(lo, c.Count)
		hi = max(hi, c.Count)
	}

	for _, c := range list {
		if hi == lo {
			out[c.City] = 0
			continue
		}
		out[c.City] = float64(c.Count-lo) / float64(hi-lo)
	}
	return out
}

// Affinity computes the weighted min-max score of every city appearing in
// any weighted list. Cities scoring 0 are dropped; the rest are ranked from 1.
// Scores are rounded to 4 decimals, components are not.
func Affinity(lists Lists, weights []config.WeightConfig) ([]CityScore, error) {
	if err := ValidateWeights("affinity", weights); err != nil {
		return nil, err
	}
	return weightedMinMax(lists, weights, false)
}

func weightedMinMax(lists Lists, weights []config.WeightConfig, keepZero bool) ([]CityScore, error) {
	norms := make([]map[string]float64, len(weights))
	universe := make(map[string]bool)
	for i, w := range weights {
		list, err := lists.Get(w.Source)
		if err != nil {
			return nil, err
		}
		norms[i] = MinMax(list)
		for _, c := range list {
			universe[c.City] = true
		}
	}

	out := make([]CityScore, 0, len(universe))
	for city := range universe {
		comps := make([]Component, len(weights))
		var sum float64
		for i, w := range weights {
			v := norms[i][city]
			comps[i] = Component{Source: w.Source, Score: v}
			sum += w.Weight * v
		}
		if sum <= 0 && !keepZero {
			continue
		}
		out = append(out, CityScore{City: city, Components: comps, Score: round4(sum)})
	}

	sortScores(out)
	assignRanks(out)
	return out, nil
}
