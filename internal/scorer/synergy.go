package scorer

import (
	"strings"

	"github.com/sells-group/city-synergy/internal/config"
)

// Synergy scores every city in the groups or in any weighted list by the
// weighted sum of its per-source rank scores. Components and the sum are
// rounded to 4 decimals. The result is sorted by score descending, then
// city, and is not ranked.
func Synergy(lists Lists, groups []Group, cfg config.SynergyConfig) ([]CityScore, error) {
	if err := ValidateWeights("synergy", cfg.Components); err != nil {
		return nil, err
	}
	maxRank := cfg.MaxRank
	if maxRank < 1 {
		maxRank = 100
	}

	rankMaps := make([]map[string]int, len(cfg.Components))
	universe := make(map[string]bool)
	for _, city := range GroupCities(groups) {
		if c := strings.ToUpper(strings.TrimSpace(city)); c != "" {
			universe[c] = true
		}
	}
	for i, w := range cfg.Components {
		list, err := lists.Get(w.Source)
		if err != nil {
			return nil, err
		}
		rankMaps[i] = RankMap(list)
		for _, c := range list {
			universe[c.City] = true
		}
	}

	out := make([]CityScore, 0, len(universe))
	for city := range universe {
		comps := make([]Component, len(cfg.Components))
		var sum float64
		for i, w := range cfg.Components {
			v := round4(RankScore(rankMaps[i][city], maxRank))
			comps[i] = Component{Source: w.Source, Score: v}
			sum += w.Weight * v
		}
		out = append(out, CityScore{City: city, Components: comps, Score: round4(sum)})
	}

	sortScores(out)
	return out, nil
}
