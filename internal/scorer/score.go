// Package scorer turns per-source city top lists into affinity, synergy and
// total scores. Every function is pure: weights come in through
// config.ScoringConfig and nothing is cached between calls.
package scorer

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/city-synergy/internal/aggregate"
)

// Component is one source's normalized contribution to a city score.
type Component struct {
	Source string
	Score  float64
}

// CityScore is a city's composite score. Components follow the order of the
// configured weights. Rank is 0 for stages that do not rank.
type CityScore struct {
	City       string
	Components []Component
	Score      float64
	Rank       int
}

// Component returns the named source's score, or 0.
func (c CityScore) Component(source string) float64 {
	for _, comp := range c.Components {
		if strings.EqualFold(comp.Source, source) {
			return comp.Score
		}
	}
	return 0
}

// Lists maps a source name to its top list.
type Lists map[string][]aggregate.CityCount

// Get returns the list for source, matching the name case-insensitively.
func (l Lists) Get(source string) ([]aggregate.CityCount, error) {
	if list, ok := l[source]; ok {
		return list, nil
	}
	for name, list := range l {
		if strings.EqualFold(name, source) {
			return list, nil
		}
	}
	return nil, eris.Errorf("scorer: no top list for source %q", source)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// sortScores orders by score descending, then city ascending.
func sortScores(scores []CityScore) {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].City < scores[j].City
	})
}

func assignRanks(scores []CityScore) {
	for i := range scores {
		scores[i].Rank = i + 1
	}
}
