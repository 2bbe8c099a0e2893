package scorer

import (
	"sort"

	"github.com/sells-group/city-synergy/internal/config"
)

// Blend is the all-source view: the weighted min-max score of every city in
// any of the weighted lists, zero scores included, ranked from 1.
func Blend(lists Lists, weights []config.WeightConfig) ([]CityScore, error) {
	if err := ValidateWeights("blend", weights); err != nil {
		return nil, err
	}
	return weightedMinMax(lists, weights, true)
}

// RegionScore is the sum of the blend scores of one region's cities.
type RegionScore struct {
	Region     string
	Cities     int
	Components []Component
	Score      float64
	Rank       int
}

// BlendByRegion sums city blend scores per region(city). A city whose region
// is "" stands as its own region under the city name. Sums are rounded to 4
// decimals; regions are ordered like city scores and ranked from 1.
func BlendByRegion(scores []CityScore, region func(city string) string) []RegionScore {
	byRegion := make(map[string]*RegionScore)
	for _, s := range scores {
		name := region(s.City)
		if name == "" {
			name = s.City
		}
		r, ok := byRegion[name]
		if !ok {
			r = &RegionScore{Region: name, Components: make([]Component, len(s.Components))}
			for i, c := range s.Components {
				r.Components[i].Source = c.Source
			}
			byRegion[name] = r
		}
		r.Cities++
		for i, c := range s.Components {
			if i < len(r.Components) {
				r.Components[i].Score += c.Score
			}
		}
		r.Score += s.Score
	}

	out := make([]RegionScore, 0, len(byRegion))
	for _, r := range byRegion {
		for i := range r.Components {
			r.Components[i].Score = round4(r.Components[i].Score)
		}
		r.Score = round4(r.Score)
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Region < out[j].Region
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
