package scorer

import (
	"math"

	"github.com/sells-group/city-synergy/internal/aggregate"
)

// CityStat is one city's standardized count within its list.
type CityStat struct {
	City   string  `json:"city"`
	Count  int     `json:"count"`
	ZScore float64 `json:"zScore"`
	MinMax float64 `json:"minMax"`
}

// Summary describes the distribution of a top list's counts.
type Summary struct {
	N      int        `json:"n"`
	Mean   float64    `json:"mean"`
	StdDev float64    `json:"stdDev"`
	Min    int        `json:"min"`
	Max    int        `json:"max"`
	Cities []CityStat `json:"cities"`
}

// Describe computes mean, sample standard deviation and per-city z-score and
// min-max values for a list. Z-scores are 0 when the deviation is 0.
func Describe(list []aggregate.CityCount) Summary {
	s := Summary{N: len(list)}
	if len(list) == 0 {
		return s
	}

	s.Min, s.Max = list[0].Count, list[0].Count
	var sum float64
	for _, c := range list {
		sum += float64(c.Count)
		s.Min = min(s.Min, c.Count)
		s.Max = max(s.Max, c.Count)
	}
	s.Mean = sum / float64(len(list))

	if len(list) > 1 {
		var sq float64
		for _, c := range list {
			d := float64(c.Count) - s.Mean
			sq += d * d
		}
		s.StdDev = math.Sqrt(sq / float64(len(list)-1))
	}

	norms := MinMax(list)
	s.Cities = make([]CityStat, len(list))
	for i, c := range list {
		var z float64
		if s.StdDev > 0 {
			z = (float64(c.Count) - s.Mean) / s.StdDev
		}
		s.Cities[i] = CityStat{City: c.City, Count: c.Count, ZScore: z, MinMax: norms[c.City]}
	}
	return s
}
