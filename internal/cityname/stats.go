package cityname

import (
	"math"
	"sort"
)

// CityFrequency is a normalized city and how many inputs resolved to it.
type CityFrequency struct {
	City  string `json:"city"`
	Count int    `json:"count"`
}

// Stats summarizes a batch normalization.
type Stats struct {
	TotalOriginal    int             `json:"totalOriginal"`
	UniqueOriginal   int             `json:"uniqueOriginal"`
	TotalNormalized  int             `json:"totalNormalized"`
	UniqueNormalized int             `json:"uniqueNormalized"`
	EmptyResults     int             `json:"emptyResults"`
	CompressionRatio float64         `json:"compressionRatio"`
	ByMethod         map[Method]int  `json:"byMethod"`
	LowConfidence    int             `json:"lowConfidence"`
	TopCities        []CityFrequency `json:"topCities"`
}

// Summarize resolves every input and reports how much the set collapsed.
// CompressionRatio is the percentage of unique inputs eliminated by
// normalization. At most top cities are listed; top <= 0 lists all.
func (r *Resolver) Summarize(inputs []string, top int) Stats {
	st := Stats{ByMethod: make(map[Method]int)}
	originals := make(map[string]bool)
	counts := make(map[string]int)
	cache := make(map[string]Resolution)

	for _, in := range inputs {
		st.TotalOriginal++
		originals[in] = true

		res, ok := cache[in]
		if !ok {
			res = r.Resolve(in)
			cache[in] = res
		}
		st.ByMethod[res.Method]++
		if res.NeedsReview() {
			st.LowConfidence++
		}
		if !res.Resolved() {
			st.EmptyResults++
			continue
		}
		st.TotalNormalized++
		counts[res.City]++
	}

	st.UniqueOriginal = len(originals)
	st.UniqueNormalized = len(counts)
	if st.UniqueOriginal > 0 {
		ratio := float64(st.UniqueOriginal-st.UniqueNormalized) / float64(st.UniqueOriginal) * 100
		st.CompressionRatio = math.Round(ratio*100) / 100
	}

	st.TopCities = make([]CityFrequency, 0, len(counts))
	for city, n := range counts {
		st.TopCities = append(st.TopCities, CityFrequency{City: city, Count: n})
	}
	sort.Slice(st.TopCities, func(i, j int) bool {
		a, b := st.TopCities[i], st.TopCities[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.City < b.City
	})
	if top > 0 && len(st.TopCities) > top {
		st.TopCities = st.TopCities[:top]
	}
	return st
}
