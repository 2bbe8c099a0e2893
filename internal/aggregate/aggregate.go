// Package aggregate turns raw source rows into per-city counts and ranked
// top-N lists.
package aggregate

import (
	"sort"
	"strings"

	"github.com/sells-group/city-synergy/internal/cityname"
)

// Record is one raw source row. Locations holds free-text location fields in
// priority order; the first one that resolves names the row's city.
type Record struct {
	Key       string
	Locations []string
}

// CityCount is the number of distinct transactions touching a city.
type CityCount struct {
	City  string `json:"city"`
	Count int    `json:"count"`
}

// TopList is a source's counts truncated to its N highest entries.
type TopList struct {
	Source string
	Limit  int
	Cities []CityCount
}

// Options controls one aggregation.
type Options struct {
	// Limit is N for the top list; <= 0 keeps every city.
	Limit int
	// Dedup counts each (key, city) pair once and skips rows without a key.
	Dedup bool
}

// ReviewItem is a low-confidence resolution kept for manual review.
type ReviewItem struct {
	Source string          `json:"source"`
	Key    string          `json:"key,omitempty"`
	Input  string          `json:"input"`
	City   string          `json:"city"`
	Method cityname.Method `json:"method"`
}

// Result is the outcome of aggregating one source.
type Result struct {
	Source     string
	Counts     []CityCount // every city, sorted
	Top        TopList
	Rows       int
	Counted    int
	Duplicates int
	MissingKey int
	Unresolved int
	Review     []ReviewItem
}

// Aggregate resolves every record's city with r and counts them. Cities are
// keyed by their upper-cased canonical name. Rows that resolve to nothing are
// excluded rather than counted as their own category.
func Aggregate(source string, records []Record, r *cityname.Resolver, opts Options) Result {
	res := Result{Source: source, Rows: len(records)}
	counts := make(map[string]int)
	seen := make(map[[2]string]bool)
	cache := make(map[string]cityname.Resolution)
	reviewed := make(map[string]bool)

	resolve := func(s string) cityname.Resolution {
		if v, ok := cache[s]; ok {
			return v
		}
		v := r.Resolve(s)
		cache[s] = v
		return v
	}

	for _, rec := range records {
		key := strings.TrimSpace(rec.Key)
		if opts.Dedup && key == "" {
			res.MissingKey++
			continue
		}

		var hit cityname.Resolution
		for _, loc := range rec.Locations {
			if strings.TrimSpace(loc) == "" {
				continue
			}
			if hit = resolve(loc); hit.Resolved() {
				break
			}
		}
		if !hit.Resolved() {
			res.Unresolved++
			continue
		}

		city := strings.ToUpper(hit.City)
		if hit.NeedsReview() && !reviewed[hit.Input] {
			reviewed[hit.Input] = true
			res.Review = append(res.Review, ReviewItem{
				Source: source,
				Key:    key,
				Input:  hit.Input,
				City:   hit.City,
				Method: hit.Method,
			})
		}

		if opts.Dedup {
			pair := [2]string{key, city}
			if seen[pair] {
				res.Duplicates++
				continue
			}
			seen[pair] = true
		}
		counts[city]++
		res.Counted++
	}

	res.Counts = SortCounts(counts)
	res.Top = TopList{Source: source, Limit: opts.Limit, Cities: Top(res.Counts, opts.Limit)}
	return res
}

// SortCounts orders a count map by count descending, then city ascending.
func SortCounts(counts map[string]int) []CityCount {
	out := make([]CityCount, 0, len(counts))
	for city, n := range counts {
		out = append(out, CityCount{City: city, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].City < out[j].City
	})
	return out
}

// Top returns the first n entries of a sorted list; n <= 0 returns all.
func Top(sorted []CityCount, n int) []CityCount {
	if n <= 0 || n >= len(sorted) {
		return sorted
	}
	return sorted[:n]
}
