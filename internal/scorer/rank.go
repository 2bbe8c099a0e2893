package scorer

import (
	"sort"

	"github.com/sells-group/city-synergy/internal/aggregate"
)

// RankMap assigns competition ranks ("1224") by count: cities with equal
// counts share a rank and the next distinct count skips ahead. The list is
// ordered by count descending, then city, before ranking; a city listed
// twice keeps its first rank.
func RankMap(list []aggregate.CityCount) map[string]int {
	sorted := append([]aggregate.CityCount(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Count != sorted[j].Count {
			return sorted[i].Count > sorted[j].Count
		}
		return sorted[i].City < sorted[j].City
	})

	ranks := make(map[string]int, len(sorted))
	rank := 0
	for i, c := range sorted {
		if i == 0 || c.Count != sorted[i-1].Count {
			rank = i + 1
		}
		if _, ok := ranks[c.City]; !ok {
			ranks[c.City] = rank
		}
	}
	return ranks
}

// RankScore maps rank 1..maxRank linearly onto 1..1/maxRank. A rank of 0
// (absent) or beyond maxRank scores 0.
func RankScore(rank, maxRank int) float64 {
	if rank < 1 || maxRank < 1 || rank > maxRank {
		return 0
	}
	return float64(maxRank-rank+1) / float64(maxRank)
}
