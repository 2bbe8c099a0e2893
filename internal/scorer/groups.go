package scorer

import (
	"math/bits"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/city-synergy/internal/aggregate"
)

// Group is a labeled set of cities sharing the same source membership.
type Group struct {
	Label  string   `json:"label"`
	Cities []string `json:"cities"`
}

// GroupCities returns the union of every group's cities.
func GroupCities(groups []Group) []string {
	seen := make(map[string]bool)
	var out []string
	for _, g := range groups {
		for _, c := range g.Cities {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// BuildGroups classifies cities by which of the source lists they appear in.
// Multi-source groups come first, widest membership first and then in
// source order; each holds cities found in exactly those sources. Single
// sources follow in source order. The focus source's exclusive group is cut
// to its exclusiveTop highest-count cities and keeps count order; every other
// group is sorted by name. Empty groups are kept so the file shape is stable.
func BuildGroups(sources []string, lists Lists, focus string, exclusiveTop int) ([]Group, error) {
	if len(sources) == 0 {
		return nil, eris.New("scorer: groups need at least one source")
	}
	if len(sources) > 16 {
		return nil, eris.Errorf("scorer: too many group sources (%d)", len(sources))
	}

	membership := make(map[string]uint32)
	focusIdx := -1
	for i, src := range sources {
		list, err := lists.Get(src)
		if err != nil {
			return nil, err
		}
		for _, c := range list {
			membership[c.City] |= 1 << i
		}
		if strings.EqualFold(src, focus) {
			focusIdx = i
		}
	}
	if focus != "" && focusIdx < 0 {
		return nil, eris.Errorf("scorer: focus source %q is not a group source", focus)
	}

	byMask := make(map[uint32][]string)
	for city, mask := range membership {
		byMask[mask] = append(byMask[mask], city)
	}

	n := len(sources)
	var groups []Group
	for _, mask := range multiSourceMasks(n) {
		groups = append(groups, Group{Label: maskLabel(sources, mask), Cities: sortedCities(byMask[mask])})
	}
	for i, src := range sources {
		mask := uint32(1) << i
		if i == focusIdx {
			list, _ := lists.Get(src)
			groups = append(groups, Group{
				Label:  src + " only (top " + strconv.Itoa(exclusiveTop) + ")",
				Cities: exclusiveTopCities(list, membership, mask, exclusiveTop),
			})
			continue
		}
		groups = append(groups, Group{Label: src + " only", Cities: sortedCities(byMask[mask])})
	}
	return groups, nil
}

// multiSourceMasks lists every membership mask covering two or more of n
// sources, by popcount descending then by lowest differing source first.
func multiSourceMasks(n int) []uint32 {
	var masks []uint32
	for m := uint32(1); m < 1<<n; m++ {
		if bits.OnesCount32(m) >= 2 {
			masks = append(masks, m)
		}
	}
	sort.Slice(masks, func(i, j int) bool {
		pi, pj := bits.OnesCount32(masks[i]), bits.OnesCount32(masks[j])
		if pi != pj {
			return pi > pj
		}
		return bits.Reverse32(masks[i]) > bits.Reverse32(masks[j])
	})
	return masks
}

func maskLabel(sources []string, mask uint32) string {
	var names []string
	for i, src := range sources {
		if mask&(1<<i) != 0 {
			names = append(names, src)
		}
	}
	return strings.Join(names, ", ")
}

func exclusiveTopCities(list []aggregate.CityCount, membership map[string]uint32, mask uint32, n int) []string {
	sorted := append([]aggregate.CityCount(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Count != sorted[j].Count {
			return sorted[i].Count > sorted[j].Count
		}
		return sorted[i].City < sorted[j].City
	})

	out := []string{}
	for _, c := range sorted {
		if len(out) >= n {
			break
		}
		if membership[c.City] == mask {
			out = append(out, c.City)
		}
	}
	return out
}

func sortedCities(cities []string) []string {
	out := append([]string{}, cities...)
	sort.Strings(out)
	return out
}
