package aggregate

import (
	"math"
	"sort"

	"github.com/sells-group/city-synergy/internal/gazetteer"
)

// UnknownCountry groups cities the gazetteer has no country for.
const UnknownCountry = "Other"

// CountrySummary rolls a source's city counts up to country level.
type CountrySummary struct {
	Country   string   `json:"country"`
	Cities    []string `json:"cities"`
	Total     int      `json:"total"`
	Average   float64  `json:"average"`
	CityCount int      `json:"cityCount"`
}

// SummarizeCountries groups counts by country, sorted by total descending
// then country name. Cities keep the order of counts.
func SummarizeCountries(counts []CityCount, g *gazetteer.Gazetteer) []CountrySummary {
	byCountry := make(map[string]*CountrySummary)
	for _, c := range counts {
		country := g.CountryOf(c.City)
		if country == "" {
			country = UnknownCountry
		}
		s, ok := byCountry[country]
		if !ok {
			s = &CountrySummary{Country: country}
			byCountry[country] = s
		}
		s.Cities = append(s.Cities, c.City)
		s.Total += c.Count
		s.CityCount++
	}

	out := make([]CountrySummary, 0, len(byCountry))
	for _, s := range byCountry {
		s.Average = math.Round(float64(s.Total)/float64(s.CityCount)*100) / 100
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Country < out[j].Country
	})
	return out
}

// UnknownContinent groups cities whose country has no continent.
const UnknownContinent = "Unknown"

// ContinentSummary rolls a source's city counts up to continent level.
type ContinentSummary struct {
	Continent string   `json:"continent"`
	Countries []string `json:"countries"`
	Cities    []string `json:"cities"`
	Total     int      `json:"total"`
	CityCount int      `json:"cityCount"`
}

// SummarizeContinents groups counts by continent, sorted like
// SummarizeCountries. Countries are listed once each, in order of first
// appearance.
func SummarizeContinents(counts []CityCount, g *gazetteer.Gazetteer) []ContinentSummary {
	byContinent := make(map[string]*ContinentSummary)
	seen := make(map[string]bool)
	for _, c := range counts {
		continent := g.ContinentOf(c.City)
		if continent == "" {
			continent = UnknownContinent
		}
		s, ok := byContinent[continent]
		if !ok {
			s = &ContinentSummary{Continent: continent, Countries: []string{}}
			byContinent[continent] = s
		}
		if country := g.CountryOf(c.City); country != "" && !seen[country] {
			seen[country] = true
			s.Countries = append(s.Countries, country)
		}
		s.Cities = append(s.Cities, c.City)
		s.Total += c.Count
		s.CityCount++
	}

	out := make([]ContinentSummary, 0, len(byContinent))
	for _, s := range byContinent {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Continent < out[j].Continent
	})
	return out
}
