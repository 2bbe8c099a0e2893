package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/city-synergy/internal/cityname"
	"github.com/sells-group/city-synergy/internal/fetcher"
)

func newTestResolver(t *testing.T) *cityname.Resolver {
	t.Helper()
	r, err := cityname.NewDefault()
	require.NoError(t, err)
	return r
}

func rec(key string, locs ...string) Record {
	return Record{Key: key, Locations: locs}
}

func TestAggregate_DedupSameKeyAndCity(t *testing.T) {
	r := newTestResolver(t)

	res := Aggregate("RFQ", []Record{rec("Q1", "Tokyo"), rec("Q1", "Tokyo")}, r, Options{Limit: 100, Dedup: true})

	assert.Equal(t, []CityCount{{City: "TOKYO", Count: 1}}, res.Counts)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 1, res.Counted)
}

func TestAggregate_DedupByNormalizedCity(t *testing.T) {
	r := newTestResolver(t)

	records := []Record{
		rec("Q1", "Tokyo"),
		rec("Q1", "東京都"),
		rec("Q1", "Osaka"),
		rec("Q2", "tokyo"),
		rec("", "Tokyo"),
	}
	res := Aggregate("RFQ", records, r, Options{Limit: 100, Dedup: true})

	assert.Equal(t, []CityCount{{City: "TOKYO", Count: 2}, {City: "OSAKA", Count: 1}}, res.Counts)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 1, res.MissingKey)
	assert.Equal(t, 5, res.Rows)
}

func TestAggregate_NoKeyCountsEveryRow(t *testing.T) {
	r := newTestResolver(t)

	records := []Record{rec("", "Seoul"), rec("", "서울특별시"), rec("X", "Seoul"), rec("X", "Seoul")}
	res := Aggregate("KOTRA", records, r, Options{Limit: 40})

	assert.Equal(t, []CityCount{{City: "SEOUL", Count: 4}}, res.Counts)
	assert.Zero(t, res.Duplicates)
}

func TestAggregate_UnresolvedExcluded(t *testing.T) {
	r := newTestResolver(t)

	records := []Record{rec("Q1", "  "), rec("Q2", "12345"), rec("Q3", "", ""), rec("Q4", "Dubai")}
	res := Aggregate("SOF", records, r, Options{Dedup: true})

	assert.Equal(t, []CityCount{{City: "DUBAI", Count: 1}}, res.Counts)
	assert.Equal(t, 3, res.Unresolved)
}

func TestAggregate_FallbackLocation(t *testing.T) {
	r := newTestResolver(t)

	records := []Record{
		rec("Q1", "", "No. 88 Century Avenue, Pudong New Area, Shanghai 200120, China"),
		rec("Q2", "12345", "Hanauer Landstraße 302, 60314 Frankfurt am Main, Germany"),
	}
	res := Aggregate("RFQ", records, r, Options{Dedup: true})

	assert.Equal(t, []CityCount{{City: "FRANKFURT", Count: 1}, {City: "SHANGHAI", Count: 1}}, res.Counts)
}

func TestAggregate_TieBreakAndTopN(t *testing.T) {
	r := newTestResolver(t)

	var records []Record
	for _, c := range []string{"Seoul", "Busan", "Busan", "Osaka", "Dubai", "Dubai", "Hanoi"} {
		records = append(records, rec("", c))
	}
	res := Aggregate("VPN", records, r, Options{Limit: 3})

	assert.Equal(t, "VPN", res.Top.Source)
	assert.Equal(t, 3, res.Top.Limit)
	assert.Equal(t, []CityCount{
		{City: "BUSAN", Count: 2},
		{City: "DUBAI", Count: 2},
		{City: "HANOI", Count: 1},
	}, res.Top.Cities)
	assert.Len(t, res.Counts, 5)
}

func TestAggregate_ReviewLowConfidence(t *testing.T) {
	r := newTestResolver(t)

	records := []Record{
		rec("Q1", "Hauptstrasse 5, Oberursel, Germany"),
		rec("Q2", "Hauptstrasse 5, Oberursel, Germany"),
		rec("Q3", "Tokyo"),
	}
	res := Aggregate("RFQ", records, r, Options{Dedup: true})

	require.Len(t, res.Review, 1)
	assert.Equal(t, ReviewItem{
		Source: "RFQ",
		Key:    "Q1",
		Input:  "Hauptstrasse 5, Oberursel, Germany",
		City:   "Oberursel",
		Method: cityname.MethodCountryContext,
	}, res.Review[0])
	assert.Equal(t, []CityCount{{City: "OBERURSEL", Count: 2}, {City: "TOKYO", Count: 1}}, res.Counts)
}

func TestAggregate_Deterministic(t *testing.T) {
	r := newTestResolver(t)

	records := []Record{rec("", "Busan"), rec("", "Seoul"), rec("", "Osaka"), rec("", "Hanoi")}
	first := Aggregate("VPN", records, r, Options{Limit: 40})
	for range 5 {
		assert.Equal(t, first, Aggregate("VPN", records, r, Options{Limit: 40}))
	}
	assert.Equal(t, []string{"BUSAN", "HANOI", "OSAKA", "SEOUL"}, cities(first.Counts))
}

func cities(counts []CityCount) []string {
	out := make([]string, len(counts))
	for i, c := range counts {
		out[i] = c.City
	}
	return out
}

func TestTop(t *testing.T) {
	list := []CityCount{{"A", 3}, {"B", 2}, {"C", 1}}
	assert.Equal(t, list[:2], Top(list, 2))
	assert.Equal(t, list, Top(list, 0))
	assert.Equal(t, list, Top(list, 10))
}

func TestFromTable(t *testing.T) {
	table := &fetcher.Table{
		Header: []string{"Quote No", "City B", "Address"},
		Rows: [][]string{
			{"Q1", "Tokyo", ""},
			{"Q2", "", "Seoul, South Korea"},
			{"Q3"},
		},
	}

	records, err := FromTable(table, Mapping{
		KeyColumn:       "Quote No",
		CityColumns:     []string{"city_b|City B"},
		FallbackColumns: []string{"Address"},
	})
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{Key: "Q1", Locations: []string{"Tokyo", ""}},
		{Key: "Q2", Locations: []string{"", "Seoul, South Korea"}},
		{Key: "Q3", Locations: []string{"", ""}},
	}, records)
}

func TestFromTable_Errors(t *testing.T) {
	table := &fetcher.Table{Header: []string{"city"}}

	tests := []struct {
		name    string
		mapping Mapping
		want    string
	}{
		{"no columns", Mapping{}, "no city columns"},
		{"missing key", Mapping{KeyColumn: "uuid", CityColumns: []string{"city"}}, `key column "uuid" not found`},
		{"missing city", Mapping{CityColumns: []string{"city_a"}}, `city column "city_a" not found`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromTable(table, tt.mapping)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
