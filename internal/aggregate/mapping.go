package aggregate

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/city-synergy/internal/fetcher"
)

// Mapping names the columns a source's records are read from. Each entry in
// CityColumns and FallbackColumns may list alternative header spellings
// separated by "|", e.g. "city_b|City B".
type Mapping struct {
	KeyColumn       string
	CityColumns     []string
	FallbackColumns []string
}

// FromTable extracts records from a decoded source table. A configured column
// missing from the header is an error; an empty cell is not.
func FromTable(t *fetcher.Table, m Mapping) ([]Record, error) {
	if len(m.CityColumns) == 0 && len(m.FallbackColumns) == 0 {
		return nil, eris.New("aggregate: no city columns configured")
	}

	keyIdx := -1
	if m.KeyColumn != "" {
		keyIdx = t.Index(splitAlternatives(m.KeyColumn)...)
		if keyIdx < 0 {
			return nil, eris.Errorf("aggregate: key column %q not found", m.KeyColumn)
		}
	}

	var locIdx []int
	for _, col := range append(append([]string(nil), m.CityColumns...), m.FallbackColumns...) {
		idx := t.Index(splitAlternatives(col)...)
		if idx < 0 {
			return nil, eris.Errorf("aggregate: city column %q not found", col)
		}
		locIdx = append(locIdx, idx)
	}

	records := make([]Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := Record{Key: fetcher.Cell(row, keyIdx), Locations: make([]string, len(locIdx))}
		for i, idx := range locIdx {
			rec.Locations[i] = fetcher.Cell(row, idx)
		}
		records = append(records, rec)
	}
	return records, nil
}

func splitAlternatives(col string) []string {
	return strings.Split(col, "|")
}
