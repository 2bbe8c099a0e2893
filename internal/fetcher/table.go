package fetcher

import "strings"

// Table is a decoded source: one header row and the data rows under it.
// Rows may be shorter than the header.
type Table struct {
	Header []string
	Rows   [][]string
}

// Index returns the position of the first header matching any of names,
// ignoring case and surrounding space, or -1.
func (t *Table) Index(names ...string) int {
	for _, name := range names {
		want := strings.TrimSpace(name)
		for i, h := range t.Header {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				return i
			}
		}
	}
	return -1
}

// Cell returns the trimmed cell at column idx, or "" when out of range.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
