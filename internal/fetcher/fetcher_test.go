package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"data/rfq.csv", FormatCSV},
		{"data/sof.JSON", FormatJSON},
		{"data/kotra.xlsx", FormatXLSX},
		{"data/unknown", FormatCSV},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.path))
		})
	}
}

func TestReadTable_LocalFormats(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "rfq.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Quote No,city_b\nQ1,Tokyo\n"), 0o644))
	table, err := ReadTable(context.Background(), nil, csvPath, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Quote No", "city_b"}, table.Header)
	assert.Equal(t, [][]string{{"Q1", "Tokyo"}}, table.Rows)

	jsonPath := filepath.Join(dir, "sof.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"city":"Osaka"}]`), 0o644))
	table, err = ReadTable(context.Background(), nil, jsonPath, Options{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Osaka"}}, table.Rows)

	xlsxPath := writeWorkbook(t, sheetRows{"Sheet1", [][]string{{"City"}, {"Seoul"}}})
	table, err = ReadTable(context.Background(), nil, xlsxPath, Options{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Seoul"}}, table.Rows)
}

func TestReadTable_SemicolonCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vpn.csv")
	require.NoError(t, os.WriteFile(path, []byte("city;count\nHanoi;4\n"), 0o644))

	table, err := ReadTable(context.Background(), nil, path, Options{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Hanoi", "4"}}, table.Rows)
}

func TestReadTable_MissingFileNamesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.csv")
	_, err := ReadTable(context.Background(), nil, path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}

func TestReadTable_Remote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("city\nDubai\n"))
	}))
	defer srv.Close()

	table, err := ReadTable(context.Background(), newTestFetcher(), srv.URL+"/list.csv", Options{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Dubai"}}, table.Rows)

	_, err = ReadTable(context.Background(), nil, srv.URL+"/list.csv", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no http fetcher")
}

func TestTableIndex(t *testing.T) {
	table := &Table{Header: []string{"Quote No", " City B ", "Address"}}

	assert.Equal(t, 0, table.Index("quote no"))
	assert.Equal(t, 1, table.Index("city_b", "City B"))
	assert.Equal(t, -1, table.Index("city_a"))

	row := []string{"Q1", " Tokyo "}
	assert.Equal(t, "Tokyo", Cell(row, 1))
	assert.Equal(t, "", Cell(row, 2))
	assert.Equal(t, "", Cell(row, -1))
}
