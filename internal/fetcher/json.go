package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
)

// ReadJSONRecords reads an array of flat objects into a Table. The header is
// the sorted union of keys; nested values are kept as their JSON text and
// null or missing keys become empty cells. Empty input is an empty Table.
func ReadJSONRecords(ctx context.Context, r io.Reader) (*Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "json: read array start")
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, eris.Errorf("json: expected an array of records, got %v", tok)
	}

	var records []map[string]any
	keys := make(map[string]struct{})
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "json: cancelled")
		}
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			return nil, eris.Wrapf(err, "json: decode record %d", len(records)+1)
		}
		for k := range rec {
			keys[k] = struct{}{}
		}
		records = append(records, rec)
	}
	if _, err := dec.Token(); err != nil {
		return nil, eris.Wrap(err, "json: read array end")
	}

	t := &Table{Header: make([]string, 0, len(keys))}
	for k := range keys {
		t.Header = append(t.Header, k)
	}
	sort.Strings(t.Header)

	t.Rows = make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(t.Header))
		for j, k := range t.Header {
			row[j] = jsonCell(rec[k])
		}
		t.Rows[i] = row
	}
	return t, nil
}

func jsonCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
