package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadXLSX reads one worksheet into a Table. sheet selects a worksheet by
// name and defaults to the first one. skip drops title rows above the
// header. Rows whose cells are all blank are ignored.
func ReadXLSX(path, sheet string, skip int) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}
	ws, err := worksheet(f, sheet)
	if err != nil {
		return nil, err
	}

	t := &Table{}
	for i, row := range ws.Rows {
		if i < skip || row == nil {
			continue
		}
		cells, blank := make([]string, len(row.Cells)), true
		for j, c := range row.Cells {
			cells[j] = strings.TrimSpace(c.String())
			blank = blank && cells[j] == ""
		}
		switch {
		case blank:
		case t.Header == nil:
			t.Header = cells
		default:
			t.Rows = append(t.Rows, cells)
		}
	}
	return t, nil
}

func worksheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name == "" {
		if len(f.Sheets) == 0 {
			return nil, eris.New("xlsx: workbook has no sheets")
		}
		return f.Sheets[0], nil
	}
	if ws, ok := f.Sheet[name]; ok {
		return ws, nil
	}
	names := make([]string, len(f.Sheets))
	for i, ws := range f.Sheets {
		names[i] = ws.Name
	}
	return nil, eris.Errorf("xlsx: sheet %q not found (have %s)", name, strings.Join(names, ", "))
}
