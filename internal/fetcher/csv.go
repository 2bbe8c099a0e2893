package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV decodes a delimited export into a Table. The first record is the
// header. A leading byte order mark is dropped, every field is trimmed, and
// records may be shorter or longer than the header. delim defaults to ','.
func ReadCSV(ctx context.Context, r io.Reader, delim rune) (*Table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	if delim != 0 {
		cr.Comma = delim
	}
	cr.FieldsPerRecord = -1

	t := &Table{}
	for n := 1; ; n++ {
		if n%1024 == 0 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "csv: cancelled")
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: record %d", n)
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		if t.Header == nil {
			t.Header = rec
			continue
		}
		t.Rows = append(t.Rows, rec)
	}
}
