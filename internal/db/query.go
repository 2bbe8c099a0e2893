package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/city-synergy/internal/fetcher"
)

// QueryTable runs a query and returns its result as a string table, the same
// shape file sources decode to. NULL becomes an empty cell.
func QueryTable(ctx context.Context, pool Pool, sql string, args ...any) (*fetcher.Table, error) {
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "db: query table")
	}
	defer rows.Close()

	t := &fetcher.Table{}
	for _, fd := range rows.FieldDescriptions() {
		t.Header = append(t.Header, fd.Name)
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, eris.Wrap(err, "db: read row values")
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = cellString(v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, eris.Wrap(rows.Err(), "db: query table iterate")
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// sanitizeTable handles schema-qualified table names like "public.rfq".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

// SelectAnyNotNull builds a SELECT of key plus columns from table, keeping
// rows where at least one column is non-null, ordered by key.
func SelectAnyNotNull(table, key string, columns []string) string {
	var where []string
	for _, c := range columns {
		where = append(where, pgx.Identifier{c}.Sanitize()+" IS NOT NULL")
	}
	query := fmt.Sprintf("SELECT %s FROM %s",
		quoteAndJoin(append([]string{key}, columns...)),
		sanitizeTable(table),
	)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " OR ")
	}
	return query + " ORDER BY " + pgx.Identifier{key}.Sanitize()
}
