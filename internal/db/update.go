package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpdateConfig defines the parameters for a keyed batch update.
type UpdateConfig struct {
	Table     string   // target table (e.g., "public.rfq")
	KeyColumn string   // column identifying a row
	Columns   []string // columns being set, in Values order
}

// KeyedRow is one row's new column values.
type KeyedRow struct {
	Key    any
	Values []any
}

// UpdateSQL returns the parameterized UPDATE statement for cfg. Column values
// bind to $1..$n and the key to $n+1.
func UpdateSQL(cfg UpdateConfig) string {
	sets := make([]string, len(cfg.Columns))
	for i, c := range cfg.Columns {
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), i+1)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		sanitizeTable(cfg.Table),
		strings.Join(sets, ", "),
		pgx.Identifier{cfg.KeyColumn}.Sanitize(),
		len(cfg.Columns)+1,
	)
}

// BatchUpdate applies rows inside one transaction and returns the number of
// rows affected. Any failure rolls the whole batch back.
func BatchUpdate(ctx context.Context, pool Pool, cfg UpdateConfig, rows []KeyedRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: update: no columns specified")
	}
	if cfg.KeyColumn == "" {
		return 0, eris.New("db: update: no key column specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: update: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	sql := UpdateSQL(cfg)
	var affected int64
	for _, row := range rows {
		if len(row.Values) != len(cfg.Columns) {
			return 0, eris.Errorf("db: update: row %v has %d values, want %d", row.Key, len(row.Values), len(cfg.Columns))
		}
		args := append(append([]any{}, row.Values...), row.Key)
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return 0, eris.Wrapf(err, "db: update: %s row %v", cfg.Table, row.Key)
		}
		affected += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: update: commit tx")
	}
	return affected, nil
}
