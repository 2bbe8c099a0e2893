package db

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"rfq", `"rfq"`},
		{"public.rfq", `"public"."rfq"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"uuid", "city_a", "city_b"`, quoteAndJoin([]string{"uuid", "city_a", "city_b"}))
}

func TestSelectAnyNotNull(t *testing.T) {
	got := SelectAnyNotNull("rfq", "uuid", []string{"city_a", "city_b", "Location A"})
	assert.Equal(t,
		`SELECT "uuid", "city_a", "city_b", "Location A" FROM "rfq" WHERE "city_a" IS NOT NULL OR "city_b" IS NOT NULL OR "Location A" IS NOT NULL ORDER BY "uuid"`,
		got)
}

func TestUpdateSQL(t *testing.T) {
	got := UpdateSQL(UpdateConfig{Table: "public.rfq", KeyColumn: "uuid", Columns: []string{"city_a", "city_b"}})
	assert.Equal(t, `UPDATE "public"."rfq" SET "city_a" = $1, "city_b" = $2 WHERE "uuid" = $3`, got)
}

func TestQueryTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT "Quote No", city_b FROM rfq`).
		WillReturnRows(pgxmock.NewRows([]string{"Quote No", "city_b"}).
			AddRow("Q1", "Tokyo").
			AddRow("Q2", nil).
			AddRow(int64(3), "Seoul"))

	table, err := QueryTable(context.Background(), mock, `SELECT "Quote No", city_b FROM rfq`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Quote No", "city_b"}, table.Header)
	assert.Equal(t, [][]string{{"Q1", "Tokyo"}, {"Q2", ""}, {"3", "Seoul"}}, table.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryTable_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT").WillReturnError(fmt.Errorf("relation does not exist"))

	_, err = QueryTable(context.Background(), mock, "SELECT city FROM missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: query table")
}

func TestBatchUpdate_Empty(t *testing.T) {
	n, err := BatchUpdate(context.Background(), nil, UpdateConfig{Table: "rfq"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBatchUpdate_Validation(t *testing.T) {
	rows := []KeyedRow{{Key: "u1", Values: []any{"Seoul"}}}

	_, err := BatchUpdate(context.Background(), nil, UpdateConfig{Table: "rfq", KeyColumn: "uuid"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")

	_, err = BatchUpdate(context.Background(), nil, UpdateConfig{Table: "rfq", Columns: []string{"city_a"}}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no key column specified")
}

func TestBatchUpdate_Commits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := UpdateConfig{Table: "rfq", KeyColumn: "uuid", Columns: []string{"city_a", "city_b"}}
	sql := regexp.QuoteMeta(UpdateSQL(cfg))

	mock.ExpectBegin()
	mock.ExpectExec(sql).WithArgs("Seoul", "Tokyo", "u1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(sql).WithArgs("Busan", "Osaka", "u2").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	n, err := BatchUpdate(context.Background(), mock, cfg, []KeyedRow{
		{Key: "u1", Values: []any{"Seoul", "Tokyo"}},
		{Key: "u2", Values: []any{"Busan", "Osaka"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchUpdate_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := UpdateConfig{Table: "rfq", KeyColumn: "uuid", Columns: []string{"city_a"}}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(UpdateSQL(cfg))).WithArgs("Seoul", "u1").WillReturnError(fmt.Errorf("deadlock detected"))
	mock.ExpectRollback()

	_, err = BatchUpdate(context.Background(), mock, cfg, []KeyedRow{{Key: "u1", Values: []any{"Seoul"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rfq row u1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchUpdate_ValueCountMismatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	cfg := UpdateConfig{Table: "rfq", KeyColumn: "uuid", Columns: []string{"city_a", "city_b"}}
	_, err = BatchUpdate(context.Background(), mock, cfg, []KeyedRow{{Key: "u1", Values: []any{"Seoul"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has 1 values, want 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}
