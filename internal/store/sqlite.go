package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the file-backed ledger used by the CLI.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens the ledger at dsn (a path or ":memory:") in WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps ":memory:" ledgers on a single database and
	// serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"journal_mode=WAL", "busy_timeout=5000", "foreign_keys=ON"} {
		if _, err := db.Exec("PRAGMA " + pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: pragma %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// schemaVersion is stored in PRAGMA user_version once the schema exists.
const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	command    TEXT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_by_created ON runs(created_at DESC);

CREATE TABLE IF NOT EXISTS stages (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name          TEXT NOT NULL,
	status        TEXT NOT NULL,
	input_digest  TEXT NOT NULL,
	output_digest TEXT NOT NULL DEFAULT '',
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	metadata      TEXT,
	started_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS stages_by_run ON stages(run_id);
CREATE INDEX IF NOT EXISTS stages_by_input ON stages(name, input_digest);
`

// Migrate creates the schema. It is a no-op on an up-to-date ledger.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return eris.Wrap(err, "sqlite: read schema version")
	}
	if version >= schemaVersion {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return eris.Wrap(err, "sqlite: migrate")
		}
		_, err := tx.ExecContext(ctx, "PRAGMA user_version = 1")
		return eris.Wrap(err, "sqlite: set schema version")
	})
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, command string) (*Run, error) {
	r := &Run{ID: uuid.NewString(), Command: command, Status: RunStatusRunning}
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Command, string(r.Status), r.CreatedAt, r.UpdatedAt,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: create %s run", command)
	}
	return r, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status RunStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return mustTouch(res, "run", runID)
}

const runColumns = `id, command, status, error, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID), &r)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("sqlite: run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return &r, nil
}

// ListRuns returns runs newest first. A non-positive Limit means 100.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	var where []string
	var args []any
	if filter.Status != "" {
		where, args = append(where, "status = ?"), append(args, string(filter.Status))
	}
	if filter.Command != "" {
		where, args = append(where, "command = ?"), append(args, filter.Command)
	}

	q := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	q += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, max(filter.Offset, 0))

	runs, err := collect(ctx, s.db, q, args, func(rows *sql.Rows) (Run, error) {
		var r Run
		return r, scanRun(rows, &r)
	})
	return runs, eris.Wrap(err, "sqlite: list runs")
}

func (s *SQLiteStore) CreatePhase(ctx context.Context, runID, name, inputDigest string) (*Phase, error) {
	p := &Phase{
		ID:          uuid.NewString(),
		RunID:       runID,
		Name:        name,
		Status:      PhaseStatusRunning,
		InputDigest: inputDigest,
		StartedAt:   time.Now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO stages (id, run_id, name, status, input_digest, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.RunID, p.Name, string(p.Status), p.InputDigest, p.StartedAt,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: start stage %s of run %s", name, runID)
	}
	return p, nil
}

// CompletePhase records a stage's outcome and bumps its run's updated_at.
func (s *SQLiteStore) CompletePhase(ctx context.Context, phaseID string, result PhaseResult) error {
	var metadata sql.NullString
	if len(result.Metadata) > 0 {
		b, err := json.Marshal(result.Metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: encode stage metadata")
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE stages SET status = ?, output_digest = ?, duration_ms = ?, error = ?, metadata = ? WHERE id = ?`,
			string(result.Status), result.OutputDigest, result.DurationMs, result.Error, metadata, phaseID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: complete stage %s", phaseID)
		}
		if err := mustTouch(res, "stage", phaseID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE runs SET updated_at = ? WHERE id = (SELECT run_id FROM stages WHERE id = ?)`,
			time.Now().UTC(), phaseID,
		)
		return eris.Wrap(err, "sqlite: touch run")
	})
}

// ListPhases returns a run's stages in the order they started.
func (s *SQLiteStore) ListPhases(ctx context.Context, runID string) ([]Phase, error) {
	q := `SELECT id, run_id, name, status, input_digest, output_digest, duration_ms, error, metadata, started_at
		FROM stages WHERE run_id = ? ORDER BY started_at, rowid`
	phases, err := collect(ctx, s.db, q, []any{runID}, func(rows *sql.Rows) (Phase, error) {
		var p Phase
		var metadata sql.NullString
		if err := rows.Scan(&p.ID, &p.RunID, &p.Name, &p.Status, &p.InputDigest, &p.OutputDigest,
			&p.DurationMs, &p.Error, &metadata, &p.StartedAt); err != nil {
			return p, err
		}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &p.Metadata); err != nil {
				return p, eris.Wrapf(err, "decode metadata of stage %s", p.ID)
			}
		}
		return p, nil
	})
	return phases, eris.Wrapf(err, "sqlite: list stages of run %s", runID)
}

func (s *SQLiteStore) OutputDigests(ctx context.Context, name, inputDigest, excludeID string) ([]string, error) {
	q := `SELECT DISTINCT output_digest FROM stages
		WHERE name = ? AND input_digest = ? AND status = ? AND id <> ? AND output_digest <> ''
		ORDER BY output_digest`
	digests, err := collect(ctx, s.db, q, []any{name, inputDigest, string(PhaseStatusComplete), excludeID},
		func(rows *sql.Rows) (string, error) {
			var d string
			return d, rows.Scan(&d)
		})
	return digests, eris.Wrapf(err, "sqlite: earlier %s digests", name)
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// collect runs q and maps every row with scan.
func collect[T any](ctx context.Context, db *sql.DB, q string, args []any, scan func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanRun(row interface{ Scan(...any) error }, r *Run) error {
	return row.Scan(&r.ID, &r.Command, &r.Status, &r.Error, &r.CreatedAt, &r.UpdatedAt)
}

// mustTouch fails when an UPDATE matched no row.
func mustTouch(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s not found: %s", entity, id)
	}
	return nil
}
