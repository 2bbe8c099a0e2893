// Package citydb rewrites free-text city columns of a Postgres table to their
// canonical names.
package citydb

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/city-synergy/internal/cityname"
	"github.com/sells-group/city-synergy/internal/config"
	"github.com/sells-group/city-synergy/internal/db"
	"github.com/sells-group/city-synergy/internal/fetcher"
)

// Change is one cell whose value normalization rewrites. Fallback holds the
// location value the city was resolved from when the cell was empty.
type Change struct {
	Key      string `json:"key"`
	Column   string `json:"column"`
	From     string `json:"from"`
	To       string `json:"to"`
	Fallback string `json:"fallback,omitempty"`
}

// Report summarizes a normalization pass.
type Report struct {
	Processed    int      `json:"processed"`
	Changed      int      `json:"changed"`
	Filled       int      `json:"filled"`
	Updated      int64    `json:"updated"`
	Batches      int      `json:"batches"`
	UniqueBefore int      `json:"uniqueBefore"`
	UniqueAfter  int      `json:"uniqueAfter"`
	DryRun       bool     `json:"dryRun"`
	Changes      []Change `json:"changes,omitempty"`
}

// Normalizer rewrites a table's city columns in paced batches.
type Normalizer struct {
	pool     db.Pool
	resolver *cityname.Resolver
	cfg      config.PostgresConfig
	limiter  *rate.Limiter
	log      *zap.Logger
}

// New creates a Normalizer. A non-positive BatchesPerSec disables pacing.
func New(pool db.Pool, resolver *cityname.Resolver, cfg config.PostgresConfig) *Normalizer {
	limit := rate.Inf
	if cfg.BatchesPerSec > 0 {
		limit = rate.Limit(cfg.BatchesPerSec)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Normalizer{
		pool:     pool,
		resolver: resolver,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		log:      zap.L().With(zap.String("component", "citydb"), zap.String("table", cfg.Table)),
	}
}

// Run reads every row with any city or fallback value set, normalizes each
// city column, and updates rows where any value changed. An empty city is
// resolved from its fallback column. A column that normalizes to nothing
// keeps its original value. With dryRun no rows are written and the report
// lists every change.
func (n *Normalizer) Run(ctx context.Context, dryRun bool) (*Report, error) {
	cities, fallbacks := n.cfg.CityColumns, n.cfg.FallbackColumns
	if len(cities) == 0 {
		return nil, eris.New("citydb: no city columns configured")
	}
	if len(fallbacks) > 0 && len(fallbacks) != len(cities) {
		return nil, eris.Errorf("citydb: %d fallback columns for %d city columns", len(fallbacks), len(cities))
	}

	columns := append(append([]string(nil), cities...), fallbacks...)
	query := db.SelectAnyNotNull(n.cfg.Table, n.cfg.KeyColumn, columns)
	table, err := db.QueryTable(ctx, n.pool, query)
	if err != nil {
		return nil, eris.Wrapf(err, "citydb: read %s", n.cfg.Table)
	}

	report := &Report{Processed: len(table.Rows), DryRun: dryRun}
	before := make(map[string]bool)
	after := make(map[string]bool)
	cache := make(map[string]string)
	normalize := func(s string) string {
		norm, ok := cache[s]
		if !ok {
			norm = n.resolver.Normalize(s)
			cache[s] = norm
		}
		return norm
	}

	var pending []db.KeyedRow
	for _, row := range table.Rows {
		key := fetcher.Cell(row, 0)
		values := make([]any, len(cities))
		changed := false
		for i, col := range cities {
			orig := fetcher.Cell(row, i+1)
			input, fallback := orig, ""
			if strings.TrimSpace(orig) == "" && len(fallbacks) > 0 {
				fallback = fetcher.Cell(row, len(cities)+i+1)
				input = fallback
			}
			norm := normalize(input)
			if norm == "" {
				norm = orig
			}
			if orig != "" {
				before[orig] = true
			}
			if norm != "" {
				after[norm] = true
			}
			values[i] = nullable(norm)
			if norm == orig {
				continue
			}
			changed = true
			if fallback != "" {
				report.Filled++
			}
			if dryRun {
				report.Changes = append(report.Changes, Change{Key: key, Column: col, From: orig, To: norm, Fallback: fallback})
			}
		}
		if changed {
			report.Changed++
			pending = append(pending, db.KeyedRow{Key: key, Values: values})
		}
	}
	report.UniqueBefore = len(before)
	report.UniqueAfter = len(after)

	if dryRun {
		n.log.Info("citydb: dry run complete",
			zap.Int("processed", report.Processed),
			zap.Int("changed", report.Changed),
			zap.Int("filled", report.Filled),
		)
		return report, nil
	}

	update := db.UpdateConfig{Table: n.cfg.Table, KeyColumn: n.cfg.KeyColumn, Columns: n.cfg.CityColumns}
	for start := 0; start < len(pending); start += n.cfg.BatchSize {
		end := min(start+n.cfg.BatchSize, len(pending))
		if err := n.limiter.Wait(ctx); err != nil {
			return report, eris.Wrap(err, "citydb: rate limiter")
		}

		began := time.Now()
		affected, err := db.BatchUpdate(ctx, n.pool, update, pending[start:end])
		if err != nil {
			return report, eris.Wrapf(err, "citydb: batch %d", report.Batches+1)
		}
		report.Batches++
		report.Updated += affected
		n.log.Debug("citydb: batch applied",
			zap.Int("batch", report.Batches),
			zap.Int("rows", end-start),
			zap.Duration("elapsed", time.Since(began)),
		)
	}

	n.log.Info("citydb: normalization complete",
		zap.Int("processed", report.Processed),
		zap.Int("changed", report.Changed),
		zap.Int64("updated", report.Updated),
		zap.Int("filled", report.Filled),
		zap.Int("unique_before", report.UniqueBefore),
		zap.Int("unique_after", report.UniqueAfter),
	)
	return report, nil
}

// nullable writes empty cells back as NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
