package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/city-synergy/internal/cityname"
	"github.com/sells-group/city-synergy/internal/db"
	"github.com/sells-group/city-synergy/internal/fetcher"
	"github.com/sells-group/city-synergy/internal/pipeline"
	"github.com/sells-group/city-synergy/internal/store"
)

// pipelineEnv holds the collaborators of a pipeline command.
type pipelineEnv struct {
	Runner *pipeline.Runner
	Ledger store.Store
	Pool   *pgxpool.Pool
}

// Close releases the ledger and database pool.
func (e *pipelineEnv) Close() {
	if e.Ledger != nil {
		_ = e.Ledger.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
}

// initPipeline wires a Runner from cfg. The ledger and Postgres pool are
// only opened when configured.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("pipeline"); err != nil {
		return nil, err
	}

	resolver, err := cityname.NewDefault()
	if err != nil {
		return nil, err
	}

	env := &pipelineEnv{}
	if env.Ledger, err = openLedger(ctx); err != nil {
		return nil, err
	}

	if needsPostgres() {
		pool, err := db.Connect(ctx, cfg.Postgres.DatabaseURL, cfg.Postgres.MaxConnections)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Pool = pool
	}

	deps := pipeline.Deps{
		Fetcher: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:     cfg.Fetch.UserAgent,
			Timeout:       time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries:    cfg.Fetch.MaxRetries,
			RatePerSecond: cfg.Fetch.RatePerSec,
		}),
		Ledger: env.Ledger,
	}
	// A nil *pgxpool.Pool must not become a non-nil db.Pool.
	if env.Pool != nil {
		deps.Pool = env.Pool
	}
	env.Runner = pipeline.New(cfg, resolver, deps)
	return env, nil
}

func needsPostgres() bool {
	for _, s := range cfg.Sources {
		if s.Query != "" {
			return true
		}
	}
	return false
}

// openLedger opens and migrates the run ledger, or returns nil when
// store.dsn is empty.
func openLedger(ctx context.Context) (store.Store, error) {
	if cfg.Store.DSN == "" {
		return nil, nil
	}
	st, err := store.NewSQLite(cfg.Store.DSN)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	zap.L().Debug("ledger opened", zap.String("dsn", cfg.Store.DSN))
	return st, nil
}

// requireLedger is openLedger for commands that cannot run without one.
func requireLedger(ctx context.Context) (store.Store, error) {
	st, err := openLedger(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("store.dsn is required (SYNERGY_STORE_DSN)")
	}
	return st, nil
}
