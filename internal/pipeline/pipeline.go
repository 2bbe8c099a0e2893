// Package pipeline runs the file-based scoring stages: aggregate, groups,
// affinity, synergy, total and the all-source blend report. Each stage reads its inputs from disk, writes
// its outputs only after it fully succeeds, and reproduces byte-identical
// output for identical inputs.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/city-synergy/internal/cityname"
	"github.com/sells-group/city-synergy/internal/config"
	"github.com/sells-group/city-synergy/internal/db"
	"github.com/sells-group/city-synergy/internal/fetcher"
	"github.com/sells-group/city-synergy/internal/store"
)

// Stage names.
const (
	StageAggregate = "aggregate"
	StageGroups    = "groups"
	StageAffinity  = "affinity"
	StageSynergy   = "synergy"
	StageTotal     = "total"
	StageBlend     = "blend"
)

// Stages lists the stages in execution order.
var Stages = []string{StageAggregate, StageGroups, StageAffinity, StageSynergy, StageTotal, StageBlend}

// StageResult reports what a stage produced.
type StageResult struct {
	Stage      string   `json:"stage"`
	Outputs    []string `json:"outputs"`
	Records    int      `json:"records"`
	DurationMs int64    `json:"duration_ms"`
}

// Deps holds the optional collaborators of a Runner. A nil Fetcher limits
// sources to local files, a nil Pool rejects postgres sources, and a nil
// Ledger disables run recording.
type Deps struct {
	Fetcher fetcher.Fetcher
	Pool    db.Pool
	Ledger  store.Store
}

// Runner executes pipeline stages against one configuration.
type Runner struct {
	cfg      *config.Config
	resolver *cityname.Resolver
	deps     Deps
	runID    string
	log      *zap.Logger
}

// New creates a Runner.
func New(cfg *config.Config, resolver *cityname.Resolver, deps Deps) *Runner {
	return &Runner{
		cfg:      cfg,
		resolver: resolver,
		deps:     deps,
		log:      zap.L().With(zap.String("component", "pipeline")),
	}
}

// Execute runs fn as one recorded command. Ledger failures are logged and
// never fail the command.
func (r *Runner) Execute(ctx context.Context, command string, fn func(context.Context) error) error {
	if r.deps.Ledger != nil {
		run, err := r.deps.Ledger.CreateRun(ctx, command)
		if err != nil {
			r.log.Warn("pipeline: failed to record run", zap.String("command", command), zap.Error(err))
		} else {
			r.runID = run.ID
			defer func() { r.runID = "" }()
		}
	}

	fnErr := fn(ctx)

	if r.deps.Ledger != nil && r.runID != "" {
		status, msg := store.RunStatusComplete, ""
		if fnErr != nil {
			status, msg = store.RunStatusFailed, fnErr.Error()
		}
		// The command context may already be cancelled; record the outcome anyway.
		if err := r.deps.Ledger.FinishRun(context.WithoutCancel(ctx), r.runID, status, msg); err != nil {
			r.log.Warn("pipeline: failed to finish run", zap.String("run_id", r.runID), zap.Error(err))
		}
	}
	return fnErr
}

// All runs every stage in order and stops at the first failure.
func (r *Runner) All(ctx context.Context) ([]StageResult, error) {
	steps := []func(context.Context) (*StageResult, error){
		r.Aggregate, r.Groups, r.Affinity, r.Synergy, r.Total, r.Blend,
	}
	var results []StageResult
	for _, step := range steps {
		res, err := step(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// Run runs a single stage by name.
func (r *Runner) Run(ctx context.Context, stage string) (*StageResult, error) {
	switch stage {
	case StageAggregate:
		return r.Aggregate(ctx)
	case StageGroups:
		return r.Groups(ctx)
	case StageAffinity:
		return r.Affinity(ctx)
	case StageSynergy:
		return r.Synergy(ctx)
	case StageTotal:
		return r.Total(ctx)
	case StageBlend:
		return r.Blend(ctx)
	default:
		return nil, eris.Errorf("pipeline: unknown stage %q", stage)
	}
}

// StageFile returns the main output file of a stage.
func StageFile(cfg *config.Config, stage string) (string, bool) {
	switch stage {
	case StageGroups:
		return cfg.Pipeline.GroupsPath, true
	case StageAffinity:
		return cfg.Pipeline.AffinityPath, true
	case StageSynergy:
		return cfg.Pipeline.SynergyPath, true
	case StageTotal:
		return cfg.Pipeline.TotalPath, true
	case StageBlend:
		return cfg.Pipeline.BlendPath, true
	case "review":
		return cfg.Pipeline.ReviewPath, true
	default:
		return "", false
	}
}

// track runs one stage, logging it and recording it in the ledger. When the
// ledger holds a completed run of the same stage over identical inputs with a
// different output digest, the stage is reported as non-deterministic.
func (r *Runner) track(ctx context.Context, name string, inputs []string, fn func() (*StageResult, error)) (*StageResult, error) {
	log := r.log.With(zap.String("stage", name))
	log.Info("pipeline: stage starting")

	var phase *store.Phase
	var inDigest string
	if r.deps.Ledger != nil && r.runID != "" {
		inDigest = Digest(inputs...)
		p, err := r.deps.Ledger.CreatePhase(ctx, r.runID, name, inDigest)
		if err != nil {
			log.Warn("pipeline: failed to record phase", zap.Error(err))
		}
		phase = p
	}

	start := time.Now()
	res, err := fn()
	duration := time.Since(start).Milliseconds()

	if err != nil {
		log.Error("pipeline: stage failed", zap.Int64("duration_ms", duration), zap.Error(err))
		if phase != nil {
			_ = r.deps.Ledger.CompletePhase(context.WithoutCancel(ctx), phase.ID, store.PhaseResult{
				Status:     store.PhaseStatusFailed,
				DurationMs: duration,
				Error:      err.Error(),
			})
		}
		return nil, err
	}

	res.Stage = name
	res.DurationMs = duration
	log.Info("pipeline: stage complete",
		zap.Int64("duration_ms", duration),
		zap.Int("records", res.Records),
		zap.Strings("outputs", res.Outputs),
	)

	if phase != nil {
		outDigest := Digest(res.Outputs...)
		if err := r.deps.Ledger.CompletePhase(ctx, phase.ID, store.PhaseResult{
			Status:       store.PhaseStatusComplete,
			OutputDigest: outDigest,
			DurationMs:   duration,
			Metadata:     map[string]any{"records": res.Records},
		}); err != nil {
			log.Warn("pipeline: failed to complete phase", zap.Error(err))
		}
		r.checkDeterminism(ctx, log, name, inDigest, outDigest, phase.ID)
	}
	return res, nil
}

func (r *Runner) checkDeterminism(ctx context.Context, log *zap.Logger, name, inDigest, outDigest, phaseID string) {
	prior, err := r.deps.Ledger.OutputDigests(ctx, name, inDigest, phaseID)
	if err != nil {
		log.Warn("pipeline: failed to read prior digests", zap.Error(err))
		return
	}
	for _, d := range prior {
		if d != outDigest {
			log.Warn("pipeline: non-deterministic stage output",
				zap.String("input_digest", inDigest),
				zap.String("output_digest", outDigest),
				zap.String("prior_digest", d),
			)
			return
		}
	}
}

// limitFor returns the top-N a named source is built with. Unconfigured
// sources fall back to role's N.
func (r *Runner) limitFor(source, role string) int {
	for _, s := range r.cfg.Sources {
		if strings.EqualFold(s.Name, source) {
			return r.cfg.TopN(s.Role)
		}
	}
	return r.cfg.TopN(role)
}
