package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/city-synergy/internal/aggregate"
	"github.com/sells-group/city-synergy/internal/config"
	"github.com/sells-group/city-synergy/internal/db"
	"github.com/sells-group/city-synergy/internal/fetcher"
	"github.com/sells-group/city-synergy/internal/scorer"
)

const formatPostgres = "postgres"

// Aggregate reads every configured source concurrently, counts cities and
// writes one top-list file per source plus the review file. Nothing is
// written unless every source succeeds.
func (r *Runner) Aggregate(ctx context.Context) (*StageResult, error) {
	sources := r.cfg.Sources
	if len(sources) == 0 {
		return nil, eris.New("pipeline: no sources configured")
	}

	inputs := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.Query != "" {
			inputs = append(inputs, s.Query)
		} else {
			inputs = append(inputs, s.Path)
		}
	}

	return r.track(ctx, StageAggregate, inputs, func() (*StageResult, error) {
		results := make([]aggregate.Result, len(sources))

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(max(1, r.cfg.Pipeline.Concurrency))
		for i, src := range sources {
			g.Go(func() error {
				res, err := r.aggregateSource(gCtx, src)
				if err != nil {
					return err
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "pipeline: aggregate cancelled")
		}

		out := &StageResult{}
		review := []aggregate.ReviewItem{}
		for _, res := range results {
			if err := WriteTopList(r.cfg.Pipeline.TopListsDir, res.Top); err != nil {
				return nil, err
			}
			out.Outputs = append(out.Outputs, TopListPath(r.cfg.Pipeline.TopListsDir, res.Source))
			out.Records += len(res.Top.Cities)
			review = append(review, res.Review...)
		}

		if err := WriteJSON(r.cfg.Pipeline.ReviewPath, review); err != nil {
			return nil, err
		}
		out.Outputs = append(out.Outputs, r.cfg.Pipeline.ReviewPath)

		if path := r.cfg.Pipeline.CountrySummaryPath; path != "" {
			summary := make(map[string][]aggregate.CountrySummary, len(results))
			for _, res := range results {
				summary[strings.ToUpper(res.Source)] = aggregate.SummarizeCountries(res.Counts, r.resolver.Gazetteer())
			}
			if err := WriteJSON(path, summary); err != nil {
				return nil, err
			}
			out.Outputs = append(out.Outputs, path)
		}
		if path := r.cfg.Pipeline.ContinentSummaryPath; path != "" {
			summary := make(map[string][]aggregate.ContinentSummary, len(results))
			for _, res := range results {
				summary[strings.ToUpper(res.Source)] = aggregate.SummarizeContinents(res.Counts, r.resolver.Gazetteer())
			}
			if err := WriteJSON(path, summary); err != nil {
				return nil, err
			}
			out.Outputs = append(out.Outputs, path)
		}
		return out, nil
	})
}

func (r *Runner) aggregateSource(ctx context.Context, src config.SourceConfig) (aggregate.Result, error) {
	log := r.log.With(zap.String("source", src.Name))

	table, err := r.loadTable(ctx, src)
	if err != nil {
		return aggregate.Result{}, err
	}

	records, err := aggregate.FromTable(table, aggregate.Mapping{
		KeyColumn:       src.KeyColumn,
		CityColumns:     src.CityColumns,
		FallbackColumns: src.FallbackColumns,
	})
	if err != nil {
		return aggregate.Result{}, eris.Wrapf(err, "pipeline: source %s (%s)", src.Name, sourceLocation(src))
	}

	res := aggregate.Aggregate(strings.ToUpper(src.Name), records, r.resolver, aggregate.Options{
		Limit: r.cfg.TopN(src.Role),
		Dedup: src.KeyColumn != "",
	})

	stats := scorer.Describe(res.Top.Cities)
	log.Info("pipeline: source aggregated",
		zap.Int("rows", res.Rows),
		zap.Int("counted", res.Counted),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("missing_key", res.MissingKey),
		zap.Int("unresolved", res.Unresolved),
		zap.Int("cities", len(res.Counts)),
		zap.Int("top", len(res.Top.Cities)),
		zap.Float64("mean", stats.Mean),
		zap.Float64("std_dev", stats.StdDev),
	)
	for _, item := range res.Review {
		log.Debug("pipeline: low-confidence city",
			zap.String("input", item.Input),
			zap.String("city", item.City),
			zap.String("method", string(item.Method)),
		)
	}
	return res, nil
}

func (r *Runner) loadTable(ctx context.Context, src config.SourceConfig) (*fetcher.Table, error) {
	if strings.EqualFold(src.Format, formatPostgres) || (src.Path == "" && src.Query != "") {
		if r.deps.Pool == nil {
			return nil, eris.Errorf("pipeline: source %s needs a postgres connection", src.Name)
		}
		t, err := db.QueryTable(ctx, r.deps.Pool, src.Query)
		return t, eris.Wrapf(err, "pipeline: source %s", src.Name)
	}

	opts := fetcher.Options{
		Format:   fetcher.Format(strings.ToLower(src.Format)),
		Sheet:    src.Sheet,
		SkipRows: src.SkipRows,
	}
	if d := []rune(src.Delimiter); len(d) > 0 {
		opts.Delimiter = d[0]
	}
	t, err := fetcher.ReadTable(ctx, r.deps.Fetcher, src.Path, opts)
	return t, eris.Wrapf(err, "pipeline: source %s", src.Name)
}

func sourceLocation(src config.SourceConfig) string {
	if src.Path != "" {
		return src.Path
	}
	return "query"
}

// readLists loads the top lists of the named sources.
func (r *Runner) readLists(sources []string, role string) (scorer.Lists, error) {
	lists := make(scorer.Lists, len(sources))
	for _, s := range sources {
		list, err := ReadTopList(r.cfg.Pipeline.TopListsDir, s, r.limitFor(s, role))
		if err != nil {
			return nil, err
		}
		lists[s] = list
	}
	return lists, nil
}

func componentSources(weights []config.WeightConfig) []string {
	out := make([]string, len(weights))
	for i, w := range weights {
		out[i] = w.Source
	}
	return out
}

func (r *Runner) topListPaths(sources []string) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = TopListPath(r.cfg.Pipeline.TopListsDir, s)
	}
	return out
}

// Groups classifies secondary-source cities by membership and writes the
// group file.
func (r *Runner) Groups(ctx context.Context) (*StageResult, error) {
	var sources []string
	for _, s := range r.cfg.SourcesByRole(config.RoleSecondary) {
		sources = append(sources, strings.ToUpper(s.Name))
	}
	if len(sources) == 0 {
		return nil, eris.New("pipeline: groups need secondary sources")
	}

	return r.track(ctx, StageGroups, r.topListPaths(sources), func() (*StageResult, error) {
		lists, err := r.readLists(sources, config.RoleSecondary)
		if err != nil {
			return nil, err
		}
		syn := r.cfg.Scoring.Synergy
		groups, err := scorer.BuildGroups(sources, lists, syn.FocusSource, syn.ExclusiveTop)
		if err != nil {
			return nil, err
		}
		if err := WriteJSON(r.cfg.Pipeline.GroupsPath, groups); err != nil {
			return nil, err
		}
		return &StageResult{Outputs: []string{r.cfg.Pipeline.GroupsPath}, Records: len(groups)}, nil
	})
}

// Affinity computes stage A from the primary top lists.
func (r *Runner) Affinity(ctx context.Context) (*StageResult, error) {
	if err := scorer.ValidateConfig(r.cfg.Scoring); err != nil {
		return nil, err
	}
	sources := componentSources(r.cfg.Scoring.Affinity.Components)

	return r.track(ctx, StageAffinity, r.topListPaths(sources), func() (*StageResult, error) {
		lists, err := r.readLists(sources, config.RolePrimary)
		if err != nil {
			return nil, err
		}
		scores, err := scorer.Affinity(lists, r.cfg.Scoring.Affinity.Components)
		if err != nil {
			return nil, err
		}
		if err := WriteJSON(r.cfg.Pipeline.AffinityPath, affinityRows(scores)); err != nil {
			return nil, err
		}
		return &StageResult{Outputs: []string{r.cfg.Pipeline.AffinityPath}, Records: len(scores)}, nil
	})
}

// Synergy computes stage B from the secondary top lists and the group file.
func (r *Runner) Synergy(ctx context.Context) (*StageResult, error) {
	if err := scorer.ValidateConfig(r.cfg.Scoring); err != nil {
		return nil, err
	}
	sources := componentSources(r.cfg.Scoring.Synergy.Components)
	inputs := append(r.topListPaths(sources), r.cfg.Pipeline.GroupsPath)

	return r.track(ctx, StageSynergy, inputs, func() (*StageResult, error) {
		var groups []scorer.Group
		if err := ReadJSON(r.cfg.Pipeline.GroupsPath, &groups); err != nil {
			return nil, err
		}
		lists, err := r.readLists(sources, config.RoleSecondary)
		if err != nil {
			return nil, err
		}
		scores, err := scorer.Synergy(lists, groups, r.cfg.Scoring.Synergy)
		if err != nil {
			return nil, err
		}
		if err := WriteJSON(r.cfg.Pipeline.SynergyPath, synergyRows(scores)); err != nil {
			return nil, err
		}
		return &StageResult{Outputs: []string{r.cfg.Pipeline.SynergyPath}, Records: len(scores)}, nil
	})
}

// Total blends the stage A and B files into the final ranking.
func (r *Runner) Total(ctx context.Context) (*StageResult, error) {
	if err := scorer.ValidateConfig(r.cfg.Scoring); err != nil {
		return nil, err
	}
	p := r.cfg.Pipeline
	inputs := []string{p.AffinityPath, p.SynergyPath}

	return r.track(ctx, StageTotal, inputs, func() (*StageResult, error) {
		affinity, err := readScores(p.AffinityPath, true)
		if err != nil {
			return nil, err
		}
		synergy, err := readScores(p.SynergyPath, false)
		if err != nil {
			return nil, err
		}
		totals := scorer.Total(affinity, synergy, r.cfg.Scoring.Total)
		if err := WriteJSON(p.TotalPath, totalRows(totals)); err != nil {
			return nil, err
		}
		return &StageResult{Outputs: []string{p.TotalPath}, Records: len(totals)}, nil
	})
}

// Blend weights every source's top list into one ranking and rolls it up by
// country.
func (r *Runner) Blend(ctx context.Context) (*StageResult, error) {
	if err := scorer.ValidateConfig(r.cfg.Scoring); err != nil {
		return nil, err
	}
	weights := r.cfg.Scoring.Blend.Components
	sources := componentSources(weights)

	return r.track(ctx, StageBlend, r.topListPaths(sources), func() (*StageResult, error) {
		lists, err := r.readLists(sources, config.RolePrimary)
		if err != nil {
			return nil, err
		}
		cities, err := scorer.Blend(lists, weights)
		if err != nil {
			return nil, err
		}
		countries := scorer.BlendByRegion(cities, r.resolver.Gazetteer().CountryOf)
		if err := WriteJSON(r.cfg.Pipeline.BlendPath, blendReport(cities, countries)); err != nil {
			return nil, err
		}
		return &StageResult{Outputs: []string{r.cfg.Pipeline.BlendPath}, Records: len(cities)}, nil
	})
}
