package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/city-synergy/internal/pipeline"
)

var stageDescriptions = map[string]string{
	pipeline.StageAggregate: "Normalize every source and write per-source top-N city lists",
	pipeline.StageGroups:    "Classify partner-source cities by membership into the group file",
	pipeline.StageAffinity:  "Compute the min-max affinity score from the primary top lists",
	pipeline.StageSynergy:   "Compute the rank-based synergy score from the partner top lists",
	pipeline.StageTotal:     "Blend affinity and synergy into the final ranking",
	pipeline.StageBlend:     "Weight every source's min-max score into the all-source city and country blend",
}

// newStageCmd builds the command that runs one pipeline stage.
func newStageCmd(stage string) *cobra.Command {
	return &cobra.Command{
		Use:   stage,
		Short: stageDescriptions[stage],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), stage, func(ctx context.Context, env *pipelineEnv) ([]pipeline.StageResult, error) {
				res, err := env.Runner.Run(ctx, stage)
				if err != nil {
					return nil, err
				}
				return []pipeline.StageResult{*res}, nil
			})
		},
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every pipeline stage in order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPipeline(cmd.Context(), "run", func(ctx context.Context, env *pipelineEnv) ([]pipeline.StageResult, error) {
			return env.Runner.All(ctx)
		})
	},
}

func runPipeline(ctx context.Context, command string, fn func(context.Context, *pipelineEnv) ([]pipeline.StageResult, error)) error {
	env, err := initPipeline(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	var results []pipeline.StageResult
	err = env.Runner.Execute(ctx, command, func(ctx context.Context) error {
		var runErr error
		results, runErr = fn(ctx, env)
		return runErr
	})
	formatStageResults(os.Stdout, results)
	return err
}

// formatStageResults writes one line per completed stage to w.
func formatStageResults(out io.Writer, results []pipeline.StageResult) {
	if len(results) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tRECORDS\tDURATION\tOUTPUT")
	for _, r := range results {
		output := ""
		if len(r.Outputs) > 0 {
			output = r.Outputs[0]
		}
		if len(r.Outputs) > 1 {
			output = fmt.Sprintf("%s (+%d)", output, len(r.Outputs)-1)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%dms\t%s\n", r.Stage, r.Records, r.DurationMs, output)
	}
	_ = w.Flush()
}

func init() {
	for _, stage := range pipeline.Stages {
		rootCmd.AddCommand(newStageCmd(stage))
	}
	rootCmd.AddCommand(runCmd)
}
