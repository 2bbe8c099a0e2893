package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/city-synergy/internal/citydb"
	"github.com/sells-group/city-synergy/internal/cityname"
	"github.com/sells-group/city-synergy/internal/db"
)

var normalizeDBCmd = &cobra.Command{
	Use:   "normalize-db",
	Short: "Rewrite the transaction table's city columns to canonical names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		asJSON, _ := cmd.Flags().GetBool("json")

		if err := cfg.Validate("normalize-db"); err != nil {
			return err
		}

		resolver, err := cityname.NewDefault()
		if err != nil {
			return err
		}

		pool, err := db.Connect(ctx, cfg.Postgres.DatabaseURL, cfg.Postgres.MaxConnections)
		if err != nil {
			return err
		}
		defer pool.Close()

		ledger, err := openLedger(ctx)
		if err != nil {
			return err
		}
		var runID string
		if ledger != nil {
			defer ledger.Close() //nolint:errcheck
			if run, err := ledger.CreateRun(ctx, "normalize-db"); err == nil {
				runID = run.ID
			} else {
				zap.L().Warn("failed to record run", zap.Error(err))
			}
		}

		report, runErr := citydb.New(pool, resolver, cfg.Postgres).Run(ctx, dryRun)
		if runID != "" {
			finishRun(ctx, ledger, runID, runErr)
		}
		if runErr != nil {
			return runErr
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		formatNormalizeReport(os.Stdout, report)
		return nil
	},
}

// formatNormalizeReport writes a normalize-db summary to w.
func formatNormalizeReport(out io.Writer, r *citydb.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if r.DryRun {
		_, _ = fmt.Fprintln(w, "Dry run: no rows were written.")
	}
	_, _ = fmt.Fprintf(w, "Processed:\t%d\n", r.Processed)
	_, _ = fmt.Fprintf(w, "Changed:\t%d\n", r.Changed)
	_, _ = fmt.Fprintf(w, "Filled from fallback:\t%d\n", r.Filled)
	_, _ = fmt.Fprintf(w, "Updated:\t%d\n", r.Updated)
	_, _ = fmt.Fprintf(w, "Batches:\t%d\n", r.Batches)
	_, _ = fmt.Fprintf(w, "Unique cities:\t%d -> %d\n", r.UniqueBefore, r.UniqueAfter)
	for _, c := range r.Changes {
		if c.Fallback != "" {
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%q -> %q (from %q)\n", c.Key, c.Column, c.From, c.To, c.Fallback)
			continue
		}
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%q -> %q\n", c.Key, c.Column, c.From, c.To)
	}
	_ = w.Flush()
}

func init() {
	normalizeDBCmd.Flags().Bool("dry-run", false, "report changes without writing them")
	normalizeDBCmd.Flags().Bool("json", false, "print the report as JSON")
	rootCmd.AddCommand(normalizeDBCmd)
}
