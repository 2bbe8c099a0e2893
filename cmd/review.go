package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/city-synergy/internal/cityname"
	"github.com/sells-group/city-synergy/internal/review"
	"github.com/sells-group/city-synergy/pkg/anthropic"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Ask Claude to double-check low-confidence city matches",
	Long: "Reads the normalization review file written by aggregate, asks Claude for the " +
		"canonical city of every low-confidence input, and writes the suggestions file.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("review"); err != nil {
			return err
		}

		resolver, err := cityname.NewDefault()
		if err != nil {
			return err
		}

		reviewer := review.New(anthropic.NewClient(cfg.Anthropic.Key), resolver, cfg.Anthropic)
		suggestions, err := reviewer.RunFiles(cmd.Context(), cfg.Pipeline.ReviewPath, cfg.Pipeline.SuggestionsPath)
		if err != nil {
			return err
		}
		formatSuggestions(os.Stdout, suggestions)
		return nil
	},
}

// formatSuggestions lists the suggestions that disagree with the resolver.
func formatSuggestions(out io.Writer, suggestions []review.Suggestion) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tINPUT\tCURRENT\tSUGGESTED\tCONFIDENCE")
	disagree := 0
	for _, s := range suggestions {
		if s.Agrees {
			continue
		}
		disagree++
		suggested := s.Suggested
		if s.Error != "" {
			suggested = "error: " + s.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\n", s.Source, truncate(s.Input, 40), s.Current, suggested, s.Confidence)
	}
	_, _ = fmt.Fprintf(w, "\n%d of %d suggestions disagree\n", disagree, len(suggestions))
	_ = w.Flush()
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}
