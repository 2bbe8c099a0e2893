package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/city-synergy/internal/cityname"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [location...]",
	Short: "Normalize city names from arguments or stdin",
	Long: "Resolves each argument, or each stdin line when no arguments are given, to a " +
		"canonical English city name. Unresolvable inputs print an empty line.",
	RunE: func(cmd *cobra.Command, args []string) error {
		trace, _ := cmd.Flags().GetBool("trace")
		stats, _ := cmd.Flags().GetBool("stats")
		top, _ := cmd.Flags().GetInt("top")

		inputs := args
		if len(inputs) == 0 {
			lines, err := readLines(cmd.InOrStdin())
			if err != nil {
				return err
			}
			inputs = lines
		}

		resolver, err := cityname.NewDefault()
		if err != nil {
			return err
		}
		return writeNormalized(cmd.OutOrStdout(), resolver, inputs, trace, stats, top)
	},
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "normalize: read input")
	}
	return lines, nil
}

func writeNormalized(out io.Writer, r *cityname.Resolver, inputs []string, trace, stats bool, top int) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	if stats {
		enc.SetIndent("", "  ")
		return enc.Encode(r.Summarize(inputs, top))
	}

	for _, in := range inputs {
		if trace {
			if err := enc.Encode(r.Resolve(in)); err != nil {
				return eris.Wrap(err, "normalize: encode")
			}
			continue
		}
		if _, err := fmt.Fprintln(out, r.Normalize(in)); err != nil {
			return eris.Wrap(err, "normalize: write")
		}
	}
	return nil
}

func init() {
	normalizeCmd.Flags().Bool("trace", false, "print each resolution step, method, confidence and detected scripts as JSON")
	normalizeCmd.Flags().Bool("stats", false, "print batch statistics instead of per-input results")
	normalizeCmd.Flags().Int("top", 20, "number of top cities listed with --stats (0 for all)")
	rootCmd.AddCommand(normalizeCmd)
}
