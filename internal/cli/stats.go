package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seantiz/aigrace/internal/backend/abc"
	"github.com/seantiz/aigrace/internal/report"
	"github.com/seantiz/aigrace/internal/stats"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Source string
	Format string
}

type statsRow struct {
	Dataset string `json:"dataset"`
	Known   bool   `json:"known"`
	stats.Stats
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats <circuit.aig> [circuit.aig ...]",
		Short: "Print circuit statistics",
		Long: `Print input, output, flip-flop and AND-gate counts for each circuit.

With --source abc the figures come from the tool's print_stats; native reads
the AIGER file directly; auto tries the tool and falls back to native.

Example:
  aigrace stats dataset/*.aig
  aigrace stats --source native --format json counter.aag`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", rootOpts.Config.StatsSource, "statistics source (abc|native|auto)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", string(report.FormatText), "output format (json|text)")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command, paths []string) error {
	source, err := parseStatsSource(opts.Source)
	if err != nil {
		return err
	}
	if opts.Format != string(report.FormatText) && opts.Format != string(report.FormatJSON) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be json or text", opts.Format))
	}
	if source != stats.SourceNative {
		if err := requireTool(opts.ABCBin); err != nil {
			return err
		}
	}

	logger := opts.Logger(cmd)
	collector := stats.NewCollector(abc.NewBackend(opts.abcConfig(), logger), source, 0, logger)

	rows := make([]statsRow, 0, len(paths))
	for _, p := range paths {
		st, ok := collector.Collect(cmd.Context(), p)
		rows = append(rows, statsRow{Dataset: p, Known: ok, Stats: st})
	}

	if opts.Format == string(report.FormatJSON) {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	return writeStatsText(cmd.OutOrStdout(), rows)
}

func writeStatsText(w io.Writer, rows []statsRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "dataset\tInputs\tOutputs\tFFs\tANDs")
	for _, r := range rows {
		fields := []string{report.Placeholder, report.Placeholder, report.Placeholder, report.Placeholder}
		if r.Known {
			fields = []string{
				strconv.Itoa(r.Inputs),
				strconv.Itoa(r.Outputs),
				strconv.Itoa(r.Latches),
				strconv.Itoa(r.Ands),
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Dataset, fields[0], fields[1], fields[2], fields[3])
	}
	return tw.Flush()
}
