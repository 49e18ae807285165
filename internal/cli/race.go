package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/seantiz/aigrace/internal/backend/abc"
	"github.com/seantiz/aigrace/internal/model"
	"github.com/seantiz/aigrace/internal/race"
	"github.com/seantiz/aigrace/internal/report"
)

// RaceOptions holds flags for the race command.
type RaceOptions struct {
	*RootOptions
	Engines []string
	Timeout time.Duration
	Format  string
}

// raceOutput is the JSON form of a race outcome.
type raceOutput struct {
	Artifact string               `json:"artifact"`
	Verdict  string               `json:"verdict"`
	Engine   string               `json:"engine"`
	Seconds  *float64             `json:"time_sec"`
	Results  []model.EngineResult `json:"results"`
}

// NewRaceCommand creates the race command.
func NewRaceCommand(rootOpts *RootOptions) *cobra.Command {
	cfg := rootOpts.Config
	opts := &RaceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "race <circuit.aig>",
		Short: "Race engines directly on one circuit",
		Long: `Launch every engine on the circuit as given, without transforms, and
print the first conclusive verdict. Each engine result is shown as it
arrives; engines still running when a verdict is found are killed.

Example:
  aigrace race dataset/139442p0.aig
  aigrace race -e pdr,bmc -t 30s --format json circuit.aig`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRace(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Engines, "engines", "e", cfg.Engines, "engines to race")
	cmd.Flags().DurationVarP(&opts.Timeout, "timeout", "t", cfg.Timeout, "per-engine time budget")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", string(report.FormatText), "output format (json|text)")

	return cmd
}

func runRace(opts *RaceOptions, cmd *cobra.Command, artifact string) error {
	engines, err := parseEngines(opts.Engines)
	if err != nil {
		return err
	}
	timeout, err := parseTimeout(opts.Timeout)
	if err != nil {
		return err
	}
	if opts.Format != string(report.FormatText) && opts.Format != string(report.FormatJSON) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be json or text", opts.Format))
	}
	if err := requireTool(opts.ABCBin); err != nil {
		return err
	}

	logger := opts.Logger(cmd)
	racer := race.NewRacer(abc.NewBackend(opts.abcConfig(), logger), logger)

	out := cmd.OutOrStdout()
	var results []model.EngineResult
	res := racer.Race(cmd.Context(), race.Spec{
		Artifact: artifact,
		Engines:  engines,
		Timeout:  timeout,
		LogWriter: func(e model.Engine, line string) {
			logger.Debug("tool output", "engine", e.String(), "line", line)
		},
		OnResult: func(r model.EngineResult) {
			results = append(results, r)
			if opts.Format == string(report.FormatText) {
				fmt.Fprintf(out, "  %-7s %-8s %s\n", r.Engine, r.Verdict, seconds(r))
			}
		},
	})

	if opts.Format == string(report.FormatJSON) {
		return writeRaceJSON(out, artifact, res, results)
	}
	fmt.Fprintf(out, "%s: %s", artifact, res.Verdict)
	if res.Engine != model.EngineNone {
		fmt.Fprintf(out, " by %s in %ss", res.Engine, seconds(res))
	}
	fmt.Fprintln(out)
	return nil
}

func writeRaceJSON(w io.Writer, artifact string, res model.EngineResult, results []model.EngineResult) error {
	doc := raceOutput{
		Artifact: artifact,
		Verdict:  string(res.Verdict),
		Engine:   res.Engine.String(),
		Results:  results,
	}
	if s, ok := res.Seconds(); ok {
		doc.Seconds = &s
	}
	if doc.Results == nil {
		doc.Results = []model.EngineResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// seconds formats the elapsed time like the report does.
func seconds(r model.EngineResult) string {
	if s, ok := r.Seconds(); ok {
		return fmt.Sprintf("%.2f", s)
	}
	return report.Placeholder
}
