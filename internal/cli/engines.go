package cli

import (
	"encoding/json"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seantiz/aigrace/internal/model"
	"github.com/seantiz/aigrace/internal/report"
)

type engineRow struct {
	Name    string `json:"name"`
	Command string `json:"command"`
	Default bool   `json:"default"`
}

// NewEnginesCommand creates the engines command.
func NewEnginesCommand(rootOpts *RootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:           "engines",
		Short:         "List the verification engines",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([]engineRow, 0, len(model.AllEngines))
			for _, e := range model.AllEngines {
				rows = append(rows, engineRow{
					Name:    e.String(),
					Command: e.Command(),
					Default: slices.Contains(rootOpts.Config.Engines, e.String()),
				})
			}

			switch format {
			case string(report.FormatJSON):
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			case string(report.FormatText):
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ENGINE\tCOMMAND\tDEFAULT")
				for _, r := range rows {
					fmt.Fprintf(tw, "%s\t%s\t%t\n", r.Name, r.Command, r.Default)
				}
				return tw.Flush()
			}
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be json or text", format))
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatText), "output format (json|text)")

	return cmd
}
