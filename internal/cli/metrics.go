package cli

import (
	"github.com/spf13/cobra"
)

func metricsCmd(opts *rootOpts) *cobra.Command {
	c := &cobra.Command{
		Use:   "metrics",
		Short: "Inspect metric series",
	}

	c.AddCommand(metricsHistoryCmd(opts))
	return c
}

func metricsHistoryCmd(opts *rootOpts) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "history <run_id> <key>",
		Short: "Print every point of a metric in the order it was logged",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			ws, err := loadWorkspace(opts)
			if err != nil {
				return err
			}
			run, err := resolveRun(ws, args[0])
			if err != nil {
				return err
			}
			points, err := ws.store.MetricHistory(run.Info.ExperimentID, run.Info.RunID, args[1])
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), points, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", formatPretty, "Output format: pretty|json")
	return cmd
}
