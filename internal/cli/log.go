package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinytrack/ttrack/internal/domain"
)

var timeZero time.Time

func logCmd(opts *rootOpts) *cobra.Command {
	c := &cobra.Command{
		Use:   "log",
		Short: "Log params, metrics and tags to an existing run",
	}

	c.AddCommand(logParamCmd(opts), logMetricCmd(opts), logTagCmd(opts))
	return c
}

func logParamCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "param <run_id> <key> <value>",
		Short: "Log a param (params are immutable once set)",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			ws, err := loadWorkspace(opts)
			if err != nil {
				return err
			}
			run, err := resolveRun(ws, args[0])
			if err != nil {
				return err
			}
			return ws.store.LogParam(run.Info.ExperimentID, run.Info.RunID, domain.Param{Key: args[1], Value: args[2]})
		},
	}
}

func logMetricCmd(opts *rootOpts) *cobra.Command {
	var step int64

	cmd := &cobra.Command{
		Use:   "metric <run_id> <key> <value>",
		Short: "Append a metric point (default step: one past the latest)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := domain.ParseFloat(args[2])
			if err != nil {
				return &domain.OpError{
					Op:   "cli.log_metric",
					Kind: domain.KindInvalidArgument,
					Err:  fmt.Errorf("invalid metric value %q", args[2]),
				}
			}

			ws, err := loadWorkspace(opts)
			if err != nil {
				return err
			}
			run, err := resolveRun(ws, args[0])
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("step") {
				step = 0
				if latest, ok := run.Metrics[args[1]]; ok {
					step = latest.Step + 1
				}
			}

			return ws.store.LogMetric(run.Info.ExperimentID, run.Info.RunID, domain.Metric{
				Key:       args[1],
				Value:     value,
				Timestamp: time.Now().UnixMilli(),
				Step:      step,
			})
		},
	}

	cmd.Flags().Int64Var(&step, "step", 0, "Step of the point")
	return cmd
}

func logTagCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "tag <run_id> <key> <value>",
		Short: "Set a tag (overwrites)",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			ws, err := loadWorkspace(opts)
			if err != nil {
				return err
			}
			run, err := resolveRun(ws, args[0])
			if err != nil {
				return err
			}
			return ws.store.SetTag(run.Info.ExperimentID, run.Info.RunID, domain.Tag{Key: args[1], Value: args[2]})
		},
	}
}
