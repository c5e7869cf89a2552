package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tinytrack/ttrack/internal/domain"
	"github.com/tinytrack/ttrack/internal/usecase"
)

func runsCmd(opts *rootOpts) *cobra.Command {
	c := &cobra.Command{
		Use:   "runs",
		Short: "Search, inspect and manage runs",
	}

	c.AddCommand(
		runsListCmd(opts),
		runsShowCmd(opts),
		runsStartCmd(opts),
		runsEndCmd(opts),
		runsStageCmd(opts, "delete", "Mark a run as deleted", domain.StageDeleted),
		runsStageCmd(opts, "restore", "Restore a deleted run", domain.StageActive),
	)
	return c
}

func runsListCmd(opts *rootOpts) *cobra.Command {
	var (
		experiments []string
		filter      string
		orderBy     string
		limit       int
		all         bool
		format      string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs across experiments",
		Long: `List runs across experiments.

Filters are comparisons joined by AND, for example:
  ttrack runs list --filter "metrics.loss < 0.3 and params.optim = 'adam'"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			ws, err := loadWorkspace(opts)
			if err != nil {
				return err
			}

			runs, err := usecase.NewSearchRuns(ws.store).Execute(cmd.Context(), usecase.SearchQuery{
				Experiments:    experiments,
				Filter:         filter,
				OrderBy:        orderBy,
				Limit:          limit,
				IncludeDeleted: all,
			})
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs, format)
		},
	}

	cmd.Flags().StringSliceVarP(&experiments, "experiment", "e", nil, "Experiment id or name (repeatable; default: all active)")
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "Filter expression")
	cmd.Flags().StringVar(&orderBy, "order-by", "", "Sort field, e.g. 'metrics.loss ASC' (default: start_time DESC)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of runs (0 = no limit)")
	cmd.Flags().BoolVar(&all, "all", false, "Include deleted runs")
	cmd.Flags().StringVar(&format, "format", formatPretty, "Output format: pretty|json")
	return cmd
}

func runsShowCmd(opts *rootOpts) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <run_id>",
		Short: "Show a run's metadata, params, latest metrics and tags",
		Args:  cobra.ExactArgs(1),
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
			return printRun(cmd.OutOrStdout(), run, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", formatPretty, "Output format: pretty|json")
	return cmd
}

func runsStartCmd(opts *rootOpts) *cobra.Command {
	var (
		experiment string
		name       string
		source     string
		user       string
		tags       []string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a RUNNING run and print its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(opts)
			if err != nil {
				return err
			}
			tagMap, err := parseKeyValues(tags)
			if err != nil {
				return err
			}
			if experiment == "" {
				experiment = ws.cfg.Tracking.DefaultExperiment
			}
			if user == "" {
				user = ws.cfg.Tracking.User
			}

			l, err := usecase.StartLocalLogger(ws.store, usecase.LoggerSpec{
				ExperimentName: experiment,
				RunName:        name,
				Source:         source,
				User:           user,
				Tags:           tagMap,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), l.RunID())
			return nil
		},
	}

	cmd.Flags().StringVarP(&experiment, "experiment", "e", "", "Experiment name (created if missing; default from ttrack.yaml)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Run name (default: first 8 characters of the run id)")
	cmd.Flags().StringVar(&source, "source", "", "Source name recorded in mlflow.source.name")
	cmd.Flags().StringVar(&user, "user", "", "User recorded in mlflow.user")
	cmd.Flags().StringArrayVarP(&tags, "tag", "t", nil, "Tag as key=value (repeatable)")
	return cmd
}

func runsEndCmd(opts *rootOpts) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "end <run_id>",
		Short: "Mark a run as FINISHED, FAILED or KILLED",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := domain.ParseRunStatus(status)
			if err != nil {
				return err
			}
			if !st.Terminal() {
				return &domain.OpError{
					Op:   "cli.runs_end",
					Kind: domain.KindInvalidArgument,
					Err:  fmt.Errorf("status %s is not terminal", st),
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
			info, err := ws.store.UpdateRun(run.Info.ExperimentID, run.Info.RunID, st, timeZero)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s is now %s\n", info.RunID, info.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "FINISHED", "Terminal status: FINISHED|FAILED|KILLED")
	return cmd
}

func runsStageCmd(opts *rootOpts, use, short string, stage domain.LifecycleStage) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <run_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(opts)
			if err != nil {
				return err
			}
			run, err := resolveRun(ws, args[0])
			if err != nil {
				return err
			}

			if stage == domain.StageDeleted {
				err = ws.store.DeleteRun(run.Info.ExperimentID, run.Info.RunID)
			} else {
				err = ws.store.RestoreRun(run.Info.ExperimentID, run.Info.RunID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s is now %s\n", run.Info.RunID, stage)
			return nil
		},
	}
}

func parseKeyValues(in []string) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for _, kv := range in {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, &domain.OpError{
				Op:   "cli.parse_tag",
				Kind: domain.KindInvalidArgument,
				Err:  fmt.Errorf("expected key=value, got %q", kv),
			}
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}
