package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinytrack/ttrack/internal/domain"
)

func experimentsCmd(opts *rootOpts) *cobra.Command {
	c := &cobra.Command{
		Use:     "experiments",
		Aliases: []string{"exp"},
		Short:   "Manage experiments in the tracking dir",
	}

	c.AddCommand(
		experimentsListCmd(opts),
		experimentsCreateCmd(opts),
		experimentsStageCmd(opts, "delete", "Mark an experiment as deleted", domain.StageDeleted),
		experimentsStageCmd(opts, "restore", "Restore a deleted experiment", domain.StageActive),
	)
	return c
}

func experimentsListCmd(opts *rootOpts) *cobra.Command {
	var all bool
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List experiments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			ws, err := loadWorkspace(opts)
			if err != nil {
				return err
			}

			exps, err := ws.store.ListExperiments()
			if err != nil {
				return err
			}
			if !all {
				active := exps[:0]
				for _, e := range exps {
					if e.LifecycleStage == domain.StageActive {
						active = append(active, e)
					}
				}
				exps = active
			}
			return printExperiments(cmd.OutOrStdout(), exps, format)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include deleted experiments")
	cmd.Flags().StringVar(&format, "format", formatPretty, "Output format: pretty|json")
	return cmd
}

func experimentsCreateCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(opts)
			if err != nil {
				return err
			}
			exp, err := ws.store.CreateExperiment(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created experiment %q with id %s\n", exp.Name, exp.ID)
			return nil
		},
	}
}

func experimentsStageCmd(opts *rootOpts, use, short string, stage domain.LifecycleStage) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id|name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(opts)
			if err != nil {
				return err
			}
			exp, err := resolveExperiment(ws, args[0])
			if err != nil {
				return err
			}

			if stage == domain.StageDeleted {
				err = ws.store.DeleteExperiment(exp.ID)
			} else {
				err = ws.store.RestoreExperiment(exp.ID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Experiment %s (%s) is now %s\n", exp.Name, exp.ID, stage)
			return nil
		},
	}
}
