package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tinytrack/ttrack/internal/domain"
	"github.com/tinytrack/ttrack/internal/infra/logger"
	"github.com/tinytrack/ttrack/internal/infra/watcher"
)

func watchCmd(opts *rootOpts) *cobra.Command {
	var experiments []string
	var fromStart bool
	var format string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream metric points as they are logged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			ws, err := loadWorkspace(opts)
			if err != nil {
				return err
			}

			wopts := []watcher.Option{watcher.WithLogger(logger.L())}
			if fromStart {
				wopts = append(wopts, watcher.WithFromStart())
			}
			if len(experiments) > 0 {
				ids := make([]string, 0, len(experiments))
				for _, ref := range experiments {
					exp, err := resolveExperiment(ws, ref)
					if err != nil {
						return err
					}
					ids = append(ids, exp.ID)
				}
				wopts = append(wopts, watcher.WithExperiments(ids...))
			}

			w, err := watcher.New(ws.trackingDir, wopts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- w.Run(ctx) }()

			out := cmd.OutOrStdout()
			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (ctrl+c to stop)\n", ws.trackingDir)
			for ev := range w.Events() {
				if err := printEvent(out, ev, format); err != nil {
					stop()
					<-errCh
					return err
				}
			}
			return <-errCh
		},
	}

	cmd.Flags().StringSliceVarP(&experiments, "experiment", "e", nil, "Experiment id or name to watch (repeatable; default: all)")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "Replay points already on disk")
	cmd.Flags().StringVar(&format, "format", formatPretty, "Output format: pretty|json")
	return cmd
}

func printEvent(w io.Writer, ev watcher.Event, format string) error {
	if format == formatJSON {
		return writeJSON(w, map[string]any{
			"experiment_id": ev.ExperimentID,
			"run_id":        ev.RunID,
			"key":           ev.Metric.Key,
			"value":         domain.FormatFloat(ev.Metric.Value),
			"step":          ev.Metric.Step,
			"timestamp":     ev.Metric.Timestamp,
		})
	}
	_, err := fmt.Fprintf(w, "%s  %s/%s  %s=%s  step=%d\n",
		fmtTime(ev.Metric.Time()), ev.ExperimentID, ev.RunID,
		ev.Metric.Key, domain.FormatFloat(ev.Metric.Value), ev.Metric.Step)
	return err
}
