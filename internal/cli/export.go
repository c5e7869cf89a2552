package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tinytrack/ttrack/internal/infra/logger"
	"github.com/tinytrack/ttrack/internal/infra/promexport"
)

func exportCmd(opts *rootOpts) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Serve the latest metric values as Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(opts)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("listen") {
				listen = ws.cfg.Export.Listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.ErrOrStderr(), "Serving %s on %s/metrics\n", ws.trackingDir, listen)
			return promexport.New(ws.store, logger.L()).Serve(ctx, listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":9464", "Listen address (default from ttrack.yaml export.listen)")
	return cmd
}
