package cli

import (
	"github.com/spf13/cobra"

	"github.com/tinytrack/ttrack/internal/infra/logger"
	"github.com/tinytrack/ttrack/internal/ui/tui"
)

func uiCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Browse experiments and runs in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUI(cmd, opts)
		},
	}
}

func runUI(_ *cobra.Command, opts *rootOpts) error {
	ws, err := loadWorkspace(opts)
	if err != nil {
		return err
	}
	return tui.Run(tui.Deps{
		Store:  ws.store,
		Root:   ws.trackingDir,
		Logger: logger.L(),
		Debug:  opts.debug,
	})
}
