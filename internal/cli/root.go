package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tinytrack/ttrack/internal/buildinfo"
	"github.com/tinytrack/ttrack/internal/infra/logger"
)

func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOpts carries the persistent flags shared by every subcommand.
type rootOpts struct {
	debug       bool
	workspace   string
	trackingDir string

	cleanup func() error
}

func newRootCmd() *cobra.Command {
	opts := &rootOpts{}

	cmd := &cobra.Command{
		Use:          "ttrack",
		Short:        "ttrack: minimalist, MLflow-compatible experiment tracking",
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			opts.setupLogging()
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if opts.cleanup != nil {
				return opts.cleanup()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUI(cmd, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVar(&opts.debug, "debug", false, "enable verbose logging to .ttrack/logs/ttrack.log")
	pf.StringVarP(&opts.workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	pf.StringVar(&opts.trackingDir, "tracking-dir", "", "Tracking directory (overrides ttrack.yaml and environment)")

	cmd.AddCommand(
		initCmd(opts),
		experimentsCmd(opts),
		runsCmd(opts),
		logCmd(opts),
		metricsCmd(opts),
		queryCmd(opts),
		watchCmd(opts),
		exportCmd(opts),
		uiCmd(opts),
		doctorCmd(opts),
		versionCmd(),
	)
	return cmd
}

// setupLogging writes logs under the workspace root when one is found and
// under the working directory otherwise. Failures leave the discard logger.
func (o *rootOpts) setupLogging() {
	logRoot := o.workspace
	if logRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		wd, _ = filepath.Abs(wd)
		logRoot = wd
		if root, ferr := locator.FindRoot(wd); ferr == nil && root != "" {
			logRoot = root
		}
	}

	cleanup, err := logger.Setup(logger.Config{
		Root:      logRoot,
		Debug:     o.debug,
		Component: "cli",
	})
	if err == nil {
		o.cleanup = cleanup
	}
}
