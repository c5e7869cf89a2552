package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tinytrack/ttrack/internal/domain"
	"github.com/tinytrack/ttrack/internal/infra/filestore"
	"github.com/tinytrack/ttrack/internal/infra/fsworkspace"
	"github.com/tinytrack/ttrack/internal/infra/logger"
	"github.com/tinytrack/ttrack/internal/ports"
	"github.com/tinytrack/ttrack/internal/usecase"
)

func initCmd(opts *rootOpts) *cobra.Command {
	var path string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a ttrack workspace (ttrack.yaml, tracking dir, .gitignore entries)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("invalid path: %w", err)
			}

			uc := usecase.NewInitWorkspace(fsworkspace.NewInitializer(), func(dir string) ports.ExperimentStore {
				return filestore.New(dir, filestore.WithLogger(logger.L()))
			})
			spec := domain.WorkspaceSpec{Root: root, TrackingDir: opts.trackingDir}
			if err := uc.ExecuteSpec(spec, force); err != nil {
				return err
			}

			logger.L().Info("workspace.initialized", "root", root, "force", force)
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized ttrack workspace in %s\n", root)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Directory to initialize")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing ttrack.yaml")
	return cmd
}
