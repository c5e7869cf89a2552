package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tinytrack/ttrack/internal/usecase"
)

func doctorCmd(opts *rootOpts) *cobra.Command {
	var dir string
	var pattern string
	var format string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check package metadata and the native library artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			ws, err := loadWorkspace(opts)
			if err != nil {
				return err
			}
			pcfg := ws.cfg.Packaging
			if cmd.Flags().Changed("dir") {
				pcfg.ArtifactDir = dir
			}
			if cmd.Flags().Changed("pattern") {
				pcfg.Pattern = pattern
			}

			rep, runErr := usecase.NewDoctor().Execute(pcfg, ws.root)
			if format == formatJSON {
				if err := writeJSON(cmd.OutOrStdout(), doctorJSON(rep)); err != nil {
					return err
				}
			} else {
				printDoctor(cmd.OutOrStdout(), rep)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&dir, "dir", ".", "Package directory to check (default from ttrack.yaml)")
	cmd.Flags().StringVar(&pattern, "pattern", "*.so", "Artifact glob (default from ttrack.yaml)")
	cmd.Flags().StringVar(&format, "format", formatPretty, "Output format: pretty|json")
	return cmd
}

func printDoctor(w io.Writer, rep usecase.DoctorReport) {
	fmt.Fprintf(w, "%s %s\n", styleHeader.Render(rep.Package.Name), rep.Package.Version)
	fmt.Fprintf(w, "%s\n\n", styleFaint.Render(rep.Package.Description))
	for _, c := range rep.Checks {
		mark := styleFinished.Render("✓")
		switch c.Status {
		case usecase.CheckFailed:
			mark = styleFailed.Render("✗")
		case usecase.CheckSkipped:
			mark = styleFaint.Render("-")
		}
		fmt.Fprintf(w, "%s %-10s %s\n", mark, c.Name, c.Message)
	}
	for _, a := range rep.Artifacts {
		fmt.Fprintf(w, "  %s\n", a)
	}
}

func doctorJSON(rep usecase.DoctorReport) map[string]any {
	checks := make([]map[string]string, 0, len(rep.Checks))
	for _, c := range rep.Checks {
		checks = append(checks, map[string]string{
			"name":    c.Name,
			"status":  string(c.Status),
			"message": c.Message,
		})
	}
	artifacts := rep.Artifacts
	if artifacts == nil {
		artifacts = []string{}
	}
	return map[string]any{
		"name":         rep.Package.Name,
		"version":      rep.Package.Version,
		"description":  rep.Package.Description,
		"license":      rep.Package.License,
		"requires":     rep.Package.Requires,
		"package_data": rep.Package.PackageData,
		"ok":           rep.OK(),
		"checks":       checks,
		"artifacts":    artifacts,
	}
}
