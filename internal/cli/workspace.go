package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tinytrack/ttrack/internal/domain"
	"github.com/tinytrack/ttrack/internal/infra/filestore"
	"github.com/tinytrack/ttrack/internal/infra/idgen"
	"github.com/tinytrack/ttrack/internal/infra/logger"
	"github.com/tinytrack/ttrack/internal/infra/workspacefinder"
	"github.com/tinytrack/ttrack/internal/ports"
	"github.com/tinytrack/ttrack/internal/usecase"
)

// locator finds the workspace root when --workspace is not given.
var locator ports.WorkspaceLocator = workspacefinder.NewFinder()

type workspaceCtx struct {
	root string
	// found is false when no ttrack.yaml exists and defaults are in use.
	found       bool
	cfg         domain.Config
	trackingDir string

	store *filestore.Store
}

// loadWorkspace resolves configuration with precedence flag > env > ttrack.yaml > defaults.
// A missing workspace is not an error: the working directory is used with defaults.
func loadWorkspace(opts *rootOpts) (*workspaceCtx, error) {
	return loadWorkspaceEnv(opts, os.LookupEnv)
}

func loadWorkspaceEnv(opts *rootOpts, lookup func(string) (string, bool)) (*workspaceCtx, error) {
	root, found, err := resolveWorkspaceRoot(opts.workspace)
	if err != nil {
		return nil, err
	}

	cfg := domain.DefaultConfig()
	if found {
		cfg, err = workspacefinder.LoadConfig(root)
		if err != nil {
			return nil, err
		}
	}

	cfg, err = workspacefinder.ApplyEnv(cfg, lookup)
	if err != nil {
		return nil, err
	}
	if d := strings.TrimSpace(opts.trackingDir); d != "" {
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, fmt.Errorf("invalid tracking dir: %w", err)
		}
		cfg.Tracking.Dir = abs
	}

	dir := workspacefinder.ResolveTrackingDir(root, cfg)
	store := filestore.New(dir,
		filestore.WithIDs(idgen.New()),
		filestore.WithLogger(logger.L()),
	)

	return &workspaceCtx{
		root:        root,
		found:       found,
		cfg:         cfg,
		trackingDir: dir,
		store:       store,
	}, nil
}

// resolveWorkspaceRoot returns the explicit workspace, the nearest ancestor
// holding ttrack.yaml, or the working directory.
func resolveWorkspaceRoot(workspaceFlag string) (string, bool, error) {
	w := strings.TrimSpace(workspaceFlag)
	if w != "" {
		abs, err := filepath.Abs(w)
		if err != nil {
			return "", false, fmt.Errorf("invalid workspace path: %w", err)
		}
		return abs, fileExists(filepath.Join(abs, workspacefinder.ConfigFileName)), nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("get working directory: %w", err)
	}

	root, err := locator.FindRoot(wd)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return wd, false, nil
		}
		return "", false, err
	}
	return root, true, nil
}

// resolveRun locates a run by id across experiments. A unique id prefix of at
// least 6 characters is accepted too.
func resolveRun(ws *workspaceCtx, ref string) (domain.Run, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Run{}, &domain.OpError{
			Op:   "cli.resolve_run",
			Kind: domain.KindInvalidArgument,
			Err:  errors.New("run id is required"),
		}
	}

	run, err := ws.store.FindRun(ref)
	if err == nil || !domain.IsKind(err, domain.KindNotFound) || len(ref) < 6 {
		return run, err
	}

	exps, lerr := ws.store.ListExperiments()
	if lerr != nil {
		return domain.Run{}, lerr
	}
	var matches []domain.Run
	for _, e := range exps {
		runs, lerr := ws.store.ListRuns(e.ID)
		if lerr != nil {
			continue
		}
		for _, r := range runs {
			if strings.HasPrefix(r.Info.RunID, ref) {
				matches = append(matches, r)
			}
		}
	}
	switch len(matches) {
	case 0:
		return domain.Run{}, err
	case 1:
		return matches[0], nil
	default:
		return domain.Run{}, &domain.OpError{
			Op:   "cli.resolve_run",
			Kind: domain.KindInvalidArgument,
			Err:  fmt.Errorf("run prefix %q is ambiguous (%d matches)", ref, len(matches)),
		}
	}
}

func resolveExperiment(ws *workspaceCtx, ref string) (domain.Experiment, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = ws.cfg.Tracking.DefaultExperiment
	}
	return usecase.ResolveExperiment(ws.store, ref)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
