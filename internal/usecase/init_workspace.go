package usecase

import (
	"path/filepath"
	"strings"

	"github.com/tinytrack/ttrack/internal/domain"
	"github.com/tinytrack/ttrack/internal/ports"
)

// StoreOpener opens the experiment store rooted at a tracking dir.
type StoreOpener func(trackingDir string) ports.ExperimentStore

type InitWorkspace struct {
	initializer ports.WorkspaceInitializer
	open        StoreOpener
}

func NewInitWorkspace(initializer ports.WorkspaceInitializer, open StoreOpener) *InitWorkspace {
	return &InitWorkspace{initializer: initializer, open: open}
}

// Execute lays out the workspace and makes sure the default experiment exists.
func (uc *InitWorkspace) Execute(root string, force bool) error {
	return uc.ExecuteSpec(domain.WorkspaceSpec{Root: root}, force)
}

func (uc *InitWorkspace) ExecuteSpec(spec domain.WorkspaceSpec, force bool) error {
	if err := uc.initializer.Init(spec, force); err != nil {
		return err
	}
	if uc.open == nil {
		return nil
	}

	dir := strings.TrimSpace(spec.TrackingDir)
	if dir == "" {
		dir = domain.DefaultConfig().Tracking.Dir
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(spec.Root, dir)
	}

	_, _, err := uc.open(dir).EnsureExperiment(domain.DefaultExperimentName)
	return err
}
