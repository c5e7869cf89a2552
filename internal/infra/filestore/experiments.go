package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tinytrack/ttrack/internal/domain"
)

// ListExperiments returns every experiment under the root, active and deleted,
// sorted by name. A missing root yields an empty list. Directories without a
// readable meta.yaml or without a name are skipped.
func (s *Store) ListExperiments() ([]domain.Experiment, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.Experiment{}, nil
		}
		return nil, &domain.OpError{
			Op:   "filestore.list_experiments",
			Kind: domain.KindExecution,
			Path: s.root,
			Err:  err,
		}
	}

	out := make([]domain.Experiment, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		exp, err := s.readExperiment(e.Name())
		if err != nil {
			s.log.Debug("experiment.skipped", "dir", e.Name(), "err", err)
			continue
		}
		if strings.TrimSpace(exp.Name) == "" {
			continue
		}
		out = append(out, exp)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ExperimentNames maps experiment ids to names.
func (s *Store) ExperimentNames() (map[string]string, error) {
	exps, err := s.ListExperiments()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(exps))
	for _, e := range exps {
		out[e.ID] = e.Name
	}
	return out, nil
}

func (s *Store) GetExperiment(id string) (domain.Experiment, error) {
	if err := validateID("filestore.get_experiment", "experiment", id); err != nil {
		return domain.Experiment{}, err
	}
	return s.readExperiment(id)
}

// GetExperimentByName prefers an active experiment when names collide.
func (s *Store) GetExperimentByName(name string) (domain.Experiment, error) {
	exps, err := s.ListExperiments()
	if err != nil {
		return domain.Experiment{}, err
	}

	var found *domain.Experiment
	for i := range exps {
		if exps[i].Name != name {
			continue
		}
		if exps[i].LifecycleStage == domain.StageActive {
			return exps[i], nil
		}
		if found == nil {
			found = &exps[i]
		}
	}
	if found != nil {
		return *found, nil
	}

	return domain.Experiment{}, &domain.OpError{
		Op:   "filestore.get_experiment_by_name",
		Kind: domain.KindNotFound,
		Err:  fmt.Errorf("experiment %q: %w", name, domain.ErrNotFound),
	}
}

func (s *Store) CreateExperiment(name string) (domain.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockRoot("filestore.create_experiment")
	if err != nil {
		return domain.Experiment{}, err
	}
	defer unlock()
	return s.createExperimentLocked(name)
}

// EnsureExperiment returns the active experiment with the given name, creating
// it when missing. created reports whether a new experiment was written.
func (s *Store) EnsureExperiment(name string) (exp domain.Experiment, created bool, err error) {
	name = strings.TrimSpace(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lockRoot("filestore.ensure_experiment")
	if err != nil {
		return domain.Experiment{}, false, err
	}
	defer unlock()

	exp, err = s.GetExperimentByName(name)
	switch {
	case err == nil && exp.LifecycleStage == domain.StageDeleted:
		return domain.Experiment{}, false, &domain.OpError{
			Op:   "filestore.ensure_experiment",
			Kind: domain.KindConflict,
			Err:  fmt.Errorf("experiment %q (%s) is deleted; restore it first", name, exp.ID),
		}
	case err == nil:
		return exp, false, nil
	case !domain.IsKind(err, domain.KindNotFound):
		return domain.Experiment{}, false, err
	}

	exp, err = s.createExperimentLocked(name)
	if err != nil {
		return domain.Experiment{}, false, err
	}
	return exp, true, nil
}

func (s *Store) createExperimentLocked(name string) (domain.Experiment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Experiment{}, &domain.OpError{
			Op:   "filestore.create_experiment",
			Kind: domain.KindInvalidArgument,
			Err:  errors.New("experiment name must not be empty"),
		}
	}
	if strings.ContainsAny(name, "\n\r") {
		return domain.Experiment{}, &domain.OpError{
			Op:   "filestore.create_experiment",
			Kind: domain.KindInvalidArgument,
			Err:  fmt.Errorf("experiment name %q must be a single line", name),
		}
	}

	if existing, err := s.GetExperimentByName(name); err == nil {
		return domain.Experiment{}, &domain.OpError{
			Op:   "filestore.create_experiment",
			Kind: domain.KindConflict,
			Err:  fmt.Errorf("experiment %q already exists (id=%s, stage=%s)", name, existing.ID, existing.LifecycleStage),
		}
	} else if !domain.IsKind(err, domain.KindNotFound) {
		return domain.Experiment{}, err
	}

	if err := mkdirAll("filestore.create_experiment", s.root); err != nil {
		return domain.Experiment{}, err
	}

	id := s.ids.ExperimentID()
	dir := s.experimentDir(id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		kind := domain.KindExecution
		if errors.Is(err, os.ErrExist) {
			kind = domain.KindConflict
		}
		return domain.Experiment{}, &domain.OpError{
			Op:   "filestore.create_experiment.mkdir",
			Kind: kind,
			Path: dir,
			Err:  err,
		}
	}

	now := s.now().UTC()
	exp := domain.Experiment{
		ID:               id,
		Name:             name,
		ArtifactLocation: domain.ExperimentArtifactLocation(id),
		LifecycleStage:   domain.StageActive,
		CreationTime:     now,
		LastUpdateTime:   now,
	}
	if err := writeYAML("filestore.create_experiment", filepath.Join(dir, metaFile), experimentToMeta(exp)); err != nil {
		_ = os.RemoveAll(dir)
		return domain.Experiment{}, err
	}

	s.log.Info("experiment.created", "id", id, "name", name)
	return s.readExperiment(id)
}

func (s *Store) DeleteExperiment(id string) error {
	return s.setExperimentStage("filestore.delete_experiment", id, domain.StageDeleted)
}

func (s *Store) RestoreExperiment(id string) error {
	return s.setExperimentStage("filestore.restore_experiment", id, domain.StageActive)
}

func (s *Store) setExperimentStage(op, id string, stage domain.LifecycleStage) error {
	if err := validateID(op, "experiment", id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exp, err := s.readExperiment(id)
	if err != nil {
		return err
	}

	if stage == domain.StageActive && exp.LifecycleStage == domain.StageDeleted {
		if other, err := s.GetExperimentByName(exp.Name); err == nil && other.ID != id && other.LifecycleStage == domain.StageActive {
			return &domain.OpError{
				Op:   op,
				Kind: domain.KindConflict,
				Err:  fmt.Errorf("an active experiment named %q already exists (id=%s)", exp.Name, other.ID),
			}
		}
	}

	exp.LifecycleStage = stage
	exp.LastUpdateTime = s.now().UTC()
	if err := writeYAML(op, filepath.Join(s.experimentDir(id), metaFile), experimentToMeta(exp)); err != nil {
		return err
	}

	s.live = map[string]bool{}
	s.log.Info("experiment.stage_changed", "id", id, "stage", stage)
	return nil
}

func (s *Store) readExperiment(id string) (domain.Experiment, error) {
	var m experimentMeta
	if err := readYAML("filestore.read_experiment", filepath.Join(s.experimentDir(id), metaFile), &m); err != nil {
		return domain.Experiment{}, err
	}
	return m.toDomain(id), nil
}
