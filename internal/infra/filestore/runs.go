package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tinytrack/ttrack/internal/domain"
)

// CreateRun starts a RUNNING run in an active experiment and writes the
// reserved mlflow.* tags alongside any extra tags from the spec.
func (s *Store) CreateRun(spec domain.NewRunSpec) (domain.RunInfo, error) {
	const op = "filestore.create_run"
	if err := validateID(op, "experiment", spec.ExperimentID); err != nil {
		return domain.RunInfo{}, err
	}
	for k, v := range spec.Tags {
		if err := validateTag(k, v); err != nil {
			return domain.RunInfo{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exp, err := s.readExperiment(spec.ExperimentID)
	if err != nil {
		return domain.RunInfo{}, err
	}
	if exp.LifecycleStage != domain.StageActive {
		return domain.RunInfo{}, &domain.OpError{
			Op:   op,
			Kind: domain.KindConflict,
			Err:  fmt.Errorf("experiment %s is %s", exp.ID, exp.LifecycleStage),
		}
	}

	runID := s.ids.RunID()
	dir := s.runDir(exp.ID, runID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		kind := domain.KindExecution
		if errors.Is(err, os.ErrExist) {
			kind = domain.KindConflict
		}
		return domain.RunInfo{}, &domain.OpError{Op: op + ".mkdir", Kind: kind, Path: dir, Err: err}
	}
	for _, sub := range []string{paramsDir, metricsDir, tagsDir, artifactsDir} {
		if err := mkdirAll(op, filepath.Join(dir, sub)); err != nil {
			_ = os.RemoveAll(dir)
			return domain.RunInfo{}, err
		}
	}

	start := spec.StartTime
	if start.IsZero() {
		start = s.now()
	}
	sourceType := spec.SourceType
	if sourceType == 0 {
		sourceType = domain.SourceLocal
	}
	runName := strings.TrimSpace(spec.RunName)
	if runName == "" {
		runName = runID[:min(len(runID), 8)]
	}

	info := domain.RunInfo{
		RunID:          runID,
		ExperimentID:   exp.ID,
		RunName:        runName,
		UserID:         spec.UserID,
		SourceName:     spec.SourceName,
		SourceType:     sourceType,
		Status:         domain.RunRunning,
		StartTime:      start.UTC(),
		ArtifactURI:    domain.RunArtifactURI(exp.ID, runID),
		LifecycleStage: domain.StageActive,
	}

	if err := writeYAML(op, filepath.Join(dir, metaFile), runToMeta(info)); err != nil {
		_ = os.RemoveAll(dir)
		return domain.RunInfo{}, err
	}

	tags := map[string]string{
		domain.TagRunName:    runName,
		domain.TagSourceType: sourceType.String(),
	}
	if spec.UserID != "" {
		tags[domain.TagUser] = spec.UserID
	}
	if spec.SourceName != "" {
		tags[domain.TagSourceName] = spec.SourceName
	}
	for k, v := range spec.Tags {
		tags[k] = v
	}
	for k, v := range tags {
		if err := writeKeyedFile(op+".tag", filepath.Join(dir, tagsDir), k, v); err != nil {
			return domain.RunInfo{}, err
		}
	}

	s.live[liveKey(exp.ID, runID)] = true
	s.log.Info("run.created", "experiment_id", exp.ID, "run_id", runID, "run_name", runName)
	return info, nil
}

func (s *Store) GetRun(experimentID, runID string) (domain.Run, error) {
	const op = "filestore.get_run"
	if err := validateID(op, "experiment", experimentID); err != nil {
		return domain.Run{}, err
	}
	if err := validateID(op, "run", runID); err != nil {
		return domain.Run{}, err
	}
	return s.readRun(experimentID, runID)
}

// FindRun locates a run by id in any experiment.
func (s *Store) FindRun(runID string) (domain.Run, error) {
	const op = "filestore.find_run"
	if err := validateID(op, "run", runID); err != nil {
		return domain.Run{}, err
	}

	entries, err := os.ReadDir(s.root)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.Run{}, &domain.OpError{Op: op, Kind: domain.KindExecution, Path: s.root, Err: err}
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.runDir(e.Name(), runID), metaFile)); err == nil {
			return s.readRun(e.Name(), runID)
		}
	}

	return domain.Run{}, &domain.OpError{
		Op:   op,
		Kind: domain.KindNotFound,
		Err:  fmt.Errorf("run %q: %w", runID, domain.ErrNotFound),
	}
}

// ListRuns returns every run of an experiment, newest first.
func (s *Store) ListRuns(experimentID string) ([]domain.Run, error) {
	const op = "filestore.list_runs"
	if err := validateID(op, "experiment", experimentID); err != nil {
		return nil, err
	}
	if _, err := s.readExperiment(experimentID); err != nil {
		return nil, err
	}

	dir := s.experimentDir(experimentID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, readError(op, dir, err)
	}

	out := make([]domain.Run, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, e.Name(), metaFile)); err != nil {
			continue
		}
		run, err := s.readRun(experimentID, e.Name())
		if err != nil {
			s.log.Debug("run.skipped", "experiment_id", experimentID, "dir", e.Name(), "err", err)
			continue
		}
		out = append(out, run)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Info, out[j].Info
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.After(b.StartTime)
		}
		return a.RunID < b.RunID
	})
	return out, nil
}

// UpdateRun sets the status of a run. A terminal status without an end time
// stamps the current time.
func (s *Store) UpdateRun(experimentID, runID string, status domain.RunStatus, endTime time.Time) (domain.RunInfo, error) {
	const op = "filestore.update_run"
	if !status.Valid() {
		return domain.RunInfo{}, &domain.OpError{
			Op:   op,
			Kind: domain.KindInvalidArgument,
			Err:  fmt.Errorf("invalid run status %d", int(status)),
		}
	}
	if err := validateID(op, "experiment", experimentID); err != nil {
		return domain.RunInfo{}, err
	}
	if err := validateID(op, "run", runID); err != nil {
		return domain.RunInfo{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.readRunInfo(experimentID, runID)
	if err != nil {
		return domain.RunInfo{}, err
	}

	info.Status = status
	switch {
	case !endTime.IsZero():
		info.EndTime = endTime.UTC()
	case status.Terminal():
		info.EndTime = s.now().UTC()
	default:
		info.EndTime = time.Time{}
	}

	if err := writeYAML(op, filepath.Join(s.runDir(experimentID, runID), metaFile), runToMeta(info)); err != nil {
		return domain.RunInfo{}, err
	}

	s.log.Info("run.updated", "experiment_id", experimentID, "run_id", runID, "status", status.String())
	return info, nil
}

func (s *Store) DeleteRun(experimentID, runID string) error {
	return s.setRunStage("filestore.delete_run", experimentID, runID, domain.StageDeleted)
}

func (s *Store) RestoreRun(experimentID, runID string) error {
	return s.setRunStage("filestore.restore_run", experimentID, runID, domain.StageActive)
}

func (s *Store) setRunStage(op, experimentID, runID string, stage domain.LifecycleStage) error {
	if err := validateID(op, "experiment", experimentID); err != nil {
		return err
	}
	if err := validateID(op, "run", runID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := s.readRunInfo(experimentID, runID)
	if err != nil {
		return err
	}
	info.LifecycleStage = stage
	if err := writeYAML(op, filepath.Join(s.runDir(experimentID, runID), metaFile), runToMeta(info)); err != nil {
		return err
	}

	delete(s.live, liveKey(experimentID, runID))
	s.log.Info("run.stage_changed", "experiment_id", experimentID, "run_id", runID, "stage", stage)
	return nil
}

func (s *Store) readRunInfo(experimentID, runID string) (domain.RunInfo, error) {
	var m runMeta
	if err := readYAML("filestore.read_run", filepath.Join(s.runDir(experimentID, runID), metaFile), &m); err != nil {
		return domain.RunInfo{}, err
	}
	info := m.toDomain()
	info.ExperimentID = experimentID
	info.RunID = runID
	return info, nil
}

func (s *Store) readRun(experimentID, runID string) (domain.Run, error) {
	info, err := s.readRunInfo(experimentID, runID)
	if err != nil {
		return domain.Run{}, err
	}
	dir := s.runDir(experimentID, runID)

	params, err := readKeyedFiles("filestore.read_params", filepath.Join(dir, paramsDir))
	if err != nil {
		return domain.Run{}, err
	}
	tags, err := readKeyedFiles("filestore.read_tags", filepath.Join(dir, tagsDir))
	if err != nil {
		return domain.Run{}, err
	}
	metrics, err := readLatestMetrics(filepath.Join(dir, metricsDir))
	if err != nil {
		return domain.Run{}, err
	}

	return domain.Run{
		Info:    info,
		Params:  params,
		Tags:    tags,
		Metrics: metrics,
	}, nil
}

// requireLiveRun checks that a run exists and is not deleted. Callers hold s.mu.
func (s *Store) requireLiveRun(op, experimentID, runID string) error {
	if err := validateID(op, "experiment", experimentID); err != nil {
		return err
	}
	if err := validateID(op, "run", runID); err != nil {
		return err
	}
	key := liveKey(experimentID, runID)
	if s.live[key] {
		return nil
	}

	info, err := s.readRunInfo(experimentID, runID)
	if err != nil {
		return err
	}
	if info.LifecycleStage != domain.StageActive {
		return &domain.OpError{
			Op:   op,
			Kind: domain.KindConflict,
			Err:  fmt.Errorf("run %s is %s", runID, info.LifecycleStage),
		}
	}
	s.live[key] = true
	return nil
}

func liveKey(experimentID, runID string) string {
	return experimentID + "/" + runID
}
