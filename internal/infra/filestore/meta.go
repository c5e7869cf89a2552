package filestore

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tinytrack/ttrack/internal/domain"
)

// quoted is written single-quoted, matching MLflow's experiment_id fields.
type quoted string

func (q quoted) MarshalYAML() (any, error) {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Style: yaml.SingleQuotedStyle,
		Tag:   "!!str",
		Value: string(q),
	}, nil
}

type experimentMeta struct {
	ArtifactLocation string `yaml:"artifact_location"`
	CreationTime     int64  `yaml:"creation_time"`
	ExperimentID     quoted `yaml:"experiment_id"`
	LastUpdateTime   int64  `yaml:"last_update_time"`
	LifecycleStage   string `yaml:"lifecycle_stage"`
	Name             string `yaml:"name"`
}

type runMeta struct {
	ArtifactURI    string   `yaml:"artifact_uri"`
	EndTime        *int64   `yaml:"end_time"`
	EntryPointName string   `yaml:"entry_point_name"`
	ExperimentID   quoted   `yaml:"experiment_id"`
	LifecycleStage string   `yaml:"lifecycle_stage"`
	RunID          string   `yaml:"run_id"`
	RunName        string   `yaml:"run_name"`
	RunUUID        string   `yaml:"run_uuid"`
	SourceName     string   `yaml:"source_name"`
	SourceType     int      `yaml:"source_type"`
	SourceVersion  string   `yaml:"source_version"`
	StartTime      int64    `yaml:"start_time"`
	Status         int      `yaml:"status"`
	Tags           []string `yaml:"tags"`
	UserID         string   `yaml:"user_id"`
}

func experimentToMeta(e domain.Experiment) experimentMeta {
	return experimentMeta{
		ArtifactLocation: e.ArtifactLocation,
		CreationTime:     toMillis(e.CreationTime),
		ExperimentID:     quoted(e.ID),
		LastUpdateTime:   toMillis(e.LastUpdateTime),
		LifecycleStage:   string(e.LifecycleStage),
		Name:             e.Name,
	}
}

// toDomain takes the id from the directory name; that is what lookups use.
func (m experimentMeta) toDomain(dirID string) domain.Experiment {
	stage := domain.LifecycleStage(m.LifecycleStage)
	if !stage.Valid() {
		stage = domain.StageActive
	}
	return domain.Experiment{
		ID:               dirID,
		Name:             m.Name,
		ArtifactLocation: m.ArtifactLocation,
		LifecycleStage:   stage,
		CreationTime:     fromEpoch(m.CreationTime),
		LastUpdateTime:   fromEpoch(m.LastUpdateTime),
	}
}

func runToMeta(i domain.RunInfo) runMeta {
	m := runMeta{
		ArtifactURI:    i.ArtifactURI,
		ExperimentID:   quoted(i.ExperimentID),
		LifecycleStage: string(i.LifecycleStage),
		RunID:          i.RunID,
		RunName:        i.RunName,
		RunUUID:        i.RunID,
		SourceName:     i.SourceName,
		SourceType:     int(i.SourceType),
		StartTime:      toMillis(i.StartTime),
		Status:         int(i.Status),
		Tags:           []string{},
		UserID:         i.UserID,
	}
	if !i.EndTime.IsZero() {
		end := toMillis(i.EndTime)
		m.EndTime = &end
	}
	return m
}

func (m runMeta) toDomain() domain.RunInfo {
	id := m.RunID
	if id == "" {
		id = m.RunUUID
	}
	stage := domain.LifecycleStage(m.LifecycleStage)
	if !stage.Valid() {
		stage = domain.StageActive
	}
	info := domain.RunInfo{
		RunID:          id,
		ExperimentID:   string(m.ExperimentID),
		RunName:        m.RunName,
		UserID:         m.UserID,
		SourceName:     m.SourceName,
		SourceType:     domain.SourceType(m.SourceType),
		Status:         domain.RunStatus(m.Status),
		StartTime:      fromEpoch(m.StartTime),
		ArtifactURI:    m.ArtifactURI,
		LifecycleStage: stage,
	}
	if m.EndTime != nil {
		info.EndTime = fromEpoch(*m.EndTime)
	}
	return info
}

func readYAML(op, path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return readError(op, path, err)
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return &domain.OpError{
			Op:   op,
			Kind: domain.KindInvalidConfig,
			Path: path,
			Err:  err,
		}
	}
	return nil
}

func writeYAML(op, path string, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return &domain.OpError{
			Op:   op + ".marshal",
			Kind: domain.KindExecution,
			Path: path,
			Err:  err,
		}
	}
	return writeFileAtomic(op, path, b, 0o644)
}
