package ports

import (
	"time"

	"github.com/tinytrack/ttrack/internal/domain"
)

// ExperimentStore persists experiments.
type ExperimentStore interface {
	ListExperiments() ([]domain.Experiment, error)
	GetExperiment(id string) (domain.Experiment, error)
	GetExperimentByName(name string) (domain.Experiment, error)
	CreateExperiment(name string) (domain.Experiment, error)
	// EnsureExperiment returns the active experiment with this name, creating it if missing.
	EnsureExperiment(name string) (exp domain.Experiment, created bool, err error)
	ExperimentNames() (map[string]string, error)
	DeleteExperiment(id string) error
	RestoreExperiment(id string) error
}

// RunStore persists runs and the data logged to them.
type RunStore interface {
	CreateRun(spec domain.NewRunSpec) (domain.RunInfo, error)
	GetRun(experimentID, runID string) (domain.Run, error)
	FindRun(runID string) (domain.Run, error)
	ListRuns(experimentID string) ([]domain.Run, error)
	UpdateRun(experimentID, runID string, status domain.RunStatus, endTime time.Time) (domain.RunInfo, error)
	DeleteRun(experimentID, runID string) error
	RestoreRun(experimentID, runID string) error

	LogParam(experimentID, runID string, p domain.Param) error
	LogMetric(experimentID, runID string, m domain.Metric) error
	SetTag(experimentID, runID string, t domain.Tag) error
	LogBatch(experimentID, runID string, b domain.Batch) error
	MetricHistory(experimentID, runID, key string) ([]domain.Metric, error)
}

// TrackingStore is the full store the tracking API works against.
type TrackingStore interface {
	ExperimentStore
	RunStore
	Root() string
}
