package domain

import (
	"fmt"
	"strings"
	"time"
)

// RunStatus uses the numeric codes MLflow writes into run meta files.
type RunStatus int

const (
	RunRunning   RunStatus = 1
	RunScheduled RunStatus = 2
	RunFinished  RunStatus = 3
	RunFailed    RunStatus = 4
	RunKilled    RunStatus = 5
)

var runStatusNames = map[RunStatus]string{
	RunRunning:   "RUNNING",
	RunScheduled: "SCHEDULED",
	RunFinished:  "FINISHED",
	RunFailed:    "FAILED",
	RunKilled:    "KILLED",
}

func (s RunStatus) String() string {
	if n, ok := runStatusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("RunStatus(%d)", int(s))
}

func (s RunStatus) Valid() bool {
	_, ok := runStatusNames[s]
	return ok
}

// Terminal reports whether a run in this status can no longer receive data.
func (s RunStatus) Terminal() bool {
	return s == RunFinished || s == RunFailed || s == RunKilled
}

// ParseRunStatus accepts names case-insensitively ("finished") or numeric codes ("3").
func ParseRunStatus(s string) (RunStatus, error) {
	in := strings.ToUpper(strings.TrimSpace(s))
	for st, name := range runStatusNames {
		if name == in || fmt.Sprint(int(st)) == in {
			return st, nil
		}
	}
	return 0, &OpError{
		Op:   "domain.parse_status",
		Kind: KindInvalidArgument,
		Err:  fmt.Errorf("unknown run status %q", s),
	}
}

// SourceType mirrors MLflow's source type codes.
type SourceType int

const (
	SourceNotebook SourceType = 1
	SourceJob      SourceType = 2
	SourceProject  SourceType = 3
	SourceLocal    SourceType = 4
	SourceUnknown  SourceType = 1000
)

func (s SourceType) String() string {
	switch s {
	case SourceNotebook:
		return "NOTEBOOK"
	case SourceJob:
		return "JOB"
	case SourceProject:
		return "PROJECT"
	case SourceLocal:
		return "LOCAL"
	default:
		return "UNKNOWN"
	}
}

// Reserved tag keys written when a run is created.
const (
	TagRunName    = "mlflow.runName"
	TagUser       = "mlflow.user"
	TagSourceName = "mlflow.source.name"
	TagSourceType = "mlflow.source.type"
)

// RunInfo is the metadata stored in a run's meta.yaml.
type RunInfo struct {
	RunID          string
	ExperimentID   string
	RunName        string
	UserID         string
	SourceName     string
	SourceType     SourceType
	Status         RunStatus
	StartTime      time.Time
	EndTime        time.Time // zero while the run is active
	ArtifactURI    string
	LifecycleStage LifecycleStage
}

// Duration is zero for runs without an end time.
func (i RunInfo) Duration() time.Duration {
	if i.StartTime.IsZero() || i.EndTime.IsZero() {
		return 0
	}
	return i.EndTime.Sub(i.StartTime)
}

// Run is a full view of a run: metadata, params, tags and the latest value of each metric.
type Run struct {
	Info    RunInfo
	Params  map[string]string
	Tags    map[string]string
	Metrics map[string]Metric
}

// NewRunSpec carries the inputs for creating a run.
type NewRunSpec struct {
	ExperimentID string
	RunName      string
	UserID       string
	SourceName   string
	SourceType   SourceType
	StartTime    time.Time
	Tags         map[string]string
}

// Batch groups params, metrics and tags written in one call.
type Batch struct {
	Params  []Param
	Metrics []Metric
	Tags    []Tag
}

func (b Batch) Empty() bool {
	return len(b.Params) == 0 && len(b.Metrics) == 0 && len(b.Tags) == 0
}

type Param struct {
	Key   string
	Value string
}

type Tag struct {
	Key   string
	Value string
}

// WorkspaceSpec describes where a workspace should be initialized.
type WorkspaceSpec struct {
	Root        string
	TrackingDir string
}
