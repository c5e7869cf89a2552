package domain

import "time"

// DefaultExperimentName is used when a run is started without an experiment name.
const DefaultExperimentName = "Default"

// LifecycleStage marks experiments and runs as live or soft-deleted.
type LifecycleStage string

const (
	StageActive  LifecycleStage = "active"
	StageDeleted LifecycleStage = "deleted"
)

func (s LifecycleStage) Valid() bool {
	return s == StageActive || s == StageDeleted
}

// Experiment groups runs under a human-readable name.
type Experiment struct {
	ID               string
	Name             string
	ArtifactLocation string
	LifecycleStage   LifecycleStage
	CreationTime     time.Time
	LastUpdateTime   time.Time
}

// ExperimentArtifactLocation is the artifact root recorded for a new experiment.
func ExperimentArtifactLocation(id string) string {
	return "mlflow-artifacts:/" + id
}

// RunArtifactURI is the artifact root recorded for a new run.
func RunArtifactURI(experimentID, runID string) string {
	return "mlflow-artifacts:/" + experimentID + "/" + runID + "/artifacts"
}
