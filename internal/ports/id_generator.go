package ports

// IDGenerator produces identifiers for new experiments and runs.
type IDGenerator interface {
	ExperimentID() string
	RunID() string
}
