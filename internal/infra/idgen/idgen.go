package idgen

import (
	"strings"

	"github.com/google/uuid"

	"github.com/tinytrack/ttrack/internal/ports"
)

// UUID issues random (version 4) identifiers. Experiment ids keep the dashed
// form; run ids use the 32-character hex form MLflow uses for runs.
type UUID struct{}

func New() UUID { return UUID{} }

var _ ports.IDGenerator = UUID{}

func (UUID) ExperimentID() string {
	return uuid.NewString()
}

func (UUID) RunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Sequence is a deterministic generator, useful for tests.
type Sequence struct {
	Experiments []string
	Runs        []string
}

func (s *Sequence) ExperimentID() string {
	return pop(&s.Experiments)
}

func (s *Sequence) RunID() string {
	return pop(&s.Runs)
}

func pop(q *[]string) string {
	if len(*q) == 0 {
		return New().RunID()
	}
	v := (*q)[0]
	*q = (*q)[1:]
	return v
}
