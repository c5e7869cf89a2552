// Package ttrack is a minimalist, MLflow-compatible experiment tracker.
//
// A LocalLogger writes params, metrics and tags into an MLflow FileStore
// directory tree, so the result can be browsed with the ttrack CLI or read by
// any tool that understands the mlruns layout:
//
//	l, err := ttrack.NewLocalLogger("mlruns", "vision", "baseline", "train.go")
//	if err != nil {
//		return err
//	}
//	defer l.Close()
//	_ = l.LogParam("lr", "0.01")
//	_ = l.LogMetric("loss", 0.42)
package ttrack

import (
	"github.com/tinytrack/ttrack/internal/buildinfo"
	"github.com/tinytrack/ttrack/internal/domain"
	"github.com/tinytrack/ttrack/internal/infra/filestore"
	"github.com/tinytrack/ttrack/internal/infra/idgen"
	"github.com/tinytrack/ttrack/internal/infra/logger"
	"github.com/tinytrack/ttrack/internal/usecase"
)

type (
	LocalLogger = usecase.LocalLogger
	RunStatus   = domain.RunStatus
	ErrorKind   = domain.ErrorKind
)

const (
	StatusFinished = domain.RunFinished
	StatusFailed   = domain.RunFailed
	StatusKilled   = domain.RunKilled

	KindNotFound        = domain.KindNotFound
	KindInvalidArgument = domain.KindInvalidArgument
	KindConflict        = domain.KindConflict
)

// ParseStatus accepts a status name (case-insensitive) or its numeric code.
func ParseStatus(s string) (RunStatus, error) { return domain.ParseRunStatus(s) }

// Version is the released version of the tracker.
func Version() string { return buildinfo.Version }

// NewLocalLogger starts a RUNNING run named run in the experiment named
// experiment under dir, creating the experiment when it does not exist yet.
// An empty run name defaults to the first 8 characters of the run id.
func NewLocalLogger(dir, experiment, run, source string) (*LocalLogger, error) {
	return usecase.StartLocalLogger(openStore(dir), usecase.LoggerSpec{
		ExperimentName: experiment,
		RunName:        run,
		Source:         source,
	}, usecase.WithLoggerLog(logger.L()))
}

// GetExperiments maps experiment id to name for every experiment under dir.
// A missing dir yields an empty map.
func GetExperiments(dir string) (map[string]string, error) {
	return openStore(dir).ExperimentNames()
}

// IsKind reports whether err carries the given kind, e.g. ttrack.IsKind(err, ttrack.KindConflict).
func IsKind(err error, kind ErrorKind) bool { return domain.IsKind(err, kind) }

func openStore(dir string) *filestore.Store {
	return filestore.New(dir,
		filestore.WithIDs(idgen.New()),
		filestore.WithLogger(logger.L()),
	)
}
