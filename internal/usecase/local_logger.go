package usecase

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tinytrack/ttrack/internal/domain"
	"github.com/tinytrack/ttrack/internal/ports"
)

// LoggerSpec names the experiment and run a LocalLogger writes to.
type LoggerSpec struct {
	ExperimentName string // defaults to domain.DefaultExperimentName
	RunName        string
	Source         string
	User           string
	Tags           map[string]string
}

type LoggerOption func(*LocalLogger)

func WithLoggerNow(now func() time.Time) LoggerOption {
	return func(l *LocalLogger) { l.now = now }
}

func WithLoggerLog(log *slog.Logger) LoggerOption {
	return func(l *LocalLogger) {
		if log != nil {
			l.log = log
		}
	}
}

// LocalLogger records params, metrics and tags for one run. It resolves the
// experiment by name (creating it when missing) and starts a RUNNING run.
// A LocalLogger is safe for concurrent use; once ended it rejects writes.
type LocalLogger struct {
	store ports.TrackingStore
	log   *slog.Logger
	now   func() time.Time

	experiment domain.Experiment

	mu    sync.Mutex
	run   domain.RunInfo
	steps map[string]int64
	ended bool
}

func StartLocalLogger(store ports.TrackingStore, spec LoggerSpec, opts ...LoggerOption) (*LocalLogger, error) {
	l := &LocalLogger{
		store: store,
		log:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
		now:   time.Now,
		steps: map[string]int64{},
	}
	for _, opt := range opts {
		opt(l)
	}

	name := strings.TrimSpace(spec.ExperimentName)
	if name == "" {
		name = domain.DefaultExperimentName
	}

	exp, created, err := store.EnsureExperiment(name)
	if err != nil {
		return nil, err
	}
	if created {
		l.log.Info("experiment.created", "experiment_id", exp.ID, "name", name)
	}

	run, err := store.CreateRun(domain.NewRunSpec{
		ExperimentID: exp.ID,
		RunName:      spec.RunName,
		UserID:       spec.User,
		SourceName:   spec.Source,
		SourceType:   domain.SourceLocal,
		StartTime:    l.now(),
		Tags:         spec.Tags,
	})
	if err != nil {
		return nil, err
	}

	l.experiment = exp
	l.run = run
	l.log.Info("run.started",
		"experiment_id", exp.ID,
		"run_id", run.RunID,
		"run_name", run.RunName,
	)
	return l, nil
}

func (l *LocalLogger) ExperimentID() string { return l.experiment.ID }

func (l *LocalLogger) ExperimentName() string { return l.experiment.Name }

func (l *LocalLogger) RunID() string { return l.run.RunID }

func (l *LocalLogger) Info() domain.RunInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.run
}

func (l *LocalLogger) LogParam(key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkOpen("usecase.log_param"); err != nil {
		return err
	}
	return l.store.LogParam(l.experiment.ID, l.run.RunID, domain.Param{Key: key, Value: value})
}

// LogParams writes several params at once, in key order.
func (l *LocalLogger) LogParams(params map[string]string) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batch := domain.Batch{Params: make([]domain.Param, 0, len(keys))}
	for _, k := range keys {
		batch.Params = append(batch.Params, domain.Param{Key: k, Value: params[k]})
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkOpen("usecase.log_params"); err != nil {
		return err
	}
	return l.store.LogBatch(l.experiment.ID, l.run.RunID, batch)
}

// LogMetric records value at the next step of the key's series (starting at 0).
func (l *LocalLogger) LogMetric(key string, value float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkOpen("usecase.log_metric"); err != nil {
		return err
	}
	step := l.steps[key]
	if err := l.logMetricLocked(key, value, step); err != nil {
		return err
	}
	return nil
}

// LogMetricAt records value at an explicit step. Later auto-stepped points
// continue after the highest step seen.
func (l *LocalLogger) LogMetricAt(key string, value float64, step int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkOpen("usecase.log_metric"); err != nil {
		return err
	}
	return l.logMetricLocked(key, value, step)
}

func (l *LocalLogger) logMetricLocked(key string, value float64, step int64) error {
	m := domain.Metric{
		Key:       key,
		Value:     value,
		Timestamp: l.now().UnixMilli(),
		Step:      step,
	}
	if err := l.store.LogMetric(l.experiment.ID, l.run.RunID, m); err != nil {
		return err
	}
	if step+1 > l.steps[key] {
		l.steps[key] = step + 1
	}
	return nil
}

func (l *LocalLogger) SetTag(key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkOpen("usecase.set_tag"); err != nil {
		return err
	}
	if err := l.store.SetTag(l.experiment.ID, l.run.RunID, domain.Tag{Key: key, Value: value}); err != nil {
		return err
	}
	if key == domain.TagRunName {
		l.run.RunName = value
	}
	return nil
}

// End marks the run with a terminal status. Ending twice fails with KindConflict.
func (l *LocalLogger) End(status domain.RunStatus) error {
	if !status.Terminal() {
		return &domain.OpError{
			Op:   "usecase.end_run",
			Kind: domain.KindInvalidArgument,
			Err:  fmt.Errorf("status %s is not terminal", status),
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkOpen("usecase.end_run"); err != nil {
		return err
	}

	info, err := l.store.UpdateRun(l.experiment.ID, l.run.RunID, status, l.now())
	if err != nil {
		return err
	}
	l.run = info
	l.ended = true

	l.log.Info("run.ended", "run_id", info.RunID, "status", status.String(), "duration", info.Duration().String())
	return nil
}

// Close ends the run as FINISHED unless it was already ended.
func (l *LocalLogger) Close() error {
	err := l.End(domain.RunFinished)
	if err != nil && errors.Is(err, errLoggerEnded) {
		return nil
	}
	return err
}

var errLoggerEnded = errors.New("run already ended")

func (l *LocalLogger) checkOpen(op string) error {
	if l.ended {
		return &domain.OpError{
			Op:   op,
			Kind: domain.KindConflict,
			Err:  fmt.Errorf("run %s: %w", l.run.RunID, errLoggerEnded),
		}
	}
	return nil
}
