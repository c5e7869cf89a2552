package filestore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tinytrack/ttrack/internal/domain"
)

// LogParam records an immutable param. Re-logging the same value is a no-op;
// a different value fails with KindConflict.
func (s *Store) LogParam(experimentID, runID string, p domain.Param) error {
	if err := validateParam(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLiveRun("filestore.log_param", experimentID, runID); err != nil {
		return err
	}
	return s.logParamLocked(experimentID, runID, p)
}

// LogMetric appends one point to the metric's series file.
func (s *Store) LogMetric(experimentID, runID string, m domain.Metric) error {
	if err := domain.ValidateKey(domain.KeyMetric, m.Key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLiveRun("filestore.log_metric", experimentID, runID); err != nil {
		return err
	}
	return s.appendMetricsLocked(experimentID, runID, []domain.Metric{m})
}

// SetTag writes or overwrites a tag. Setting mlflow.runName also renames the run.
func (s *Store) SetTag(experimentID, runID string, t domain.Tag) error {
	if err := validateTag(t.Key, t.Value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLiveRun("filestore.set_tag", experimentID, runID); err != nil {
		return err
	}
	return s.setTagLocked(experimentID, runID, t)
}

// LogBatch validates every entry before writing any of them.
func (s *Store) LogBatch(experimentID, runID string, b domain.Batch) error {
	for _, p := range b.Params {
		if err := validateParam(p); err != nil {
			return err
		}
	}
	for _, m := range b.Metrics {
		if err := domain.ValidateKey(domain.KeyMetric, m.Key); err != nil {
			return err
		}
	}
	for _, t := range b.Tags {
		if err := validateTag(t.Key, t.Value); err != nil {
			return err
		}
	}
	if b.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireLiveRun("filestore.log_batch", experimentID, runID); err != nil {
		return err
	}

	// Param conflicts are checked up front so a rejected batch writes nothing.
	dir := filepath.Join(s.runDir(experimentID, runID), paramsDir)
	seen := map[string]string{}
	for _, p := range b.Params {
		if prev, ok := seen[p.Key]; ok && prev != p.Value {
			return paramConflict("filestore.log_batch", p.Key, prev, p.Value)
		}
		seen[p.Key] = p.Value
		if err := checkParamConflict("filestore.log_batch", dir, p); err != nil {
			return err
		}
	}

	for _, p := range b.Params {
		if err := s.logParamLocked(experimentID, runID, p); err != nil {
			return err
		}
	}
	if err := s.appendMetricsLocked(experimentID, runID, b.Metrics); err != nil {
		return err
	}
	for _, t := range b.Tags {
		if err := s.setTagLocked(experimentID, runID, t); err != nil {
			return err
		}
	}
	return nil
}

// MetricHistory returns every point of a metric in the order it was logged.
func (s *Store) MetricHistory(experimentID, runID, key string) ([]domain.Metric, error) {
	const op = "filestore.metric_history"
	if err := validateID(op, "experiment", experimentID); err != nil {
		return nil, err
	}
	if err := validateID(op, "run", runID); err != nil {
		return nil, err
	}
	if err := domain.ValidateKey(domain.KeyMetric, key); err != nil {
		return nil, err
	}
	if _, err := s.readRunInfo(experimentID, runID); err != nil {
		return nil, err
	}

	path := keyPath(filepath.Join(s.runDir(experimentID, runID), metricsDir), key)
	return readMetricFile(op, path, key)
}

func (s *Store) logParamLocked(experimentID, runID string, p domain.Param) error {
	const op = "filestore.log_param"
	dir := filepath.Join(s.runDir(experimentID, runID), paramsDir)

	if err := checkParamConflict(op, dir, p); err != nil {
		return err
	}
	if _, err := os.Stat(keyPath(dir, p.Key)); err == nil {
		return nil
	}
	if err := writeKeyedFile(op, dir, p.Key, p.Value); err != nil {
		return err
	}

	s.log.Debug("param.logged", "run_id", runID, "key", p.Key)
	return nil
}

func (s *Store) appendMetricsLocked(experimentID, runID string, metrics []domain.Metric) error {
	const op = "filestore.log_metric"
	if len(metrics) == 0 {
		return nil
	}
	dir := filepath.Join(s.runDir(experimentID, runID), metricsDir)

	// One write per key keeps each series file append atomic per batch.
	lines := map[string]*strings.Builder{}
	order := []string{}
	for _, m := range metrics {
		b, ok := lines[m.Key]
		if !ok {
			b = &strings.Builder{}
			lines[m.Key] = b
			order = append(order, m.Key)
		}
		b.WriteString(domain.FormatMetricLine(m))
		b.WriteByte('\n')
	}

	for _, key := range order {
		path := keyPath(dir, key)
		if err := mkdirAll(op, filepath.Dir(path)); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return &domain.OpError{Op: op + ".open", Kind: domain.KindExecution, Path: path, Err: err}
		}
		_, werr := f.WriteString(lines[key].String())
		cerr := f.Close()
		if werr != nil {
			return &domain.OpError{Op: op + ".append", Kind: domain.KindExecution, Path: path, Err: werr}
		}
		if cerr != nil {
			return &domain.OpError{Op: op + ".close", Kind: domain.KindExecution, Path: path, Err: cerr}
		}
	}

	s.log.Debug("metric.logged", "run_id", runID, "points", len(metrics))
	return nil
}

func (s *Store) setTagLocked(experimentID, runID string, t domain.Tag) error {
	const op = "filestore.set_tag"
	runDir := s.runDir(experimentID, runID)

	if err := writeKeyedFile(op, filepath.Join(runDir, tagsDir), t.Key, t.Value); err != nil {
		return err
	}

	if t.Key == domain.TagRunName {
		info, err := s.readRunInfo(experimentID, runID)
		if err != nil {
			return err
		}
		info.RunName = t.Value
		if err := writeYAML(op, filepath.Join(runDir, metaFile), runToMeta(info)); err != nil {
			return err
		}
	}
	return nil
}

func validateParam(p domain.Param) error {
	if err := domain.ValidateKey(domain.KeyParam, p.Key); err != nil {
		return err
	}
	return domain.ValidateParamValue(p.Key, p.Value)
}

func validateTag(key, value string) error {
	if err := domain.ValidateKey(domain.KeyTag, key); err != nil {
		return err
	}
	return domain.ValidateTagValue(key, value)
}

func checkParamConflict(op, dir string, p domain.Param) error {
	b, err := os.ReadFile(keyPath(dir, p.Key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return readError(op, keyPath(dir, p.Key), err)
	}
	if string(b) != p.Value {
		return paramConflict(op, p.Key, string(b), p.Value)
	}
	return nil
}

func paramConflict(op, key, old, next string) error {
	return &domain.OpError{
		Op:   op,
		Kind: domain.KindConflict,
		Err:  fmt.Errorf("param %q already logged with value %q; params are immutable (attempted %q)", key, old, next),
	}
}

func writeKeyedFile(op, dir, key, value string) error {
	path := keyPath(dir, key)
	if err := mkdirAll(op, filepath.Dir(path)); err != nil {
		return err
	}
	return writeFileAtomic(op, path, []byte(value), 0o644)
}

// readKeyedFiles maps every file under dir (by slash-separated relative path)
// to its content. A missing dir yields an empty map.
func readKeyedFiles(op, dir string) (map[string]string, error) {
	out := map[string]string{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || isTempFile(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(b)
		return nil
	})
	if err != nil {
		return nil, &domain.OpError{Op: op, Kind: domain.KindExecution, Path: dir, Err: err}
	}
	return out, nil
}

func readLatestMetrics(dir string) (map[string]domain.Metric, error) {
	const op = "filestore.read_metrics"
	out := map[string]domain.Metric{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}
			return err
		}
		if d.IsDir() || isTempFile(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		points, err := readMetricFile(op, p, key)
		if err != nil {
			return err
		}
		if latest, ok := domain.LatestMetrics(points); ok {
			out[key] = latest
		}
		return nil
	})
	if err != nil {
		var oe *domain.OpError
		if errors.As(err, &oe) {
			return nil, err
		}
		return nil, &domain.OpError{Op: op, Kind: domain.KindExecution, Path: dir, Err: err}
	}
	return out, nil
}

func readMetricFile(op, path, key string) ([]domain.Metric, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, readError(op, path, err)
	}
	defer f.Close()

	var out []domain.Metric
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		m, err := domain.ParseMetricLine(key, line)
		if err != nil {
			return nil, &domain.OpError{
				Op:   op,
				Kind: domain.KindInvalidConfig,
				Path: fmt.Sprintf("%s:%d", path, lineNo),
				Err:  err,
			}
		}
		out = append(out, m)
	}
	if err := sc.Err(); err != nil {
		return nil, &domain.OpError{Op: op, Kind: domain.KindExecution, Path: path, Err: err}
	}
	return out, nil
}
