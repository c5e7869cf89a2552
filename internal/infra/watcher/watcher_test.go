package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytrack/ttrack/internal/domain"
	"github.com/tinytrack/ttrack/internal/infra/filestore"
	"github.com/tinytrack/ttrack/internal/infra/idgen"
)

func newRun(t *testing.T) (*filestore.Store, string, string) {
	t.Helper()
	root := t.TempDir()
	store := filestore.New(root, filestore.WithIDs(&idgen.Sequence{
		Experiments: []string{"exp1"},
		Runs:        []string{"run1", "run2"},
	}))
	exp, err := store.CreateExperiment("demo")
	require.NoError(t, err)
	_, err = store.CreateRun(domain.NewRunSpec{ExperimentID: exp.ID, RunName: "r"})
	require.NoError(t, err)
	return store, root, exp.ID
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestReadNew_EmitsCompleteLinesOnly(t *testing.T) {
	_, root, _ := newRun(t)
	w, err := New(root, WithBuffer(16))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	path := filepath.Join(root, "exp1", "run1", "metrics", "loss")
	require.NoError(t, os.WriteFile(path, []byte("1000 0.5 0\n2000 0.4"), 0o644))
	w.offsets[path] = 0

	require.NoError(t, w.readNew(context.Background(), path))
	ev := <-w.events
	assert.Equal(t, "exp1", ev.ExperimentID)
	assert.Equal(t, "run1", ev.RunID)
	assert.Equal(t, domain.Metric{Key: "loss", Value: 0.5, Timestamp: 1000, Step: 0}, ev.Metric)
	assert.Len(t, w.events, 0)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(" 1\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, w.readNew(context.Background(), path))
	ev = <-w.events
	assert.Equal(t, domain.Metric{Key: "loss", Value: 0.4, Timestamp: 2000, Step: 1}, ev.Metric)
}

func TestParseMetricPath(t *testing.T) {
	root := t.TempDir()
	w, err := New(root)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	exp, run, key, ok := w.parseMetricPath(filepath.Join(root, "e", "r", "metrics", "train", "loss"))
	require.True(t, ok)
	assert.Equal(t, "e", exp)
	assert.Equal(t, "r", run)
	assert.Equal(t, "train/loss", key)

	_, _, _, ok = w.parseMetricPath(filepath.Join(root, "e", "r", "params", "lr"))
	assert.False(t, ok)
	_, _, _, ok = w.parseMetricPath(filepath.Join(root, "e", "r", "metrics", ".loss.tmp"))
	assert.False(t, ok)
}

func TestNew_MissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
}

func TestRun_TailsExistingAndNewRuns(t *testing.T) {
	store, root, expID := newRun(t)
	require.NoError(t, store.LogMetric(expID, "run1", domain.Metric{Key: "old", Value: 9, Timestamp: 1}))

	w, err := New(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, store.LogMetric(expID, "run1", domain.Metric{Key: "loss", Value: 0.25, Timestamp: 10, Step: 3}))
	ev := next(t, w.Events())
	assert.Equal(t, "run1", ev.RunID)
	assert.Equal(t, "loss", ev.Metric.Key)
	assert.Equal(t, 0.25, ev.Metric.Value)
	assert.Equal(t, int64(3), ev.Metric.Step)

	_, err = store.CreateRun(domain.NewRunSpec{ExperimentID: expID, RunName: "second"})
	require.NoError(t, err)
	require.NoError(t, store.LogMetric(expID, "run2", domain.Metric{Key: "acc", Value: 0.9, Timestamp: 20}))
	ev = next(t, w.Events())
	assert.Equal(t, "run2", ev.RunID)
	assert.Equal(t, "acc", ev.Metric.Key)

	cancel()
	require.NoError(t, <-done)
	_, open := <-w.Events()
	assert.False(t, open)
}

func TestRun_FromStartReplaysExistingPoints(t *testing.T) {
	store, root, expID := newRun(t)
	require.NoError(t, store.LogMetric(expID, "run1", domain.Metric{Key: "loss", Value: 1, Timestamp: 1}))
	require.NoError(t, store.LogMetric(expID, "run1", domain.Metric{Key: "loss", Value: 2, Timestamp: 2, Step: 1}))

	w, err := New(root, WithFromStart(), WithExperiments(expID))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	first := next(t, w.Events())
	second := next(t, w.Events())
	assert.Equal(t, 1.0, first.Metric.Value)
	assert.Equal(t, 2.0, second.Metric.Value)
}
