package promexport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytrack/ttrack/internal/domain"
	"github.com/tinytrack/ttrack/internal/infra/filestore"
	"github.com/tinytrack/ttrack/internal/infra/idgen"
)

func seeded(t *testing.T) *filestore.Store {
	t.Helper()
	store := filestore.New(t.TempDir(), filestore.WithIDs(&idgen.Sequence{
		Experiments: []string{"e1", "e2"},
		Runs:        []string{"r1", "r2", "r3"},
	}))

	exp, err := store.CreateExperiment("demo")
	require.NoError(t, err)

	_, err = store.CreateRun(domain.NewRunSpec{ExperimentID: exp.ID, RunName: "a"})
	require.NoError(t, err)
	require.NoError(t, store.LogMetric(exp.ID, "r1", domain.Metric{Key: "loss", Value: 0.5, Timestamp: 1, Step: 0}))
	require.NoError(t, store.LogMetric(exp.ID, "r1", domain.Metric{Key: "loss", Value: 0.25, Timestamp: 2, Step: 1}))

	_, err = store.CreateRun(domain.NewRunSpec{ExperimentID: exp.ID, RunName: "b"})
	require.NoError(t, err)
	_, err = store.UpdateRun(exp.ID, "r2", domain.RunFinished, fixedEnd)
	require.NoError(t, err)

	_, err = store.CreateRun(domain.NewRunSpec{ExperimentID: exp.ID, RunName: "gone"})
	require.NoError(t, err)
	require.NoError(t, store.DeleteRun(exp.ID, "r3"))

	deleted, err := store.CreateExperiment("old")
	require.NoError(t, err)
	require.NoError(t, store.DeleteExperiment(deleted.ID))
	return store
}

func TestCollect_LatestValuesAndStatus(t *testing.T) {
	e := New(seeded(t), nil)

	expected := `
# HELP ttrack_metric_value Latest logged value of a run metric
# TYPE ttrack_metric_value gauge
ttrack_metric_value{experiment="demo",experiment_id="e1",key="loss",run_id="r1",run_name="a"} 0.25
# HELP ttrack_metric_step Step of the latest logged value of a run metric
# TYPE ttrack_metric_step gauge
ttrack_metric_step{experiment="demo",experiment_id="e1",key="loss",run_id="r1",run_name="a"} 1
# HELP ttrack_runs Number of active runs per experiment and status
# TYPE ttrack_runs gauge
ttrack_runs{experiment="demo",experiment_id="e1",status="FINISHED"} 1
ttrack_runs{experiment="demo",experiment_id="e1",status="RUNNING"} 1
`
	err := testutil.CollectAndCompare(e, strings.NewReader(expected),
		"ttrack_metric_value", "ttrack_metric_step", "ttrack_runs")
	require.NoError(t, err)

	// Two active runs; the deleted run and experiment are not exported.
	assert.Equal(t, 2, testutil.CollectAndCount(e, "ttrack_run_status"))
}

func TestCollect_CountsScrapes(t *testing.T) {
	e := New(seeded(t), nil)

	_, err := e.Registry().Gather()
	require.NoError(t, err)
	_, err = e.Registry().Gather()
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(e.scrapes))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.scrapeErrors))
}

func TestHandler_ServesTextFormat(t *testing.T) {
	e := New(seeded(t), nil)
	srv := httptest.NewServer(e.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `ttrack_metric_value{experiment="demo"`)
	assert.Contains(t, string(body), "ttrack_export_scrapes_total 1")
}

var fixedEnd = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
