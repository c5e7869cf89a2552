package search

import (
	"testing"
	"time"

	"github.com/tinytrack/ttrack/internal/domain"
)

func mkRun(id string, start int64, status domain.RunStatus, params map[string]string, metrics map[string]float64) domain.Run {
	r := domain.Run{
		Info: domain.RunInfo{
			RunID:          id,
			RunName:        "run-" + id,
			Status:         status,
			LifecycleStage: domain.StageActive,
			StartTime:      time.UnixMilli(start),
		},
		Params:  params,
		Tags:    map[string]string{},
		Metrics: map[string]domain.Metric{},
	}
	for k, v := range metrics {
		r.Metrics[k] = domain.Metric{Key: k, Value: v}
	}
	return r
}

func TestParseFilter_Empty(t *testing.T) {
	f, err := ParseFilter("   ")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(f.Clauses) != 0 {
		t.Fatalf("expected no clauses, got %+v", f.Clauses)
	}
	if !f.Match(mkRun("a", 1, domain.RunRunning, nil, nil)) {
		t.Fatalf("empty filter must match everything")
	}
}

func TestParseFilter_Clauses(t *testing.T) {
	f, err := ParseFilter("metrics.loss <= 0.5 AND params.optim = 'adam' and status = finished and params.`batch size` != \"32\"")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(f.Clauses) != 4 {
		t.Fatalf("expected 4 clauses, got %d", len(f.Clauses))
	}

	want := []Clause{
		{Entity: EntityMetric, Key: "loss", Op: OpLe, Value: "0.5", Number: 0.5},
		{Entity: EntityParam, Key: "optim", Op: OpEq, Value: "adam", Quoted: true},
		{Entity: EntityAttribute, Key: "status", Op: OpEq, Value: "FINISHED", Quoted: true},
		{Entity: EntityParam, Key: "batch size", Op: OpNe, Value: "32", Quoted: true},
	}
	for i, c := range f.Clauses {
		if c != want[i] {
			t.Fatalf("clause %d: expected %+v, got %+v", i, want[i], c)
		}
	}
}

func TestParseFilter_Errors(t *testing.T) {
	cases := []string{
		"metrics.loss <",
		"metrics.loss < 'x'",
		"foo.bar = 1",
		"nosuchattr = 1",
		"params.a = 1 or params.b = 2",
		"params.a = 1 and",
		"params.a = 'open",
		"params.a ! 1",
		"status < 'FINISHED'",
		"status = 'DONE'",
		"params.`x = 1",
		"params. = 1",
	}
	for _, in := range cases {
		if _, err := ParseFilter(in); !domain.IsKind(err, domain.KindInvalidArgument) {
			t.Fatalf("%q: expected invalid_argument, got %v", in, err)
		}
	}
}

func TestFilter_Match(t *testing.T) {
	run := mkRun("a", 5000, domain.RunFinished,
		map[string]string{"optim": "adam", "layers": "12"},
		map[string]float64{"loss": 0.3, "acc": 0.9},
	)

	cases := []struct {
		filter string
		want   bool
	}{
		{"metrics.loss < 0.5", true},
		{"metrics.loss > 0.5", false},
		{"metrics.loss = 0.3 and metrics.acc >= 0.9", true},
		{"metrics.missing < 1", false},
		{"params.optim = 'adam'", true},
		{"params.optim != 'adam'", false},
		{"params.layers > 9", true},
		{"params.layers > '9'", false},
		{"params.missing != 'x'", false},
		{"attributes.status = 'FINISHED'", true},
		{"status = 3", true},
		{"run_name = 'run-a'", true},
		{"start_time >= 5000", true},
		{"end_time > 0", false},
	}
	for _, tc := range cases {
		f, err := ParseFilter(tc.filter)
		if err != nil {
			t.Fatalf("%q: parse: %v", tc.filter, err)
		}
		if got := f.Match(run); got != tc.want {
			t.Fatalf("%q: expected %v, got %v", tc.filter, tc.want, got)
		}
	}
}
