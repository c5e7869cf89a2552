package query

import (
	"math"
	"testing"
	"time"

	"github.com/tinytrack/ttrack/internal/domain"
)

func sampleRun() domain.Run {
	return domain.Run{
		Info: domain.RunInfo{
			RunID:          "0123456789abcdef0123456789abcdef",
			RunName:        "baseline",
			ExperimentID:   "exp-1",
			Status:         domain.RunFinished,
			SourceType:     domain.SourceLocal,
			LifecycleStage: domain.StageActive,
			StartTime:      time.UnixMilli(1000),
		},
		Params: map[string]string{"lr": "0.01", "optim": "adam"},
		Tags:   map[string]string{domain.TagUser: "ana"},
		Metrics: map[string]domain.Metric{
			"loss": {Key: "loss", Value: 0.25, Step: 9, Timestamp: 2000},
			"nan":  {Key: "nan", Value: math.NaN(), Step: 0, Timestamp: 2000},
		},
	}
}

func TestEval_ReadsSections(t *testing.T) {
	run := sampleRun()

	cases := []struct {
		expr string
		want string
	}{
		{"$.params.lr", "0.01"},
		{"$.info.status", "FINISHED"},
		{"$.info.start_time", "1000"},
		{"$.metrics.loss.value", "0.25"},
		{"$.metrics.loss.step", "9"},
		{`$.tags["mlflow.user"]`, "ana"},
		{"$.metrics.nan.value", "nan"},
	}

	for _, tc := range cases {
		val, err := Eval(run, tc.expr)
		if err != nil {
			t.Fatalf("%s: unexpected err: %v", tc.expr, err)
		}
		got, err := ToString(val)
		if err != nil {
			t.Fatalf("%s: to string: %v", tc.expr, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.expr, tc.want, got)
		}
	}
}

func TestEval_Errors(t *testing.T) {
	run := sampleRun()

	if _, err := Eval(run, "  "); !domain.IsKind(err, domain.KindInvalidArgument) {
		t.Fatalf("expected invalid_argument for empty expr, got %v", err)
	}
	if _, err := Eval(run, "$.params.missing"); err == nil {
		t.Fatalf("expected error for missing key")
	}
	if _, err := Eval(run, "$[?("); !domain.IsKind(err, domain.KindInvalidArgument) {
		t.Fatalf("expected invalid_argument for bad expr, got %v", err)
	}
}

func TestEval_NullEndTimeWhileRunning(t *testing.T) {
	doc := Document(sampleRun())
	info := doc["info"].(map[string]any)
	if info["end_time"] != nil {
		t.Fatalf("expected nil end_time, got %v", info["end_time"])
	}
}

func TestExtract_ReportsEachRule(t *testing.T) {
	res := Extract(sampleRun(), map[string]string{
		"b_missing": "$.params.nope",
		"a_lr":      "$.params.lr",
		"c_empty":   "",
	})

	if len(res) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res))
	}
	if res[0].Name != "a_lr" || !res[0].Success || res[0].Value != "0.01" {
		t.Fatalf("unexpected first result: %+v", res[0])
	}
	if res[1].Success || res[2].Success {
		t.Fatalf("expected failures, got %+v %+v", res[1], res[2])
	}
}

func TestToString_Composite(t *testing.T) {
	got, err := ToString([]any{1.0, "x"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != `[1,"x"]` {
		t.Fatalf("unexpected: %q", got)
	}

	if _, err := ToString([]any{}); err == nil {
		t.Fatalf("expected error for empty array")
	}
}
