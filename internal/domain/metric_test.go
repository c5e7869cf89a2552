package domain

import (
	"math"
	"testing"

	"pgregory.net/rapid"
)

func TestParseMetricLine_ThreeFields(t *testing.T) {
	m, err := ParseMetricLine("loss", "1700000000123 0.25 7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Key != "loss" || m.Timestamp != 1700000000123 || m.Value != 0.25 || m.Step != 7 {
		t.Fatalf("unexpected metric: %+v", m)
	}
}

func TestParseMetricLine_TwoFieldsDefaultsStep(t *testing.T) {
	m, err := ParseMetricLine("acc", "1700000000000 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Step != 0 || m.Value != 1 {
		t.Fatalf("unexpected metric: %+v", m)
	}
}

func TestParseMetricLine_Invalid(t *testing.T) {
	cases := []string{
		"",
		"1",
		"1 2 3 4",
		"abc 1 0",
		"1 abc 0",
		"1 2 x",
	}
	for _, line := range cases {
		if _, err := ParseMetricLine("k", line); err == nil {
			t.Errorf("expected error for %q", line)
		} else if !IsKind(err, KindInvalidArgument) {
			t.Errorf("expected KindInvalidArgument for %q, got %v", line, err)
		}
	}
}

func TestFormatFloat_SpecialValues(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{math.NaN(), "nan"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{0.5, "0.5"},
		{3, "3"},
	}
	for _, c := range cases {
		if got := FormatFloat(c.in); got != c.want {
			t.Errorf("FormatFloat(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMetricAfter_OrdersByStepThenTimestampThenValue(t *testing.T) {
	base := Metric{Key: "k", Value: 1, Timestamp: 100, Step: 1}

	if !(Metric{Value: 0, Timestamp: 0, Step: 2}).After(base) {
		t.Fatalf("higher step should win")
	}
	if !(Metric{Value: 0, Timestamp: 200, Step: 1}).After(base) {
		t.Fatalf("same step, later timestamp should win")
	}
	if !(Metric{Value: 2, Timestamp: 100, Step: 1}).After(base) {
		t.Fatalf("same step and timestamp, larger value should win")
	}
	if base.After(base) {
		t.Fatalf("a point is not after itself")
	}
	if (Metric{Value: math.NaN(), Timestamp: 100, Step: 1}).After(base) {
		t.Fatalf("NaN should sort below numbers")
	}
}

func TestLatestMetrics(t *testing.T) {
	if _, ok := LatestMetrics(nil); ok {
		t.Fatalf("expected ok=false for empty series")
	}

	points := []Metric{
		{Value: 0.9, Timestamp: 10, Step: 0},
		{Value: 0.5, Timestamp: 30, Step: 2},
		{Value: 0.7, Timestamp: 20, Step: 1},
	}
	got, ok := LatestMetrics(points)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if got.Value != 0.5 {
		t.Fatalf("expected latest value 0.5, got %v", got.Value)
	}
}

func TestMetricLine_RoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := Metric{
			Key:       "k",
			Value:     rapid.Float64().Draw(t, "value"),
			Timestamp: rapid.Int64Range(0, 1<<50).Draw(t, "timestamp"),
			Step:      rapid.Int64().Draw(t, "step"),
		}

		got, err := ParseMetricLine("k", FormatMetricLine(m))
		if err != nil {
			t.Fatalf("parse %q: %v", FormatMetricLine(m), err)
		}
		if got.Timestamp != m.Timestamp || got.Step != m.Step {
			t.Fatalf("got %+v, want %+v", got, m)
		}
		if math.IsNaN(m.Value) {
			if !math.IsNaN(got.Value) {
				t.Fatalf("expected NaN, got %v", got.Value)
			}
			return
		}
		if got.Value != m.Value {
			t.Fatalf("value mismatch: got %v, want %v", got.Value, m.Value)
		}
	})
}
