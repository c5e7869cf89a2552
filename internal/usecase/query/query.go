package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tinytrack/ttrack/internal/domain"
)

// Document builds the JSON-shaped view of a run that expressions are evaluated against:
//
//	{"info": {...}, "params": {k: v}, "tags": {k: v},
//	 "metrics": {k: {"value", "step", "timestamp"}}}
func Document(run domain.Run) map[string]any {
	info := map[string]any{
		"run_id":          run.Info.RunID,
		"run_name":        run.Info.RunName,
		"experiment_id":   run.Info.ExperimentID,
		"user_id":         run.Info.UserID,
		"source_name":     run.Info.SourceName,
		"source_type":     run.Info.SourceType.String(),
		"status":          run.Info.Status.String(),
		"lifecycle_stage": string(run.Info.LifecycleStage),
		"artifact_uri":    run.Info.ArtifactURI,
		"start_time":      millisOrNil(run.Info.StartTime.UnixMilli(), run.Info.StartTime.IsZero()),
		"end_time":        millisOrNil(run.Info.EndTime.UnixMilli(), run.Info.EndTime.IsZero()),
	}

	params := make(map[string]any, len(run.Params))
	for k, v := range run.Params {
		params[k] = v
	}
	tags := make(map[string]any, len(run.Tags))
	for k, v := range run.Tags {
		tags[k] = v
	}
	metrics := make(map[string]any, len(run.Metrics))
	for k, m := range run.Metrics {
		metrics[k] = map[string]any{
			"value":     jsonFloat(m.Value),
			"step":      float64(m.Step),
			"timestamp": float64(m.Timestamp),
		}
	}

	return map[string]any{
		"info":    info,
		"params":  params,
		"tags":    tags,
		"metrics": metrics,
	}
}

// Eval evaluates a JSONPath expression against the run document.
func Eval(run domain.Run, expr string) (any, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, &domain.OpError{
			Op:   "query.eval",
			Kind: domain.KindInvalidArgument,
			Err:  fmt.Errorf("empty jsonpath expression"),
		}
	}

	val, err := jsonpath.Get(expr, any(Document(run)))
	if err != nil {
		return nil, &domain.OpError{
			Op:   "query.eval",
			Kind: domain.KindInvalidArgument,
			Err:  fmt.Errorf("jsonpath %q: %w", expr, err),
		}
	}
	if isEmptyValue(val) {
		return nil, &domain.OpError{
			Op:   "query.eval",
			Kind: domain.KindNotFound,
			Err:  fmt.Errorf("jsonpath %q: no value found", expr),
		}
	}
	return val, nil
}

// Result reports one named expression of an Extract call.
type Result struct {
	Name    string
	Expr    string
	Value   string
	Success bool
	Message string
}

// Extract evaluates several named expressions. A failing rule is reported in
// its Result; the others still run. Results are sorted by name.
func Extract(run domain.Run, rules map[string]string) []Result {
	names := make([]string, 0, len(rules))
	for k := range rules {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([]Result, 0, len(names))
	for _, name := range names {
		expr := strings.TrimSpace(rules[name])
		r := Result{Name: name, Expr: expr}

		val, err := Eval(run, expr)
		if err != nil {
			r.Message = fmt.Sprintf("extract %q: %v", name, err)
			out = append(out, r)
			continue
		}
		s, err := ToString(val)
		if err != nil {
			r.Message = fmt.Sprintf("extract %q (%s): cannot convert value to string: %v", name, expr, err)
			out = append(out, r)
			continue
		}
		r.Value = s
		r.Success = true
		r.Message = fmt.Sprintf("extracted %q", name)
		out = append(out, r)
	}
	return out
}

// ToString renders a JSONPath result for display. Single-element slices
// are unwrapped; composite values are rendered as JSON.
func ToString(v any) (string, error) {
	if arr, ok := v.([]any); ok {
		if len(arr) == 0 {
			return "", fmt.Errorf("empty array")
		}
		if len(arr) == 1 {
			return ToString(arr[0])
		}
		b, err := json.Marshal(arr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return domain.FormatFloat(t), nil
	case bool, int, int64:
		return fmt.Sprint(t), nil
	case nil:
		return "null", nil
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return fmt.Sprint(t), nil
	}
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func millisOrNil(ms int64, zero bool) any {
	if zero {
		return nil
	}
	return float64(ms)
}

// jsonFloat keeps NaN and Inf representable once the document is marshalled.
func jsonFloat(v float64) any {
	s := domain.FormatFloat(v)
	switch s {
	case "nan", "inf", "-inf":
		return s
	}
	return v
}
