package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Metric is a single recorded point of a metric series.
type Metric struct {
	Key       string
	Value     float64
	Timestamp int64 // milliseconds since epoch
	Step      int64
}

// Time returns the metric timestamp as a time.Time.
func (m Metric) Time() time.Time {
	return time.UnixMilli(m.Timestamp).UTC()
}

// After reports whether m supersedes o as the latest value of a series.
// Ordering is by step, then timestamp, then value.
func (m Metric) After(o Metric) bool {
	if m.Step != o.Step {
		return m.Step > o.Step
	}
	if m.Timestamp != o.Timestamp {
		return m.Timestamp > o.Timestamp
	}
	return lessFloat(o.Value, m.Value)
}

// lessFloat orders NaN below every other value.
func lessFloat(a, b float64) bool {
	if math.IsNaN(a) {
		return !math.IsNaN(b)
	}
	if math.IsNaN(b) {
		return false
	}
	return a < b
}

// FormatMetricLine renders the on-disk form "<timestamp> <value> <step>".
func FormatMetricLine(m Metric) string {
	return fmt.Sprintf("%d %s %d", m.Timestamp, FormatFloat(m.Value), m.Step)
}

// ParseMetricLine parses a line written by FormatMetricLine. Lines with only
// timestamp and value are accepted and get step 0.
func ParseMetricLine(key, line string) (Metric, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 && len(fields) != 3 {
		return Metric{}, &OpError{
			Op:   "domain.parse_metric",
			Kind: KindInvalidArgument,
			Err:  fmt.Errorf("metric %q: expected 2 or 3 fields, got %d", key, len(fields)),
		}
	}

	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Metric{}, &OpError{
			Op:   "domain.parse_metric",
			Kind: KindInvalidArgument,
			Err:  fmt.Errorf("metric %q: bad timestamp: %w", key, err),
		}
	}

	val, err := ParseFloat(fields[1])
	if err != nil {
		return Metric{}, &OpError{
			Op:   "domain.parse_metric",
			Kind: KindInvalidArgument,
			Err:  fmt.Errorf("metric %q: bad value: %w", key, err),
		}
	}

	var step int64
	if len(fields) == 3 {
		step, err = strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return Metric{}, &OpError{
				Op:   "domain.parse_metric",
				Kind: KindInvalidArgument,
				Err:  fmt.Errorf("metric %q: bad step: %w", key, err),
			}
		}
	}

	return Metric{Key: key, Value: val, Timestamp: ts, Step: step}, nil
}

// FormatFloat writes NaN and infinities the way Python's repr does, so files
// stay readable by MLflow tooling.
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseFloat parses a metric value, accepting the nan/inf spellings FormatFloat writes.
func ParseFloat(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "nan":
		return math.NaN(), nil
	case "inf", "+inf", "infinity":
		return math.Inf(1), nil
	case "-inf", "-infinity":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(s, 64)
}

// LatestMetrics reduces a series to its latest point.
func LatestMetrics(points []Metric) (Metric, bool) {
	if len(points) == 0 {
		return Metric{}, false
	}
	latest := points[0]
	for _, p := range points[1:] {
		if p.After(latest) {
			latest = p
		}
	}
	return latest, true
}
