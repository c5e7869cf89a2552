package tui

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tinytrack/ttrack/internal/domain"
)

func clampString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))

	n := 0
	for _, r := range s {
		if n >= maxLen {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String() + "…"
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline draws the last width values. NaN and Inf points render as a space.
func sparkline(values []float64, width int) string {
	if width <= 0 || len(values) == 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	var b strings.Builder
	for _, v := range values {
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			b.WriteRune(' ')
		case hi == lo:
			b.WriteRune(sparkRunes[len(sparkRunes)/2])
		default:
			i := int((v - lo) / (hi - lo) * float64(len(sparkRunes)-1))
			b.WriteRune(sparkRunes[i])
		}
	}
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(info domain.RunInfo) string {
	if info.EndTime.IsZero() {
		return "-"
	}
	return info.Duration().Round(time.Millisecond).String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func renderRunDetails(t Theme, run domain.Run, history map[string][]domain.Metric) string {
	var b strings.Builder
	info := run.Info

	b.WriteString(t.Title.Render(info.RunName))
	b.WriteString("  ")
	b.WriteString(t.Status(info.Status))
	if info.LifecycleStage == domain.StageDeleted {
		b.WriteString("  ")
		b.WriteString(t.Deleted.Render("deleted"))
	}
	b.WriteString("\n")
	b.WriteString(t.Subtitle.Render(info.RunID))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Started:  %s\n", formatTime(info.StartTime))
	fmt.Fprintf(&b, "Ended:    %s\n", formatTime(info.EndTime))
	fmt.Fprintf(&b, "Duration: %s\n", formatDuration(info))
	if info.UserID != "" {
		fmt.Fprintf(&b, "User:     %s\n", info.UserID)
	}
	if info.SourceName != "" {
		fmt.Fprintf(&b, "Source:   %s\n", info.SourceName)
	}
	b.WriteString("\n")

	b.WriteString("Params:\n")
	if len(run.Params) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, k := range sortedKeys(run.Params) {
		fmt.Fprintf(&b, "  - %s = %s\n", k, clampString(run.Params[k], 60))
	}
	b.WriteString("\n")

	b.WriteString("Metrics:\n")
	if len(run.Metrics) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, k := range sortedKeys(run.Metrics) {
		m := run.Metrics[k]
		fmt.Fprintf(&b, "  - %s = %s (step %d)", k, domain.FormatFloat(m.Value), m.Step)
		if pts := history[k]; len(pts) > 1 {
			vals := make([]float64, len(pts))
			for i, p := range pts {
				vals[i] = p.Value
			}
			b.WriteString("  ")
			b.WriteString(sparkline(vals, 30))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	tags := 0
	for _, k := range sortedKeys(run.Tags) {
		if strings.HasPrefix(k, "mlflow.") {
			continue
		}
		if tags == 0 {
			b.WriteString("Tags:\n")
		}
		tags++
		fmt.Fprintf(&b, "  - %s = %s\n", k, clampString(run.Tags[k], 60))
	}

	return b.String()
}
