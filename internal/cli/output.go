package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytrack/ttrack/internal/domain"
	"github.com/tinytrack/ttrack/internal/usecase/query"
)

const (
	formatPretty = "pretty"
	formatJSON   = "json"
)

var (
	styleHeader   = lipgloss.NewStyle().Bold(true)
	styleFaint    = lipgloss.NewStyle().Faint(true)
	styleRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	styleFinished = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func checkFormat(format string) error {
	switch format {
	case formatPretty, formatJSON, "":
		return nil
	default:
		return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusText(s domain.RunStatus) string {
	switch s {
	case domain.RunRunning, domain.RunScheduled:
		return styleRunning.Render(s.String())
	case domain.RunFinished:
		return styleFinished.Render(s.String())
	default:
		return styleFailed.Render(s.String())
	}
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

func fmtMillis(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

type experimentJSON struct {
	ID               string `json:"experiment_id"`
	Name             string `json:"name"`
	ArtifactLocation string `json:"artifact_location"`
	LifecycleStage   string `json:"lifecycle_stage"`
	CreationTime     any    `json:"creation_time"`
	LastUpdateTime   any    `json:"last_update_time"`
}

func printExperiments(w io.Writer, exps []domain.Experiment, format string) error {
	if format == formatJSON {
		out := make([]experimentJSON, 0, len(exps))
		for _, e := range exps {
			out = append(out, experimentJSON{
				ID:               e.ID,
				Name:             e.Name,
				ArtifactLocation: e.ArtifactLocation,
				LifecycleStage:   string(e.LifecycleStage),
				CreationTime:     fmtMillis(e.CreationTime),
				LastUpdateTime:   fmtMillis(e.LastUpdateTime),
			})
		}
		return writeJSON(w, out)
	}

	if len(exps) == 0 {
		fmt.Fprintln(w, "(no experiments found)")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, styleHeader.Render("ID")+"\t"+styleHeader.Render("NAME")+"\t"+styleHeader.Render("STAGE")+"\t"+styleHeader.Render("CREATED"))
	for _, e := range exps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.Name, e.LifecycleStage, fmtTime(e.CreationTime))
	}
	return tw.Flush()
}

func printRuns(w io.Writer, runs []domain.Run, format string) error {
	if format == formatJSON {
		out := make([]map[string]any, 0, len(runs))
		for _, r := range runs {
			out = append(out, query.Document(r))
		}
		return writeJSON(w, out)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "(no runs found)")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join([]string{
		styleHeader.Render("RUN ID"),
		styleHeader.Render("NAME"),
		styleHeader.Render("EXPERIMENT"),
		styleHeader.Render("STATUS"),
		styleHeader.Render("STARTED"),
		styleHeader.Render("METRICS"),
	}, "\t"))
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Info.RunID, r.Info.RunName, r.Info.ExperimentID,
			statusText(r.Info.Status), fmtTime(r.Info.StartTime), latestSummary(r, 3))
	}
	return tw.Flush()
}

// latestSummary renders up to n metrics as "k=v" pairs in key order.
func latestSummary(r domain.Run, n int) string {
	keys := make([]string, 0, len(r.Metrics))
	for k := range r.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, n)
	for i, k := range keys {
		if i == n {
			parts = append(parts, fmt.Sprintf("+%d", len(keys)-n))
			break
		}
		parts = append(parts, k+"="+domain.FormatFloat(r.Metrics[k].Value))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func printRun(w io.Writer, run domain.Run, format string) error {
	switch format {
	case formatJSON:
		return writeJSON(w, query.Document(run))
	case formatPretty, "":
		printPrettyRun(w, run)
		return nil
	default:
		return checkFormat(format)
	}
}

func printPrettyRun(w io.Writer, run domain.Run) {
	info := run.Info

	fmt.Fprintf(w, "Run:        %s\n", styleHeader.Render(info.RunName))
	fmt.Fprintf(w, "Run ID:     %s\n", info.RunID)
	fmt.Fprintf(w, "Experiment: %s\n", info.ExperimentID)
	fmt.Fprintf(w, "Status:     %s\n", statusText(info.Status))
	if info.LifecycleStage == domain.StageDeleted {
		fmt.Fprintf(w, "Stage:      %s\n", styleFaint.Render("deleted"))
	}
	fmt.Fprintf(w, "Started:    %s\n", fmtTime(info.StartTime))
	fmt.Fprintf(w, "Ended:      %s\n", fmtTime(info.EndTime))
	if d := info.Duration(); d > 0 {
		fmt.Fprintf(w, "Duration:   %s\n", d)
	}
	fmt.Fprintf(w, "Artifacts:  %s\n", info.ArtifactURI)
	fmt.Fprintln(w)

	printSection(w, "Params", run.Params)

	metrics := make(map[string]string, len(run.Metrics))
	for k, m := range run.Metrics {
		metrics[k] = fmt.Sprintf("%s (step %d)", domain.FormatFloat(m.Value), m.Step)
	}
	printSection(w, "Metrics", metrics)
	printSection(w, "Tags", run.Tags)
}

func printSection(w io.Writer, title string, kv map[string]string) {
	fmt.Fprintf(w, "%s:\n", title)
	if len(kv) == 0 {
		fmt.Fprintln(w, "  (none)")
		fmt.Fprintln(w)
		return
	}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  - %s = %s\n", k, kv[k])
	}
	fmt.Fprintln(w)
}

type metricJSON struct {
	Key       string `json:"key"`
	Value     any    `json:"value"`
	Timestamp int64  `json:"timestamp"`
	Step      int64  `json:"step"`
}

func printHistory(w io.Writer, points []domain.Metric, format string) error {
	if format == formatJSON {
		out := make([]metricJSON, 0, len(points))
		for _, p := range points {
			var v any = p.Value
			if s := domain.FormatFloat(p.Value); s == "nan" || s == "inf" || s == "-inf" {
				v = s
			}
			out = append(out, metricJSON{Key: p.Key, Value: v, Timestamp: p.Timestamp, Step: p.Step})
		}
		return writeJSON(w, out)
	}

	if len(points) == 0 {
		fmt.Fprintln(w, "(no points)")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, styleHeader.Render("STEP")+"\t"+styleHeader.Render("VALUE")+"\t"+styleHeader.Render("TIMESTAMP"))
	for _, p := range points {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", p.Step, domain.FormatFloat(p.Value), fmtTime(p.Time()))
	}
	return tw.Flush()
}
