package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinytrack/ttrack/internal/domain"
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("TTRACK_TRACKING_DIR", "")
	t.Setenv("MLFLOW_TRACKING_URI", "")
	t.Setenv("TTRACK_USER", "")

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("ttrack %s: %v", strings.Join(args, " "), err)
	}
	return out
}

// --- command structure ---

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, expected := range []string{"init", "experiments", "runs", "log", "metrics", "query", "watch", "export", "ui", "doctor", "version"} {
		if !names[expected] {
			t.Errorf("expected subcommand %q to be registered", expected)
		}
	}
	for _, flag := range []string{"debug", "workspace", "tracking-dir"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("expected persistent --%s flag", flag)
		}
	}
}

func TestInitCmd_Flags(t *testing.T) {
	cmd := initCmd(&rootOpts{})
	if cmd.Flags().Lookup("path") == nil {
		t.Error("expected --path flag on init command")
	}
	if cmd.Flags().Lookup("force") == nil {
		t.Error("expected --force flag on init command")
	}
}

func TestRunsListCmd_Flags(t *testing.T) {
	cmd := runsListCmd(&rootOpts{})
	for _, flag := range []string{"experiment", "filter", "order-by", "limit", "all", "format"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected --%s flag on runs list", flag)
		}
	}
}

// --- end to end ---

func TestCLI_RunLifecycle(t *testing.T) {
	ws := t.TempDir()
	mustRun(t, "init", "--path", ws, "-w", ws)
	if _, err := os.Stat(filepath.Join(ws, "ttrack.yaml")); err != nil {
		t.Fatalf("expected ttrack.yaml: %v", err)
	}

	runID := strings.TrimSpace(mustRun(t, "runs", "start", "-w", ws, "-e", "demo", "-n", "first", "-t", "team=vision"))
	if len(runID) != 32 {
		t.Fatalf("unexpected run id %q", runID)
	}

	mustRun(t, "log", "param", "-w", ws, runID, "lr", "0.01")
	mustRun(t, "log", "metric", "-w", ws, runID, "loss", "0.9")
	mustRun(t, "log", "metric", "-w", ws, runID, "loss", "0.4")
	mustRun(t, "log", "tag", "-w", ws, runID, "stage", "dev")

	if _, err := runCLI(t, "log", "param", "-w", ws, runID, "lr", "0.02"); !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("expected conflict re-logging a param, got %v", err)
	}

	hist := mustRun(t, "metrics", "history", "-w", ws, "--format", "json", runID, "loss")
	var points []map[string]any
	if err := json.Unmarshal([]byte(hist), &points); err != nil {
		t.Fatalf("history json: %v\n%s", err, hist)
	}
	if len(points) != 2 || points[1]["step"].(float64) != 1 {
		t.Fatalf("unexpected history: %v", points)
	}

	val := strings.TrimSpace(mustRun(t, "query", "-w", ws, runID, "$.metrics.loss.value"))
	if val != "0.4" {
		t.Fatalf("unexpected query result %q", val)
	}

	show := mustRun(t, "runs", "show", "-w", ws, "--format", "json", runID[:8])
	var doc map[string]any
	if err := json.Unmarshal([]byte(show), &doc); err != nil {
		t.Fatalf("show json: %v\n%s", err, show)
	}
	if doc["params"].(map[string]any)["lr"] != "0.01" {
		t.Fatalf("unexpected params: %v", doc["params"])
	}
	if doc["tags"].(map[string]any)["team"] != "vision" {
		t.Fatalf("unexpected tags: %v", doc["tags"])
	}

	mustRun(t, "runs", "end", "-w", ws, "--status", "failed", runID)
	list := mustRun(t, "runs", "list", "-w", ws, "--filter", "status = 'FAILED' and metrics.loss < 0.5", "--format", "json")
	var runs []map[string]any
	if err := json.Unmarshal([]byte(list), &runs); err != nil {
		t.Fatalf("list json: %v\n%s", err, list)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one matching run, got %d", len(runs))
	}

	mustRun(t, "runs", "delete", "-w", ws, runID)
	list = mustRun(t, "runs", "list", "-w", ws, "--format", "json")
	if strings.TrimSpace(list) != "[]" {
		t.Fatalf("expected no visible runs after delete, got %s", list)
	}
	mustRun(t, "runs", "restore", "-w", ws, runID)

	exps := mustRun(t, "experiments", "list", "-w", ws, "--format", "json")
	if !strings.Contains(exps, `"name": "demo"`) || !strings.Contains(exps, `"name": "Default"`) {
		t.Fatalf("unexpected experiments: %s", exps)
	}
}

func TestCLI_ExperimentsCreateDeleteRestore(t *testing.T) {
	ws := t.TempDir()
	dir := filepath.Join(ws, "runs")

	out := mustRun(t, "experiments", "create", "-w", ws, "--tracking-dir", dir, "vision")
	if !strings.Contains(out, `"vision"`) {
		t.Fatalf("unexpected output: %s", out)
	}
	if _, err := runCLI(t, "experiments", "create", "-w", ws, "--tracking-dir", dir, "vision"); !domain.IsKind(err, domain.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	mustRun(t, "experiments", "delete", "-w", ws, "--tracking-dir", dir, "vision")
	if out := mustRun(t, "experiments", "list", "-w", ws, "--tracking-dir", dir); strings.Contains(out, "vision") {
		t.Fatalf("deleted experiment listed without --all: %s", out)
	}
	if out := mustRun(t, "experiments", "list", "--all", "-w", ws, "--tracking-dir", dir); !strings.Contains(out, "deleted") {
		t.Fatalf("expected deleted experiment with --all: %s", out)
	}
	mustRun(t, "experiments", "restore", "-w", ws, "--tracking-dir", dir, "vision")
}

func TestCLI_RunsEndRejectsNonTerminalStatus(t *testing.T) {
	ws := t.TempDir()
	runID := strings.TrimSpace(mustRun(t, "runs", "start", "-w", ws))
	if _, err := runCLI(t, "runs", "end", "-w", ws, "--status", "running", runID); !domain.IsKind(err, domain.KindInvalidArgument) {
		t.Fatalf("expected invalid_argument, got %v", err)
	}
}

func TestCLI_DoctorReportsMissingArtifact(t *testing.T) {
	ws := t.TempDir()
	out, err := runCLI(t, "doctor", "-w", ws, "--format", "json")
	if err == nil {
		t.Fatalf("expected failure without artifact")
	}
	var rep map[string]any
	if jerr := json.Unmarshal([]byte(out), &rep); jerr != nil {
		t.Fatalf("doctor json: %v\n%s", jerr, out)
	}
	if rep["name"] != "tiny-track" || rep["version"] != "0.0.3" || rep["ok"] != false {
		t.Fatalf("unexpected report: %v", rep)
	}

	if err := os.WriteFile(filepath.Join(ws, "libttrack.so"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err = runCLI(t, "doctor", "-w", ws)
	if err != nil && strings.Contains(out, "✗ artifacts") {
		t.Fatalf("artifact check should pass once libttrack.so exists:\n%s", out)
	}
}

func TestCLI_VersionPrintsName(t *testing.T) {
	out := mustRun(t, "version", "-w", t.TempDir())
	if !strings.HasPrefix(out, "tiny-track ") {
		t.Fatalf("unexpected version output %q", out)
	}
}

// --- workspace resolution ---

func TestResolveWorkspaceRoot_ExplicitPath(t *testing.T) {
	tmp := t.TempDir()
	got, found, err := resolveWorkspaceRoot(tmp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != tmp || found {
		t.Errorf("expected %q (not found), got %q found=%v", tmp, got, found)
	}
}

func TestResolveWorkspaceRoot_RelativePath(t *testing.T) {
	got, _, err := resolveWorkspaceRoot(".")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("expected absolute path, got %q", got)
	}
}

func TestLoadWorkspace_Precedence(t *testing.T) {
	ws := t.TempDir()
	cfg := "ttrack:\n  tracking:\n    dir: from-file\n    user: file-user\n"
	if err := os.WriteFile(filepath.Join(ws, "ttrack.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	env := map[string]string{}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	got, err := loadWorkspaceEnv(&rootOpts{workspace: ws}, lookup)
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if !got.found || got.trackingDir != filepath.Join(ws, "from-file") || got.cfg.Tracking.User != "file-user" {
		t.Fatalf("unexpected file config: %+v", got)
	}

	env["TTRACK_TRACKING_DIR"] = "from-env"
	env["TTRACK_USER"] = "env-user"
	got, err = loadWorkspaceEnv(&rootOpts{workspace: ws}, lookup)
	if err != nil {
		t.Fatalf("env: %v", err)
	}
	if got.trackingDir != filepath.Join(ws, "from-env") || got.cfg.Tracking.User != "env-user" {
		t.Fatalf("unexpected env config: dir=%s user=%s", got.trackingDir, got.cfg.Tracking.User)
	}

	flagDir := filepath.Join(t.TempDir(), "from-flag")
	got, err = loadWorkspaceEnv(&rootOpts{workspace: ws, trackingDir: flagDir}, lookup)
	if err != nil {
		t.Fatalf("flag: %v", err)
	}
	if got.trackingDir != flagDir {
		t.Fatalf("expected flag to win, got %s", got.trackingDir)
	}
}

func TestCLI_QueryNamedExpressions(t *testing.T) {
	ws := t.TempDir()
	runID := strings.TrimSpace(mustRun(t, "runs", "start", "-w", ws, "-e", "demo"))
	mustRun(t, "log", "param", "-w", ws, runID, "lr", "0.01")
	mustRun(t, "log", "metric", "-w", ws, runID, "loss", "0.25")

	out := mustRun(t, "query", "-w", ws, "--json", runID, "loss=$.metrics.loss.value", "lr=$.params.lr")
	var results []map[string]any
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("query json: %v\n%s", err, out)
	}
	if len(results) != 2 ||
		results[0]["name"] != "loss" || results[0]["value"] != "0.25" ||
		results[1]["name"] != "lr" || results[1]["value"] != "0.01" {
		t.Fatalf("unexpected results: %v", results)
	}

	out, err := runCLI(t, "query", "-w", ws, runID, "lr=$.params.lr", "bs=$.params.bs")
	if !domain.IsKind(err, domain.KindNotFound) {
		t.Fatalf("expected not_found for a missing expression, got %v", err)
	}
	if !strings.Contains(out, "0.01") || !strings.Contains(out, "bs") {
		t.Fatalf("expected both rows in table output:\n%s", out)
	}
}

func TestParseQueryArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		single  string
		rules   map[string]string
		wantErr bool
	}{
		{name: "bare expression", args: []string{"$.params.lr"}, single: "$.params.lr"},
		{name: "bare filter with equals", args: []string{`$.params[?(@ == "x")]`}, single: `$.params[?(@ == "x")]`},
		{name: "one named", args: []string{"lr=$.params.lr"}, rules: map[string]string{"lr": "$.params.lr"}},
		{name: "several named", args: []string{"a=$.x", "b = $.y"}, rules: map[string]string{"a": "$.x", "b": " $.y"}},
		{name: "mixed", args: []string{"a=$.x", "$.y"}, wantErr: true},
		{name: "duplicate", args: []string{"a=$.x", "a=$.y"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, single, err := parseQueryArgs(tt.args)
			if tt.wantErr {
				if !domain.IsKind(err, domain.KindInvalidArgument) {
					t.Fatalf("expected invalid_argument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if single != tt.single {
				t.Fatalf("single = %q, want %q", single, tt.single)
			}
			if len(rules) != len(tt.rules) {
				t.Fatalf("rules = %v, want %v", rules, tt.rules)
			}
			for k, v := range tt.rules {
				if rules[k] != v {
					t.Fatalf("rules = %v, want %v", rules, tt.rules)
				}
			}
		})
	}
}

func TestParseKeyValues(t *testing.T) {
	got, err := parseKeyValues([]string{"a=1", "b = x=y"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got["a"] != "1" || got["b"] != " x=y" {
		t.Fatalf("unexpected: %v", got)
	}
	if _, err := parseKeyValues([]string{"novalue"}); !domain.IsKind(err, domain.KindInvalidArgument) {
		t.Fatalf("expected invalid_argument, got %v", err)
	}
}

// --- output ---

func TestPrintRun_UnknownFormat_ReturnsError(t *testing.T) {
	var buf bytes.Buffer
	if err := printRun(&buf, domain.Run{}, "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestPrintRun_PrettyListsSections(t *testing.T) {
	run := domain.Run{
		Info:    domain.RunInfo{RunID: "abc", RunName: "demo", Status: domain.RunFinished},
		Params:  map[string]string{"lr": "0.1"},
		Metrics: map[string]domain.Metric{"loss": {Key: "loss", Value: 0.5, Step: 4}},
	}
	var buf bytes.Buffer
	if err := printRun(&buf, run, "pretty"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Run ID:     abc", "lr = 0.1", "loss = 0.5 (step 4)", "Tags:\n  (none)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestLatestSummary(t *testing.T) {
	run := domain.Run{Metrics: map[string]domain.Metric{
		"a": {Value: 1}, "b": {Value: 2}, "c": {Value: 3}, "d": {Value: 4},
	}}
	if got := latestSummary(run, 2); got != "a=1 b=2 +2" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := latestSummary(domain.Run{}, 3); got != "-" {
		t.Fatalf("unexpected: %q", got)
	}
}
