package fsworkspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinytrack/ttrack/internal/domain"
	"github.com/tinytrack/ttrack/internal/infra/workspacefinder"
)

func TestInitializer_Init_CreatesWorkspace(t *testing.T) {
	tmp := t.TempDir()

	i := NewInitializer()
	if err := i.Init(domain.WorkspaceSpec{Root: tmp}, false); err != nil {
		t.Fatalf("Init error: %v", err)
	}

	assertFileExists(t, filepath.Join(tmp, "ttrack.yaml"))
	assertDirExists(t, filepath.Join(tmp, "mlruns"))
	assertDirExists(t, filepath.Join(tmp, ".ttrack", "logs"))

	cfg, err := workspacefinder.LoadConfig(tmp)
	if err != nil {
		t.Fatalf("generated ttrack.yaml does not load: %v", err)
	}
	if cfg.Tracking.Dir != "mlruns" {
		t.Fatalf("expected tracking dir mlruns, got %s", cfg.Tracking.Dir)
	}
}

func TestInitializer_Init_CustomTrackingDir(t *testing.T) {
	tmp := t.TempDir()

	if err := NewInitializer().Init(domain.WorkspaceSpec{Root: tmp, TrackingDir: "experiments/store"}, false); err != nil {
		t.Fatalf("Init error: %v", err)
	}

	assertDirExists(t, filepath.Join(tmp, "experiments", "store"))

	cfg, err := workspacefinder.LoadConfig(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tracking.Dir != "experiments/store" {
		t.Fatalf("expected custom tracking dir in config, got %s", cfg.Tracking.Dir)
	}

	b, err := os.ReadFile(filepath.Join(tmp, ".gitignore"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "experiments/store/") {
		t.Fatalf("expected tracking dir in .gitignore, got:\n%s", b)
	}
}

func TestInitializer_Init_SkipsExistingFilesUnlessForce(t *testing.T) {
	tmp := t.TempDir()

	cfgPath := filepath.Join(tmp, "ttrack.yaml")
	if err := os.WriteFile(cfgPath, []byte("custom\n"), 0o644); err != nil {
		t.Fatalf("write existing ttrack.yaml: %v", err)
	}

	i := NewInitializer()

	if err := i.Init(domain.WorkspaceSpec{Root: tmp}, false); err != nil {
		t.Fatalf("Init (force=false) error: %v", err)
	}

	b, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("read ttrack.yaml: %v", err)
	}
	if string(b) != "custom\n" {
		t.Fatalf("expected ttrack.yaml preserved, got %q", string(b))
	}

	if err := i.Init(domain.WorkspaceSpec{Root: tmp}, true); err != nil {
		t.Fatalf("Init (force=true) error: %v", err)
	}

	b, err = os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("read ttrack.yaml after force: %v", err)
	}
	if !strings.Contains(string(b), "ttrack:") {
		t.Fatalf("expected ttrack.yaml overwritten with template, got %q", string(b))
	}
}

func assertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file %s, stat err=%v", path, err)
	}
}

func assertDirExists(t *testing.T, path string) {
	t.Helper()
	st, err := os.Stat(path)
	if err != nil || !st.IsDir() {
		t.Fatalf("expected dir %s, err=%v", path, err)
	}
}
