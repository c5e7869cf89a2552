package fsworkspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var testEntries = []string{".ttrack/", "mlruns/"}

func TestEnsureGitignore_CreatesFile(t *testing.T) {
	tmp := t.TempDir()

	if err := ensureGitignore(tmp, testEntries); err != nil {
		t.Fatalf("ensureGitignore error: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(tmp, ".gitignore"))
	if err != nil {
		t.Fatalf("read .gitignore: %v", err)
	}

	s := string(b)
	for _, w := range []string{"# ttrack", ".ttrack/", "mlruns/"} {
		if !strings.Contains(s, w) {
			t.Fatalf("expected .gitignore to contain %q, got:\n%s", w, s)
		}
	}
}

func TestEnsureGitignore_AppendsMissingEntries(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, ".gitignore")

	existing := "node_modules/\n# ttrack\nmlruns/"
	if err := os.WriteFile(path, []byte(existing), 0o644); err != nil {
		t.Fatalf("write .gitignore: %v", err)
	}

	if err := ensureGitignore(tmp, testEntries); err != nil {
		t.Fatalf("ensureGitignore error: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read .gitignore: %v", err)
	}
	s := string(b)

	if !strings.HasPrefix(s, existing+"\n") {
		t.Fatalf("expected existing content preserved, got:\n%s", s)
	}
	if strings.Count(s, "mlruns/") != 1 {
		t.Fatalf("expected mlruns/ once, got:\n%s", s)
	}
	if strings.Count(s, "# ttrack") != 1 {
		t.Fatalf("expected header once, got:\n%s", s)
	}
	if !strings.Contains(s, ".ttrack/") {
		t.Fatalf("expected .ttrack/ appended, got:\n%s", s)
	}
}

func TestEnsureGitignore_NoopWhenComplete(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, ".gitignore")
	content := "# ttrack\n.ttrack/\nmlruns/\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ensureGitignore(tmp, testEntries); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(path)
	if string(b) != content {
		t.Fatalf("expected unchanged .gitignore, got:\n%s", b)
	}
}
