package fsworkspace

import (
	"bytes"
	"embed"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/tinytrack/ttrack/internal/domain"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const defaultTrackingDir = "mlruns"

type Initializer struct{}

func NewInitializer() *Initializer {
	return &Initializer{}
}

// Init lays out a workspace: ttrack.yaml, the tracking dir, the log dir and
// .gitignore entries. Existing files are kept unless force is set.
func (i *Initializer) Init(spec domain.WorkspaceSpec, force bool) error {
	root := filepath.Clean(spec.Root)
	trackingDir := strings.TrimSpace(spec.TrackingDir)
	if trackingDir == "" {
		trackingDir = defaultTrackingDir
	}

	trackingPath := trackingDir
	if !filepath.IsAbs(trackingPath) {
		trackingPath = filepath.Join(root, trackingDir)
	}

	dirs := []string{
		trackingPath,
		filepath.Join(root, ".ttrack", "logs"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return &domain.OpError{Op: "fsworkspace.init.mkdir", Kind: domain.KindExecution, Path: d, Err: err}
		}
	}

	gitignore := []string{".ttrack/"}
	if !filepath.IsAbs(trackingDir) {
		gitignore = append(gitignore, filepath.ToSlash(trackingDir)+"/")
	}
	if err := ensureGitignore(root, gitignore); err != nil {
		return &domain.OpError{Op: "fsworkspace.init.gitignore", Kind: domain.KindExecution, Path: root, Err: err}
	}

	return renderTemplates(root, templateData{TrackingDir: trackingDir}, force)
}

type templateData struct {
	TrackingDir string
}

func renderTemplates(root string, data templateData, force bool) error {
	entries, err := templatesFS.ReadDir("templates")
	if err != nil {
		return err
	}

	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".tmpl")
		dst := filepath.Join(root, name)

		if !force {
			if _, statErr := os.Stat(dst); statErr == nil {
				continue
			}
		}

		tmpl, err := template.ParseFS(templatesFS, "templates/"+e.Name())
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return err
		}

		if err := os.WriteFile(dst, buf.Bytes(), 0o644); err != nil {
			return &domain.OpError{Op: "fsworkspace.init.write", Kind: domain.KindExecution, Path: dst, Err: err}
		}
	}
	return nil
}

func ensureGitignore(root string, entries []string) error {
	const header = "# ttrack"

	path := filepath.Join(root, ".gitignore")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			lines := append([]string{header}, entries...)
			lines = append(lines, "")
			return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
		}
		return err
	}

	existing := string(b)
	present := map[string]bool{}
	for _, line := range strings.Split(existing, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		present[trimmed] = true
	}

	var missing []string
	for _, e := range entries {
		if !present[e] {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var out strings.Builder
	out.Grow(len(existing) + 64)

	out.WriteString(existing)
	if existing != "" && !strings.HasSuffix(existing, "\n") {
		out.WriteByte('\n')
	}
	out.WriteByte('\n')
	if !present[header] {
		out.WriteString(header)
		out.WriteByte('\n')
	}
	for _, e := range missing {
		out.WriteString(e)
		out.WriteByte('\n')
	}

	return os.WriteFile(path, []byte(out.String()), 0o644)
}
