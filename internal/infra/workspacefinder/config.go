package workspacefinder

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tinytrack/ttrack/internal/domain"
)

// Environment variables that override ttrack.yaml.
const (
	EnvTrackingDir = "TTRACK_TRACKING_DIR"
	EnvMLflowURI   = "MLFLOW_TRACKING_URI"
	EnvUser        = "TTRACK_USER"
)

// LoadConfig loads ttrack.yaml from the workspace root and applies defaults.
func LoadConfig(root string) (domain.Config, error) {
	cfg := domain.DefaultConfig()

	path := filepath.Join(root, ConfigFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, &domain.OpError{
			Op:   "workspacefinder.loadconfig",
			Kind: domain.KindNotFound,
			Path: path,
			Err:  err,
		}
	}

	var y yamlConfig
	if err := yaml.Unmarshal(b, &y); err != nil {
		return cfg, &domain.OpError{
			Op:   "workspacefinder.loadconfig",
			Kind: domain.KindInvalidConfig,
			Path: path,
			Err:  err,
		}
	}

	// Apply parsed values on top of defaults.
	t := y.TTrack
	if t.Tracking.Dir != "" {
		cfg.Tracking.Dir = t.Tracking.Dir
	}
	if t.Tracking.DefaultExperiment != "" {
		cfg.Tracking.DefaultExperiment = t.Tracking.DefaultExperiment
	}
	if t.Tracking.User != "" {
		cfg.Tracking.User = t.Tracking.User
	}
	if t.Logging.Debug != nil {
		cfg.Logging.Debug = *t.Logging.Debug
	}
	if t.Export.Listen != "" {
		cfg.Export.Listen = t.Export.Listen
	}
	if t.Packaging.ArtifactDir != "" {
		cfg.Packaging.ArtifactDir = t.Packaging.ArtifactDir
	}
	if t.Packaging.Pattern != "" {
		if _, err := filepath.Match(t.Packaging.Pattern, ""); err != nil {
			return cfg, &domain.OpError{
				Op:   "workspacefinder.loadconfig",
				Kind: domain.KindInvalidConfig,
				Path: path,
				Err:  fmt.Errorf("packaging.pattern %q: %w", t.Packaging.Pattern, err),
			}
		}
		cfg.Packaging.Pattern = t.Packaging.Pattern
	}

	return cfg, nil
}

// ApplyEnv overrides cfg from the environment. TTRACK_TRACKING_DIR wins over
// MLFLOW_TRACKING_URI; the latter must be a plain path or a file:// URI.
func ApplyEnv(cfg domain.Config, lookup func(string) (string, bool)) (domain.Config, error) {
	if v, ok := lookup(EnvTrackingDir); ok && strings.TrimSpace(v) != "" {
		cfg.Tracking.Dir = strings.TrimSpace(v)
	} else if v, ok := lookup(EnvMLflowURI); ok && strings.TrimSpace(v) != "" {
		dir, err := TrackingDirFromURI(strings.TrimSpace(v))
		if err != nil {
			return cfg, err
		}
		cfg.Tracking.Dir = dir
	}
	if v, ok := lookup(EnvUser); ok && strings.TrimSpace(v) != "" {
		cfg.Tracking.User = strings.TrimSpace(v)
	}
	return cfg, nil
}

// TrackingDirFromURI accepts "file:///abs/path", "file:rel/path" or a bare path.
func TrackingDirFromURI(uri string) (string, error) {
	if !strings.Contains(uri, "://") && !strings.HasPrefix(uri, "file:") {
		return uri, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", &domain.OpError{
			Op:   "workspacefinder.tracking_uri",
			Kind: domain.KindInvalidConfig,
			Err:  err,
		}
	}
	if u.Scheme != "file" {
		return "", &domain.OpError{
			Op:   "workspacefinder.tracking_uri",
			Kind: domain.KindInvalidConfig,
			Err:  fmt.Errorf("unsupported tracking uri scheme %q (only file stores are supported)", u.Scheme),
		}
	}

	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	if p == "" {
		return "", &domain.OpError{
			Op:   "workspacefinder.tracking_uri",
			Kind: domain.KindInvalidConfig,
			Err:  errors.New("file tracking uri has no path"),
		}
	}
	return filepath.FromSlash(p), nil
}

// ResolveTrackingDir makes a configured tracking dir absolute against the workspace root.
func ResolveTrackingDir(root string, cfg domain.Config) string {
	dir := cfg.Tracking.Dir
	if dir == "" {
		dir = domain.DefaultConfig().Tracking.Dir
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(root, dir)
}

type yamlConfig struct {
	TTrack struct {
		Tracking struct {
			Dir               string `yaml:"dir"`
			DefaultExperiment string `yaml:"default_experiment"`
			User              string `yaml:"user"`
		} `yaml:"tracking"`

		Logging struct {
			Debug *bool `yaml:"debug"`
		} `yaml:"logging"`

		Export struct {
			Listen string `yaml:"listen"`
		} `yaml:"export"`

		Packaging struct {
			ArtifactDir string `yaml:"artifact_dir"`
			Pattern     string `yaml:"pattern"`
		} `yaml:"packaging"`
	} `yaml:"ttrack"`
}
