package tui

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tinytrack/ttrack/internal/domain"
)

var reLine = regexp.MustCompile(`(?i)\bline\s+(\d+)\b`)

func userMessage(err error) string {
	if err == nil {
		return ""
	}

	var oe *domain.OpError
	if errors.As(err, &oe) {
		switch oe.Kind {
		case domain.KindNotFound:
			switch {
			case strings.Contains(oe.Op, "run"):
				return "Run not found"
			case strings.Contains(oe.Op, "experiment"):
				return "Experiment not found"
			case strings.Contains(oe.Op, "workspacefinder"):
				return "Workspace not found"
			}
			return "Not found"

		case domain.KindConflict:
			return "Conflict: " + errorTail(oe)

		case domain.KindInvalidConfig:
			base := "config"
			if strings.TrimSpace(oe.Path) != "" {
				base = filepath.Base(oe.Path)
			}
			if line := extractLine(err.Error()); line != "" {
				return "Invalid YAML at " + base + " line " + line
			}
			if looksLikeYAMLProblem(err.Error()) {
				return "Invalid YAML at " + base
			}
			return "Invalid config"

		default:
			return "Unexpected error (see logs)"
		}
	}

	if looksLikeYAMLProblem(err.Error()) {
		if line := extractLine(err.Error()); line != "" {
			return "Invalid YAML line " + line
		}
		return "Invalid YAML"
	}
	return "Unexpected error (see logs)"
}

func errorTail(oe *domain.OpError) string {
	if oe.Err == nil {
		return string(oe.Kind)
	}
	return oe.Err.Error()
}

func looksLikeYAMLProblem(s string) bool {
	ls := strings.ToLower(s)
	return strings.Contains(ls, "yaml:") || strings.Contains(ls, "did not find expected") || strings.Contains(ls, "cannot unmarshal")
}

func extractLine(s string) string {
	m := reLine.FindStringSubmatch(s)
	if len(m) == 2 {
		return m[1]
	}
	return ""
}
