package usecase

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tinytrack/ttrack/internal/buildinfo"
	"github.com/tinytrack/ttrack/internal/domain"
)

type CheckStatus string

const (
	CheckOK      CheckStatus = "ok"
	CheckFailed  CheckStatus = "failed"
	CheckSkipped CheckStatus = "skipped"
)

type Check struct {
	Name    string
	Status  CheckStatus
	Message string
}

// DoctorReport is the outcome of a packaging check.
type DoctorReport struct {
	Package   buildinfo.Package
	Checks    []Check
	Artifacts []string
}

func (r DoctorReport) OK() bool {
	for _, c := range r.Checks {
		if c.Status == CheckFailed {
			return false
		}
	}
	return true
}

// Doctor verifies the declared distribution metadata and that the package
// directory carries a native artifact matching the declared pattern.
type Doctor struct {
	pkg  buildinfo.Package
	deps func() (map[string]string, bool)
}

func NewDoctor() *Doctor {
	return &Doctor{pkg: buildinfo.Declared(), deps: buildinfo.Dependencies}
}

// Execute runs every check. The returned error is non-nil when any check failed.
func (uc *Doctor) Execute(cfg domain.PackagingConfig, root string) (DoctorReport, error) {
	rep := DoctorReport{Package: uc.pkg}

	rep.Checks = append(rep.Checks, uc.checkMetadata())
	rep.Checks = append(rep.Checks, uc.checkRequires())

	artifacts, check := checkArtifacts(cfg, root)
	rep.Artifacts = artifacts
	rep.Checks = append(rep.Checks, check)

	if !rep.OK() {
		var failed []string
		for _, c := range rep.Checks {
			if c.Status == CheckFailed {
				failed = append(failed, c.Name)
			}
		}
		return rep, &domain.OpError{
			Op:   "usecase.doctor",
			Kind: domain.KindExecution,
			Err:  fmt.Errorf("failed checks: %s", strings.Join(failed, ", ")),
		}
	}
	return rep, nil
}

func (uc *Doctor) checkMetadata() Check {
	c := Check{Name: "metadata"}
	switch {
	case strings.TrimSpace(uc.pkg.Name) == "":
		c.Status, c.Message = CheckFailed, "package name is empty"
	case strings.TrimSpace(uc.pkg.Version) == "":
		c.Status, c.Message = CheckFailed, "package version is empty"
	default:
		c.Status = CheckOK
		c.Message = fmt.Sprintf("%s %s (%s, go >= %s)", uc.pkg.Name, uc.pkg.Version, uc.pkg.License, uc.pkg.MinGo)
	}
	return c
}

func (uc *Doctor) checkRequires() Check {
	c := Check{Name: "requires"}
	deps, ok := uc.deps()
	if !ok || len(deps) == 0 {
		c.Status, c.Message = CheckSkipped, "binary carries no module information"
		return c
	}
	if missing := buildinfo.Missing(uc.pkg.Requires, deps); len(missing) > 0 {
		c.Status, c.Message = CheckFailed, "missing: "+strings.Join(missing, ", ")
		return c
	}
	parts := make([]string, 0, len(uc.pkg.Requires))
	for _, r := range uc.pkg.Requires {
		parts = append(parts, r+"@"+deps[r])
	}
	c.Status, c.Message = CheckOK, strings.Join(parts, ", ")
	return c
}

func checkArtifacts(cfg domain.PackagingConfig, root string) ([]string, Check) {
	c := Check{Name: "artifacts"}

	pattern := cfg.Pattern
	if pattern == "" {
		pattern = buildinfo.PackageData
	}
	dir := cfg.ArtifactDir
	if dir == "" {
		dir = "."
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		c.Status, c.Message = CheckFailed, fmt.Sprintf("bad pattern %q: %v", pattern, err)
		return nil, c
	}
	if len(matches) == 0 {
		c.Status, c.Message = CheckFailed, fmt.Sprintf("no artifact matching %q in %s", pattern, dir)
		return nil, c
	}

	c.Status = CheckOK
	c.Message = fmt.Sprintf("%d artifact(s) matching %q", len(matches), pattern)
	return matches, c
}
