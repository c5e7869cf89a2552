package buildinfo

import (
	"fmt"
	"runtime/debug"
	"sort"
)

// Overridden at link time with -ldflags "-X".
var (
	Version = "0.0.3"
	Commit  = "none"
	Date    = "unknown"
)

const (
	Name        = "tiny-track"
	Description = "tiny-track: a minimalist, MLFlow-compatible experiment tracking library"
	License     = "Apache-2.0"
	// MinGoVersion matches the go directive in go.mod.
	MinGoVersion = "1.24"
	// LibraryName is the shared object built from cmd/libttrack.
	LibraryName = "libttrack.so"
	// PackageData is the pattern the packaged native artifact must match.
	PackageData = "*.so"
)

// Requires lists the modules the native library cannot be built without.
var Requires = []string{
	"github.com/google/uuid",
	"gopkg.in/yaml.v3",
}

// Package is the declared distribution metadata.
type Package struct {
	Name        string
	Version     string
	Description string
	License     string
	MinGo       string
	Requires    []string
	PackageData string
}

func Declared() Package {
	req := make([]string, len(Requires))
	copy(req, Requires)
	return Package{
		Name:        Name,
		Version:     Version,
		Description: Description,
		License:     License,
		MinGo:       MinGoVersion,
		Requires:    req,
		PackageData: PackageData,
	}
}

// Dependencies returns module path -> version for the running binary.
// ok is false when the binary carries no build information.
func Dependencies() (map[string]string, bool) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(bi.Deps))
	for _, d := range bi.Deps {
		v := d.Version
		if d.Replace != nil {
			v = d.Replace.Version
		}
		out[d.Path] = v
	}
	return out, true
}

// Missing returns the declared requirements absent from deps, sorted.
func Missing(requires []string, deps map[string]string) []string {
	var out []string
	for _, r := range requires {
		if _, ok := deps[r]; !ok {
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return out
}

func String() string {
	return fmt.Sprintf("%s %s (commit=%s, date=%s)", Name, Version, Commit, Date)
}
