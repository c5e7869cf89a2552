package buildinfo

import (
	"strings"
	"testing"
)

func TestDeclared_MatchesDistributionMetadata(t *testing.T) {
	p := Declared()

	if p.Name != "tiny-track" {
		t.Fatalf("unexpected name: %q", p.Name)
	}
	if p.Version != "0.0.3" {
		t.Fatalf("unexpected version: %q", p.Version)
	}
	if p.Description != "tiny-track: a minimalist, MLFlow-compatible experiment tracking library" {
		t.Fatalf("unexpected description: %q", p.Description)
	}
	if p.License != "Apache-2.0" {
		t.Fatalf("unexpected license: %q", p.License)
	}
	if p.PackageData != "*.so" {
		t.Fatalf("unexpected package data: %q", p.PackageData)
	}
	if len(p.Requires) != 2 || p.Requires[0] != "github.com/google/uuid" || p.Requires[1] != "gopkg.in/yaml.v3" {
		t.Fatalf("unexpected requires: %v", p.Requires)
	}
}

func TestDeclared_ReturnsCopyOfRequires(t *testing.T) {
	p := Declared()
	p.Requires[0] = "mutated"
	if Requires[0] == "mutated" {
		t.Fatalf("Declared must not expose the package-level slice")
	}
}

func TestMissing(t *testing.T) {
	deps := map[string]string{"gopkg.in/yaml.v3": "v3.0.1"}
	got := Missing([]string{"gopkg.in/yaml.v3", "z/mod", "a/mod"}, deps)
	if len(got) != 2 || got[0] != "a/mod" || got[1] != "z/mod" {
		t.Fatalf("unexpected missing: %v", got)
	}
	if got := Missing(nil, deps); len(got) != 0 {
		t.Fatalf("expected none, got %v", got)
	}
}

func TestString(t *testing.T) {
	s := String()
	if !strings.HasPrefix(s, "tiny-track 0.0.3") {
		t.Fatalf("unexpected: %q", s)
	}
}
