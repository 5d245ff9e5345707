package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "calc"
entry = "main.yaml"

[vm]
max-depth = 64
budget = 100000
timeout = "5s"
trace = true

[compile]
params = ["argv"]

[cache]
path = "build/cache.db"
enabled = false

[log]
verbosity = 2
file = "marte.log"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "calc" {
		t.Errorf("project name = %q, want calc", m.Project.Name)
	}
	if m.VM.MaxDepth != 64 || m.VM.Budget != 100000 || !m.VM.Trace {
		t.Errorf("vm = %+v", m.VM)
	}
	if m.VM.Timeout.Duration != 5*time.Second {
		t.Errorf("timeout = %s, want 5s", m.VM.Timeout)
	}
	if len(m.Compile.Params) != 1 || m.Compile.Params[0] != "argv" {
		t.Errorf("params = %v, want [argv]", m.Compile.Params)
	}
	if m.CacheEnabled() {
		t.Error("cache enabled = true, want false")
	}
	if got, want := m.CachePath(), filepath.Join(m.Dir, "build", "cache.db"); got != want {
		t.Errorf("cache path = %q, want %q", got, want)
	}
	if f := m.LogFile(); f == nil || *f != filepath.Join(m.Dir, "marte.log") {
		t.Errorf("log file = %v", f)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", m.Log.Verbosity)
	}
	if got, want := m.EntryPath(), filepath.Join(m.Dir, "main.yaml"); got != want {
		t.Errorf("entry = %q, want %q", got, want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.VM.MaxDepth != DefaultMaxDepth {
		t.Errorf("max-depth = %d, want %d", m.VM.MaxDepth, DefaultMaxDepth)
	}
	if m.VM.Budget != 0 || m.VM.Timeout.Duration != 0 {
		t.Errorf("limits = %+v, want unlimited", m.VM)
	}
	if !m.CacheEnabled() {
		t.Error("cache disabled by default")
	}
	if got, want := m.CachePath(), filepath.Join(m.Dir, ".marte", "cache.db"); got != want {
		t.Errorf("cache path = %q, want %q", got, want)
	}
	if m.LogFile() != nil {
		t.Errorf("log file = %q, want stderr", *m.LogFile())
	}
	if m.EntryPath() != "" {
		t.Errorf("entry = %q, want none", m.EntryPath())
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[vm\nmax-depth = 1"},
		{"bad timeout", "[vm]\ntimeout = \"soon\""},
		{"negative timeout", "[vm]\ntimeout = \"-1s\""},
		{"negative depth", "[vm]\nmax-depth = -1"},
		{"wrong type", "[compile]\nparams = \"argv\""},
	}
	for _, tt := range tests {
		dir := t.TempDir()
		writeManifest(t, dir, tt.content)
		if _, err := Load(dir); err == nil {
			t.Errorf("%s: Load succeeded", tt.name)
		}
	}

	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of a directory without marte.toml succeeded")
	}
}

func TestDefault(t *testing.T) {
	m := Default()
	if m.VM.MaxDepth != DefaultMaxDepth || !m.CacheEnabled() {
		t.Errorf("Default() = %+v", m)
	}
	if m.CachePath() != DefaultCachePath {
		t.Errorf("cache path = %q, want %q", m.CachePath(), DefaultCachePath)
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, `[project]
name = "found-project"
`)

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no marte.toml exists")
	}
}

func TestAbsolutePaths(t *testing.T) {
	m := &Manifest{Dir: "/app", Cache: CacheConfig{Path: "/var/cache/marte.db"}}
	if m.CachePath() != "/var/cache/marte.db" {
		t.Errorf("cache path = %q", m.CachePath())
	}
}
