// Package manifest handles marte.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the configuration file.
const FileName = "marte.toml"

// Defaults applied after decoding.
const (
	DefaultMaxDepth  = 1024
	DefaultCachePath = ".marte/cache.db"
)

// Manifest represents a marte.toml project configuration.
type Manifest struct {
	Project Project       `toml:"project"`
	VM      VMConfig      `toml:"vm"`
	Compile CompileConfig `toml:"compile"`
	Cache   CacheConfig   `toml:"cache"`
	Log     LogConfig     `toml:"log"`

	// Dir is the directory containing the marte.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name"`
	Entry string `toml:"entry"` // tree file run when no file is given
}

// VMConfig limits program execution.
type VMConfig struct {
	MaxDepth int      `toml:"max-depth"`
	Budget   int64    `toml:"budget"` // 0 = unlimited
	Timeout  Duration `toml:"timeout"`
	Trace    bool     `toml:"trace"`
}

// CompileConfig configures the compiler.
type CompileConfig struct {
	Params []string `toml:"params"`
}

// CacheConfig configures the compiled-chunk cache.
type CacheConfig struct {
	Path    string `toml:"path"`
	Enabled *bool  `toml:"enabled"`
}

// LogConfig configures logging.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Duration is a time.Duration written as a string such as "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("negative duration %s", text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no marte.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

// Load parses a marte.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if m.VM.MaxDepth < 0 || m.VM.Budget < 0 {
		return nil, fmt.Errorf("%s: max-depth and budget must not be negative", path)
	}

	m.applyDefaults()
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.VM.MaxDepth == 0 {
		m.VM.MaxDepth = DefaultMaxDepth
	}
	if m.Cache.Path == "" {
		m.Cache.Path = DefaultCachePath
	}
	if m.Cache.Enabled == nil {
		enabled := true
		m.Cache.Enabled = &enabled
	}
}

// FindAndLoad walks up from startDir to find a marte.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// CachePath returns the cache database path, resolved against the manifest
// directory when relative.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) || m.Dir == "" {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}

// CacheEnabled reports whether the compiled-chunk cache should be used.
func (m *Manifest) CacheEnabled() bool {
	return m.Cache.Enabled == nil || *m.Cache.Enabled
}

// LogFile returns the log file path resolved against the manifest
// directory, or nil to log to stderr.
func (m *Manifest) LogFile() *string {
	if m.Log.File == "" {
		return nil
	}
	path := m.Log.File
	if !filepath.IsAbs(path) && m.Dir != "" {
		path = filepath.Join(m.Dir, path)
	}
	return &path
}

// EntryPath returns the project entry tree file, or "" if none is set.
func (m *Manifest) EntryPath() string {
	if m.Project.Entry == "" {
		return ""
	}
	if filepath.IsAbs(m.Project.Entry) || m.Dir == "" {
		return m.Project.Entry
	}
	return filepath.Join(m.Dir, m.Project.Entry)
}
