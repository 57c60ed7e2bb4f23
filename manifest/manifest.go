// Package manifest handles argon.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file searched for by FindAndLoad.
const FileName = "argon.toml"

// Manifest represents an argon.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Cache        Cache                 `toml:"cache"`
	Modules      Modules               `toml:"modules"`
	Runtime      Runtime               `toml:"runtime"`
	Log          Log                   `toml:"log"`
	Dependencies map[string]Dependency `toml:"dependencies"`

	// Dir is the directory containing the argon.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	// Entry is the main file run when no file is given on the command line.
	Entry string `toml:"entry"`
}

// Cache configures the bytecode cache.
type Cache struct {
	Enabled *bool  `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// Modules configures where imports look for installed modules.
type Modules struct {
	Dir string `toml:"dir"`
}

// Runtime configures interpreter limits.
type Runtime struct {
	MaxDepth     int `toml:"max-depth"`
	DepthWarning int `toml:"depth-warning"`
}

// Log configures logging.
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Dependency represents a single project dependency.
type Dependency struct {
	Git  string `toml:"git"`
	Tag  string `toml:"tag"`
	Path string `toml:"path"`
}

// Defaults
const (
	DefaultCacheDir     = "__arcache__"
	DefaultModulesDir   = "argon_modules"
	DefaultEntry        = "main.ar"
	DefaultDepthWarning = 10000
)

// Load parses an argon.toml file from the given directory.
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
	m.applyDefaults()
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// Default returns the manifest used when a project has no argon.toml.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	if abs, err := filepath.Abs(dir); err == nil {
		m.Dir = abs
	}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Cache.Enabled == nil {
		enabled := true
		m.Cache.Enabled = &enabled
	}
	if m.Cache.Dir == "" {
		m.Cache.Dir = DefaultCacheDir
	}
	if m.Modules.Dir == "" {
		m.Modules.Dir = DefaultModulesDir
	}
	if m.Project.Entry == "" {
		m.Project.Entry = DefaultEntry
	}
	if m.Runtime.DepthWarning == 0 {
		m.Runtime.DepthWarning = DefaultDepthWarning
	}
}

func (m *Manifest) validate() error {
	if m.Runtime.MaxDepth < 0 {
		return fmt.Errorf("runtime.max-depth must not be negative")
	}
	if m.Runtime.DepthWarning < 0 {
		return fmt.Errorf("runtime.depth-warning must not be negative")
	}
	for _, d := range []struct{ key, val string }{{"cache.dir", m.Cache.Dir}, {"modules.dir", m.Modules.Dir}} {
		if filepath.IsAbs(d.val) || filepath.Base(d.val) != d.val {
			return fmt.Errorf("%s must be a plain directory name, got %q", d.key, d.val)
		}
	}
	for name, dep := range m.Dependencies {
		if (dep.Git == "") == (dep.Path == "") {
			return fmt.Errorf("dependency %q needs exactly one of git or path", name)
		}
	}
	return nil
}

// FindAndLoad walks up from startDir to find an argon.toml file,
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
			return nil, nil
		}
		dir = parent
	}
}

// CacheEnabled reports whether the bytecode cache is on.
func (m *Manifest) CacheEnabled() bool {
	return m.Cache.Enabled == nil || *m.Cache.Enabled
}

// EntryPath returns the absolute path of the project's main file.
func (m *Manifest) EntryPath() string {
	return filepath.Join(m.Dir, m.Project.Entry)
}

// ModulesPath returns the installed-modules directory of the project.
func (m *Manifest) ModulesPath() string {
	return filepath.Join(m.Dir, m.Modules.Dir)
}

// LockFilePath returns the path to argon.lock.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, "argon.lock")
}
