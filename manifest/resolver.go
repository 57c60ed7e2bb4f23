package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/tliron/commonlog"
)

// InstalledDep is a dependency placed under the project's modules directory.
type InstalledDep struct {
	Name      string    // dependency name, also its import name
	LocalPath string    // directory under the modules dir
	Git       string    // git URL, empty for path dependencies
	Tag       string    // requested git ref
	Path      string    // absolute source directory for path dependencies
	Manifest  *Manifest // the dependency's own manifest (may be nil)
}

// Installer places the project's dependencies, and theirs, in the
// modules directory so that `import "name"` resolves to them.
type Installer struct {
	manifest *Manifest
	lock     *LockFile
	log      commonlog.Logger
}

// NewInstaller creates an installer for m.
func NewInstaller(m *Manifest) *Installer {
	return &Installer{
		manifest: m,
		log:      commonlog.GetLogger("argon.manifest"),
	}
}

// Install installs every dependency and returns them with dependencies
// before their dependents. Transitive dependencies share the project's
// modules directory; the first definition of a name wins.
func (r *Installer) Install() ([]InstalledDep, error) {
	lock, err := ReadLock(r.manifest.LockFilePath())
	if err != nil {
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	r.lock = lock

	if err := os.MkdirAll(r.manifest.ModulesPath(), 0o755); err != nil {
		return nil, fmt.Errorf("creating modules dir: %w", err)
	}

	installed := make(map[string]*InstalledDep)
	order, err := r.installAll(r.manifest.Dir, r.manifest.Dependencies, installed)
	if err != nil {
		return nil, err
	}

	if err := r.writeLock(order); err != nil {
		return nil, fmt.Errorf("writing lock file: %w", err)
	}
	return order, nil
}

func (r *Installer) installAll(base string, deps map[string]Dependency, installed map[string]*InstalledDep) ([]InstalledDep, error) {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	var order []InstalledDep
	for _, name := range names {
		if _, ok := installed[name]; ok {
			continue
		}
		dep := deps[name]
		d, err := r.installOne(base, name, dep)
		if err != nil {
			return nil, fmt.Errorf("installing %s: %w", name, err)
		}
		installed[name] = d

		if d.Manifest != nil && len(d.Manifest.Dependencies) > 0 {
			transitive, err := r.installAll(d.Manifest.Dir, d.Manifest.Dependencies, installed)
			if err != nil {
				return nil, err
			}
			order = append(order, transitive...)
		}
		order = append(order, *d)
	}
	return order, nil
}

func (r *Installer) installOne(base, name string, dep Dependency) (*InstalledDep, error) {
	if filepath.Base(name) != name || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid dependency name %q", name)
	}
	dest := filepath.Join(r.manifest.ModulesPath(), name)

	switch {
	case dep.Path != "":
		src := dep.Path
		if !filepath.IsAbs(src) {
			src = filepath.Join(base, src)
		}
		src, err := filepath.Abs(src)
		if err != nil {
			return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
		}
		if info, err := os.Stat(src); err != nil {
			return nil, fmt.Errorf("local dependency not found at %s: %w", src, err)
		} else if !info.IsDir() {
			return nil, fmt.Errorf("local dependency %s is not a directory", src)
		}
		if err := linkDir(src, dest); err != nil {
			return nil, err
		}
		r.log.Infof("linked %s -> %s", name, src)
		return &InstalledDep{Name: name, LocalPath: dest, Path: src, Manifest: loadOptional(src)}, nil

	case dep.Git != "":
		if _, err := os.Stat(dest); errors.Is(err, fs.ErrNotExist) {
			r.log.Infof("cloning %s from %s", name, dep.Git)
			if err := gitClone(dep.Git, dest); err != nil {
				return nil, err
			}
		} else if locked := r.lock.FindLockedDep(name); locked == nil || locked.Tag != dep.Tag || locked.Git != dep.Git {
			r.log.Infof("fetching %s", name)
			if err := gitFetch(dest); err != nil {
				return nil, err
			}
		}
		if dep.Tag != "" {
			if err := gitCheckout(dest, dep.Tag); err != nil {
				return nil, err
			}
		}
		return &InstalledDep{Name: name, LocalPath: dest, Git: dep.Git, Tag: dep.Tag, Manifest: loadOptional(dest)}, nil
	}

	return nil, fmt.Errorf("dependency %q has no git or path specified", name)
}

// linkDir points dest at src, replacing a stale link. A real directory
// at dest is left alone.
func linkDir(src, dest string) error {
	if info, err := os.Lstat(dest); err == nil {
		if info.Mode()&fs.ModeSymlink == 0 {
			return fmt.Errorf("%s already exists and is not a link", dest)
		}
		if target, err := os.Readlink(dest); err == nil && target == src {
			return nil
		}
		if err := os.Remove(dest); err != nil {
			return err
		}
	}
	return os.Symlink(src, dest)
}

func loadOptional(dir string) *Manifest {
	m, err := Load(dir)
	if err != nil {
		return nil
	}
	return m
}

func (r *Installer) writeLock(deps []InstalledDep) error {
	lf := &LockFile{}
	for _, d := range deps {
		ld := LockedDep{Name: d.Name, Git: d.Git, Tag: d.Tag, Path: d.Path}
		if d.Git != "" {
			if commit, err := gitCurrentCommit(d.LocalPath); err == nil {
				ld.Commit = commit
			}
		}
		lf.Deps = append(lf.Deps, ld)
	}
	return WriteLock(r.manifest.LockFilePath(), lf)
}
