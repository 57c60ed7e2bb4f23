// Package loader turns source paths into executed modules. It owns the
// on-disk bytecode cache, import resolution, cycle detection and the
// imported-module memo table.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/Open-Argon/Chloride-sub000/compiler"
	"github.com/Open-Argon/Chloride-sub000/pkg/arerr"
	"github.com/Open-Argon/Chloride-sub000/pkg/bytecode"
	"github.com/Open-Argon/Chloride-sub000/vm"
	"github.com/Open-Argon/Chloride-sub000/vm/store"
)

// Config controls caching and module lookup.
type Config struct {
	CacheEnabled bool
	// CacheDir is the directory, next to each source file, holding its
	// cache files.
	CacheDir string
	// ModulesDir is searched after the literal path. A relative name is
	// taken relative to the importing file.
	ModulesDir string
}

// DefaultConfig returns the standard layout with caching enabled.
func DefaultConfig() Config {
	return Config{
		CacheEnabled: true,
		CacheDir:     "__arcache__",
		ModulesDir:   "argon_modules",
	}
}

// pendingImport marks a module whose body is executing. Other States
// importing it wait on done; the owning State importing it again is a
// cycle.
type pendingImport struct {
	owner *vm.State
	done  chan struct{}
	mod   *vm.Object
	err   error
}

// Loader loads, caches and imports modules for one interpreter.
type Loader struct {
	it  *vm.Interpreter
	cfg Config
	log commonlog.Logger

	importing *store.Store[*pendingImport]
	imported  *store.Store[*vm.Object]

	origin atomic.Pointer[string]
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a loader and installs it as the interpreter's importer.
func New(it *vm.Interpreter, cfg Config) *Loader {
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultConfig().CacheDir
	}
	if cfg.ModulesDir == "" {
		cfg.ModulesDir = DefaultConfig().ModulesDir
	}
	l := &Loader{
		it:        it,
		cfg:       cfg,
		log:       commonlog.GetLogger("argon.loader"),
		importing: store.New[*pendingImport](),
		imported:  store.New[*vm.Object](),
	}
	it.SetImporter(l)
	return l
}

// CacheStats returns the number of cache hits and misses so far.
func (l *Loader) CacheStats() (hits, misses int64) {
	return l.hits.Load(), l.misses.Load()
}

// ---------------------------------------------------------------------------
// Load: source or cache to Translated
// ---------------------------------------------------------------------------

// Load returns the translated unit for the source file at path, from the
// cache when a valid entry exists. A missing or unreadable file is a
// File Error.
func (l *Loader) Load(path string) (*bytecode.Translated, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, arerr.New(arerr.File, "cannot open '%s': %s", path, describeFSError(err))
	}
	hash := bytecode.HashSource(src)

	if l.cfg.CacheEnabled {
		if unit := l.readCache(path, hash); unit != nil {
			l.hits.Add(1)
			return unit, nil
		}
	}
	l.misses.Add(1)

	unit, err := compiler.Compile(path, src)
	if err != nil {
		return nil, err
	}
	if l.cfg.CacheEnabled {
		l.writeCache(path, unit, hash)
	}
	return unit, nil
}

func describeFSError(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "no such file"
	case errors.Is(err, fs.ErrPermission):
		return "permission denied"
	}
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err.Error()
	}
	return err.Error()
}

// readCache returns the cached unit for path, or nil on any miss.
func (l *Loader) readCache(path string, hash uint64) *bytecode.Translated {
	binPath, locPath := cachePaths(path, l.cfg.CacheDir)
	data, err := os.ReadFile(binPath)
	if err != nil {
		l.log.Debugf("cache miss for %s: %v", path, err)
		return nil
	}
	unit, err := DecodeCache(path, data, hash)
	if err != nil {
		l.log.Debugf("cache miss for %s: %v", path, err)
		return nil
	}
	locData, err := os.ReadFile(locPath)
	if err != nil {
		l.log.Debugf("cache miss for %s: locations: %v", path, err)
		return nil
	}
	locs, err := DecodeLocations(locData, hash)
	if err != nil {
		l.log.Debugf("cache miss for %s: locations: %v", path, err)
		return nil
	}
	unit.Locations = locs
	l.log.Debugf("cache hit for %s", path)
	return unit
}

// writeCache stores unit next to path. Failures are logged and ignored.
func (l *Loader) writeCache(path string, unit *bytecode.Translated, hash uint64) {
	binPath, locPath := cachePaths(path, l.cfg.CacheDir)
	locData, err := EncodeLocations(unit.Locations, hash)
	if err != nil {
		l.log.Warningf("cannot encode locations for %s: %v", path, err)
		return
	}
	if err := writeAtomic(locPath, locData); err != nil {
		l.log.Warningf("cannot write %s: %v", locPath, err)
		return
	}
	if err := writeAtomic(binPath, EncodeCache(unit, hash)); err != nil {
		l.log.Warningf("cannot write %s: %v", binPath, err)
	}
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// Resolve finds the file an import of path from fromPath refers to and
// returns its absolute, cleaned path. Candidates are tried in order: the
// literal path, <path>/init.ar, then both under the modules directory.
// Extensionless names also try <path>.ar.
func (l *Loader) Resolve(fromPath, path string) (string, error) {
	base := "."
	if fromPath != "" {
		base = filepath.Dir(fromPath)
	}
	rel := filepath.FromSlash(path)

	var roots []string
	if filepath.IsAbs(rel) {
		roots = []string{rel}
	} else {
		mods := l.cfg.ModulesDir
		if !filepath.IsAbs(mods) {
			mods = filepath.Join(base, mods)
		}
		roots = []string{
			filepath.Join(base, rel),
			filepath.Join(mods, rel),
		}
	}

	for _, root := range roots {
		candidates := []string{root}
		if filepath.Ext(root) == "" {
			candidates = append(candidates, root+".ar")
		}
		candidates = append(candidates, filepath.Join(root, "init.ar"))
		for _, c := range candidates {
			if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
				abs, err := filepath.Abs(c)
				if err != nil {
					return "", arerr.New(arerr.Import, "cannot resolve '%s': %v", path, err)
				}
				return abs, nil
			}
		}
	}
	return "", arerr.New(arerr.Import, "cannot find module '%s'", path)
}

// ---------------------------------------------------------------------------
// Import
// ---------------------------------------------------------------------------

// Import implements vm.Importer.
func (l *Loader) Import(s *vm.State, fromPath, path string) (*vm.Object, error) {
	resolved, err := l.Resolve(fromPath, path)
	if err != nil {
		return nil, err
	}
	return l.importFile(s, resolved, false)
}

// RunMain executes the file at path as the program's main module.
func (l *Loader) RunMain(path string) (*vm.Object, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, arerr.New(arerr.File, "cannot open '%s': %v", path, err)
	}
	l.origin.CompareAndSwap(nil, &abs)
	return l.importFile(l.it.NewState(), abs, true)
}

// importFile executes the module at canonical once and memoizes it.
func (l *Loader) importFile(s *vm.State, canonical string, main bool) (*vm.Object, error) {
	h := bytecode.HashName(canonical)
	for {
		if mod, ok := l.imported.Lookup(h); ok {
			return mod, nil
		}
		p := &pendingImport{owner: s, done: make(chan struct{})}
		if l.importing.InsertNew(h, canonical, p) {
			// A concurrent import may have finished between the memo
			// lookup and the claim.
			if mod, ok := l.imported.Lookup(h); ok {
				l.importing.Remove(h)
				close(p.done)
				return mod, nil
			}
			return l.runImport(s, canonical, h, p, main)
		}
		other, ok := l.importing.Lookup(h)
		if !ok {
			continue
		}
		if other.owner == s {
			return nil, arerr.New(arerr.Import, "circular import of '%s'", l.display(canonical))
		}
		l.log.Debugf("waiting for %s to finish importing", canonical)
		<-other.done
		if other.err != nil {
			return nil, other.err
		}
		return other.mod, nil
	}
}

func (l *Loader) runImport(s *vm.State, canonical string, h uint64, p *pendingImport, main bool) (*vm.Object, error) {
	defer func() {
		l.importing.Remove(h)
		close(p.done)
	}()

	mod, err := l.execModule(s, canonical, main)
	if err != nil {
		p.err = err
		return nil, err
	}
	p.mod = mod
	l.imported.Insert(h, canonical, mod, 0)
	l.log.Debugf("imported %s", canonical)
	return mod, nil
}

// execModule builds the module environment and runs the module body:
// global scope, then a program scope binding `program`, then the module
// scope whose store becomes the module's exports.
func (l *Loader) execModule(s *vm.State, path string, main bool) (*vm.Object, error) {
	unit, err := l.Load(path)
	if err != nil {
		return nil, err
	}

	programScope := vm.NewScope(l.it.Global)
	programScope.Declare(bytecode.HashName("program"), "program", l.programObject(path, main))
	moduleScope := vm.NewScope(programScope)
	mod := l.it.NewModule(path, moduleScope.Store)

	if _, err := s.Execute(unit, moduleScope); err != nil {
		return nil, err
	}
	return mod, nil
}

func (l *Loader) programObject(path string, main bool) *vm.Object {
	origin := path
	if o := l.origin.Load(); o != nil {
		origin = *o
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	obj := vm.NewObject(vm.KindInstance)
	obj.SetField("path", vm.NewString(path))
	obj.SetField("name", vm.NewString(stem))
	obj.SetField("directory", vm.NewString(filepath.Dir(path)))
	obj.SetField("main", vm.Bool(main))
	obj.SetField("origin", vm.NewString(origin))
	return obj
}

// display shortens canonical paths relative to the working directory.
func (l *Loader) display(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(wd, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}

// Compile loads path, refreshing its cache entry, without executing it.
func (l *Loader) Compile(path string) error {
	if _, err := l.Load(path); err != nil {
		return fmt.Errorf("compile %s: %w", path, err)
	}
	return nil
}
