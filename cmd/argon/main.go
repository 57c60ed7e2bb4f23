// Argon CLI - runs Argon programs, warms the bytecode cache, installs
// dependencies and serves the language server.
package main

import (
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/Open-Argon/Chloride-sub000/loader"
	"github.com/Open-Argon/Chloride-sub000/manifest"
	"github.com/Open-Argon/Chloride-sub000/pkg/arerr"
	"github.com/Open-Argon/Chloride-sub000/pkg/bytecode"
	"github.com/Open-Argon/Chloride-sub000/server"
	"github.com/Open-Argon/Chloride-sub000/vm"

	_ "github.com/tliron/commonlog/simple"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("argon", flag.ContinueOnError)
	flags.SetOutput(stderr)
	verbose := flags.Bool("v", false, "Verbose output (debug logging)")
	noCache := flags.Bool("no-cache", false, "Do not read or write the bytecode cache")
	disasm := flags.Bool("disasm", false, "Print the translated bytecode instead of running")
	compileOnly := flags.Bool("compile", false, "Compile the given files into the cache without running them")
	lsp := flags.Bool("lsp", false, "Start the language server on stdio")
	install := flags.Bool("install", false, "Install the dependencies listed in argon.toml")
	showVersion := flags.Bool("version", false, "Print the version and exit")

	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: argon [options] [file.ar...]\n\n")
		fmt.Fprintf(stderr, "Runs an Argon program. With no file, runs the entry of the nearest argon.toml.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		flags.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  argon main.ar             # Run main.ar\n")
		fmt.Fprintf(stderr, "  argon -compile src/*.ar   # Warm the cache for many files\n")
		fmt.Fprintf(stderr, "  argon -disasm main.ar     # Show bytecode\n")
		fmt.Fprintf(stderr, "  argon -install            # Fetch dependencies into argon_modules\n")
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Fprintf(stdout, "argon %s\n", version)
		return 0
	}

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	m, err := manifest.FindAndLoad(wd)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading manifest: %v\n", err)
		return 1
	}
	hasManifest := m != nil
	if m == nil {
		m = manifest.Default(wd)
	}

	verbosity := m.Log.Verbosity
	if *verbose && verbosity < 2 {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)
	log := commonlog.GetLogger("argon")

	it := vm.New(vm.Config{
		Stdout:       stdout,
		MaxDepth:     m.Runtime.MaxDepth,
		DepthWarning: m.Runtime.DepthWarning,
	})

	cfg := loader.Config{
		CacheEnabled: m.CacheEnabled() && !*noCache,
		CacheDir:     m.Cache.Dir,
		ModulesDir:   m.Modules.Dir,
	}
	if hasManifest {
		cfg.ModulesDir = m.ModulesPath()
	}
	l := loader.New(it, cfg)

	color := isTerminal(stderr)
	fail := func(err error) int {
		report(stderr, err, color)
		return 1
	}

	switch {
	case *lsp:
		if err := server.NewLSP(it, version).Run(); err != nil {
			fmt.Fprintf(stderr, "Language server error: %v\n", err)
			return 1
		}
		return 0

	case *install:
		if !hasManifest {
			fmt.Fprintln(stderr, "Error: no argon.toml found")
			return 1
		}
		deps, err := manifest.NewInstaller(m).Install()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		for _, d := range deps {
			fmt.Fprintf(stdout, "installed %s\n", d.Name)
		}
		return 0
	}

	files := flags.Args()
	if len(files) == 0 {
		files = []string{m.EntryPath()}
	}

	switch {
	case *compileOnly:
		sources, err := expandSources(files, m.Cache.Dir, m.Modules.Dir)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if err := compileAll(l, sources); err != nil {
			return fail(err)
		}
		hits, misses := l.CacheStats()
		log.Infof("compiled %d files (%d cached, %d translated)", len(sources), hits, misses)
		return 0

	case *disasm:
		for _, path := range files {
			unit, err := l.Load(path)
			if err != nil {
				return fail(err)
			}
			if len(files) > 1 {
				fmt.Fprintf(stdout, "== %s ==\n", path)
			}
			fmt.Fprint(stdout, bytecode.Disassemble(unit))
		}
		return 0
	}

	if len(files) > 1 {
		fmt.Fprintln(stderr, "Error: only one program can be run at a time")
		return 2
	}
	if _, err := l.RunMain(files[0]); err != nil {
		return fail(err)
	}
	return 0
}

// expandSources replaces each directory in paths with the .ar files
// beneath it, skipping cache and installed-module directories.
func expandSources(paths []string, skip ...string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && slices.Contains(skip, d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) == ".ar" {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// compileAll loads every file concurrently, stopping at the first error.
func compileAll(l *loader.Loader, files []string) error {
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, path := range files {
		g.Go(func() error {
			return l.Compile(path)
		})
	}
	return g.Wait()
}

// report prints err with the offending source line when it has a location.
func report(w io.Writer, err error, color bool) {
	var src []byte
	if e, ok := arerr.As(err); ok && e.HasLocation() && e.Path != "" {
		src, _ = os.ReadFile(e.Path)
	}
	arerr.Pretty(w, err, src, color)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
