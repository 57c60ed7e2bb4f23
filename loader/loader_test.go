package loader

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Open-Argon/Chloride-sub000/pkg/arerr"
	"github.com/Open-Argon/Chloride-sub000/pkg/bytecode"
	"github.com/Open-Argon/Chloride-sub000/vm"
)

// writeTree creates files under a temporary directory and returns it.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, src := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newLoader(t *testing.T, cfg Config) (*Loader, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	it := vm.New(vm.Config{Stdout: &out})
	return New(it, cfg), &out
}

func field(t *testing.T, mod *vm.Object, name string) vm.Value {
	t.Helper()
	v, ok := mod.Fields.Lookup(bytecode.HashName(name))
	if !ok {
		t.Fatalf("module has no field %s", name)
	}
	return v
}

func TestRunMain(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.ar": "let x = 1\nwhile (x < 3) do\n  x = x + 1\nend\nprint(x)",
	})
	l, out := newLoader(t, DefaultConfig())
	mod, err := l.RunMain(filepath.Join(dir, "main.ar"))
	if err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	if out.String() != "3\n" {
		t.Errorf("output = %q", out.String())
	}
	if v := vm.Repr(field(t, mod, "x")); v != "3" {
		t.Errorf("x = %s", v)
	}
}

func TestLoadMissingFile(t *testing.T) {
	l, _ := newLoader(t, DefaultConfig())
	_, err := l.Load(filepath.Join(t.TempDir(), "absent.ar"))
	if !arerr.IsKind(err, arerr.File) {
		t.Fatalf("err = %v, want File Error", err)
	}
}

func TestLoadUsesCache(t *testing.T) {
	dir := writeTree(t, map[string]string{"m.ar": "let a = 1 + 2"})
	path := filepath.Join(dir, "m.ar")
	l, _ := newLoader(t, DefaultConfig())

	first, err := l.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "__arcache__", "m.arbin")); err != nil {
		t.Fatalf("cache file not written: %v", err)
	}
	second, err := l.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if hits, misses := l.CacheStats(); hits != 1 || misses != 1 {
		t.Errorf("hits = %d, misses = %d; want 1, 1", hits, misses)
	}
	if !bytes.Equal(first.Bytecode, second.Bytecode) || first.RegisterCount != second.RegisterCount {
		t.Errorf("cached unit differs from compiled unit")
	}
	if second.Locations.Len() != first.Locations.Len() {
		t.Errorf("cached unit has %d locations, want %d", second.Locations.Len(), first.Locations.Len())
	}
}

func TestCorruptCacheRecompiles(t *testing.T) {
	dir := writeTree(t, map[string]string{"m.ar": "let a = 1"})
	path := filepath.Join(dir, "m.ar")
	l, _ := newLoader(t, DefaultConfig())
	if _, err := l.Load(path); err != nil {
		t.Fatal(err)
	}

	bin := filepath.Join(dir, "__arcache__", "m.arbin")
	data, err := os.ReadFile(bin)
	if err != nil {
		t.Fatal(err)
	}
	data[cacheHeaderLen] ^= 0xFF
	if err := os.WriteFile(bin, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := l.Load(path); err != nil {
		t.Fatalf("Load after corruption: %v", err)
	}
	if hits, misses := l.CacheStats(); hits != 0 || misses != 2 {
		t.Errorf("hits = %d, misses = %d; want 0, 2", hits, misses)
	}
	fixed, _ := os.ReadFile(bin)
	if bytes.Equal(fixed, data) {
		t.Errorf("corrupt cache file was not rewritten")
	}
}

func TestEditedSourceInvalidatesCache(t *testing.T) {
	dir := writeTree(t, map[string]string{"m.ar": "let a = 1"})
	path := filepath.Join(dir, "m.ar")
	l, _ := newLoader(t, DefaultConfig())
	if _, err := l.Load(path); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("let a = 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Load(path); err != nil {
		t.Fatal(err)
	}
	if hits, _ := l.CacheStats(); hits != 0 {
		t.Errorf("stale cache entry was used")
	}
}

func TestCacheDisabled(t *testing.T) {
	dir := writeTree(t, map[string]string{"m.ar": "let a = 1"})
	l, _ := newLoader(t, Config{CacheEnabled: false})
	if _, err := l.Load(filepath.Join(dir, "m.ar")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "__arcache__")); !os.IsNotExist(err) {
		t.Errorf("cache directory created with caching disabled")
	}
}

func TestImportIsMemoized(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.ar": "import \"lib.ar\" as a\nimport \"other.ar\" as o\nlet same = a == o.lib",
		"other.ar": "import \"lib.ar\" as lib",
		"lib.ar":   "print(\"loading lib\")\nlet value = 42",
	})
	l, out := newLoader(t, DefaultConfig())
	mod, err := l.RunMain(filepath.Join(dir, "main.ar"))
	if err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	if field(t, mod, "same") != vm.True {
		t.Errorf("two imports produced different module objects")
	}
	if n := strings.Count(out.String(), "loading lib"); n != 1 {
		t.Errorf("module body ran %d times", n)
	}

	a := field(t, mod, "a").(*vm.Object)
	again, err := l.Import(l.it.NewState(), filepath.Join(dir, "main.ar"), "lib.ar")
	if err != nil {
		t.Fatal(err)
	}
	if again.Fields != a.Fields {
		t.Errorf("re-import returned a different backing store")
	}
}

func TestCircularImport(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.ar": "import \"b.ar\" as b",
		"b.ar": "import \"a.ar\" as a",
	})
	l, _ := newLoader(t, DefaultConfig())
	_, err := l.RunMain(filepath.Join(dir, "a.ar"))
	e, ok := arerr.As(err)
	if !ok || e.Kind != arerr.Import || !strings.Contains(e.Message, "circular") {
		t.Fatalf("err = %v, want circular Import Error", err)
	}
	if filepath.Base(e.Path) != "b.ar" || e.Line != 1 {
		t.Errorf("error located at %s:%d, want b.ar:1", e.Path, e.Line)
	}
}

func TestImportForms(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.ar": `import "util.ar" expose double, triple as thrice
import "consts" expose *
let a = double(2)
let b = thrice(2)
let c = answer`,
		"util.ar":   "let double(x) = x * 2\nlet triple(x) = x * 3",
		"consts.ar": "let answer = 42",
	})
	l, _ := newLoader(t, DefaultConfig())
	mod, err := l.RunMain(filepath.Join(dir, "main.ar"))
	if err != nil {
		t.Fatalf("RunMain: %v", err)
	}
	for name, want := range map[string]string{"a": "4", "b": "6", "c": "42"} {
		if got := vm.Repr(field(t, mod, name)); got != want {
			t.Errorf("%s = %s, want %s", name, got, want)
		}
	}
}

func TestResolveOrder(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.ar":                        "",
		"pkg/init.ar":                    "",
		"argon_modules/vendored/init.ar": "",
		"argon_modules/single.ar":        "",
		"both.ar":                        "",
		"argon_modules/both.ar":          "",
	})
	l, _ := newLoader(t, DefaultConfig())
	from := filepath.Join(dir, "main.ar")
	tests := []struct {
		path string
		want string
	}{
		{"pkg", "pkg/init.ar"},
		{"vendored", "argon_modules/vendored/init.ar"},
		{"single", "argon_modules/single.ar"},
		{"both.ar", "both.ar"},
		{"main", "main.ar"},
	}
	for _, tt := range tests {
		got, err := l.Resolve(from, tt.path)
		if err != nil {
			t.Errorf("Resolve(%q): %v", tt.path, err)
			continue
		}
		want, _ := filepath.Abs(filepath.Join(dir, filepath.FromSlash(tt.want)))
		if got != want {
			t.Errorf("Resolve(%q) = %s, want %s", tt.path, got, want)
		}
	}
	if _, err := l.Resolve(from, "nothing"); !arerr.IsKind(err, arerr.Import) {
		t.Errorf("missing module: err = %v", err)
	}
}

func TestResolveAbsoluteModulesDir(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"src/deep/main.ar":          "",
		"argon_modules/lib/init.ar": "",
	})
	cfg := DefaultConfig()
	cfg.ModulesDir = filepath.Join(dir, "argon_modules")
	l, _ := newLoader(t, cfg)
	got, err := l.Resolve(filepath.Join(dir, "src", "deep", "main.ar"), "lib")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want, _ := filepath.Abs(filepath.Join(dir, "argon_modules", "lib", "init.ar"))
	if got != want {
		t.Errorf("Resolve = %s, want %s", got, want)
	}
}

func TestProgramObject(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.ar": "import \"dep.ar\" as dep\nlet m = program.main\nlet dm = dep.m\nlet name = program.name",
		"dep.ar":  "let m = program.main",
	})
	l, _ := newLoader(t, DefaultConfig())
	mod, err := l.RunMain(filepath.Join(dir, "main.ar"))
	if err != nil {
		t.Fatal(err)
	}
	if field(t, mod, "m") != vm.True || field(t, mod, "dm") != vm.False {
		t.Errorf("program.main: main = %s, dep = %s", vm.Repr(field(t, mod, "m")), vm.Repr(field(t, mod, "dm")))
	}
	if got := vm.Repr(field(t, mod, "name")); got != "'main'" {
		t.Errorf("program.name = %s", got)
	}
}

func TestNativeModuleImport(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.ar": "import \"threading\" as threading\nlet r = threading.start((a) -> a + 1, 1).join()",
	})
	l, _ := newLoader(t, DefaultConfig())
	mod, err := l.RunMain(filepath.Join(dir, "main.ar"))
	if err != nil {
		t.Fatal(err)
	}
	if got := vm.Repr(field(t, mod, "r")); got != "2" {
		t.Errorf("r = %s", got)
	}
}

func TestConcurrentImportRunsOnce(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.ar": "",
		"slow.ar": "let i = 0\nwhile (i < 2000) i = i + 1\nprint(\"ran\")",
	})
	l, out := newLoader(t, DefaultConfig())
	from := filepath.Join(dir, "main.ar")

	var wg sync.WaitGroup
	mods := make([]*vm.Object, 8)
	errs := make([]error, 8)
	for i := range mods {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mods[i], errs[i] = l.Import(l.it.NewState(), from, "slow.ar")
		}(i)
	}
	wg.Wait()
	for i := range mods {
		if errs[i] != nil {
			t.Fatalf("import %d: %v", i, errs[i])
		}
		if mods[i] != mods[0] {
			t.Errorf("import %d returned a different module", i)
		}
	}
	if n := strings.Count(out.String(), "ran"); n != 1 {
		t.Errorf("module body ran %d times", n)
	}
}

func TestSyntaxErrorIsReported(t *testing.T) {
	dir := writeTree(t, map[string]string{"bad.ar": "let = 3"})
	l, _ := newLoader(t, DefaultConfig())
	_, err := l.RunMain(filepath.Join(dir, "bad.ar"))
	if !arerr.IsKind(err, arerr.Syntax) {
		t.Fatalf("err = %v, want Syntax Error", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "__arcache__", "bad.arbin")); !os.IsNotExist(statErr) {
		t.Errorf("cache written for a file that failed to compile")
	}
}
