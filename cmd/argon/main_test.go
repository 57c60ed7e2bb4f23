package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func inDir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	inDir(t, dir)
	writeFile(t, filepath.Join(dir, "hello.ar"), "print('hello', 1 + 2)\n")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"hello.ar"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	if got := stdout.String(); got != "hello 3\n" {
		t.Errorf("stdout = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "__arcache__", "hello.arbin")); err != nil {
		t.Errorf("cache not written: %v", err)
	}
}

func TestRunManifestEntry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "argon.toml"), "[project]\nname = \"demo\"\nentry = \"app.ar\"\n\n[cache]\nenabled = false\n")
	writeFile(t, filepath.Join(dir, "app.ar"), "print('from entry')\n")
	writeFile(t, filepath.Join(dir, "sub", ".keep"), "")
	inDir(t, filepath.Join(dir, "sub"))

	var stdout, stderr bytes.Buffer
	if code := run(nil, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	if stdout.String() != "from entry\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "__arcache__")); !os.IsNotExist(err) {
		t.Error("cache dir should not exist when disabled in argon.toml")
	}
}

func TestRunErrorReport(t *testing.T) {
	dir := t.TempDir()
	inDir(t, dir)
	writeFile(t, filepath.Join(dir, "bad.ar"), "let x = 1\nprint(y)\n")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-no-cache", "bad.ar"}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	out := stderr.String()
	if !strings.Contains(out, "bad.ar:2:7:") || !strings.Contains(out, "Name Error") {
		t.Errorf("stderr = %q", out)
	}
	if !strings.Contains(out, "print(y)") || !strings.Contains(out, "^") {
		t.Errorf("stderr should show the source line and a caret: %q", out)
	}
}

func TestCompileOnly(t *testing.T) {
	dir := t.TempDir()
	inDir(t, dir)
	for _, name := range []string{"a.ar", "b.ar", "c.ar"} {
		writeFile(t, filepath.Join(dir, name), "print('should not run')\n")
	}

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-compile", "a.ar", "b.ar", "c.ar"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	if stdout.Len() != 0 {
		t.Errorf("compile should not execute: %q", stdout.String())
	}
	for _, name := range []string{"a", "b", "c"} {
		if _, err := os.Stat(filepath.Join(dir, "__arcache__", name+".arbin")); err != nil {
			t.Errorf("%s not cached: %v", name, err)
		}
	}
}

func TestCompileDirectory(t *testing.T) {
	dir := t.TempDir()
	inDir(t, dir)
	writeFile(t, filepath.Join(dir, "src", "a.ar"), "let a = 1\n")
	writeFile(t, filepath.Join(dir, "src", "nested", "b.ar"), "let b = 2\n")
	writeFile(t, filepath.Join(dir, "src", "notes.txt"), "not argon")
	writeFile(t, filepath.Join(dir, "src", "argon_modules", "dep", "init.ar"), "let =\n")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-compile", "src"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	for _, p := range []string{"src/__arcache__/a.arbin", "src/nested/__arcache__/b.arbin"} {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p))); err != nil {
			t.Errorf("%s missing: %v", p, err)
		}
	}
}

func TestDisasm(t *testing.T) {
	dir := t.TempDir()
	inDir(t, dir)
	writeFile(t, filepath.Join(dir, "d.ar"), "let x = 1\n")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-no-cache", "-disasm", "d.ar"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "DECLARE") {
		t.Errorf("disassembly = %q", stdout.String())
	}
}

func TestInstallWithoutManifest(t *testing.T) {
	inDir(t, t.TempDir())
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-install"}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "no argon.toml") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-version"}, &stdout, &stderr); code != 0 {
		t.Fatal("version should exit 0")
	}
	if !strings.HasPrefix(stdout.String(), "argon ") {
		t.Errorf("stdout = %q", stdout.String())
	}
}
