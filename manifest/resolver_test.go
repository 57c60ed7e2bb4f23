package manifest

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func mkProject(t *testing.T, dir, toml string, files map[string]string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if toml != "" {
		writeManifest(t, dir, toml)
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestInstallPathDependencies(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	mkProject(t, app, `
[project]
name = "app"

[dependencies]
helper = { path = "../helper" }
`, nil)
	mkProject(t, filepath.Join(root, "helper"), `
[project]
name = "helper"

[dependencies]
util = { path = "../util" }
`, map[string]string{"init.ar": "let x = 1\n"})
	mkProject(t, filepath.Join(root, "util"), "", map[string]string{"init.ar": "let y = 2\n"})

	m, err := Load(app)
	if err != nil {
		t.Fatal(err)
	}
	deps, err := NewInstaller(m).Install()
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}

	if len(deps) != 2 {
		t.Fatalf("installed %d deps, want 2", len(deps))
	}
	// Dependencies come before their dependents.
	if deps[0].Name != "util" || deps[1].Name != "helper" {
		t.Errorf("order = %s, %s; want util, helper", deps[0].Name, deps[1].Name)
	}
	for _, name := range []string{"helper", "util"} {
		if _, err := os.Stat(filepath.Join(m.ModulesPath(), name, "init.ar")); err != nil {
			t.Errorf("%s not reachable under modules dir: %v", name, err)
		}
	}

	lf, err := ReadLock(m.LockFilePath())
	if err != nil {
		t.Fatal(err)
	}
	if d := lf.FindLockedDep("util"); d == nil || d.Path != filepath.Join(root, "util") {
		t.Errorf("locked util = %+v", d)
	}

	// Reinstalling over existing links succeeds.
	if _, err := NewInstaller(m).Install(); err != nil {
		t.Fatalf("second Install failed: %v", err)
	}
}

func TestInstallMissingPath(t *testing.T) {
	app := t.TempDir()
	mkProject(t, app, `
[dependencies]
gone = { path = "./nowhere" }
`, nil)
	m, err := Load(app)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewInstaller(m).Install(); err == nil {
		t.Fatal("expected an error for a missing path dependency")
	}
}

func TestInstallRefusesToReplaceDirectory(t *testing.T) {
	root := t.TempDir()
	app := filepath.Join(root, "app")
	mkProject(t, app, `
[dependencies]
helper = { path = "../helper" }
`, nil)
	mkProject(t, filepath.Join(root, "helper"), "", nil)
	if err := os.MkdirAll(filepath.Join(app, DefaultModulesDir, "helper"), 0755); err != nil {
		t.Fatal(err)
	}
	m, err := Load(app)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewInstaller(m).Install(); err == nil {
		t.Fatal("expected an error when a real directory is in the way")
	}
}

func TestInstallGitDependency(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	root := t.TempDir()
	repo := filepath.Join(root, "lib")
	mkProject(t, repo, "", map[string]string{"init.ar": "let v = 1\n"})
	for _, args := range [][]string{
		{"init", "--quiet"},
		{"-c", "user.email=t@example.com", "-c", "user.name=t", "add", "."},
		{"-c", "user.email=t@example.com", "-c", "user.name=t", "commit", "--quiet", "-m", "init"},
		{"tag", "v1"},
	} {
		if err := git(repo, args...); err != nil {
			t.Skipf("cannot prepare git fixture: %v", err)
		}
	}

	app := filepath.Join(root, "app")
	mkProject(t, app, `
[dependencies]
lib = { git = "`+repo+`", tag = "v1" }
`, nil)
	m, err := Load(app)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewInstaller(m).Install(); err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(m.ModulesPath(), "lib", "init.ar")); err != nil {
		t.Fatalf("cloned module missing: %v", err)
	}
	lf, err := ReadLock(m.LockFilePath())
	if err != nil {
		t.Fatal(err)
	}
	d := lf.FindLockedDep("lib")
	if d == nil || d.Tag != "v1" || len(d.Commit) != 40 {
		t.Errorf("locked lib = %+v", d)
	}
}
