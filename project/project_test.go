package project

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	mbterrors "github.com/wippyai/componentize-mbt/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// layout creates a project with the given package files, keyed by
// directory name.
func layout(t *testing.T, module bool, pkgs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	if module {
		writeFile(t, filepath.Join(dir, ModuleFile), `{"name": "user/app"}`)
	}
	for name, content := range pkgs {
		writeFile(t, filepath.Join(dir, name, PackageFile), content)
	}
	return dir
}

func TestFind(t *testing.T) {
	dir := layout(t, true, map[string]string{
		"main": `{"is_main": true, "import": []}`,
		"lib":  `{"is_main": false}`,
		"gen":  `{}`,
	})
	if err := os.Mkdir(filepath.Join(dir, "wit"), 0o755); err != nil {
		t.Fatal(err)
	}

	p, err := Find(dir)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if p.Package != "main" {
		t.Errorf("Package = %q, want main", p.Package)
	}
	wantWAT := filepath.Join(dir, "target", "wasm", "release", "build", "main", "main.wat")
	if p.WATPath() != wantWAT {
		t.Errorf("WATPath() = %q, want %q", p.WATPath(), wantWAT)
	}
	if want := strings.TrimSuffix(wantWAT, ".wat") + ".wasm"; p.OutputPath() != want {
		t.Errorf("OutputPath() = %q, want %q", p.OutputPath(), want)
	}
	if p.WITDir() != filepath.Join(dir, "wit") {
		t.Errorf("WITDir() = %q", p.WITDir())
	}
}

func TestFindErrors(t *testing.T) {
	tests := []struct {
		name   string
		module bool
		pkgs   map[string]string
		kind   mbterrors.Kind
	}{
		{"no module file", false, map[string]string{"main": `{"is_main": true}`}, mbterrors.KindNotFound},
		{"no main package", true, map[string]string{"lib": `{}`}, mbterrors.KindNotFound},
		{"two main packages", true, map[string]string{
			"a": `{"is_main": true}`,
			"b": `{"is_main": true}`,
		}, mbterrors.KindConflict},
		{"malformed package file", true, map[string]string{"main": `{"is_main": "yes"}`}, mbterrors.KindInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Find(layout(t, tt.module, tt.pkgs))
			if !errors.Is(err, &mbterrors.Error{Phase: mbterrors.PhaseProject, Kind: tt.kind}) {
				t.Errorf("Find() error = %v, want %s", err, tt.kind)
			}
		})
	}
}

// fakeMoon writes a shell script that records its arguments and exits
// with the given script body.
func fakeMoon(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "moon")
	script := "#!/bin/sh\necho \"$@\" > args.txt\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuild(t *testing.T) {
	p, err := Find(layout(t, true, map[string]string{"app": `{"is_main": true}`}))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	moon := fakeMoon(t, `mkdir -p target/wasm/release/build/app
echo "(module)" > target/wasm/release/build/app/app.wat
echo building`)

	var out bytes.Buffer
	p.Output = &out
	if err := p.Build(context.Background(), moon); err != nil {
		t.Fatalf("Build: %v", err)
	}

	args, err := os.ReadFile(filepath.Join(p.Root, "args.txt"))
	if err != nil {
		t.Fatalf("build did not run in the project root: %v", err)
	}
	if got := strings.TrimSpace(string(args)); got != "build --output-wat" {
		t.Errorf("args = %q, want build --output-wat", got)
	}
	if !strings.Contains(out.String(), "building") {
		t.Errorf("output = %q, want the tool's output", out.String())
	}
	if _, err := os.Stat(p.WATPath()); err != nil {
		t.Errorf("WATPath() not created: %v", err)
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		kind   mbterrors.Kind
		detail string
	}{
		{"tool fails", "echo 'error: type mismatch' >&2\nexit 2", mbterrors.KindInvalidData, "type mismatch"},
		{"no output", "exit 0", mbterrors.KindNotFound, "app.wat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Find(layout(t, true, map[string]string{"app": `{"is_main": true}`}))
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			err = p.Build(context.Background(), fakeMoon(t, tt.body))
			if !errors.Is(err, &mbterrors.Error{Phase: mbterrors.PhaseProject, Kind: tt.kind}) {
				t.Fatalf("Build() error = %v, want %s", err, tt.kind)
			}
			if !strings.Contains(err.Error(), tt.detail) {
				t.Errorf("Build() error = %v, want it to mention %q", err, tt.detail)
			}
		})
	}
}
