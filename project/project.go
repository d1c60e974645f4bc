// Package project drives a MoonBit project: it finds the main package,
// runs moon build and locates the text module the build leaves behind.
package project

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/wippyai/componentize-mbt/errors"
	"go.uber.org/zap"
)

const (
	ModuleFile  = "moon.mod.json"
	PackageFile = "moon.pkg.json"

	// DefaultMoon is the MoonBit build tool looked up on PATH.
	DefaultMoon = "moon"

	buildDir = "target/wasm/release/build"
)

// Project is a MoonBit module with exactly one main package.
type Project struct {
	Root    string // module directory holding moon.mod.json
	Package string // directory name of the main package

	// Output receives the build tool's combined output. When nil the
	// output is kept and attached to a build failure.
	Output io.Writer
}

type pkgFile struct {
	IsMain *bool `json:"is_main"`
}

// Find loads the project rooted at dir. The directory must hold
// moon.mod.json and exactly one direct sub-directory whose moon.pkg.json
// sets is_main to true.
func Find(dir string) (*Project, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseProject, errors.KindInvalidInput, err, "resolve "+dir)
	}
	if _, err := os.Stat(filepath.Join(root, ModuleFile)); err != nil {
		return nil, errors.New(errors.PhaseProject, errors.KindNotFound).
			Value(root).
			Cause(err).
			Detail("%s not found, run in the project root directory", ModuleFile).
			Build()
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseProject, errors.KindInvalidInput, err, "read "+root)
	}
	var mains []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		main, err := isMain(filepath.Join(root, e.Name(), PackageFile))
		if err != nil {
			return nil, err
		}
		if main {
			mains = append(mains, e.Name())
		}
	}

	switch len(mains) {
	case 0:
		return nil, errors.New(errors.PhaseProject, errors.KindNotFound).
			Value(root).
			Detail("no package sets is_main to true").
			Build()
	case 1:
	default:
		return nil, errors.Conflict(errors.PhaseProject,
			"only one package may set is_main to true, found "+strings.Join(mains, ", "))
	}

	Logger().Debug("found project", zap.String("root", root), zap.String("package", mains[0]))
	return &Project{Root: root, Package: mains[0]}, nil
}

// isMain reads a package file. A missing file or a missing is_main key
// means the directory is not the main package.
func isMain(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(errors.PhaseProject, errors.KindInvalidInput, err, "read "+path)
	}
	var pkg pkgFile
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false, errors.New(errors.PhaseProject, errors.KindInvalidData).
			Path(path).
			Cause(err).
			Detail("format error").
			Build()
	}
	return pkg.IsMain != nil && *pkg.IsMain, nil
}

// Build runs moon build --output-wat in the project root. An empty moon
// uses DefaultMoon.
func (p *Project) Build(ctx context.Context, moon string) error {
	if moon == "" {
		moon = DefaultMoon
	}
	cmd := exec.CommandContext(ctx, moon, "build", "--output-wat")
	cmd.Dir = p.Root

	var captured bytes.Buffer
	out := p.Output
	if out == nil {
		out = &captured
	}
	cmd.Stdout = out
	cmd.Stderr = out

	log := Logger().With(zap.String("root", p.Root))
	log.Info("running build", zap.Strings("command", cmd.Args))
	if err := cmd.Run(); err != nil {
		detail := "moon build failed"
		if s := strings.TrimSpace(captured.String()); s != "" {
			detail += ":\n" + s
		}
		return errors.Wrap(errors.PhaseProject, errors.KindInvalidData, err, detail)
	}

	wat := p.WATPath()
	if _, err := os.Stat(wat); err != nil {
		return errors.NotFound(errors.PhaseProject, "build output", wat)
	}
	log.Info("build finished", zap.String("wat", wat))
	return nil
}

// WATPath is the text module moon build writes for the main package.
func (p *Project) WATPath() string {
	return filepath.Join(p.Root, filepath.FromSlash(buildDir), p.Package, p.Package+".wat")
}

// OutputPath is where the component is written, next to the text module.
func (p *Project) OutputPath() string {
	return strings.TrimSuffix(p.WATPath(), ".wat") + ".wasm"
}

// WITDir is the default location of the project's WIT package.
func (p *Project) WITDir() string {
	return filepath.Join(p.Root, "wit")
}

func (p *Project) String() string {
	return fmt.Sprintf("%s (main package %s)", p.Root, p.Package)
}
