// Command componentize-mbt generates MoonBit bindings for a WIT world and
// turns the compiler's text output into a WebAssembly component.
//
//	componentize-mbt [-world name] [-v] bindgen [-out-dir dir] [-wit path | path]
//	componentize-mbt [-world name] [-v] componentize -wat file.wat [-out-dir dir] [-wit path | path]
//	componentize-mbt [-world name] [-v] [build] [-moon path] [-no-tui] [-wit path | path]
//
// The WIT package defaults to ./wit.
//
// build runs in a MoonBit project root: it builds the main package and
// writes the component next to the generated text module.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/wippyai/componentize-mbt/bindgen"
	"github.com/wippyai/componentize-mbt/component"
	"github.com/wippyai/componentize-mbt/componentize"
	"github.com/wippyai/componentize-mbt/project"
	"github.com/wippyai/componentize-mbt/world"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const defaultWIT = "wit"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("componentize-mbt", flag.ContinueOnError)
	var (
		worldName = global.String("world", "", "World to use (default: the only world of the main package)")
		verbose   = global.Bool("v", false, "Log adapter decisions to stderr")
	)
	global.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: componentize-mbt [-world name] [-v] [bindgen|componentize|build] [flags] [wit]")
		fmt.Fprintln(os.Stderr, "       componentize-mbt bindgen [-out-dir dir] [wit]")
		fmt.Fprintln(os.Stderr, "       componentize-mbt componentize -wat file.wat [-out-dir dir] [-no-validate] [wit]")
		fmt.Fprintln(os.Stderr, "       componentize-mbt build [-moon path] [-no-tui]  (default, in a MoonBit project root)")
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return helpIsNotAnError(err)
	}

	log, err := newLogger(*verbose)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd, rest := "build", global.Args()
	if len(rest) > 0 {
		switch rest[0] {
		case "bindgen", "componentize", "build":
			cmd, rest = rest[0], rest[1:]
		}
	}

	switch cmd {
	case "bindgen":
		return runBindgen(rest, *worldName)
	case "componentize":
		return runComponentize(ctx, rest, *worldName, log)
	default:
		return runBuild(ctx, rest, *worldName, *verbose, log)
	}
}

// newLogger returns a development logger when verbose is set and a
// production logger limited to warnings otherwise, and installs it in the
// library packages. Both write to stderr.
func newLogger(verbose bool) (*zap.Logger, error) {
	var (
		log *zap.Logger
		err error
	)
	if verbose {
		log, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		cfg.Encoding = "console"
		log, err = cfg.Build()
	}
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	component.SetLogger(log.Named("component"))
	componentize.SetLogger(log.Named("componentize"))
	project.SetLogger(log.Named("project"))
	return log, nil
}

func helpIsNotAnError(err error) error {
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

// loadWorld resolves the WIT package at path and selects a world, adding
// the initializer export the adapter expects.
func loadWorld(path, name string) (*wit.Resolve, *wit.World, error) {
	res, err := world.Load(path)
	if err != nil {
		return nil, nil, err
	}
	w, err := world.Select(res, name)
	if err != nil {
		return nil, nil, err
	}
	componentize.Augment(w)
	return res, w, nil
}

// witArg returns the WIT path given by -wit or as the only positional
// argument, falling back to def.
func witArg(fs *flag.FlagSet, flagged, def string) (string, error) {
	switch {
	case fs.NArg() > 1 || (fs.NArg() == 1 && flagged != ""):
		return "", fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	case flagged != "":
		return flagged, nil
	case fs.NArg() == 1:
		return fs.Arg(0), nil
	}
	return def, nil
}

func runBindgen(args []string, worldName string) error {
	fs := flag.NewFlagSet("bindgen", flag.ContinueOnError)
	var (
		outDir  = fs.String("out-dir", ".", "Directory to write generated files to")
		witPath = fs.String("wit", "", "WIT file or directory (default: wit)")
	)
	if err := fs.Parse(args); err != nil {
		return helpIsNotAnError(err)
	}
	path, err := witArg(fs, *witPath, defaultWIT)
	if err != nil {
		return err
	}

	res, w, err := loadWorld(path, worldName)
	if err != nil {
		return err
	}
	var files bindgen.Files
	if err := bindgen.New().Generate(res, w, &files); err != nil {
		return err
	}
	written, err := files.WriteTo(*outDir)
	for _, p := range written {
		fmt.Printf("Generating %s\n", p)
	}
	return err
}

func runComponentize(ctx context.Context, args []string, worldName string, log *zap.Logger) error {
	fs := flag.NewFlagSet("componentize", flag.ContinueOnError)
	var (
		watFile    = fs.String("wat", "", "Text module produced by moon build --output-wat")
		outDir     = fs.String("out-dir", "", "Directory for the component (default: next to the module)")
		noValidate = fs.Bool("no-validate", false, "Skip checking core signatures against the world")
		witPath    = fs.String("wit", "", "WIT file or directory (default: wit)")
	)
	if err := fs.Parse(args); err != nil {
		return helpIsNotAnError(err)
	}
	if *watFile == "" {
		return errors.New("componentize requires -wat")
	}
	path, err := witArg(fs, *witPath, defaultWIT)
	if err != nil {
		return err
	}

	res, w, err := loadWorld(path, worldName)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(*watFile)
	if err != nil {
		return fmt.Errorf("read module: %w", err)
	}
	bin, err := componentize.Componentize(ctx, string(src), res, w,
		componentize.WithLogger(log),
		componentize.WithValidation(!*noValidate))
	if err != nil {
		return err
	}

	target := strings.TrimSuffix(*watFile, filepath.Ext(*watFile)) + ".wasm"
	if *outDir != "" {
		target = filepath.Join(*outDir, filepath.Base(target))
	}
	if err := os.WriteFile(target, bin, 0o644); err != nil {
		return fmt.Errorf("write component: %w", err)
	}
	fmt.Printf("Write to %s\n", target)
	return nil
}

func runBuild(ctx context.Context, args []string, worldName string, verbose bool, log *zap.Logger) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	var (
		moon    = fs.String("moon", project.DefaultMoon, "MoonBit build tool")
		noTUI   = fs.Bool("no-tui", false, "Print plain progress lines instead of the terminal UI")
		witPath = fs.String("wit", "", "WIT file or directory (default: the project's wit directory)")
	)
	if err := fs.Parse(args); err != nil {
		return helpIsNotAnError(err)
	}

	p, err := project.Find(".")
	if err != nil {
		return err
	}
	path, err := witArg(fs, *witPath, p.WITDir())
	if err != nil {
		return err
	}
	b := &builder{project: p, moon: *moon, wit: path, world: worldName, log: log}

	// Debug lines on stderr would tear the terminal UI.
	if !*noTUI && !verbose && term.IsTerminal(int(os.Stdout.Fd())) {
		return runTUI(ctx, b)
	}
	p.Output = os.Stdout
	for _, s := range b.steps() {
		fmt.Printf("%s...\n", s.title)
		msg, err := s.run(ctx)
		if err != nil {
			return err
		}
		if msg != "" {
			fmt.Println(msg)
		}
	}
	return nil
}

// builder runs the steps of the build command.
type builder struct {
	project *project.Project
	moon    string
	wit     string
	world   string
	log     *zap.Logger
}

type step struct {
	title string
	run   func(ctx context.Context) (string, error)
}

func (b *builder) steps() []step {
	var (
		res *wit.Resolve
		w   *wit.World
	)
	return []step{
		{"Building " + b.project.Package, func(ctx context.Context) (string, error) {
			if err := b.project.Build(ctx, b.moon); err != nil {
				return "", err
			}
			return "Built " + b.project.WATPath(), nil
		}},
		{"Loading " + b.wit, func(context.Context) (string, error) {
			var err error
			res, w, err = loadWorld(b.wit, b.world)
			if err != nil {
				return "", err
			}
			return "Selected world " + world.QualifiedName(w), nil
		}},
		{"Componentizing", func(ctx context.Context) (string, error) {
			src, err := os.ReadFile(b.project.WATPath())
			if err != nil {
				return "", fmt.Errorf("read module: %w", err)
			}
			bin, err := componentize.Componentize(ctx, string(src), res, w, componentize.WithLogger(b.log))
			if err != nil {
				return "", err
			}
			if err := os.WriteFile(b.project.OutputPath(), bin, 0o644); err != nil {
				return "", fmt.Errorf("write component: %w", err)
			}
			return "Successfully generated: " + b.project.OutputPath(), nil
		}},
	}
}
