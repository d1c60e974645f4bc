// Package componentize adapts the text module produced by the MoonBit
// compiler into a WebAssembly component that implements a WIT world.
//
// A run has five steps:
//
//	Augment         make the world export the mbt-init initializer
//	ResolveSymbols  compute the core export symbol of every world export
//	NewCatalog      parse the canonical ABI helper templates
//	Transform       rewrite the module's fields
//	Package         encode the module, embed the world and build the component
//
// Componentize runs all of them:
//
//	res, _ := world.Load("wit")
//	w, _ := world.Select(res, "")
//	bin, err := componentize.Componentize(ctx, watText, res, w)
//
// A run either returns the component or fails without partial output.
// Runs share no state and may execute concurrently on distinct worlds.
package componentize

import (
	"context"

	"github.com/wippyai/componentize-mbt/component"
	"github.com/wippyai/componentize-mbt/errors"
	"github.com/wippyai/componentize-mbt/wat"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger used for transform decisions. The package
// logger is used by default.
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) {
		a.log = l
	}
}

// WithValidation controls whether the core module's signatures are
// checked against the world before the component is assembled. It is
// enabled by default.
func WithValidation(enabled bool) Option {
	return func(a *Adapter) {
		a.validate = enabled
	}
}

// Adapter turns MoonBit modules into components.
type Adapter struct {
	log      *zap.Logger
	validate bool
}

func New(opts ...Option) *Adapter {
	a := &Adapter{validate: true}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = Logger()
	}
	return a
}

// Componentize adapts src with default options.
func Componentize(ctx context.Context, src string, res *wit.Resolve, w *wit.World, opts ...Option) ([]byte, error) {
	return New(opts...).Componentize(ctx, src, res, w)
}

// Componentize parses src, adapts it to w and returns the component
// binary. The world gains the initializer export if it lacks one.
func (a *Adapter) Componentize(ctx context.Context, src string, res *wit.Resolve, w *wit.World) ([]byte, error) {
	Augment(w)

	symbols, err := ResolveSymbols(res, w)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalog()
	if err != nil {
		return nil, err
	}

	mod, err := wat.Parse(src)
	if err != nil {
		return nil, errors.ParseFailed("module text", err)
	}
	result, err := transform(mod, symbols, catalog, a.log)
	if err != nil {
		return nil, err
	}
	a.log.Info("transformed module",
		zap.Int("renamed", len(result.Renamed)),
		zap.Int("arity_fixed", len(result.ArityFixed)),
		zap.Strings("shims", result.Shims),
		zap.String("start", result.Start))

	enc := component.NewEncoder(res)
	enc.Config.Validate = a.validate
	enc.Config.Logger = a.log
	return Package(ctx, result.Module, res, w, enc)
}

// Package encodes mod, embeds the world with UTF-8 strings and encodes the
// component. A nil encoder uses default settings.
func Package(ctx context.Context, mod *wat.Module, res *wit.Resolve, w *wit.World, enc *component.Encoder) ([]byte, error) {
	EnsureInit(mod)

	core, err := mod.Encode()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "encode core module")
	}
	core, err = component.EmbedMetadata(core, res, w, component.UTF8)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		enc = component.NewEncoder(res)
	}
	return enc.Encode(ctx, core)
}

// EnsureInit appends an empty initializer export when no function is
// exported under InitExport. Modules whose initialization runs as the
// start function still have to export the initializer the world declares.
// It reports whether a function was added.
func EnsureInit(mod *wat.Module) bool {
	for _, f := range mod.Fields {
		switch f.Kind() {
		case "func":
			for _, name := range f.InlineExports() {
				if name == InitExport {
					return false
				}
			}
		case "export":
			if f.ExportName() == InitExport {
				return false
			}
		}
	}
	f, err := wat.ParseField(`(func (export "` + InitExport + `"))`)
	if err != nil {
		panic(err) // constant text
	}
	mod.Fields = append(mod.Fields, f)
	return true
}
