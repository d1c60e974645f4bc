package component

import (
	"context"
	"fmt"

	"github.com/wippyai/componentize-mbt/errors"
	"github.com/wippyai/componentize-mbt/internal/abi"
	"github.com/wippyai/componentize-mbt/world"
	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"
)

// PostReturnPrefix prefixes the core export that frees the results of the
// export it is named after.
const PostReturnPrefix = "cabi_post_"

// Core exports canonical options refer to
const (
	MemoryExport  = "memory"
	ReallocExport = "cabi_realloc"
)

// EncoderConfig controls component assembly.
type EncoderConfig struct {
	// Validate checks the core signatures of imports and exports against
	// the canonical ABI signatures of the world's functions.
	Validate bool
	Logger   *zap.Logger
}

// Encoder wraps core modules carrying world metadata into components.
type Encoder struct {
	Resolve *wit.Resolve
	Config  EncoderConfig
}

// NewEncoder returns an encoder for worlds of res with validation enabled.
func NewEncoder(res *wit.Resolve) *Encoder {
	return &Encoder{Resolve: res, Config: EncoderConfig{Validate: true}}
}

// Encode builds a component from a core module produced by EmbedMetadata.
// The metadata section is removed from the embedded module.
func (e *Encoder) Encode(ctx context.Context, core []byte) ([]byte, error) {
	if e.Resolve == nil {
		return nil, errors.InvalidInput(errors.PhaseEncode, "encoder has no resolved packages")
	}
	log := e.Config.Logger
	if log == nil {
		log = Logger()
	}

	stripped, meta, err := extractMetadata(core)
	if err != nil {
		return nil, err
	}
	w, err := e.world(meta.world)
	if err != nil {
		return nil, err
	}
	mod, err := inspectCore(ctx, stripped)
	if err != nil {
		return nil, err
	}

	a := &assembly{
		w:        w,
		core:     mod,
		enc:      meta.encoding,
		validate: e.Config.Validate,
		log:      log.With(zap.String("world", meta.world)),
		b:        newBuilder(),
		lowered:  make(map[string]*lowering),
	}
	a.s = componentScope(a.b)
	out, err := a.run(stripped)
	if err != nil {
		return nil, err
	}
	a.log.Info("encoded component",
		zap.Int("imports", len(a.order)),
		zap.Int("indirect", len(a.ind.sigs)),
		zap.Int("size", len(out)))
	return out, nil
}

func (e *Encoder) world(name string) (*wit.World, error) {
	for _, w := range e.Resolve.Worlds {
		if world.QualifiedName(w) == name {
			return w, nil
		}
	}
	return nil, errors.NotFound(errors.PhaseEncode, "world", name)
}

// lowering is a world function imported by the core module.
type lowering struct {
	module   string
	name     string
	fn       *wit.Function
	iface    *wit.Interface // nil for world functions
	opts     abi.Options
	sig      abi.Signature // core signature of the import
	slot     int           // table slot, -1 when lowered directly
	compFunc uint32        // component function
	core     uint32        // core function passed to the main module
}

func (l *lowering) key() string {
	return l.module + "\x00" + l.name
}

type assembly struct {
	w        *wit.World
	core     *coreModule
	enc      StringEncoding
	validate bool
	log      *zap.Logger

	b *builder
	s *scope

	rootFuncs map[*wit.Function]uint32
	lowered   map[string]*lowering
	order     []*lowering
	ind       indirection

	mainInst   uint32
	memIdx     *uint32
	reallocIdx *uint32
}

func (a *assembly) run(bin []byte) ([]byte, error) {
	var err error
	if a.rootFuncs, err = a.s.importWorld(a.w); err != nil {
		return nil, err
	}
	if err := a.resolveImports(); err != nil {
		return nil, err
	}

	mainMod := a.b.module(bin)
	var shimMod, fixupMod, shimInst uint32
	if !a.ind.empty() {
		shim, fixup, err := a.ind.modules()
		if err != nil {
			return nil, err
		}
		shimMod = a.b.module(shim)
		fixupMod = a.b.module(fixup)
		shimInst = a.b.instantiate(shimMod, nil)
	}

	for _, l := range a.order {
		if l.iface != nil {
			l.compFunc = a.b.aliasFunc(a.s.ifaces[l.iface], l.fn.Name)
		} else {
			l.compFunc = a.rootFuncs[l.fn]
		}
		if l.slot < 0 {
			l.core = a.b.lower(l.compFunc, nil)
		} else {
			l.core = a.b.aliasCore(CoreSortFunc, shimInst, slotName(l.slot))
		}
		a.log.Debug("imported function",
			zap.String("module", l.module),
			zap.String("name", l.name),
			zap.String("signature", l.sig.String()),
			zap.Bool("indirect", l.slot >= 0))
	}

	var args []CoreInstanceArg
	for _, mod := range a.core.modules {
		var exports []CoreInstanceExport
		for _, l := range a.order {
			if l.module == mod {
				exports = append(exports, CoreInstanceExport{Name: l.name, Sort: CoreSortFunc, Index: l.core})
			}
		}
		args = append(args, CoreInstanceArg{Name: mod, Instance: a.b.coreInstance(exports)})
	}
	a.mainInst = a.b.instantiate(mainMod, args)

	if !a.ind.empty() {
		fixups := make([]CoreInstanceExport, 0, len(a.ind.sigs)+1)
		for _, l := range a.order {
			if l.slot < 0 {
				continue
			}
			opts, err := a.options(l.opts, []string{l.module, l.name})
			if err != nil {
				return nil, err
			}
			fixups = append(fixups, CoreInstanceExport{
				Name:  slotName(l.slot),
				Sort:  CoreSortFunc,
				Index: a.b.lower(l.compFunc, opts),
			})
		}
		table := a.b.aliasCore(CoreSortTable, shimInst, ImportTable)
		fixups = append(fixups, CoreInstanceExport{Name: ImportTable, Sort: CoreSortTable, Index: table})
		inst := a.b.coreInstance(fixups)
		a.b.instantiate(fixupMod, []CoreInstanceArg{{Name: "", Instance: inst}})
	}

	if err := a.exports(); err != nil {
		return nil, err
	}
	return a.b.bytes(), nil
}

// resolveImports maps every core function import to a world function and
// decides how it is lowered.
func (a *assembly) resolveImports() error {
	root := make(map[string]*wit.Function)
	ifaces := make(map[string]*wit.Interface)
	for _, it := range world.Imports(a.w) {
		switch {
		case it.Function != nil:
			root[it.Key] = it.Function
		case it.Interface != nil:
			ifaces[it.Name()] = it.Interface
		}
	}

	for _, imp := range a.core.imports {
		l := &lowering{module: imp.module, name: imp.name, slot: -1}
		if _, dup := a.lowered[l.key()]; dup {
			continue
		}
		if imp.module == world.RootModule {
			l.fn = root[imp.name]
		} else if iface := ifaces[imp.module]; iface != nil {
			l.iface = iface
			l.fn = iface.Functions.Get(imp.name)
		}
		if l.fn == nil {
			return errors.MissingImport(imp.module, imp.name)
		}

		want := abi.Flatten(l.fn, abi.Lower)
		if a.validate && !want.Equal(imp.params, imp.results) {
			return mismatch([]string{imp.module, imp.name}, imp, want)
		}
		l.sig = abi.Signature{Params: imp.params, Results: imp.results}
		l.opts = abi.Requirements(l.fn, abi.Lower)
		if l.opts.Memory || l.opts.Realloc {
			l.slot = a.ind.add(l.sig)
		}
		a.lowered[l.key()] = l
		a.order = append(a.order, l)
	}
	return nil
}

func mismatch(path []string, f coreFunc, want abi.Signature) error {
	got := abi.Signature{Params: f.params, Results: f.results}
	return errors.TypeMismatch(errors.PhaseValidate, path, "func",
		fmt.Sprintf("core signature %s, canonical ABI expects %s", got, want))
}

// options builds the canonical options a lift or lower needs, aliasing
// the main module's memory and allocator on first use.
func (a *assembly) options(req abi.Options, path []string) ([]CanonOption, error) {
	var opts canonOptions
	if req.Strings {
		opts.encoding(a.enc)
	}
	if req.Memory {
		if a.memIdx == nil {
			if !a.core.memories[MemoryExport] {
				return nil, errors.New(errors.PhaseValidate, errors.KindNotFound).
					Path(path...).
					Detail("core module does not export %q", MemoryExport).
					Build()
			}
			idx := a.b.aliasCore(CoreSortMemory, a.mainInst, MemoryExport)
			a.memIdx = &idx
		}
		opts.memory(*a.memIdx)
	}
	if req.Realloc {
		if a.reallocIdx == nil {
			if _, ok := a.core.export(ReallocExport); !ok {
				return nil, errors.New(errors.PhaseValidate, errors.KindNotFound).
					Path(path...).
					Detail("core module does not export %q", ReallocExport).
					Build()
			}
			idx := a.b.aliasCore(CoreSortFunc, a.mainInst, ReallocExport)
			a.reallocIdx = &idx
		}
		opts.realloc(*a.reallocIdx)
	}
	return opts.opts, nil
}

// exports lifts every exported world function and exports it, directly or
// grouped into an instance per interface.
func (a *assembly) exports() error {
	var missing []string
	for _, it := range world.Exports(a.w) {
		switch {
		case it.Function != nil:
			idx, ok, err := a.lift("", it.Function)
			if err != nil {
				return err
			}
			if !ok {
				missing = append(missing, it.Function.Name)
				continue
			}
			a.b.export(it.Key, SortFunc, idx)
			a.log.Debug("exported function", zap.String("name", it.Key))

		case it.Interface != nil:
			name := it.Name()
			var items []CoreInstanceExport
			for _, fn := range world.Functions(it.Interface) {
				idx, ok, err := a.lift(name, fn)
				if err != nil {
					return err
				}
				if !ok {
					missing = append(missing, world.FunctionName(name, fn))
					continue
				}
				items = append(items, CoreInstanceExport{Name: fn.Name, Sort: SortFunc, Index: idx})
			}
			if len(items) < len(world.Functions(it.Interface)) {
				continue
			}
			a.b.export(name, SortInstance, a.b.instance(items))
			a.log.Debug("exported instance", zap.String("name", name), zap.Int("functions", len(items)))
		}
	}
	if len(missing) > 0 {
		return errors.NewMissingExportsError(missing)
	}
	return nil
}

// lift wraps the core export of fn as a component function. It reports
// false when the core module does not export it.
func (a *assembly) lift(iface string, fn *wit.Function) (uint32, bool, error) {
	symbol := world.FunctionName(iface, fn)
	path := []string{iface, fn.Name}
	if iface == "" {
		path = path[1:]
	}
	if !world.IsFreestanding(fn) {
		return 0, false, errors.Unsupported(errors.PhaseEncode, path, "resource functions")
	}
	f, ok := a.core.export(symbol)
	if !ok {
		return 0, false, nil
	}
	if a.validate {
		if want := abi.Flatten(fn, abi.Lift); !want.Equal(f.params, f.results) {
			return 0, false, mismatch(path, f, want)
		}
	}

	typ, err := a.s.funcType(fn)
	if err != nil {
		return 0, false, err
	}
	opts, err := a.options(abi.Requirements(fn, abi.Lift), path)
	if err != nil {
		return 0, false, err
	}
	if _, ok := a.core.export(PostReturnPrefix + symbol); ok {
		idx := a.b.aliasCore(CoreSortFunc, a.mainInst, PostReturnPrefix+symbol)
		opts = append(opts, CanonOption{Kind: CanonOptPostReturn, Index: idx})
	}
	core := a.b.aliasCore(CoreSortFunc, a.mainInst, symbol)
	return a.b.lift(core, opts, typ), true, nil
}
