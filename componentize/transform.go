package componentize

import (
	"strings"

	"github.com/wippyai/componentize-mbt/errors"
	"github.com/wippyai/componentize-mbt/wat"
	"go.uber.org/zap"
)

// Result describes a transformed module.
type Result struct {
	Module *wat.Module
	// Start is the function reference installed as the start function.
	Start string
	// Shims lists the names of the appended helpers in append order.
	Shims []string
	// Renamed maps original export names to their symbols.
	Renamed map[string]string
	// ArityFixed lists the functions whose surplus result was dropped.
	ArityFixed []string
}

type action int

const (
	keep action = iota
	drop
)

type transformer struct {
	mod     *wat.Module
	symbols SymbolMap
	catalog *Catalog
	log     *zap.Logger
	res     *Result
	fixed   map[*wat.Field]bool
	start   *wat.Field
}

// Transform rewrites a MoonBit module so it can be packaged as a
// component. It removes the test harness imports, renames the memory and
// the qualified function exports, drops the surplus result of functions
// the world declares without one, turns the _start export into the start
// function and appends the helpers the module calls. The module is
// modified in place.
//
// Helper detection is flow-insensitive: any direct call, reachable or
// not, activates its helper. Helpers are leaf functions, so nothing they
// call needs to be added in turn.
func Transform(mod *wat.Module, symbols SymbolMap, catalog *Catalog) (*Result, error) {
	return transform(mod, symbols, catalog, Logger())
}

func transform(mod *wat.Module, symbols SymbolMap, catalog *Catalog, log *zap.Logger) (*Result, error) {
	t := &transformer{
		mod:     mod,
		symbols: symbols,
		catalog: catalog,
		log:     log,
		res:     &Result{Module: mod, Renamed: make(map[string]string)},
		fixed:   make(map[*wat.Field]bool),
	}

	// Dropping the harness imports shifts the function index space, so
	// numeric references are pinned to ids first.
	if n := mod.NameFuncRefs(); n > 0 {
		log.Debug("named numeric function references", zap.Int("count", n))
	}
	for _, f := range mod.Funcs() {
		id := f.ID()
		if id == "" || f.ImportModule() == testHarness {
			continue
		}
		if catalog.Provide(id[1:]) {
			log.Debug("module defines shim", zap.String("shim", id[1:]))
		}
	}

	kept := make([]*wat.Field, 0, len(mod.Fields)+8)
	for _, f := range mod.Fields {
		act, err := t.visit(f)
		if err != nil {
			return nil, err
		}
		if act == keep {
			kept = append(kept, f)
		}
	}

	if t.res.Start == "" {
		return nil, errors.NotFound(errors.PhaseTransform, "export", startExport)
	}
	if t.start != nil {
		return nil, errors.Conflict(errors.PhaseTransform,
			"module already has a start function and exports "+startExport)
	}

	for _, s := range catalog.Activated() {
		kept = append(kept, s.Field)
		t.res.Shims = append(t.res.Shims, s.Name)
		t.log.Debug("appended shim", zap.String("shim", s.Name))
	}
	kept = append(kept, wat.NewStart(t.res.Start))
	t.log.Debug("installed start function", zap.String("target", t.res.Start))

	mod.Fields = kept
	return t.res, nil
}

func (t *transformer) visit(f *wat.Field) (action, error) {
	switch f.Kind() {
	case "import":
		if f.ImportModule() == testHarness {
			t.log.Debug("dropped import", zap.String("module", testHarness), zap.String("name", f.ImportName()))
			return drop, nil
		}
	case "memory":
		t.renameMemory(f)
	case "func":
		if f.ImportModule() == testHarness {
			t.log.Debug("dropped import", zap.String("module", testHarness), zap.String("name", f.ImportName()))
			return drop, nil
		}
		return keep, t.visitFunc(f)
	case "export":
		return t.visitExport(f)
	case "start":
		if t.start != nil {
			return keep, errors.Conflict(errors.PhaseTransform, "multiple start fields")
		}
		t.start = f
		// Checked against _start once the whole module is seen.
		return drop, nil
	}
	return keep, nil
}

func (t *transformer) renameMemory(f *wat.Field) {
	names := f.InlineExports()
	changed := false
	for i, name := range names {
		if name == moonbitMemory {
			names[i] = MemoryExport
			changed = true
		}
	}
	if changed {
		f.SetInlineExports(names)
		t.res.Renamed[moonbitMemory] = MemoryExport
		t.log.Debug("renamed memory export", zap.String("from", moonbitMemory), zap.String("to", MemoryExport))
	}
}

func (t *transformer) visitFunc(f *wat.Field) error {
	names := f.InlineExports()
	for i, name := range names {
		if name != startExport {
			continue
		}
		ref, err := t.ref(f)
		if err != nil {
			return err
		}
		if err := t.setStart(ref); err != nil {
			return err
		}
		names = append(names[:i:i], names[i+1:]...)
		f.SetInlineExports(names)
		break
	}

	if len(names) == 1 {
		symbol, ok, err := t.mapExport(names[0], f)
		if err != nil {
			return err
		}
		if ok {
			f.SetInlineExports([]string{symbol})
		}
	}

	for _, target := range f.Calls() {
		if !strings.HasPrefix(target, "$") {
			continue
		}
		if t.catalog.Activate(target[1:]) {
			t.log.Debug("activated shim", zap.String("call", target), zap.String("in", f.ID()))
		}
	}
	return nil
}

func (t *transformer) visitExport(f *wat.Field) (action, error) {
	name := f.ExportName()
	kind, ref := f.ExportTarget()

	switch {
	case name == startExport && kind == "func":
		return drop, t.setStart(ref)
	case name == moonbitMemory && kind == "memory":
		f.SetExportName(MemoryExport)
		t.res.Renamed[moonbitMemory] = MemoryExport
		t.log.Debug("renamed memory export", zap.String("from", moonbitMemory), zap.String("to", MemoryExport))
	case kind == "func":
		target := t.mod.Func(ref)
		if target == nil {
			return keep, nil
		}
		symbol, ok, err := t.mapExport(name, target)
		if err != nil {
			return keep, err
		}
		if ok {
			f.SetExportName(symbol)
		}
	}
	return keep, nil
}

// mapExport looks up a qualified export name such as "pkg::greet" and
// applies the arity fix to fn when the world declares no result.
func (t *transformer) mapExport(name string, fn *wat.Field) (string, bool, error) {
	_, key, found := strings.Cut(name, qualifierSep)
	if !found {
		return "", false, nil
	}
	sym, ok := t.symbols[key]
	if !ok {
		t.log.Debug("export not in symbol map", zap.String("export", name))
		return "", false, nil
	}

	t.res.Renamed[name] = sym.Name
	t.log.Debug("renamed export", zap.String("from", name), zap.String("to", sym.Name))

	if !sym.HasReturnValue && !t.fixed[fn] {
		if err := t.fixArity(fn); err != nil {
			return "", false, err
		}
	}
	return sym.Name, true, nil
}

// fixArity drops the single result MoonBit emits for functions that
// return Unit, discarding the value at the end of the body so the stack
// stays balanced.
func (t *transformer) fixArity(fn *wat.Field) error {
	results, err := t.mod.FuncResults(fn)
	if err != nil {
		return errors.Wrap(errors.PhaseTransform, errors.KindInvalidData, err, "signature of "+fn.ID())
	}
	if len(results) != 1 {
		return nil
	}
	if fn.HasTypeUse() {
		if err := t.mod.ExpandTypeUse(fn); err != nil {
			return errors.Wrap(errors.PhaseTransform, errors.KindInvalidData, err, "expand signature of "+fn.ID())
		}
	}
	fn.SetResults(nil)
	if err := fn.AppendInstr("drop"); err != nil {
		return errors.Internal(errors.PhaseTransform, "append drop", err)
	}
	t.fixed[fn] = true
	t.res.ArityFixed = append(t.res.ArityFixed, fn.ID())
	t.log.Debug("dropped surplus result", zap.String("func", fn.ID()))
	return nil
}

func (t *transformer) setStart(ref string) error {
	if t.res.Start != "" {
		return errors.Conflict(errors.PhaseTransform, "multiple "+startExport+" exports")
	}
	t.res.Start = ref
	return nil
}

// ref returns a reference to a defined function, naming it if needed.
func (t *transformer) ref(f *wat.Field) (string, error) {
	if id := f.ID(); id != "" {
		return id, nil
	}
	id := "$" + startExport
	if t.mod.Func(id) != nil {
		return "", errors.Conflict(errors.PhaseTransform, "function id "+id+" already in use")
	}
	f.SetID(id)
	return id, nil
}
