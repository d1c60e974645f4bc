// Package bindgen generates MoonBit bindings for a WIT world and computes
// the core export symbols those bindings are linked under.
package bindgen

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"github.com/wippyai/componentize-mbt/errors"
	"github.com/wippyai/componentize-mbt/internal/abi"
	"github.com/wippyai/componentize-mbt/world"
	"go.bytecodealliance.org/wit"
)

// Generated file names, relative to the output directory.
const (
	GenPackageFile = "gen/moon.pkg.json"
	TypesFile      = "gen/types.mbt"
	ExportsFile    = "gen/exports.mbt"
	FFIPackageFile = "ffi/moon.pkg.json"
	ImportsFile    = "ffi/imports.mbt"
)

// Generator writes MoonBit sources for a world. After Generate it holds
// the symbol of every exported function.
type Generator struct {
	exported map[string]Symbol
}

func New() *Generator {
	return &Generator{}
}

// ExportedSymbols returns the symbol map computed by the last Generate,
// keyed by MoonBit function name.
func (g *Generator) ExportedSymbols() map[string]Symbol {
	return g.exported
}

// Generate computes the bindings of w. A nil files sink runs the generator
// without producing output, which still fills ExportedSymbols.
func (g *Generator) Generate(res *wit.Resolve, w *wit.World, files *Files) error {
	if res != nil && !slices.Contains(res.Worlds, w) {
		return errors.InvalidInput(errors.PhaseBindgen, fmt.Sprintf("world %s is not part of the resolved packages", w.Name))
	}

	exports, err := Names(w)
	if err != nil {
		return err
	}
	imports, err := importedFuncs(w)
	if err != nil {
		return err
	}
	g.exported = SymbolMap(exports)
	if files == nil {
		return nil
	}

	var types typeWriter
	for _, e := range exports {
		types.function(e.Func)
	}
	for _, imp := range imports {
		types.function(imp.fn)
	}

	pkg, err := genPackage(exports)
	if err != nil {
		return err
	}
	files.Push(GenPackageFile, pkg)
	if types.out.Len() > 0 {
		files.Push(TypesFile, []byte(header+types.out.String()))
	}
	files.Push(ExportsFile, []byte(header+exportStubs(exports)))
	if len(imports) > 0 {
		files.Push(FFIPackageFile, []byte("{}\n"))
		files.Push(ImportsFile, []byte(header+importDecls(imports)))
	}
	return nil
}

const header = "// Generated by componentize-mbt. DO NOT EDIT.\n\n"

type moonPackage struct {
	Link moonLink `json:"link"`
}

type moonLink struct {
	Wasm moonWasm `json:"wasm"`
}

type moonWasm struct {
	Exports []string `json:"exports"`
}

func genPackage(exports []Export) ([]byte, error) {
	pkg := moonPackage{}
	pkg.Link.Wasm.Exports = make([]string, 0, len(exports))
	for _, e := range exports {
		pkg.Link.Wasm.Exports = append(pkg.Link.Wasm.Exports, e.Key)
	}
	b, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return nil, errors.Internal(errors.PhaseBindgen, "marshal "+GenPackageFile, err)
	}
	return append(b, '\n'), nil
}

func exportStubs(exports []Export) string {
	var b strings.Builder
	for i, e := range exports {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "pub fn %s(%s) -> %s {\n", e.Key, params(e.Func), result(e.Func))
		if len(e.Func.Results) == 0 {
			b.WriteString("  ()\n")
		} else {
			b.WriteString("  abort(\"not implemented\")\n")
		}
		b.WriteString("}\n")
	}
	return b.String()
}

type importedFunc struct {
	key    string
	module string
	fn     *wit.Function
}

func importedFuncs(w *wit.World) ([]importedFunc, error) {
	var out []importedFunc
	used := make(map[string]bool)
	add := func(prefix, module string, pkg *wit.Package, fn *wit.Function) error {
		if !world.IsFreestanding(fn) {
			return errors.Unsupported(errors.PhaseBindgen, []string{module, fn.Name}, "resource functions")
		}
		key := disambiguate(used, snake(prefix+fn.Name), pkg)
		used[key] = true
		out = append(out, importedFunc{key: key, module: module, fn: fn})
		return nil
	}
	for _, it := range world.Imports(w) {
		switch {
		case it.Function != nil:
			if err := add("", world.RootModule, w.Package, it.Function); err != nil {
				return nil, err
			}
		case it.Interface != nil:
			prefix := world.ShortName(it.Key, it.Interface) + "-"
			for _, fn := range world.Functions(it.Interface) {
				if err := add(prefix, it.Name(), it.Interface.Package, fn); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// importDecls declares each import at the core level; the caller passes
// flattened arguments as the canonical ABI lowers them.
func importDecls(imports []importedFunc) string {
	var b strings.Builder
	for _, imp := range imports {
		sig := abi.Flatten(imp.fn, abi.Lower)
		ps := make([]string, len(sig.Params))
		for i, t := range sig.Params {
			ps[i] = fmt.Sprintf("p%d : %s", i, coreType(t))
		}
		fmt.Fprintf(&b, "pub fn %s(%s)", imp.key, strings.Join(ps, ", "))
		if len(sig.Results) == 1 {
			fmt.Fprintf(&b, " -> %s", coreType(sig.Results[0]))
		}
		fmt.Fprintf(&b, " = %q %q\n", imp.module, imp.fn.Name)
	}
	return b.String()
}

func coreType(t api.ValueType) string {
	switch t {
	case api.ValueTypeI64:
		return "Int64"
	case api.ValueTypeF32:
		return "Float"
	case api.ValueTypeF64:
		return "Double"
	default:
		return "Int"
	}
}

func params(fn *wit.Function) string {
	ps := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		ps[i] = snake(p.Name) + " : " + typeName(p.Type)
	}
	return strings.Join(ps, ", ")
}

// result names the return type of fn. Named results become a tuple.
func result(fn *wit.Function) string {
	switch len(fn.Results) {
	case 0:
		return "Unit"
	case 1:
		return typeName(fn.Results[0].Type)
	}
	ts := make([]string, len(fn.Results))
	for i, r := range fn.Results {
		ts[i] = typeName(r.Type)
	}
	return "(" + strings.Join(ts, ", ") + ")"
}
