package bindgen

import (
	"strconv"
	"strings"

	"github.com/wippyai/componentize-mbt/errors"
	"github.com/wippyai/componentize-mbt/world"
	"go.bytecodealliance.org/wit"
)

// Symbol is the core export a generated MoonBit function is linked to.
type Symbol struct {
	Name           string // core export name, for example "ns:pkg/api#greet"
	HasReturnValue bool
}

// Export describes one exported world function as MoonBit sees it.
type Export struct {
	Key       string // MoonBit function name
	Symbol    Symbol
	Interface string // qualified interface name, empty for world functions
	Func      *wit.Function
}

// Names computes the MoonBit function name and core export symbol of every
// function exported by w, in export order. The generator and the adapter
// both use it, so generated code and the rewritten module always agree.
func Names(w *wit.World) ([]Export, error) {
	var (
		out  []Export
		used = make(map[string]bool)
	)
	add := func(prefix, iface string, pkg *wit.Package, fn *wit.Function) error {
		if !world.IsFreestanding(fn) {
			return errors.Unsupported(errors.PhaseBindgen, []string{iface, fn.Name},
				"resource functions")
		}
		key := disambiguate(used, snake(prefix+fn.Name), pkg)
		used[key] = true
		out = append(out, Export{
			Key: key,
			Symbol: Symbol{
				Name:           world.FunctionName(iface, fn),
				HasReturnValue: len(fn.Results) > 0,
			},
			Interface: iface,
			Func:      fn,
		})
		return nil
	}

	for _, it := range world.Exports(w) {
		switch {
		case it.Function != nil:
			if err := add("", "", w.Package, it.Function); err != nil {
				return nil, err
			}
		case it.Interface != nil:
			name := it.Name()
			prefix := world.ShortName(it.Key, it.Interface) + "-"
			for _, fn := range world.Functions(it.Interface) {
				if err := add(prefix, name, it.Interface.Package, fn); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// SymbolMap indexes exports by MoonBit function name.
func SymbolMap(exports []Export) map[string]Symbol {
	m := make(map[string]Symbol, len(exports))
	for _, e := range exports {
		m[e.Key] = e.Symbol
	}
	return m
}

func disambiguate(used map[string]bool, name string, pkg *wit.Package) string {
	if !used[name] {
		return name
	}
	if pkg != nil {
		qualified := snake(pkg.Name.Namespace) + "_" + snake(pkg.Name.Package) + "_" + name
		if !used[qualified] {
			return qualified
		}
		name = qualified
	}
	for i := 2; ; i++ {
		candidate := name + "_" + strconv.Itoa(i)
		if !used[candidate] {
			return candidate
		}
	}
}

var keywords = map[string]bool{
	"as":       true,
	"break":    true,
	"continue": true,
	"else":     true,
	"enum":     true,
	"extern":   true,
	"false":    true,
	"fn":       true,
	"for":      true,
	"if":       true,
	"impl":     true,
	"let":      true,
	"loop":     true,
	"match":    true,
	"mut":      true,
	"pub":      true,
	"return":   true,
	"self":     true,
	"struct":   true,
	"test":     true,
	"trait":    true,
	"true":     true,
	"type":     true,
	"while":    true,
	"with":     true,
}

// snake turns a WIT identifier into a MoonBit value name.
func snake(id string) string {
	s := strings.ToLower(strings.ReplaceAll(id, "-", "_"))
	if keywords[s] {
		s += "_"
	}
	return s
}

// pascal turns a WIT identifier into a MoonBit type or constructor name.
func pascal(id string) string {
	var b strings.Builder
	for _, part := range strings.Split(id, "-") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(strings.ToLower(part[1:]))
	}
	return b.String()
}
