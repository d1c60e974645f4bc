// Package world loads WIT documents and names the items of a selected world
// the way core modules and component binaries refer to them.
package world

import (
	"fmt"
	"iter"
	"path/filepath"
	"strings"

	"github.com/wippyai/componentize-mbt/errors"
	"go.bytecodealliance.org/wit"
)

// RootModule is the core import module used for functions imported
// directly by a world rather than through an interface.
const RootModule = "$root"

// Load resolves a WIT package. Files ending in .json are read as the JSON
// form of a resolved package; anything else is parsed as WIT, either a
// single file or a directory with a deps/ folder.
func Load(path string) (*wit.Resolve, error) {
	var (
		res *wit.Resolve
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		res, err = wit.LoadJSON(path)
	} else {
		res, err = wit.LoadWIT(path)
	}
	if err != nil {
		return nil, errors.ParseFailed(path, err)
	}
	if len(res.Worlds) == 0 {
		return nil, errors.NotFound(errors.PhaseParse, "world in", path)
	}
	return res, nil
}

// Select picks a world. The name may be a plain world name or a qualified
// ns:pkg/world reference, with or without a version. An empty name selects
// the only world of the main package, which is the last package resolved.
func Select(res *wit.Resolve, name string) (*wit.World, error) {
	if name == "" {
		return selectDefault(res)
	}

	var matches []*wit.World
	for _, w := range res.Worlds {
		if w.Name == name || QualifiedName(w) == name || unversioned(w) == name {
			matches = append(matches, w)
		}
	}
	switch len(matches) {
	case 0:
		return nil, errors.NotFound(errors.PhaseParse, "world", name)
	case 1:
		return matches[0], nil
	}

	// Several packages define a world with this name; prefer the main one.
	if main := mainPackage(res); main != nil {
		for _, w := range matches {
			if w.Package == main {
				return w, nil
			}
		}
	}
	return nil, errors.InvalidInput(errors.PhaseParse,
		fmt.Sprintf("world name %q is ambiguous, use the qualified name", name))
}

func selectDefault(res *wit.Resolve) (*wit.World, error) {
	if len(res.Worlds) == 1 {
		return res.Worlds[0], nil
	}
	main := mainPackage(res)
	var found *wit.World
	for _, w := range res.Worlds {
		if w.Package != main {
			continue
		}
		if found != nil {
			return nil, errors.InvalidInput(errors.PhaseParse,
				fmt.Sprintf("package %s has multiple worlds, select one with -world", packageName(main)))
		}
		found = w
	}
	if found == nil {
		return nil, errors.NotFound(errors.PhaseParse, "world", "(default)")
	}
	return found, nil
}

func mainPackage(res *wit.Resolve) *wit.Package {
	if len(res.Packages) == 0 {
		return nil
	}
	return res.Packages[len(res.Packages)-1]
}

// QualifiedName returns ns:pkg/world@version, or the bare world name when
// the world has no package.
func QualifiedName(w *wit.World) string {
	return qualify(w.Package, w.Name, true)
}

func unversioned(w *wit.World) string {
	return qualify(w.Package, w.Name, false)
}

// InterfaceName returns the name an interface is imported or exported
// under: ns:pkg/iface@version for package interfaces, the world key for
// interfaces declared inline in a world.
func InterfaceName(key string, iface *wit.Interface) string {
	if iface.Name == nil || iface.Package == nil {
		return key
	}
	return qualify(iface.Package, *iface.Name, true)
}

// FunctionName returns the core export name of fn, declared under the
// interface named iface. An empty iface means a world-level function.
func FunctionName(iface string, fn *wit.Function) string {
	if iface == "" {
		return fn.Name
	}
	return iface + "#" + fn.Name
}

// ShortName returns the unqualified name of an interface.
func ShortName(key string, iface *wit.Interface) string {
	if iface.Name != nil {
		return *iface.Name
	}
	return key
}

func qualify(pkg *wit.Package, name string, version bool) string {
	if pkg == nil {
		return name
	}
	id := pkg.Name
	s := id.Namespace + ":" + id.Package + "/" + name
	if version && id.Version != nil {
		s += "@" + id.Version.String()
	}
	return s
}

func packageName(pkg *wit.Package) string {
	if pkg == nil {
		return "(none)"
	}
	return pkg.Name.Namespace + ":" + pkg.Name.Package
}

// Item is one import or export of a world, resolved to what it names.
type Item struct {
	Key       string
	Interface *wit.Interface // set for interface items
	Function  *wit.Function  // set for world-level functions
	Type      *wit.TypeDef   // set for world-level types
}

// Name returns the import or export name of the item.
func (it Item) Name() string {
	if it.Interface != nil {
		return InterfaceName(it.Key, it.Interface)
	}
	return it.Key
}

// Imports lists the world's imports in declaration order.
func Imports(w *wit.World) []Item {
	return items(w.Imports.All())
}

// Exports lists the world's exports in declaration order.
func Exports(w *wit.World) []Item {
	return items(w.Exports.All())
}

func items(all iter.Seq2[string, wit.WorldItem]) []Item {
	var out []Item
	for key, item := range all {
		it := Item{Key: key}
		switch v := item.(type) {
		case *wit.InterfaceRef:
			it.Interface = v.Interface
		case *wit.Function:
			it.Function = v
		case *wit.TypeDef:
			it.Type = v
		default:
			continue
		}
		out = append(out, it)
	}
	return out
}

// Functions lists the functions of an interface in declaration order.
func Functions(iface *wit.Interface) []*wit.Function {
	var out []*wit.Function
	for _, fn := range iface.Functions.All() {
		out = append(out, fn)
	}
	return out
}

// IsFreestanding reports whether fn is a plain function rather than a
// resource method, static function or constructor.
func IsFreestanding(fn *wit.Function) bool {
	_, ok := fn.Kind.(*wit.Freestanding)
	return ok
}
