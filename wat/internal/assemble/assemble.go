// Package assemble resolves a parsed module tree into an ast.Module.
//
// Assembly runs in two passes. The first assigns an index to every named
// item, imports first in each index space. The second builds the module
// with all references resolved.
package assemble

import (
	"fmt"
	"strings"

	"github.com/wippyai/componentize-mbt/wat/internal/ast"
	"github.com/wippyai/componentize-mbt/wat/internal/sexpr"
)

type space int

const (
	spaceType space = iota
	spaceFunc
	spaceTable
	spaceMemory
	spaceGlobal
	spaceElem
	spaceData
	numSpaces
)

var fieldSpaces = map[string]space{
	"func":   spaceFunc,
	"table":  spaceTable,
	"memory": spaceMemory,
	"global": spaceGlobal,
}

var spaceKinds = map[space]byte{
	spaceFunc:   ast.KindFunc,
	spaceTable:  ast.KindTable,
	spaceMemory: ast.KindMemory,
	spaceGlobal: ast.KindGlobal,
}

type assembler struct {
	mod      *ast.Module
	names    [numSpaces]map[string]uint32
	count    [numSpaces]uint32
	imported [numSpaces]uint32
	imports  []importItem
}

type importItem struct {
	parts
	space space
}

// Module assembles module fields, the children of (module ...) after the
// optional module id.
func Module(fields []*sexpr.Node) (*ast.Module, error) {
	a := &assembler{mod: &ast.Module{}}
	for i := range a.names {
		a.names[i] = make(map[string]uint32)
	}
	if err := a.scan(fields); err != nil {
		return nil, err
	}
	if err := a.build(fields); err != nil {
		return nil, err
	}
	return a.mod, nil
}

func (a *assembler) scan(fields []*sexpr.Node) error {
	// Explicit types come first so inline type uses append after them.
	for _, f := range fields {
		if f.Head() == "type" {
			if err := a.typeField(f); err != nil {
				return err
			}
		}
	}

	for _, f := range fields {
		switch head := f.Head(); head {
		case "import":
			imp, err := importField(f)
			if err != nil {
				return err
			}
			a.imports = append(a.imports, imp)
		case "func", "table", "memory", "global":
			p, err := split(f)
			if err != nil {
				return err
			}
			if p.imported {
				a.imports = append(a.imports, importItem{parts: p, space: fieldSpaces[head]})
			}
		}
	}
	for _, imp := range a.imports {
		if err := a.declare(imp.space, imp.id, imp.node); err != nil {
			return err
		}
		a.imported[imp.space]++
	}

	for _, f := range fields {
		head := f.Head()
		switch head {
		case "func", "table", "memory", "global":
			p, err := split(f)
			if err != nil {
				return err
			}
			if p.imported {
				continue
			}
			if err := a.declare(fieldSpaces[head], p.id, f); err != nil {
				return err
			}
			// (table funcref (elem ...)) and (memory (data ...)) define an
			// anonymous segment in place.
			if len(p.rest) > 0 {
				switch p.rest[len(p.rest)-1].Head() {
				case "elem":
					a.count[spaceElem]++
				case "data":
					a.count[spaceData]++
				}
			}
		case "elem":
			if err := a.declare(spaceElem, optID(f), f); err != nil {
				return err
			}
		case "data":
			if err := a.declare(spaceData, optID(f), f); err != nil {
				return err
			}
		case "type", "import", "export", "start":
		default:
			if !strings.HasPrefix(head, "@") {
				return errorf(f, "unknown module field %q", head)
			}
		}
	}
	return nil
}

func (a *assembler) declare(s space, id string, n *sexpr.Node) error {
	if id != "" {
		if _, dup := a.names[s][id]; dup {
			return errorf(n, "duplicate identifier %s", id)
		}
		a.names[s][id] = a.count[s]
	}
	a.count[s]++
	return nil
}

// index resolves a $id or a number in space s.
func (a *assembler) index(s space, n *sexpr.Node) (uint32, error) {
	if n == nil {
		return 0, fmt.Errorf("missing index")
	}
	if n.IsID() {
		idx, ok := a.names[s][n.Value]
		if !ok {
			return 0, errorf(n, "unknown identifier %s", n.Value)
		}
		return idx, nil
	}
	return parseU32(n)
}

func (a *assembler) build(fields []*sexpr.Node) error {
	var seen [numSpaces]uint32
	for _, imp := range a.imports {
		if err := a.importDesc(imp, seen[imp.space]); err != nil {
			return err
		}
		seen[imp.space]++
	}

	for _, f := range fields {
		var err error
		switch f.Head() {
		case "func", "table", "memory", "global":
			err = a.definition(f)
		case "export":
			err = a.exportField(f)
		case "start":
			err = a.startField(f)
		case "elem":
			err = a.elemField(f)
		case "data":
			err = a.dataField(f)
		case "@custom":
			err = a.customField(f)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *assembler) definition(f *sexpr.Node) error {
	p, err := split(f)
	if err != nil || p.imported {
		return err
	}
	switch f.Head() {
	case "func":
		return a.funcField(p)
	case "table":
		return a.tableField(p)
	case "memory":
		return a.memoryField(p)
	default:
		return a.globalField(p)
	}
}

func (a *assembler) addExports(names []string, s space, idx uint32) {
	for _, name := range names {
		a.mod.Exports = append(a.mod.Exports, ast.Export{Name: name, Kind: spaceKinds[s], Idx: idx})
	}
}

func errorf(n *sexpr.Node, format string, args ...interface{}) error {
	return fmt.Errorf("line %d: "+format, append([]interface{}{n.Line}, args...)...)
}
