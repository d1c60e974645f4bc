package assemble

import (
	"github.com/wippyai/componentize-mbt/wat/internal/ast"
	"github.com/wippyai/componentize-mbt/wat/internal/sexpr"
)

const pageSize = 65536

// parts is a func, table, memory or global field split into its optional
// id, inline exports, inline import and remaining content.
type parts struct {
	node     *sexpr.Node
	id       string
	module   string
	name     string
	exports  []string
	rest     []*sexpr.Node
	imported bool
}

func split(n *sexpr.Node) (parts, error) {
	p := parts{node: n}
	cs := n.Children[1:]
	if len(cs) > 0 && cs[0].IsID() {
		p.id = cs[0].Value
		cs = cs[1:]
	}
	for ; len(cs) > 0; cs = cs[1:] {
		c := cs[0]
		switch c.Head() {
		case "export":
			name, err := stringAt(c, 1)
			if err != nil {
				return p, err
			}
			p.exports = append(p.exports, name)
		case "import":
			mod, err := stringAt(c, 1)
			if err != nil {
				return p, err
			}
			name, err := stringAt(c, 2)
			if err != nil {
				return p, err
			}
			p.module, p.name, p.imported = mod, name, true
		default:
			p.rest = cs
			return p, nil
		}
	}
	return p, nil
}

func optID(n *sexpr.Node) string {
	if len(n.Children) > 1 && n.Children[1].IsID() {
		return n.Children[1].Value
	}
	return ""
}

func stringAt(n *sexpr.Node, i int) (string, error) {
	if i >= len(n.Children) || n.Children[i].Kind != sexpr.String {
		return "", errorf(n, "%s: expected string", n.Head())
	}
	return n.Children[i].Text(), nil
}

func noRest(rest []*sexpr.Node) error {
	if len(rest) > 0 {
		return errorf(rest[0], "unexpected %s", describe(rest[0]))
	}
	return nil
}

func describe(n *sexpr.Node) string {
	if n.Kind == sexpr.List {
		return "(" + n.Head() + " ...)"
	}
	return n.Value
}

func importField(f *sexpr.Node) (importItem, error) {
	if len(f.Children) != 4 {
		return importItem{}, errorf(f, "import expects module, name and description")
	}
	mod, err := stringAt(f, 1)
	if err != nil {
		return importItem{}, err
	}
	name, err := stringAt(f, 2)
	if err != nil {
		return importItem{}, err
	}
	desc := f.Children[3]
	s, ok := fieldSpaces[desc.Head()]
	if !ok {
		return importItem{}, errorf(desc, "unknown import kind %q", desc.Head())
	}
	p, err := split(desc)
	if err != nil {
		return importItem{}, err
	}
	p.module, p.name, p.imported = mod, name, true
	return importItem{parts: p, space: s}, nil
}

func (a *assembler) typeField(f *sexpr.Node) error {
	id := optID(f)
	cs := f.Children[1:]
	if id != "" {
		cs = cs[1:]
	}
	if len(cs) != 1 || cs[0].Head() != "func" {
		return errorf(f, "type: expected (func ...)")
	}
	ft, _, rest, err := signature(cs[0].Children[1:])
	if err != nil {
		return err
	}
	if err := noRest(rest); err != nil {
		return err
	}
	if err := a.declare(spaceType, id, f); err != nil {
		return err
	}
	a.mod.Types = append(a.mod.Types, ft)
	return nil
}

// signature reads (param ...)* (result ...)* and returns the parameter
// names, "" for unnamed ones.
func signature(nodes []*sexpr.Node) (ast.FuncType, []string, []*sexpr.Node, error) {
	var ft ast.FuncType
	var names []string
	for ; len(nodes) > 0 && nodes[0].Head() == "param"; nodes = nodes[1:] {
		args := nodes[0].Children[1:]
		if len(args) == 2 && args[0].IsID() {
			vt, err := valType(args[1])
			if err != nil {
				return ft, nil, nil, err
			}
			ft.Params = append(ft.Params, vt)
			names = append(names, args[0].Value)
			continue
		}
		vts, err := valTypes(args)
		if err != nil {
			return ft, nil, nil, err
		}
		ft.Params = append(ft.Params, vts...)
		names = append(names, make([]string, len(vts))...)
	}
	for ; len(nodes) > 0 && nodes[0].Head() == "result"; nodes = nodes[1:] {
		vts, err := valTypes(nodes[0].Children[1:])
		if err != nil {
			return ft, nil, nil, err
		}
		ft.Results = append(ft.Results, vts...)
	}
	return ft, names, nodes, nil
}

// typeUse resolves (type x)? (param ...)* (result ...)* to a type index.
// An inline signature without (type x) reuses the first equal type or
// appends a new one.
func (a *assembler) typeUse(nodes []*sexpr.Node) (uint32, []string, []*sexpr.Node, error) {
	explicit := len(nodes) > 0 && nodes[0].Head() == "type"
	var idx uint32
	if explicit {
		ref := nodes[0]
		if len(ref.Children) != 2 {
			return 0, nil, nil, errorf(ref, "type: expected one index")
		}
		var err error
		if idx, err = a.index(spaceType, ref.Children[1]); err != nil {
			return 0, nil, nil, err
		}
		if int(idx) >= len(a.mod.Types) {
			return 0, nil, nil, errorf(ref, "type index %d out of range", idx)
		}
		nodes = nodes[1:]
	}

	ft, names, rest, err := signature(nodes)
	if err != nil {
		return 0, nil, nil, err
	}
	if !explicit {
		return a.mod.TypeIndex(ft), names, rest, nil
	}
	declared := a.mod.Types[idx]
	if len(ft.Params)+len(ft.Results) > 0 && !ft.Equal(declared) {
		return 0, nil, nil, errorf(nodes[0], "inline signature does not match type %d", idx)
	}
	if len(ft.Params) == 0 {
		names = make([]string, len(declared.Params))
	}
	return idx, names, rest, nil
}

func (a *assembler) importDesc(imp importItem, idx uint32) error {
	desc := ast.ImportDesc{Kind: spaceKinds[imp.space]}
	var rest []*sexpr.Node
	var err error
	switch imp.space {
	case spaceFunc:
		desc.TypeIdx, _, rest, err = a.typeUse(imp.rest)
	case spaceTable:
		var t ast.Table
		t, rest, err = tableType(imp.rest)
		desc.TableTyp = &t
	case spaceMemory:
		var lim ast.Limits
		lim, rest, err = limits(imp.rest)
		desc.MemLimits = &lim
	case spaceGlobal:
		var gt ast.GlobalType
		gt, rest, err = globalType(imp.rest)
		desc.GlobalTyp = &gt
	}
	if err != nil {
		return err
	}
	if err := noRest(rest); err != nil {
		return err
	}
	a.mod.Imports = append(a.mod.Imports, ast.Import{Module: imp.module, Name: imp.name, Desc: desc})
	a.addExports(imp.exports, imp.space, idx)
	return nil
}

func (a *assembler) funcField(p parts) error {
	idx := a.imported[spaceFunc] + uint32(len(a.mod.Funcs))
	typeIdx, names, rest, err := a.typeUse(p.rest)
	if err != nil {
		return err
	}

	b := newBody(a)
	for i, name := range names {
		if name != "" {
			b.locals[name] = uint32(i)
		}
	}
	next := uint32(len(names))
	var locals []ast.ValType
	for ; len(rest) > 0 && rest[0].Head() == "local"; rest = rest[1:] {
		args := rest[0].Children[1:]
		if len(args) == 2 && args[0].IsID() {
			vt, err := valType(args[1])
			if err != nil {
				return err
			}
			b.locals[args[0].Value] = next
			next++
			locals = append(locals, vt)
			continue
		}
		vts, err := valTypes(args)
		if err != nil {
			return err
		}
		next += uint32(len(vts))
		locals = append(locals, vts...)
	}

	if err := b.seq(rest); err != nil {
		return err
	}
	if len(b.labels) > 0 {
		return errorf(p.node, "func %s: unterminated block", p.id)
	}
	a.mod.Funcs = append(a.mod.Funcs, ast.FuncEntry{TypeIdx: typeIdx})
	a.mod.Code = append(a.mod.Code, ast.FuncBody{Locals: locals, Code: b.code})
	a.addExports(p.exports, spaceFunc, idx)
	return nil
}

func (a *assembler) tableField(p parts) error {
	idx := a.imported[spaceTable] + uint32(len(a.mod.Tables))
	if len(p.rest) == 2 && p.rest[1].Head() == "elem" {
		rt, err := refType(p.rest[0])
		if err != nil {
			return err
		}
		items := p.rest[1].Children[1:]
		n := uint32(len(items))
		a.mod.Tables = append(a.mod.Tables, ast.Table{ElemType: rt, Limits: ast.Limits{Min: n, Max: &n}})

		e := ast.Elem{Mode: activeMode(idx, rt), TableIdx: idx, Offset: constI32(0), RefType: rt}
		exprs := len(items) > 0 && items[0].Kind == sexpr.List
		if err := a.elemItems(&e, items, exprs); err != nil {
			return err
		}
		a.mod.Elems = append(a.mod.Elems, e)
	} else {
		t, rest, err := tableType(p.rest)
		if err != nil {
			return err
		}
		if err := noRest(rest); err != nil {
			return err
		}
		a.mod.Tables = append(a.mod.Tables, t)
	}
	a.addExports(p.exports, spaceTable, idx)
	return nil
}

func (a *assembler) memoryField(p parts) error {
	idx := a.imported[spaceMemory] + uint32(len(a.mod.Memories))
	if len(p.rest) == 1 && p.rest[0].Head() == "data" {
		init, err := dataBytes(p.rest[0].Children[1:])
		if err != nil {
			return err
		}
		pages := uint32((len(init) + pageSize - 1) / pageSize)
		a.mod.Memories = append(a.mod.Memories, ast.Memory{Limits: ast.Limits{Min: pages, Max: &pages}})
		a.mod.Data = append(a.mod.Data, ast.DataSegment{MemIdx: idx, Offset: constI32(0), Init: init})
	} else {
		lim, rest, err := limits(p.rest)
		if err != nil {
			return err
		}
		if err := noRest(rest); err != nil {
			return err
		}
		a.mod.Memories = append(a.mod.Memories, ast.Memory{Limits: lim})
	}
	a.addExports(p.exports, spaceMemory, idx)
	return nil
}

func (a *assembler) globalField(p parts) error {
	idx := a.imported[spaceGlobal] + uint32(len(a.mod.Globals))
	gt, rest, err := globalType(p.rest)
	if err != nil {
		return err
	}
	init, err := a.constExpr(rest)
	if err != nil {
		return err
	}
	a.mod.Globals = append(a.mod.Globals, ast.Global{Type: gt, Init: init})
	a.addExports(p.exports, spaceGlobal, idx)
	return nil
}

func (a *assembler) exportField(f *sexpr.Node) error {
	name, err := stringAt(f, 1)
	if err != nil {
		return err
	}
	if len(f.Children) != 3 {
		return errorf(f, "export %q: expected one descriptor", name)
	}
	ref := f.Children[2]
	s, ok := fieldSpaces[ref.Head()]
	if !ok || len(ref.Children) != 2 {
		return errorf(ref, "export %q: invalid descriptor", name)
	}
	idx, err := a.index(s, ref.Children[1])
	if err != nil {
		return err
	}
	a.addExports([]string{name}, s, idx)
	return nil
}

func (a *assembler) startField(f *sexpr.Node) error {
	if a.mod.Start != nil {
		return errorf(f, "multiple start functions")
	}
	if len(f.Children) != 2 {
		return errorf(f, "start: expected one index")
	}
	idx, err := a.index(spaceFunc, f.Children[1])
	if err != nil {
		return err
	}
	a.mod.Start = &idx
	return nil
}

func (a *assembler) elemField(f *sexpr.Node) error {
	cs := f.Children[1:]
	if optID(f) != "" {
		cs = cs[1:]
	}

	e := ast.Elem{Mode: ast.ElemModePassive}
	active := false
	if len(cs) > 0 && cs[0].Kind == sexpr.Atom && cs[0].Value == "declare" {
		e.Mode = ast.ElemModeDeclarative
		cs = cs[1:]
	}
	if len(cs) > 0 && cs[0].Head() == "table" {
		if len(cs[0].Children) != 2 {
			return errorf(cs[0], "table: expected one index")
		}
		idx, err := a.index(spaceTable, cs[0].Children[1])
		if err != nil {
			return err
		}
		e.TableIdx = idx
		active = true
		cs = cs[1:]
	}
	if len(cs) > 0 && cs[0].Kind == sexpr.List && cs[0].Head() != "item" {
		offset, err := a.offset(cs[0])
		if err != nil {
			return err
		}
		e.Offset = offset
		active = true
		cs = cs[1:]
	}

	exprs := false
	if len(cs) > 0 && cs[0].Kind == sexpr.Atom {
		switch cs[0].Value {
		case "func":
			cs = cs[1:]
		case "funcref", "externref":
			e.RefType, _ = refType(cs[0])
			exprs = true
			cs = cs[1:]
		}
	}
	if active {
		if e.Offset == nil {
			return errorf(f, "elem: active segment without offset")
		}
		e.Mode = activeMode(e.TableIdx, e.RefType)
	}
	if err := a.elemItems(&e, cs, exprs); err != nil {
		return err
	}
	a.mod.Elems = append(a.mod.Elems, e)
	return nil
}

func (a *assembler) elemItems(e *ast.Elem, items []*sexpr.Node, exprs bool) error {
	for _, it := range items {
		if !exprs {
			idx, err := a.index(spaceFunc, it)
			if err != nil {
				return err
			}
			e.Init = append(e.Init, idx)
			continue
		}
		if it.Kind != sexpr.List {
			return errorf(it, "expected element expression, got %s", it.Value)
		}
		nodes := []*sexpr.Node{it}
		if it.Head() == "item" {
			nodes = it.Children[1:]
		}
		code, err := a.constExpr(nodes)
		if err != nil {
			return err
		}
		e.Exprs = append(e.Exprs, code)
	}
	return nil
}

// activeMode picks the shortest segment encoding: flag 0 implies table 0
// and funcref.
func activeMode(table uint32, rt byte) int {
	if table == 0 && (rt == 0 || rt == ast.RefTypeFuncref) {
		return ast.ElemModeActive
	}
	return ast.ElemModeActiveTable
}

func (a *assembler) dataField(f *sexpr.Node) error {
	cs := f.Children[1:]
	if optID(f) != "" {
		cs = cs[1:]
	}

	d := ast.DataSegment{Passive: true}
	memRef := false
	if len(cs) > 0 && cs[0].Head() == "memory" {
		if len(cs[0].Children) != 2 {
			return errorf(cs[0], "memory: expected one index")
		}
		idx, err := a.index(spaceMemory, cs[0].Children[1])
		if err != nil {
			return err
		}
		d.MemIdx = idx
		memRef = true
		cs = cs[1:]
	}
	if len(cs) > 0 && cs[0].Kind == sexpr.List {
		offset, err := a.offset(cs[0])
		if err != nil {
			return err
		}
		d.Offset = offset
		d.Passive = false
		cs = cs[1:]
	}
	if memRef && d.Passive {
		return errorf(f, "data: memory given without offset")
	}

	init, err := dataBytes(cs)
	if err != nil {
		return err
	}
	d.Init = init
	a.mod.Data = append(a.mod.Data, d)
	return nil
}

// offset accepts (offset instr*) or a single folded instruction.
func (a *assembler) offset(n *sexpr.Node) ([]ast.Instr, error) {
	if n.Head() == "offset" {
		return a.constExpr(n.Children[1:])
	}
	return a.constExpr([]*sexpr.Node{n})
}

func (a *assembler) customField(f *sexpr.Node) error {
	name, err := stringAt(f, 1)
	if err != nil {
		return err
	}
	rest := f.Children[2:]
	// Placement hints are ignored; custom sections always trail the module.
	if len(rest) > 0 && rest[0].Kind == sexpr.List {
		rest = rest[1:]
	}
	data, err := dataBytes(rest)
	if err != nil {
		return err
	}
	a.mod.Customs = append(a.mod.Customs, ast.Custom{Name: name, Data: data})
	return nil
}

func dataBytes(nodes []*sexpr.Node) ([]byte, error) {
	var out []byte
	for _, n := range nodes {
		if n.Kind != sexpr.String {
			return nil, errorf(n, "expected string, got %s", describe(n))
		}
		out = append(out, sexpr.Unquote(n.Value)...)
	}
	return out, nil
}

func constI32(v int32) []ast.Instr {
	return []ast.Instr{{Opcode: ast.OpI32Const, Imm: v}}
}

func (a *assembler) constExpr(nodes []*sexpr.Node) ([]ast.Instr, error) {
	b := newBody(a)
	if err := b.seq(nodes); err != nil {
		return nil, err
	}
	return b.code, nil
}
