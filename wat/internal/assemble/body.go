package assemble

import (
	"strings"

	"github.com/wippyai/componentize-mbt/wat/internal/ast"
	"github.com/wippyai/componentize-mbt/wat/internal/opcode"
	"github.com/wippyai/componentize-mbt/wat/internal/sexpr"
)

var blockOps = map[string]byte{
	"block": ast.OpBlock,
	"loop":  ast.OpLoop,
	"if":    ast.OpIf,
}

// body assembles one instruction sequence. Plain and folded forms may be
// mixed freely.
type body struct {
	a      *assembler
	locals map[string]uint32
	labels []string
	code   []ast.Instr
}

func newBody(a *assembler) *body {
	return &body{a: a, locals: make(map[string]uint32)}
}

func (b *body) emit(op byte, imm interface{}) {
	b.code = append(b.code, ast.Instr{Opcode: op, Imm: imm})
}

func (b *body) push(label string) { b.labels = append(b.labels, label) }
func (b *body) pop()              { b.labels = b.labels[:len(b.labels)-1] }

func (b *body) seq(nodes []*sexpr.Node) error {
	for i := 0; i < len(nodes); {
		if nodes[i].Kind == sexpr.List {
			if err := b.folded(nodes[i]); err != nil {
				return err
			}
			i++
			continue
		}
		next, err := b.plain(nodes, i)
		if err != nil {
			return err
		}
		i = next
	}
	return nil
}

func (b *body) plain(nodes []*sexpr.Node, i int) (int, error) {
	n := nodes[i]
	if n.Kind != sexpr.Atom {
		return 0, errorf(n, "expected instruction, got %s", describe(n))
	}
	switch n.Value {
	case "block", "loop", "if":
		label, bt, next, err := b.blockHeader(nodes, i+1)
		if err != nil {
			return 0, err
		}
		b.emit(blockOps[n.Value], bt)
		b.push(label)
		return next, nil
	case "else":
		if len(b.labels) == 0 {
			return 0, errorf(n, "else outside of if")
		}
		b.emit(ast.OpElse, nil)
		return skipLabel(nodes, i+1), nil
	case "end":
		if len(b.labels) == 0 {
			return 0, errorf(n, "unbalanced end")
		}
		b.pop()
		b.emit(ast.OpEnd, nil)
		return skipLabel(nodes, i+1), nil
	}
	ins, next, err := b.instr(nodes, i)
	if err != nil {
		return 0, err
	}
	b.code = append(b.code, ins)
	return next, nil
}

func skipLabel(nodes []*sexpr.Node, i int) int {
	if i < len(nodes) && nodes[i].IsID() {
		return i + 1
	}
	return i
}

func (b *body) folded(n *sexpr.Node) error {
	head := n.Head()
	if head == "" {
		return errorf(n, "expected folded instruction")
	}

	switch head {
	case "block", "loop":
		label, bt, next, err := b.blockHeader(n.Children, 1)
		if err != nil {
			return err
		}
		b.emit(blockOps[head], bt)
		b.push(label)
		if err := b.seq(n.Children[next:]); err != nil {
			return err
		}
		b.pop()
		b.emit(ast.OpEnd, nil)
		return nil

	case "if":
		label, bt, next, err := b.blockHeader(n.Children, 1)
		if err != nil {
			return err
		}
		var cond []*sexpr.Node
		var then, els *sexpr.Node
		for _, c := range n.Children[next:] {
			switch c.Head() {
			case "then":
				then = c
			case "else":
				els = c
			default:
				if then != nil {
					return errorf(c, "if: unexpected %s after then", describe(c))
				}
				cond = append(cond, c)
			}
		}
		if then == nil {
			return errorf(n, "if: missing then")
		}
		if err := b.seq(cond); err != nil {
			return err
		}
		b.emit(ast.OpIf, bt)
		b.push(label)
		if err := b.seq(then.Children[1:]); err != nil {
			return err
		}
		if els != nil {
			b.emit(ast.OpElse, nil)
			if err := b.seq(els.Children[1:]); err != nil {
				return err
			}
		}
		b.pop()
		b.emit(ast.OpEnd, nil)
		return nil
	}

	// Operands follow the immediates and are evaluated first.
	ins, next, err := b.instr(n.Children, 0)
	if err != nil {
		return err
	}
	if err := b.seq(n.Children[next:]); err != nil {
		return err
	}
	b.code = append(b.code, ins)
	return nil
}

// blockHeader reads an optional label and block type starting at nodes[i].
func (b *body) blockHeader(nodes []*sexpr.Node, i int) (string, ast.BlockType, int, error) {
	var label string
	if i < len(nodes) && nodes[i].IsID() {
		label = nodes[i].Value
		i++
	}
	j := i
	for j < len(nodes) {
		h := nodes[j].Head()
		if h != "type" && h != "param" && h != "result" {
			break
		}
		j++
	}

	bt := ast.BlockType{TypeIdx: -1, Simple: ast.BlockTypeEmpty}
	if j == i {
		return label, bt, j, nil
	}
	if nodes[i].Head() == "type" {
		idx, _, rest, err := b.a.typeUse(nodes[i:j])
		if err != nil {
			return "", bt, 0, err
		}
		if err := noRest(rest); err != nil {
			return "", bt, 0, err
		}
		bt.TypeIdx = int32(idx)
		return label, bt, j, nil
	}
	ft, _, rest, err := signature(nodes[i:j])
	if err != nil {
		return "", bt, 0, err
	}
	if err := noRest(rest); err != nil {
		return "", bt, 0, err
	}
	switch {
	case len(ft.Params) == 0 && len(ft.Results) == 1:
		bt.Simple = byte(ft.Results[0])
	case len(ft.Params) > 0 || len(ft.Results) > 1:
		bt.TypeIdx = int32(b.a.mod.TypeIndex(ft))
	}
	return label, bt, j, nil
}

// instr assembles the plain instruction at nodes[i] and returns the index
// after its immediates.
func (b *body) instr(nodes []*sexpr.Node, i int) (ast.Instr, int, error) {
	n := nodes[i]
	name := n.Value
	j := i + 1
	arg := func() (*sexpr.Node, error) {
		if j >= len(nodes) || nodes[j].Kind == sexpr.List {
			return nil, errorf(n, "%s: missing immediate", name)
		}
		j++
		return nodes[j-1], nil
	}
	optIndex := func(s space) (uint32, error) {
		if j < len(nodes) && nodes[j].IsIndex() {
			j++
			return b.a.index(s, nodes[j-1])
		}
		return 0, nil
	}

	if op, ok := opcode.Lookup(name); ok {
		ins := ast.Instr{Opcode: op.Code}
		var err error
		switch op.Imm {
		case opcode.ImmU32:
			var imm *sexpr.Node
			if imm, err = arg(); err == nil {
				ins.Imm, err = b.index(name, imm)
			}
		case opcode.ImmI32:
			var imm *sexpr.Node
			if imm, err = arg(); err == nil {
				var v int64
				v, err = parseInt(imm, 32)
				ins.Imm = int32(v)
			}
		case opcode.ImmI64:
			var imm *sexpr.Node
			if imm, err = arg(); err == nil {
				ins.Imm, err = parseInt(imm, 64)
			}
		case opcode.ImmF32:
			var imm *sexpr.Node
			if imm, err = arg(); err == nil {
				ins.Imm, err = parseF32(imm)
			}
		case opcode.ImmF64:
			var imm *sexpr.Node
			if imm, err = arg(); err == nil {
				ins.Imm, err = parseF64(imm)
			}
		case opcode.ImmMemIdx:
			ins.Imm, err = optIndex(spaceMemory)
		case opcode.ImmMemarg:
			ma := ast.Memarg{Align: op.Align}
			if ma.MemIdx, err = optIndex(spaceMemory); err == nil {
				j, err = memarg(nodes, j, &ma)
			}
			ins.Imm = ma
		case opcode.ImmPrefixed:
			var args []uint32
			args, j, err = b.prefixed(op.Sub, nodes, j)
			ins.Imm = append([]uint32{op.Sub}, args...)
		}
		if err != nil {
			return ast.Instr{}, 0, err
		}
		return ins, j, nil
	}

	switch name {
	case "br_table":
		var labels []uint32
		for j < len(nodes) && nodes[j].IsIndex() {
			depth, err := b.label(nodes[j])
			if err != nil {
				return ast.Instr{}, 0, err
			}
			labels = append(labels, depth)
			j++
		}
		if len(labels) == 0 {
			return ast.Instr{}, 0, errorf(n, "br_table: missing labels")
		}
		return ast.Instr{Opcode: ast.OpBrTable, Imm: labels}, j, nil

	case "call_indirect", "return_call_indirect":
		table, err := optIndex(spaceTable)
		if err != nil {
			return ast.Instr{}, 0, err
		}
		end := j
		for end < len(nodes) {
			h := nodes[end].Head()
			if h != "type" && h != "param" && h != "result" {
				break
			}
			end++
		}
		typeIdx, _, rest, err := b.a.typeUse(nodes[j:end])
		if err != nil {
			return ast.Instr{}, 0, err
		}
		if err := noRest(rest); err != nil {
			return ast.Instr{}, 0, err
		}
		op := ast.OpCallIndirect
		if name == "return_call_indirect" {
			op = ast.OpReturnCallIndirect
		}
		return ast.Instr{Opcode: op, Imm: []uint32{typeIdx, table}}, end, nil

	case "select":
		var types []ast.ValType
		for ; j < len(nodes) && nodes[j].Head() == "result"; j++ {
			vts, err := valTypes(nodes[j].Children[1:])
			if err != nil {
				return ast.Instr{}, 0, err
			}
			types = append(types, vts...)
		}
		if types == nil {
			return ast.Instr{Opcode: ast.OpSelect}, j, nil
		}
		return ast.Instr{Opcode: ast.OpSelectTyped, Imm: types}, j, nil

	case "ref.null":
		imm, err := arg()
		if err != nil {
			return ast.Instr{}, 0, err
		}
		rt, err := refType(imm)
		if err != nil {
			return ast.Instr{}, 0, err
		}
		return ast.Instr{Opcode: ast.OpRefNull, Imm: rt}, j, nil

	case "ref.func":
		imm, err := arg()
		if err != nil {
			return ast.Instr{}, 0, err
		}
		idx, err := b.a.index(spaceFunc, imm)
		return ast.Instr{Opcode: ast.OpRefFunc, Imm: idx}, j, err

	case "table.get", "table.set":
		idx, err := optIndex(spaceTable)
		op := ast.OpTableGet
		if name == "table.set" {
			op = ast.OpTableSet
		}
		return ast.Instr{Opcode: op, Imm: idx}, j, err
	}
	return ast.Instr{}, 0, errorf(n, "unknown instruction %s", describe(n))
}

// index resolves the u32 immediate of name in the space it addresses.
func (b *body) index(name string, n *sexpr.Node) (uint32, error) {
	switch {
	case strings.HasPrefix(name, "local."):
		if n.IsID() {
			idx, ok := b.locals[n.Value]
			if !ok {
				return 0, errorf(n, "unknown local %s", n.Value)
			}
			return idx, nil
		}
		return parseU32(n)
	case strings.HasPrefix(name, "global."):
		return b.a.index(spaceGlobal, n)
	case name == "br" || name == "br_if":
		return b.label(n)
	default:
		return b.a.index(spaceFunc, n)
	}
}

// label resolves a branch target to its relative depth.
func (b *body) label(n *sexpr.Node) (uint32, error) {
	if !n.IsID() {
		return parseU32(n)
	}
	for i := len(b.labels) - 1; i >= 0; i-- {
		if b.labels[i] == n.Value {
			return uint32(len(b.labels) - 1 - i), nil
		}
	}
	return 0, errorf(n, "unknown label %s", n.Value)
}

func memarg(nodes []*sexpr.Node, j int, ma *ast.Memarg) (int, error) {
	for ; j < len(nodes) && nodes[j].Kind == sexpr.Atom; j++ {
		n := nodes[j]
		key, val, ok := strings.Cut(n.Value, "=")
		if !ok || (key != "offset" && key != "align") {
			break
		}
		v, err := parseUint(strings.ReplaceAll(val, "_", ""), 32)
		if err != nil {
			return 0, errorf(n, "invalid %s", n.Value)
		}
		if key == "offset" {
			ma.Offset = uint32(v)
			continue
		}
		if ma.Align, err = alignExp(n, v); err != nil {
			return 0, err
		}
	}
	return j, nil
}

// prefixed reads the index immediates of 0xFC instructions and returns
// them in binary order.
func (b *body) prefixed(sub uint32, nodes []*sexpr.Node, j int) ([]uint32, int, error) {
	var refs []*sexpr.Node
	for j < len(nodes) && nodes[j].IsIndex() && len(refs) < 2 {
		refs = append(refs, nodes[j])
		j++
	}
	resolve := func(spaces ...space) ([]uint32, error) {
		out := make([]uint32, len(spaces))
		for i, s := range spaces {
			var err error
			if out[i], err = b.a.index(s, refs[i]); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	want := func(counts ...int) error {
		for _, c := range counts {
			if len(refs) == c {
				return nil
			}
		}
		return errorf(nodes[j-1], "unexpected number of immediates")
	}

	var args []uint32
	var err error
	switch sub {
	case ast.MiscOpMemoryInit, ast.MiscOpTableInit:
		target, seg := spaceMemory, spaceData
		if sub == ast.MiscOpTableInit {
			target, seg = spaceTable, spaceElem
		}
		if err = want(1, 2); err != nil {
			break
		}
		if len(refs) == 1 {
			args, err = resolve(seg)
			args = append(args, 0)
			break
		}
		args, err = resolve(target, seg)
		if err == nil {
			args[0], args[1] = args[1], args[0]
		}
	case ast.MiscOpDataDrop:
		if err = want(1); err == nil {
			args, err = resolve(spaceData)
		}
	case ast.MiscOpElemDrop:
		if err = want(1); err == nil {
			args, err = resolve(spaceElem)
		}
	case ast.MiscOpMemoryCopy, ast.MiscOpTableCopy:
		s := spaceMemory
		if sub == ast.MiscOpTableCopy {
			s = spaceTable
		}
		if len(refs) == 0 {
			args = []uint32{0, 0}
		} else if err = want(2); err == nil {
			args, err = resolve(s, s)
		}
	case ast.MiscOpMemoryFill:
		args = []uint32{0}
		if len(refs) > 0 {
			if err = want(1); err == nil {
				args, err = resolve(spaceMemory)
			}
		}
	case ast.MiscOpTableGrow, ast.MiscOpTableSize, ast.MiscOpTableFill:
		args = []uint32{0}
		if len(refs) > 0 {
			if err = want(1); err == nil {
				args, err = resolve(spaceTable)
			}
		}
	default:
		// saturating truncations take no immediates
		j -= len(refs)
	}
	if err != nil {
		return nil, 0, err
	}
	return args, j, nil
}
