package wat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/componentize-mbt/wat/internal/assemble"
	"github.com/wippyai/componentize-mbt/wat/internal/encoder"
	"github.com/wippyai/componentize-mbt/wat/internal/sexpr"
)

// Module is a parsed text module. Fields stay in source order and keep
// their $id references unresolved, so they can be dropped, rewritten and
// appended before the module is encoded.
type Module struct {
	ID     string
	Fields []*Field
}

// Parse reads a (module ...) expression.
func Parse(src string) (*Module, error) {
	nodes, err := sexpr.Parse(src)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 || nodes[0].Head() != "module" {
		return nil, fmt.Errorf("expected (module ...)")
	}

	m := &Module{}
	rest := nodes[0].Children[1:]
	if len(rest) > 0 && rest[0].IsID() {
		m.ID = rest[0].Value
		rest = rest[1:]
	}
	for _, n := range rest {
		if n.Kind != sexpr.List {
			return nil, fmt.Errorf("line %d: unexpected %q in module", n.Line, n.Value)
		}
		m.Fields = append(m.Fields, &Field{node: n})
	}
	return m, nil
}

// ParseField reads a single module field such as (func ...).
func ParseField(src string) (*Field, error) {
	nodes, err := sexpr.Parse(src)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 || nodes[0].Head() == "" {
		return nil, fmt.Errorf("expected a single module field")
	}
	return &Field{node: nodes[0]}, nil
}

// Compile translates module text to the binary format.
func Compile(src string) ([]byte, error) {
	m, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return m.Encode()
}

// Encode resolves all references and returns the binary module.
func (m *Module) Encode() ([]byte, error) {
	nodes := make([]*sexpr.Node, len(m.Fields))
	for i, f := range m.Fields {
		nodes[i] = f.node
	}
	mod, err := assemble.Module(nodes)
	if err != nil {
		return nil, err
	}
	return encoder.Encode(mod), nil
}

// String prints the module with one field per line.
func (m *Module) String() string {
	var b strings.Builder
	b.WriteString("(module")
	if m.ID != "" {
		b.WriteString(" " + m.ID)
	}
	for _, f := range m.Fields {
		b.WriteByte('\n')
		b.WriteString(f.node.Indent("  "))
	}
	b.WriteString(")\n")
	return b.String()
}

// Funcs lists the function index space: imported functions first, then
// defined ones, each in source order.
func (m *Module) Funcs() []*Field {
	var imported, defined []*Field
	for _, f := range m.Fields {
		switch {
		case f.Kind() == "import" && f.desc().Head() == "func":
			imported = append(imported, f)
		case f.Kind() != "func":
		case f.ImportModule() != "":
			imported = append(imported, f)
		default:
			defined = append(defined, f)
		}
	}
	return append(imported, defined...)
}

// Func finds the function a reference names: a $id, or an index that
// counts imported functions first.
func (m *Module) Func(ref string) *Field {
	funcs := m.Funcs()
	if strings.HasPrefix(ref, "$") {
		for _, f := range funcs {
			if f.ID() == ref {
				return f
			}
		}
		return nil
	}
	idx, err := strconv.ParseUint(ref, 10, 32)
	if err != nil || idx >= uint64(len(funcs)) {
		return nil
	}
	return funcs[idx]
}

// NameFuncRefs turns numeric function references into $id references,
// naming the functions that have no id. Afterwards fields can be dropped
// without the remaining references shifting to other functions. It covers
// exports, the start field, element segments and call, return_call and
// ref.func operands. Indices past the end are left for Encode to report.
// It returns the number of references rewritten.
func (m *Module) NameFuncRefs() int {
	funcs := m.Funcs()
	used := make(map[string]bool)
	for _, f := range m.Fields {
		if id := f.ID(); id != "" {
			used[id] = true
		}
	}

	n := 0
	name := func(ref *sexpr.Node) {
		if ref.Kind != sexpr.Number {
			return
		}
		idx, err := strconv.ParseUint(ref.Value, 10, 32)
		if err != nil || idx >= uint64(len(funcs)) {
			return
		}
		f := funcs[idx]
		id := f.ID()
		if id == "" {
			id = fmt.Sprintf("$func%d", idx)
			for i := 2; used[id]; i++ {
				id = fmt.Sprintf("$func%d_%d", idx, i)
			}
			used[id] = true
			f.SetID(id)
		}
		ref.Kind, ref.Value = sexpr.Atom, id
		n++
	}

	var walk func(nodes []*sexpr.Node)
	walk = func(nodes []*sexpr.Node) {
		for i, c := range nodes {
			if c.Kind == sexpr.List {
				walk(c.Children)
				continue
			}
			if c.Kind == sexpr.Atom && i+1 < len(nodes) {
				switch c.Value {
				case "call", "return_call", "ref.func":
					name(nodes[i+1])
				}
			}
		}
	}

	for _, f := range m.Fields {
		cs := f.node.Children
		switch f.Kind() {
		case "export":
			if len(cs) == 3 && cs[2].Head() == "func" && len(cs[2].Children) == 2 {
				name(cs[2].Children[1])
			}
		case "start":
			if len(cs) == 2 {
				name(cs[1])
			}
		case "elem":
			// Bare indices; offsets and item expressions are lists.
			for _, c := range cs[1:] {
				name(c)
			}
		case "table":
			for _, c := range cs[1:] {
				if c.Head() == "elem" {
					for _, it := range c.Children[1:] {
						name(it)
					}
				}
			}
		}
		walk(cs[1:])
	}
	return n
}

// ExpandTypeUse replaces a function's (type x) reference with the params
// and results of the referenced type so the signature can be edited in
// place. Inline params and results, when present, already spell out the
// signature and are kept as they are.
func (m *Module) ExpandTypeUse(f *Field) error {
	n := f.desc()
	at := -1
	inline := false
	for i, c := range n.Children {
		switch c.Head() {
		case "type":
			at = i
		case "param", "result":
			inline = true
		}
	}
	if at < 0 {
		return nil
	}
	if inline {
		n.Children = append(n.Children[:at:at], n.Children[at+1:]...)
		return nil
	}

	ref := n.Children[at]
	if len(ref.Children) != 2 {
		return fmt.Errorf("line %d: malformed type use", ref.Line)
	}
	def := m.typeDef(ref.Children[1].Value)
	if def == nil {
		return fmt.Errorf("line %d: unknown type %s", ref.Line, ref.Children[1].Value)
	}
	var sig []*sexpr.Node
	for _, c := range def.Children[1:] {
		sig = append(sig, c.Clone())
	}
	children := append([]*sexpr.Node{}, n.Children[:at]...)
	children = append(children, sig...)
	n.Children = append(children, n.Children[at+1:]...)
	return nil
}

// FuncResults returns the result types of a function, looking through a
// (type x) use when the signature is not spelled out inline.
func (m *Module) FuncResults(f *Field) ([]string, error) {
	n := f.desc()
	var ref *sexpr.Node
	for _, c := range n.Children {
		switch c.Head() {
		case "param", "result":
			return f.Results(), nil
		case "type":
			ref = c
		}
	}
	if ref == nil {
		return nil, nil
	}
	if len(ref.Children) != 2 {
		return nil, fmt.Errorf("line %d: malformed type use", ref.Line)
	}
	def := m.typeDef(ref.Children[1].Value)
	if def == nil {
		return nil, fmt.Errorf("line %d: unknown type %s", ref.Line, ref.Children[1].Value)
	}
	var types []string
	for _, c := range def.Children[1:] {
		if c.Head() == "result" {
			for _, t := range c.Children[1:] {
				types = append(types, t.Value)
			}
		}
	}
	return types, nil
}

// typeDef returns the (func ...) node of an explicit type field.
func (m *Module) typeDef(ref string) *sexpr.Node {
	idx, numeric := -1, !strings.HasPrefix(ref, "$")
	if numeric {
		v, err := strconv.Atoi(ref)
		if err != nil {
			return nil
		}
		idx = v
	}
	for _, f := range m.Fields {
		if f.Kind() != "type" {
			continue
		}
		if (numeric && idx == 0) || (!numeric && f.ID() == ref) {
			body := f.node.Children[len(f.node.Children)-1]
			if body.Head() != "func" {
				return nil
			}
			return body
		}
		idx--
	}
	return nil
}
