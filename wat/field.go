package wat

import (
	"github.com/wippyai/componentize-mbt/wat/internal/sexpr"
)

// Field is one top-level module field, for example (func ...) or
// (export ...). Accessors that do not apply to the field's kind return
// zero values.
type Field struct {
	node *sexpr.Node
}

// NewStart builds a (start ref) field.
func NewStart(ref string) *Field {
	target := sexpr.NewAtom(ref)
	if !target.IsID() {
		target = sexpr.NewNumber(ref)
	}
	return &Field{node: sexpr.NewList(sexpr.NewAtom("start"), target)}
}

// Kind returns the field keyword.
func (f *Field) Kind() string { return f.node.Head() }

// String prints the field, with body instructions on separate lines.
func (f *Field) String() string { return f.node.Indent("") }

func (f *Field) Clone() *Field { return &Field{node: f.node.Clone()} }

// desc returns the node that carries the id, inline exports and signature:
// the description of an (import ...) field, otherwise the field itself.
func (f *Field) desc() *sexpr.Node {
	if f.Kind() == "import" && len(f.node.Children) == 4 {
		return f.node.Children[3]
	}
	return f.node
}

func (f *Field) ID() string {
	n := f.desc()
	if len(n.Children) > 1 && n.Children[1].IsID() {
		return n.Children[1].Value
	}
	return ""
}

// SetID names the field, replacing any existing id.
func (f *Field) SetID(id string) {
	n := f.desc()
	atom := sexpr.NewAtom(id)
	if len(n.Children) > 1 && n.Children[1].IsID() {
		n.Children[1] = atom
		return
	}
	n.Children = insert(n.Children, 1, atom)
}

// InlineExports returns the names given by (export "name") abbreviations.
func (f *Field) InlineExports() []string {
	var names []string
	for _, c := range f.desc().Children {
		if c.Head() == "export" && len(c.Children) == 2 {
			names = append(names, c.Children[1].Text())
		}
	}
	return names
}

// SetInlineExports replaces the field's inline exports.
func (f *Field) SetInlineExports(names []string) {
	n := f.desc()
	kept := n.Children[:1:1]
	at := 1
	for i, c := range n.Children[1:] {
		if i == 0 && c.IsID() {
			at = 2
		}
		if c.Head() != "export" {
			kept = append(kept, c)
		}
	}
	exports := make([]*sexpr.Node, len(names))
	for i, name := range names {
		exports[i] = sexpr.NewList(sexpr.NewAtom("export"), sexpr.NewString(name))
	}
	n.Children = insert(kept, at, exports...)
}

// ImportModule returns the module name of an (import ...) field or of an
// inline (import "m" "n") abbreviation.
func (f *Field) ImportModule() string {
	if n := f.importNode(); n != nil {
		return n.Children[1].Text()
	}
	return ""
}

func (f *Field) ImportName() string {
	if n := f.importNode(); n != nil {
		return n.Children[2].Text()
	}
	return ""
}

func (f *Field) importNode() *sexpr.Node {
	if f.Kind() == "import" {
		if len(f.node.Children) >= 3 {
			return f.node
		}
		return nil
	}
	for _, c := range f.node.Children {
		if c.Head() == "import" && len(c.Children) >= 3 {
			return c
		}
	}
	return nil
}

// ExportName returns the name of an (export "name" (kind ref)) field.
func (f *Field) ExportName() string {
	if f.Kind() != "export" || len(f.node.Children) < 2 {
		return ""
	}
	return f.node.Children[1].Text()
}

func (f *Field) SetExportName(name string) {
	if f.Kind() == "export" && len(f.node.Children) >= 2 {
		f.node.Children[1] = sexpr.NewString(name)
	}
}

// ExportTarget returns the kind and reference of an export field, for
// example "func" and "$main".
func (f *Field) ExportTarget() (kind, ref string) {
	if f.Kind() != "export" || len(f.node.Children) != 3 {
		return "", ""
	}
	t := f.node.Children[2]
	if len(t.Children) != 2 {
		return "", ""
	}
	return t.Head(), t.Children[1].Value
}

// Results returns the inline result types of a function.
func (f *Field) Results() []string {
	var types []string
	for _, c := range f.desc().Children {
		if c.Head() == "result" {
			for _, t := range c.Children[1:] {
				types = append(types, t.Value)
			}
		}
	}
	return types
}

// SetResults replaces the inline result types. An empty list removes them.
func (f *Field) SetResults(types []string) {
	n := f.desc()
	kept := n.Children[:1:1]
	for _, c := range n.Children[1:] {
		if c.Head() != "result" {
			kept = append(kept, c)
		}
	}
	n.Children = kept
	if len(types) == 0 {
		return
	}

	// Results follow the id, inline exports, import and params.
	at := 1
	for at < len(n.Children) {
		c := n.Children[at]
		h := c.Head()
		if !c.IsID() && h != "export" && h != "import" && h != "type" && h != "param" {
			break
		}
		at++
	}
	result := sexpr.NewList(sexpr.NewAtom("result"))
	for _, t := range types {
		result.Children = append(result.Children, sexpr.NewAtom(t))
	}
	n.Children = insert(n.Children, at, result)
}

// HasTypeUse reports whether the signature references a (type x).
func (f *Field) HasTypeUse() bool {
	for _, c := range f.desc().Children {
		if c.Head() == "type" {
			return true
		}
	}
	return false
}

// AppendInstr parses text as instructions and appends them to the body.
func (f *Field) AppendInstr(text string) error {
	nodes, err := sexpr.Parse(text)
	if err != nil {
		return err
	}
	f.node.Children = append(f.node.Children, nodes...)
	return nil
}

// Calls returns the targets of direct calls in the field, in order of
// appearance. Folded (call $f ...) and flat call $f forms both count.
func (f *Field) Calls() []string {
	var targets []string
	var walk func(nodes []*sexpr.Node)
	walk = func(nodes []*sexpr.Node) {
		for i, c := range nodes {
			if c.Kind == sexpr.List {
				walk(c.Children)
				continue
			}
			if c.Kind == sexpr.Atom && (c.Value == "call" || c.Value == "return_call") &&
				i+1 < len(nodes) && nodes[i+1].IsIndex() {
				targets = append(targets, nodes[i+1].Value)
			}
		}
	}
	walk(f.node.Children[1:])
	return targets
}

func insert(nodes []*sexpr.Node, at int, add ...*sexpr.Node) []*sexpr.Node {
	out := make([]*sexpr.Node, 0, len(nodes)+len(add))
	out = append(out, nodes[:at]...)
	out = append(out, add...)
	return append(out, nodes[at:]...)
}
