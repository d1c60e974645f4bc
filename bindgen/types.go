package bindgen

import (
	"fmt"
	"strings"

	"go.bytecodealliance.org/wit"
)

// typeName spells a WIT type in MoonBit.
func typeName(t wit.Type) string {
	switch v := t.(type) {
	case nil:
		return "Unit"
	case wit.Bool:
		return "Bool"
	case wit.U8:
		return "Byte"
	case wit.S8, wit.S16, wit.U16, wit.S32:
		return "Int"
	case wit.U32:
		return "UInt"
	case wit.S64:
		return "Int64"
	case wit.U64:
		return "UInt64"
	case wit.F32:
		return "Float"
	case wit.F64:
		return "Double"
	case wit.Char:
		return "Char"
	case wit.String:
		return "String"
	case *wit.TypeDef:
		if v.Name != nil {
			return pascal(*v.Name)
		}
		return kindName(v.Kind)
	}
	return "Unit"
}

func kindName(kind wit.TypeDefKind) string {
	switch k := kind.(type) {
	case *wit.List:
		if _, ok := k.Type.(wit.U8); ok {
			return "Bytes"
		}
		return "Array[" + typeName(k.Type) + "]"
	case *wit.Option:
		return typeName(k.Type) + "?"
	case *wit.Result:
		return "Result[" + typeName(k.OK) + ", " + typeName(k.Err) + "]"
	case *wit.Tuple:
		names := make([]string, len(k.Types))
		for i, t := range k.Types {
			names[i] = typeName(t)
		}
		return "(" + strings.Join(names, ", ") + ")"
	case wit.Type:
		return typeName(k)
	}
	return "Unit"
}

// typeWriter declares the named types reachable from a set of functions,
// dependencies first, each once.
type typeWriter struct {
	out  strings.Builder
	seen map[*wit.TypeDef]bool
}

func (w *typeWriter) function(fn *wit.Function) {
	for _, p := range fn.Params {
		w.visit(p.Type)
	}
	for _, r := range fn.Results {
		w.visit(r.Type)
	}
}

func (w *typeWriter) visit(t wit.Type) {
	td, ok := t.(*wit.TypeDef)
	if !ok {
		return
	}
	if w.seen == nil {
		w.seen = make(map[*wit.TypeDef]bool)
	}
	if w.seen[td] {
		return
	}
	w.seen[td] = true

	switch k := td.Kind.(type) {
	case *wit.Record:
		for _, f := range k.Fields {
			w.visit(f.Type)
		}
	case *wit.Variant:
		for _, c := range k.Cases {
			w.visit(c.Type)
		}
	case *wit.List:
		w.visit(k.Type)
	case *wit.Option:
		w.visit(k.Type)
	case *wit.Result:
		w.visit(k.OK)
		w.visit(k.Err)
	case *wit.Tuple:
		for _, t := range k.Types {
			w.visit(t)
		}
	case wit.Type:
		w.visit(k)
	}
	if td.Name != nil {
		w.declare(pascal(*td.Name), td.Kind)
	}
}

func (w *typeWriter) declare(name string, kind wit.TypeDefKind) {
	b := &w.out
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	switch k := kind.(type) {
	case *wit.Record:
		fmt.Fprintf(b, "pub(all) struct %s {\n", name)
		for _, f := range k.Fields {
			fmt.Fprintf(b, "  %s : %s\n", snake(f.Name), typeName(f.Type))
		}
		b.WriteString("} derive(Show, Eq)\n")
	case *wit.Enum:
		fmt.Fprintf(b, "pub(all) enum %s {\n", name)
		for _, c := range k.Cases {
			fmt.Fprintf(b, "  %s\n", pascal(c.Name))
		}
		b.WriteString("} derive(Show, Eq)\n")
	case *wit.Variant:
		fmt.Fprintf(b, "pub(all) enum %s {\n", name)
		for _, c := range k.Cases {
			if c.Type == nil {
				fmt.Fprintf(b, "  %s\n", pascal(c.Name))
			} else {
				fmt.Fprintf(b, "  %s(%s)\n", pascal(c.Name), typeName(c.Type))
			}
		}
		b.WriteString("} derive(Show, Eq)\n")
	case *wit.Flags:
		bits := "UInt"
		if len(k.Flags) > 32 {
			bits = "UInt64"
		}
		fmt.Fprintf(b, "pub(all) struct %s {\n  bits : %s\n} derive(Show, Eq)\n", name, bits)
		for i, f := range k.Flags {
			fmt.Fprintf(b, "\npub let %s_%s : %s = { bits: 1%s << %d }\n",
				snake(name), snake(f.Name), name, flagSuffix(bits), i)
		}
	default:
		fmt.Fprintf(b, "pub typealias %s = %s\n", name, kindName(kind))
	}
}

func flagSuffix(bits string) string {
	if bits == "UInt64" {
		return "UL"
	}
	return "U"
}
