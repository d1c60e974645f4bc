// Package abi computes canonical ABI core signatures for WIT functions.
package abi

import (
	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
)

// Canonical ABI flattening limits
const (
	MaxFlatParams  = 16
	MaxFlatResults = 1
)

// CoreValType is a core wasm value type
type CoreValType = api.ValueType

// Context selects how spilled results are passed.
type Context int

const (
	// Lift is a core export called by the host: spilled results come back
	// as a returned pointer.
	Lift Context = iota
	// Lower is a core import called by the guest: spilled results are
	// written through a trailing pointer parameter.
	Lower
)

// Signature is the core function type of a WIT function.
type Signature struct {
	Params  []CoreValType
	Results []CoreValType
}

// Equal reports whether two signatures have the same types.
func (s Signature) Equal(params, results []CoreValType) bool {
	return sameTypes(s.Params, params) && sameTypes(s.Results, results)
}

func sameTypes(a, b []CoreValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String formats the signature in text format syntax.
func (s Signature) String() string {
	out := "(func"
	if len(s.Params) > 0 {
		out += " (param"
		for _, t := range s.Params {
			out += " " + api.ValueTypeName(t)
		}
		out += ")"
	}
	if len(s.Results) > 0 {
		out += " (result"
		for _, t := range s.Results {
			out += " " + api.ValueTypeName(t)
		}
		out += ")"
	}
	return out + ")"
}

// Flatten computes the core signature of fn, applying the
// MAX_FLAT_PARAMS/RESULTS limits for the given context.
func Flatten(fn *wit.Function, ctx Context) Signature {
	var sig Signature
	for _, p := range fn.Params {
		sig.Params = append(sig.Params, FlattenType(p.Type)...)
	}
	for _, r := range fn.Results {
		sig.Results = append(sig.Results, FlattenType(r.Type)...)
	}

	if len(sig.Params) > MaxFlatParams {
		sig.Params = []CoreValType{api.ValueTypeI32}
	}
	if len(sig.Results) > MaxFlatResults {
		switch ctx {
		case Lift:
			sig.Results = []CoreValType{api.ValueTypeI32}
		case Lower:
			sig.Params = append(sig.Params, api.ValueTypeI32)
			sig.Results = nil
		}
	}
	return sig
}

// Options reports which canonical options a lift or lower of fn needs.
type Options struct {
	Memory  bool
	Realloc bool
	Strings bool
}

// Requirements computes the canonical options of fn in the given context.
// Lifting needs realloc to pass lists and strings into the callee; lowering
// needs it to bring them back as results.
func Requirements(fn *wit.Function, ctx Context) Options {
	var params, result usage
	for _, p := range fn.Params {
		params.visit(p.Type)
	}
	for _, r := range fn.Results {
		result.visit(r.Type)
	}

	var opts Options
	opts.Strings = params.strings || result.strings
	opts.Memory = params.indirect || result.indirect

	var flatParams, flatResults int
	for _, p := range fn.Params {
		flatParams += len(FlattenType(p.Type))
	}
	for _, r := range fn.Results {
		flatResults += len(FlattenType(r.Type))
	}
	spillParams := flatParams > MaxFlatParams
	spillResults := flatResults > MaxFlatResults
	if spillParams || spillResults {
		opts.Memory = true
	}

	switch ctx {
	case Lift:
		opts.Realloc = params.indirect || spillParams
	case Lower:
		opts.Realloc = result.indirect
	}
	return opts
}

type usage struct {
	indirect bool // lists or strings live in linear memory
	strings  bool
}

func (u *usage) visit(t wit.Type) {
	switch v := t.(type) {
	case wit.String:
		u.indirect = true
		u.strings = true
	case *wit.TypeDef:
		u.visitKind(v.Kind)
	}
}

func (u *usage) visitKind(kind wit.TypeDefKind) {
	switch k := kind.(type) {
	case *wit.List:
		u.indirect = true
		u.visit(k.Type)
	case *wit.Record:
		for _, f := range k.Fields {
			u.visit(f.Type)
		}
	case *wit.Tuple:
		for _, t := range k.Types {
			u.visit(t)
		}
	case *wit.Variant:
		for _, c := range k.Cases {
			if c.Type != nil {
				u.visit(c.Type)
			}
		}
	case *wit.Option:
		u.visit(k.Type)
	case *wit.Result:
		if k.OK != nil {
			u.visit(k.OK)
		}
		if k.Err != nil {
			u.visit(k.Err)
		}
	case wit.Type:
		u.visit(k)
	}
}

// FlattenType flattens a WIT type to core wasm types
func FlattenType(t wit.Type) []CoreValType {
	if t == nil {
		return nil
	}

	switch v := t.(type) {
	case wit.Bool, wit.U8, wit.U16, wit.U32, wit.S8, wit.S16, wit.S32, wit.Char:
		return []CoreValType{api.ValueTypeI32}
	case wit.U64, wit.S64:
		return []CoreValType{api.ValueTypeI64}
	case wit.F32:
		return []CoreValType{api.ValueTypeF32}
	case wit.F64:
		return []CoreValType{api.ValueTypeF64}
	case wit.String:
		return []CoreValType{api.ValueTypeI32, api.ValueTypeI32} // ptr, len
	case *wit.TypeDef:
		return flattenTypeDef(v)
	default:
		return []CoreValType{api.ValueTypeI32}
	}
}

func flattenTypeDef(td *wit.TypeDef) []CoreValType {
	if td == nil || td.Kind == nil {
		return []CoreValType{api.ValueTypeI32}
	}

	switch kind := td.Kind.(type) {
	case *wit.Record:
		var flat []CoreValType
		for _, field := range kind.Fields {
			flat = append(flat, FlattenType(field.Type)...)
		}
		return flat
	case *wit.List:
		return []CoreValType{api.ValueTypeI32, api.ValueTypeI32}
	case *wit.Tuple:
		var flat []CoreValType
		for _, elem := range kind.Types {
			flat = append(flat, FlattenType(elem)...)
		}
		return flat
	case *wit.Variant:
		var payloads [][]CoreValType
		for _, c := range kind.Cases {
			if c.Type != nil {
				payloads = append(payloads, FlattenType(c.Type))
			}
		}
		return withDiscriminant(payloads...)
	case *wit.Enum:
		return []CoreValType{api.ValueTypeI32}
	case *wit.Option:
		return withDiscriminant(FlattenType(kind.Type))
	case *wit.Result:
		return withDiscriminant(FlattenType(kind.OK), FlattenType(kind.Err))
	case *wit.Flags:
		if len(kind.Flags) > 32 {
			return []CoreValType{api.ValueTypeI64}
		}
		return []CoreValType{api.ValueTypeI32}
	case *wit.Own, *wit.Borrow:
		return []CoreValType{api.ValueTypeI32} // resource handle
	case wit.Type:
		// type alias
		return FlattenType(kind)
	default:
		return []CoreValType{api.ValueTypeI32}
	}
}

// withDiscriminant joins case payloads slot by slot after an i32 tag.
func withDiscriminant(payloads ...[]CoreValType) []CoreValType {
	var joined []CoreValType
	for _, p := range payloads {
		for i, ft := range p {
			if i < len(joined) {
				joined[i] = joinTypes(joined[i], ft)
			} else {
				joined = append(joined, ft)
			}
		}
	}
	return append([]CoreValType{api.ValueTypeI32}, joined...)
}

// joinTypes unions two core types for variant payloads
func joinTypes(a, b CoreValType) CoreValType {
	if a == b {
		return a
	}
	// 32-bit types can share storage
	if (a == api.ValueTypeI32 && b == api.ValueTypeF32) ||
		(a == api.ValueTypeF32 && b == api.ValueTypeI32) {
		return api.ValueTypeI32
	}
	return api.ValueTypeI64
}
