// Package ast is the resolved form of a core module: every reference is a
// numeric index and the module is ready for binary encoding.
//
// Instruction sequences (function bodies, offsets, initializers) omit the
// terminating end; the encoder writes it.
package ast

type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []FuncEntry
	Tables   []Table
	Memories []Memory
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Elems    []Elem
	Code     []FuncBody
	Data     []DataSegment
	Customs  []Custom
}

// Custom is a custom section emitted after all known sections.
type Custom struct {
	Name string
	Data []byte
}

type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (ft FuncType) Equal(other FuncType) bool {
	if len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i, p := range ft.Params {
		if p != other.Params[i] {
			return false
		}
	}
	for i, r := range ft.Results {
		if r != other.Results[i] {
			return false
		}
	}
	return true
}

type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

type ImportDesc struct {
	Type      *FuncType
	GlobalTyp *GlobalType
	MemLimits *Limits
	TableTyp  *Table
	TypeIdx   uint32
	Kind      byte
}

// TypeIndex returns the index of an equal type, appending ft if none exists.
func (m *Module) TypeIndex(ft FuncType) uint32 {
	for i, t := range m.Types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// FuncType returns the signature of function idx, counting imported
// functions first.
func (m *Module) FuncType(idx uint32) (FuncType, bool) {
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindFunc {
			continue
		}
		if idx == 0 {
			return m.Types[imp.Desc.TypeIdx], true
		}
		idx--
	}
	if int(idx) >= len(m.Funcs) {
		return FuncType{}, false
	}
	return m.Types[m.Funcs[idx].TypeIdx], true
}

type FuncEntry struct {
	TypeIdx uint32
}

type Table struct {
	Limits   Limits
	ElemType byte
}

type Memory struct {
	Limits Limits
}

type Limits struct {
	Max *uint32
	Min uint32
}

type Global struct {
	Init []Instr
	Type GlobalType
}

type GlobalType struct {
	ValType ValType
	Mutable bool
}

type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

type Elem struct {
	Offset   []Instr
	Init     []uint32
	Exprs    [][]Instr
	Mode     int
	TableIdx uint32
	RefType  byte
}

type FuncBody struct {
	Locals []ValType
	Code   []Instr
}

type DataSegment struct {
	Offset  []Instr
	Init    []byte
	MemIdx  uint32
	Passive bool
}

// Instr is one instruction. Imm holds uint32 for index immediates, the
// matching Go type for constants, Memarg, BlockType, []uint32 for br_table
// and call_indirect, and []uint32{sub, args...} for 0xFC-prefixed ops.
type Instr struct {
	Imm    interface{}
	Opcode byte
}

type Memarg struct {
	Align  uint32
	Offset uint32
	MemIdx uint32 // Memory index for multi-memory
}

// BlockType is either a single-byte type (empty or one value type) or,
// when TypeIdx is non-negative, a reference into the type section.
type BlockType struct {
	TypeIdx int32
	Simple  byte
}
