package encoder

import (
	"github.com/wippyai/componentize-mbt/internal/binary"
	"github.com/wippyai/componentize-mbt/wat/internal/ast"
)

func typeSection(sec *binary.Buffer, m *ast.Module) {
	sec.WriteU32(uint32(len(m.Types)))
	for _, ft := range m.Types {
		sec.AppendByte(ast.FuncTypeMarker)
		writeValTypes(sec, ft.Params)
		writeValTypes(sec, ft.Results)
	}
}

func writeValTypes(sec *binary.Buffer, vts []ast.ValType) {
	sec.WriteU32(uint32(len(vts)))
	for _, vt := range vts {
		sec.AppendByte(byte(vt))
	}
}

func writeGlobalType(sec *binary.Buffer, gt ast.GlobalType) {
	sec.AppendByte(byte(gt.ValType))
	if gt.Mutable {
		sec.AppendByte(0x01)
	} else {
		sec.AppendByte(0x00)
	}
}

func importSection(sec *binary.Buffer, m *ast.Module) {
	sec.WriteU32(uint32(len(m.Imports)))
	for _, imp := range m.Imports {
		sec.WriteString(imp.Module)
		sec.WriteString(imp.Name)
		sec.AppendByte(imp.Desc.Kind)
		switch imp.Desc.Kind {
		case ast.KindFunc:
			sec.WriteU32(imp.Desc.TypeIdx)
		case ast.KindTable:
			tt := imp.Desc.TableTyp
			sec.AppendByte(tt.ElemType)
			sec.WriteLimits(tt.Limits.Min, tt.Limits.Max)
		case ast.KindMemory:
			sec.WriteLimits(imp.Desc.MemLimits.Min, imp.Desc.MemLimits.Max)
		case ast.KindGlobal:
			writeGlobalType(sec, *imp.Desc.GlobalTyp)
		}
	}
}

func funcSection(sec *binary.Buffer, m *ast.Module) {
	sec.WriteU32(uint32(len(m.Funcs)))
	for _, f := range m.Funcs {
		sec.WriteU32(f.TypeIdx)
	}
}

func tableSection(sec *binary.Buffer, m *ast.Module) {
	sec.WriteU32(uint32(len(m.Tables)))
	for _, t := range m.Tables {
		sec.AppendByte(t.ElemType)
		sec.WriteLimits(t.Limits.Min, t.Limits.Max)
	}
}

func memorySection(sec *binary.Buffer, m *ast.Module) {
	sec.WriteU32(uint32(len(m.Memories)))
	for _, mem := range m.Memories {
		sec.WriteLimits(mem.Limits.Min, mem.Limits.Max)
	}
}

func globalSection(sec *binary.Buffer, m *ast.Module) {
	sec.WriteU32(uint32(len(m.Globals)))
	for _, g := range m.Globals {
		writeGlobalType(sec, g.Type)
		writeExpr(sec, g.Init)
	}
}

func exportSection(sec *binary.Buffer, m *ast.Module) {
	sec.WriteU32(uint32(len(m.Exports)))
	for _, e := range m.Exports {
		sec.WriteString(e.Name)
		sec.AppendByte(e.Kind)
		sec.WriteU32(e.Idx)
	}
}

func startSection(sec *binary.Buffer, m *ast.Module) {
	sec.WriteU32(*m.Start)
}

// elemFlags maps an element mode to its segment flag when the payload is a
// vector of function indices. Expression payloads set bit 2.
var elemFlags = map[int]byte{
	ast.ElemModeActive:      ast.ElemFlagActiveFunc,
	ast.ElemModePassive:     ast.ElemFlagPassiveFunc,
	ast.ElemModeActiveTable: ast.ElemFlagActiveTableFunc,
	ast.ElemModeDeclarative: ast.ElemFlagDeclarativeFunc,
}

func elemSection(sec *binary.Buffer, m *ast.Module) {
	sec.WriteU32(uint32(len(m.Elems)))
	for _, e := range m.Elems {
		exprs := len(e.Exprs) > 0
		flag := elemFlags[e.Mode]
		if exprs {
			flag |= ast.ElemFlagActiveExpr
		}
		sec.AppendByte(flag)

		if e.Mode == ast.ElemModeActiveTable {
			sec.WriteU32(e.TableIdx)
		}
		if e.Mode == ast.ElemModeActive || e.Mode == ast.ElemModeActiveTable {
			writeExpr(sec, e.Offset)
		}
		// Flag 0 and 4 imply funcref and carry no kind byte.
		if e.Mode != ast.ElemModeActive {
			switch {
			case !exprs:
				sec.AppendByte(ast.ElemKindFuncref)
			case e.RefType == 0:
				sec.AppendByte(ast.RefTypeFuncref)
			default:
				sec.AppendByte(e.RefType)
			}
		}

		if exprs {
			sec.WriteU32(uint32(len(e.Exprs)))
			for _, expr := range e.Exprs {
				writeExpr(sec, expr)
			}
			continue
		}
		sec.WriteU32(uint32(len(e.Init)))
		for _, idx := range e.Init {
			sec.WriteU32(idx)
		}
	}
}

func writeExpr(sec *binary.Buffer, instrs []ast.Instr) {
	for _, ins := range instrs {
		EncodeInstr(sec, ins)
	}
	sec.AppendByte(ast.OpEnd)
}

func codeSection(sec *binary.Buffer, m *ast.Module) {
	sec.WriteU32(uint32(len(m.Code)))
	for _, c := range m.Code {
		body := &binary.Buffer{}
		writeLocals(body, c.Locals)
		writeExpr(body, c.Code)
		sec.WriteU32(uint32(body.Len()))
		sec.WriteBytes(body.Bytes)
	}
}

// writeLocals run-length encodes consecutive locals of the same type.
func writeLocals(body *binary.Buffer, locals []ast.ValType) {
	groups := &binary.Buffer{}
	n := 0
	for i := 0; i < len(locals); {
		j := i
		for j < len(locals) && locals[j] == locals[i] {
			j++
		}
		groups.WriteU32(uint32(j - i))
		groups.AppendByte(byte(locals[i]))
		n++
		i = j
	}
	body.WriteVec(n, groups)
}

func dataCountSection(sec *binary.Buffer, m *ast.Module) {
	sec.WriteU32(uint32(len(m.Data)))
}

func dataSection(sec *binary.Buffer, m *ast.Module) {
	sec.WriteU32(uint32(len(m.Data)))
	for _, d := range m.Data {
		switch {
		case d.Passive:
			sec.AppendByte(ast.DataFlagPassive)
		case d.MemIdx != 0:
			sec.AppendByte(ast.DataFlagActiveMemIdx)
			sec.WriteU32(d.MemIdx)
			writeExpr(sec, d.Offset)
		default:
			sec.AppendByte(ast.DataFlagActive)
			writeExpr(sec, d.Offset)
		}
		sec.WriteU32(uint32(len(d.Init)))
		sec.WriteBytes(d.Init)
	}
}
