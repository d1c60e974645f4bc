package encoder

import (
	"github.com/wippyai/componentize-mbt/internal/binary"
	"github.com/wippyai/componentize-mbt/wat/internal/ast"
)

// EncodeInstr writes a single instruction and its immediates.
func EncodeInstr(buf *binary.Buffer, ins ast.Instr) {
	buf.AppendByte(ins.Opcode)

	switch ins.Opcode {
	case ast.OpBr, ast.OpBrIf, ast.OpCall, ast.OpReturnCall,
		ast.OpLocalGet, ast.OpLocalSet, ast.OpLocalTee,
		ast.OpGlobalGet, ast.OpGlobalSet,
		ast.OpTableGet, ast.OpTableSet, ast.OpRefFunc:
		buf.WriteU32(ins.Imm.(uint32))

	case ast.OpI32Const:
		buf.WriteI32(ins.Imm.(int32))
	case ast.OpI64Const:
		buf.WriteI64(ins.Imm.(int64))
	case ast.OpF32Const:
		buf.WriteF32(ins.Imm.(float32))
	case ast.OpF64Const:
		buf.WriteF64(ins.Imm.(float64))

	case ast.OpBlock, ast.OpLoop, ast.OpIf:
		bt := ins.Imm.(ast.BlockType)
		if bt.TypeIdx >= 0 {
			buf.WriteI33(int64(bt.TypeIdx))
		} else {
			buf.AppendByte(bt.Simple)
		}

	case ast.OpI32Load, ast.OpI64Load, ast.OpF32Load, ast.OpF64Load,
		ast.OpI32Load8S, ast.OpI32Load8U, ast.OpI32Load16S, ast.OpI32Load16U,
		ast.OpI64Load8S, ast.OpI64Load8U, ast.OpI64Load16S, ast.OpI64Load16U,
		ast.OpI64Load32S, ast.OpI64Load32U,
		ast.OpI32Store, ast.OpI64Store, ast.OpF32Store, ast.OpF64Store,
		ast.OpI32Store8, ast.OpI32Store16,
		ast.OpI64Store8, ast.OpI64Store16, ast.OpI64Store32:
		writeMemarg(buf, ins.Imm.(ast.Memarg))

	case ast.OpMemorySize, ast.OpMemoryGrow:
		mem, _ := ins.Imm.(uint32)
		buf.WriteU32(mem)

	case ast.OpBrTable:
		labels := ins.Imm.([]uint32)
		buf.WriteU32(uint32(len(labels) - 1))
		for _, label := range labels {
			buf.WriteU32(label)
		}

	case ast.OpCallIndirect, ast.OpReturnCallIndirect:
		// type index, then table index
		idx := ins.Imm.([]uint32)
		buf.WriteU32(idx[0])
		buf.WriteU32(idx[1])

	case ast.OpRefNull:
		buf.AppendByte(ins.Imm.(byte))

	case ast.OpSelectTyped:
		types := ins.Imm.([]ast.ValType)
		buf.WriteU32(uint32(len(types)))
		for _, t := range types {
			buf.AppendByte(byte(t))
		}

	case ast.OpPrefixMisc:
		for _, v := range ins.Imm.([]uint32) {
			buf.WriteU32(v)
		}
	}
}

func writeMemarg(buf *binary.Buffer, ma ast.Memarg) {
	if ma.MemIdx > 0 {
		// bit 6 of the alignment field signals an explicit memory index
		buf.WriteU32(ma.Align | 0x40)
		buf.WriteU32(ma.MemIdx)
	} else {
		buf.WriteU32(ma.Align)
	}
	buf.WriteU32(ma.Offset)
}
