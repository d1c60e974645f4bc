// Package encoder writes an ast.Module in the core WebAssembly binary format.
package encoder

import (
	"github.com/wippyai/componentize-mbt/internal/binary"
	"github.com/wippyai/componentize-mbt/wat/internal/ast"
)

var header = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

// Encode returns the binary form of m. Sections that would be empty are
// omitted and custom sections follow the data section.
func Encode(m *ast.Module) []byte {
	buf := &binary.Buffer{}
	buf.WriteBytes(header)

	sections := []struct {
		write func(*binary.Buffer, *ast.Module)
		id    byte
		emit  bool
	}{
		{typeSection, ast.SectionType, len(m.Types) > 0},
		{importSection, ast.SectionImport, len(m.Imports) > 0},
		{funcSection, ast.SectionFunc, len(m.Funcs) > 0},
		{tableSection, ast.SectionTable, len(m.Tables) > 0},
		{memorySection, ast.SectionMemory, len(m.Memories) > 0},
		{globalSection, ast.SectionGlobal, len(m.Globals) > 0},
		{exportSection, ast.SectionExport, len(m.Exports) > 0},
		{startSection, ast.SectionStart, m.Start != nil},
		{elemSection, ast.SectionElem, len(m.Elems) > 0},
		// data.drop and memory.init need the count before code is validated
		{dataCountSection, ast.SectionDataCount, needsDataCount(m)},
		{codeSection, ast.SectionCode, len(m.Code) > 0},
		{dataSection, ast.SectionData, len(m.Data) > 0},
	}
	for _, s := range sections {
		if !s.emit {
			continue
		}
		sec := &binary.Buffer{}
		s.write(sec, m)
		buf.WriteSection(s.id, sec)
	}

	for _, c := range m.Customs {
		sec := &binary.Buffer{}
		sec.WriteString(c.Name)
		sec.WriteBytes(c.Data)
		buf.WriteSection(ast.SectionCustom, sec)
	}
	return buf.Bytes
}

func needsDataCount(m *ast.Module) bool {
	if len(m.Code) == 0 {
		return false
	}
	for _, d := range m.Data {
		if d.Passive {
			return true
		}
	}
	return false
}
