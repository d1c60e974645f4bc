package opcode

import (
	"testing"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name  string
		code  byte
		imm   ImmKind
		sub   uint32
		align uint32
	}{
		// Control
		{name: "unreachable", code: 0x00},
		{name: "nop", code: 0x01},
		{name: "return", code: 0x0F},
		{name: "br", code: 0x0C, imm: ImmU32},
		{name: "br_if", code: 0x0D, imm: ImmU32},
		{name: "call", code: 0x10, imm: ImmU32},
		{name: "return_call", code: 0x12, imm: ImmU32},

		// Variables
		{name: "local.get", code: 0x20, imm: ImmU32},
		{name: "local.tee", code: 0x22, imm: ImmU32},
		{name: "global.set", code: 0x24, imm: ImmU32},

		// Constants
		{name: "i32.const", code: 0x41, imm: ImmI32},
		{name: "i64.const", code: 0x42, imm: ImmI64},
		{name: "f32.const", code: 0x43, imm: ImmF32},
		{name: "f64.const", code: 0x44, imm: ImmF64},

		// Numeric
		{name: "i32.eqz", code: 0x45},
		{name: "i32.add", code: 0x6A},
		{name: "i64.add", code: 0x7C},
		{name: "f64.copysign", code: 0xA6},
		{name: "i32.wrap_i64", code: 0xA7},
		{name: "f64.reinterpret_i64", code: 0xBF},
		{name: "i64.extend32_s", code: 0xC4},
		{name: "drop", code: 0x1A},

		// Memory
		{name: "memory.size", code: 0x3F, imm: ImmMemIdx},
		{name: "memory.grow", code: 0x40, imm: ImmMemIdx},
		{name: "i32.load", code: 0x28, imm: ImmMemarg, align: 2},
		{name: "i64.load", code: 0x29, imm: ImmMemarg, align: 3},
		{name: "i32.load8_u", code: 0x2D, imm: ImmMemarg, align: 0},
		{name: "i64.load32_s", code: 0x34, imm: ImmMemarg, align: 2},
		{name: "i32.store16", code: 0x3B, imm: ImmMemarg, align: 1},
		{name: "f64.store", code: 0x39, imm: ImmMemarg, align: 3},

		// Prefixed
		{name: "i32.trunc_sat_f32_s", code: 0xFC, imm: ImmPrefixed, sub: 0},
		{name: "i64.trunc_sat_f64_u", code: 0xFC, imm: ImmPrefixed, sub: 7},
		{name: "memory.copy", code: 0xFC, imm: ImmPrefixed, sub: 10},
		{name: "memory.fill", code: 0xFC, imm: ImmPrefixed, sub: 11},
		{name: "table.size", code: 0xFC, imm: ImmPrefixed, sub: 16},

		// Reference
		{name: "ref.is_null", code: 0xD1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, ok := Lookup(tt.name)
			if !ok {
				t.Fatalf("Lookup(%q) not found", tt.name)
			}
			if op.Code != tt.code {
				t.Errorf("code = 0x%02X, want 0x%02X", op.Code, tt.code)
			}
			if op.Imm != tt.imm {
				t.Errorf("imm = %d, want %d", op.Imm, tt.imm)
			}
			if op.Sub != tt.sub {
				t.Errorf("sub = %d, want %d", op.Sub, tt.sub)
			}
			if op.Align != tt.align {
				t.Errorf("align = %d, want %d", op.Align, tt.align)
			}
		})
	}
}

func TestLookupNotFound(t *testing.T) {
	for _, name := range []string{"nonexistent", "block", "if", "br_table", "call_indirect", "select"} {
		if _, ok := Lookup(name); ok {
			t.Errorf("Lookup(%q) should not be found", name)
		}
	}
}

func TestLookup_OpcodesUnique(t *testing.T) {
	seen := make(map[[2]uint32]string)
	for name, op := range ops {
		key := [2]uint32{uint32(op.Code), op.Sub}
		if prev, ok := seen[key]; ok {
			t.Errorf("%s and %s share encoding 0x%02X/%d", name, prev, op.Code, op.Sub)
		}
		seen[key] = name
	}
}
