package component

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"github.com/wippyai/componentize-mbt/errors"
	"github.com/wippyai/componentize-mbt/internal/abi"
	"github.com/wippyai/componentize-mbt/wat"
)

// ImportTable is the table through which lowered imports that need the
// main module's memory are called.
const ImportTable = "$imports"

// indirection breaks the cycle between imports that need canonical
// options and the module that exports the memory those options refer to.
// The shim module exports one trampoline per import, each calling through
// a table slot. The main module is instantiated against the trampolines;
// once its memory exists, the imports are lowered and the fixup module
// stores them in the table.
type indirection struct {
	sigs []abi.Signature
}

func (ind *indirection) add(sig abi.Signature) int {
	ind.sigs = append(ind.sigs, sig)
	return len(ind.sigs) - 1
}

func (ind *indirection) empty() bool {
	return len(ind.sigs) == 0
}

func slotName(i int) string {
	return strconv.Itoa(i)
}

func params(sig abi.Signature) string {
	var sb strings.Builder
	for _, t := range sig.Params {
		sb.WriteString(" (param ")
		sb.WriteString(api.ValueTypeName(t))
		sb.WriteString(")")
	}
	for _, t := range sig.Results {
		sb.WriteString(" (result ")
		sb.WriteString(api.ValueTypeName(t))
		sb.WriteString(")")
	}
	return sb.String()
}

// shimText is the trampoline module.
func (ind *indirection) shimText() string {
	var sb strings.Builder
	n := len(ind.sigs)
	fmt.Fprintf(&sb, "(module\n  (table (export %q) %d %d funcref)\n", ImportTable, n, n)
	for i, sig := range ind.sigs {
		sp := params(sig)
		fmt.Fprintf(&sb, "  (func (export %q)%s\n   ", slotName(i), sp)
		for p := range sig.Params {
			fmt.Fprintf(&sb, " local.get %d", p)
		}
		fmt.Fprintf(&sb, " i32.const %d call_indirect%s)\n", i, sp)
	}
	sb.WriteString(")")
	return sb.String()
}

// fixupText is the module that fills the table.
func (ind *indirection) fixupText() string {
	var sb strings.Builder
	n := len(ind.sigs)
	fmt.Fprintf(&sb, "(module\n  (import \"\" %q (table %d %d funcref))\n", ImportTable, n, n)
	for i, sig := range ind.sigs {
		fmt.Fprintf(&sb, "  (import \"\" %q (func%s))\n", slotName(i), params(sig))
	}
	sb.WriteString("  (elem (i32.const 0) func")
	for i := range ind.sigs {
		fmt.Fprintf(&sb, " %d", i)
	}
	sb.WriteString("))")
	return sb.String()
}

func (ind *indirection) modules() (shim, fixup []byte, err error) {
	if shim, err = wat.Compile(ind.shimText()); err != nil {
		return nil, nil, errors.Internal(errors.PhaseEncode, "compile shim module", err)
	}
	if fixup, err = wat.Compile(ind.fixupText()); err != nil {
		return nil, nil, errors.Internal(errors.PhaseEncode, "compile fixup module", err)
	}
	return shim, fixup, nil
}
