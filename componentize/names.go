package componentize

import "github.com/wippyai/componentize-mbt/component"

// Names fixed by the MoonBit compiler output and by the component model.
const (
	// InitExport is the zero-argument initializer every world exports.
	InitExport = "mbt-init"
	// MemoryExport is the memory name canonical options refer to.
	MemoryExport = component.MemoryExport
	// ReallocExport is the allocator canonical options refer to.
	ReallocExport = component.ReallocExport

	moonbitMemory = "moonbit.memory"
	startExport   = "_start"
	testHarness   = "spectest"
	mallocTarget  = "rael.malloc"
	qualifierSep  = "::"
)
