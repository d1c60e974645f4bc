// Package wat parses and edits WebAssembly text modules and compiles them
// to the binary format.
//
// Parse keeps a module as an ordered list of fields whose $id references
// are left unresolved. Fields can be dropped, rewritten or appended and
// names are only bound to indices when the module is encoded:
//
//	m, err := wat.Parse(src)
//	for _, f := range m.Fields {
//		if f.Kind() == "func" && len(f.Calls()) > 0 {
//			...
//		}
//	}
//	bin, err := m.Encode()
//
// Compile is the one-step form for tests and fixtures:
//
//	wasm, err := wat.Compile(`(module
//		(func (export "add") (param i32 i32) (result i32)
//			(i32.add (local.get 0) (local.get 1)))
//	)`)
//
// Supported WASM 2.0 features:
//   - Functions with params, results, locals (named and indexed)
//   - Multi-value returns and block parameters
//   - Memory, global, table declarations with imports/exports
//   - Control flow: if/then/else, loop, block, br, br_if, br_table, return
//   - call, call_indirect with type references
//   - Integer and float arithmetic, comparisons and conversions
//   - Memory: load/store for all types with offset/align
//   - Bulk memory: memory.copy, memory.fill, memory.init, data.drop
//   - Table ops: table.get/set/grow/size/fill/copy/init, elem.drop
//   - Reference types: funcref, externref, ref.null, ref.func, ref.is_null
//   - Saturating truncations and sign extension
//   - Data and elem sections (active, passive, declarative)
//   - Custom sections via (@custom "name" "bytes")
//
// Not supported: SIMD (v128), threads/atomics, exception handling, GC types.
package wat
