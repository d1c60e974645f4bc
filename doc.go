// Package componentizembt turns MoonBit compiler output into WebAssembly
// components that implement a WIT world.
//
// The MoonBit compiler emits a core module in text form. That module uses
// compiler-specific names, imports a test harness and leaves a few
// canonical ABI helpers undefined. The adapter rewrites it, embeds the
// world and wraps the result in a component.
//
// # Architecture Overview
//
//	componentizembt/
//	├── componentize/        Adapter pipeline: augment, resolve, transform, package
//	├── component/           World metadata and component binary encoder
//	├── bindgen/             MoonBit bindings and export symbol naming
//	├── world/               WIT loading, world selection and item naming
//	├── wat/                 Text module parser, field editor and compiler
//	├── project/             MoonBit project discovery and moon build driver
//	├── errors/              Structured error types
//	├── internal/abi/        Canonical ABI flattening
//	├── internal/binary/     LEB128 buffer shared by the encoders
//	└── cmd/componentize-mbt Command line tool
//
// # Quick Start
//
// Adapt a module built with moon build --output-wat:
//
//	res, err := world.Load("wit")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	w, err := world.Select(res, "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	bin, err := componentize.Componentize(ctx, watText, res, w)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("app.wasm", bin, 0o644)
//
// Generate the bindings the MoonBit package compiles against:
//
//	var files bindgen.Files
//	err := bindgen.New().Generate(res, w, &files)
//	written, err := files.WriteTo("src")
//
// # Supported Types
//
//   - Primitives: bool, u8-u64, s8-s64, f32, f64, char, string
//   - Compound: list<T>, option<T>, result<T, E>, tuple<...>
//   - Named: record, variant, enum, flags
//
// Resources, named types defined by exported interfaces and functions with
// more than one named result are rejected with an unsupported error.
//
// # Thread Safety
//
// Runs share no state. Distinct worlds may be adapted concurrently; a
// world is mutated by Augment and must not be shared between concurrent
// runs.
package componentizembt
