// Package component wraps core WebAssembly modules into components.
//
// EmbedMetadata appends a custom section describing a WIT world to a core
// module. Encoder reads that section back, checks the module against the
// world and assembles the component around it:
//
//	core, err := component.EmbedMetadata(core, res, w, component.UTF8)
//	bin, err := component.NewEncoder(res).Encode(ctx, core)
//
// Imports whose canonical options need the module's own memory or
// allocator are routed through a table filled after the module is
// instantiated, since those options refer to exports of the module that
// imports them.
//
// Resources are not supported, and neither are named types declared by
// exported interfaces.
package component
