// Package errors provides structured error types for componentize-mbt.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the item path (world, interface, function), the WIT type
// involved and an optional cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
//		Path("greet", "result").
//		WitType("string").
//		Detail("core export returns i64, want i32").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhaseTransform, "export", "_start")
//	err := errors.Unsupported(errors.PhaseEncode, path, "resource types")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
