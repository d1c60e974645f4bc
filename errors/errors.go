package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseParse     Phase = "parse"     // WAT/WIT text
	PhaseBindgen   Phase = "bindgen"   // symbol harvesting
	PhaseTransform Phase = "transform" // module surgery
	PhaseEncode    Phase = "encode"    // core/component binary
	PhaseValidate  Phase = "validate"  // core module checks
	PhaseProject   Phase = "project"   // MoonBit project discovery and build
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData   Kind = "invalid_data"
	KindInvalidInput  Kind = "invalid_input"
	KindUnsupported   Kind = "unsupported"
	KindNotFound      Kind = "not_found"
	KindTypeMismatch  Kind = "type_mismatch"
	KindMissingImport Kind = "missing_import"
	KindMissingExport Kind = "missing_export"
	KindInternal      Kind = "internal"
	KindConflict      Kind = "conflict"
)

// Error is the structured error type used throughout the adapter
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	WitType string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.WitType != "" {
		b.WriteString(": WIT type ")
		b.WriteString(e.WitType)
	}

	if e.Detail != "" {
		if e.WitType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the item path (world, interface, function, parameter)
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// WitType sets the WIT type name
func (b *Builder) WitType(t string) *Builder {
	b.err.WitType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: "parse " + what,
		Cause:  cause,
	}
}

// Unsupported creates an unsupported feature error
func Unsupported(phase Phase, path []string, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Path:   path,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
		Value:  name,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// TypeMismatch reports a core signature that disagrees with the flattened WIT type
func TypeMismatch(phase Phase, path []string, witType, detail string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindTypeMismatch,
		Path:    path,
		WitType: witType,
		Detail:  detail,
	}
}

// Conflict reports two items that cannot both be present
func Conflict(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindConflict,
		Detail: detail,
	}
}

// Internal reports a broken invariant of the tool itself
func Internal(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingImport reports a core import that has no counterpart in the world
func MissingImport(module, name string) *Error {
	return &Error{
		Phase:  PhaseValidate,
		Kind:   KindMissingImport,
		Path:   []string{module, name},
		Detail: "core module imports a function the world does not provide",
	}
}

// MissingExport represents a single world function with no core export
type MissingExport struct {
	Interface string // e.g., "ns:pkg/api@1.0.0", empty for world-level functions
	Function  string // e.g., "greet"
}

// MissingExportsError is returned when the core module does not export every
// function required by the world
type MissingExportsError struct {
	Exports []MissingExport
}

// NewMissingExportsError creates an error from a list of core export names
// ("iface#func" or plain "func")
func NewMissingExportsError(names []string) *MissingExportsError {
	result := &MissingExportsError{
		Exports: make([]MissingExport, 0, len(names)),
	}
	for _, name := range names {
		iface, fn, found := strings.Cut(name, "#")
		if !found {
			iface, fn = "", name
		}
		result.Exports = append(result.Exports, MissingExport{
			Interface: iface,
			Function:  fn,
		})
	}
	return result
}

func (e *MissingExportsError) Error() string {
	if len(e.Exports) == 0 {
		return "[validate] missing_export: no exports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "missing %d core export(s):\n", len(e.Exports))

	byIface := make(map[string][]string)
	var order []string
	for _, exp := range e.Exports {
		if _, exists := byIface[exp.Interface]; !exists {
			order = append(order, exp.Interface)
		}
		byIface[exp.Interface] = append(byIface[exp.Interface], exp.Function)
	}

	for _, iface := range order {
		b.WriteString("\n  ")
		if iface == "" {
			b.WriteString("(world)")
		} else {
			b.WriteString(iface)
		}
		b.WriteString(":\n")
		for _, fn := range byIface[iface] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingExportsError) Is(target error) bool {
	_, ok := target.(*MissingExportsError)
	return ok
}
