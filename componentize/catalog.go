package componentize

import (
	"slices"

	"github.com/wippyai/componentize-mbt/errors"
	"github.com/wippyai/componentize-mbt/wat"
)

// Canonical ABI helpers the MoonBit compiler calls but does not define yet.
var shimTemplates = []struct {
	name string
	text string
}{
	{"rael.memory_copy", `(func $rael.memory_copy (param $dest i32) (param $src i32) (param $len i32)
  (memory.copy (local.get $dest) (local.get $src) (local.get $len)))`},
	{"rael.load_i32", `(func $rael.load_i32 (param $ptr i32) (result i32)
  (i32.load (local.get $ptr)))`},
	{"rael.load_i64", `(func $rael.load_i64 (param $ptr i32) (result i64)
  (i64.load (local.get $ptr)))`},
	{"rael.bytes_data", `(func $rael.bytes_data (param $str i32) (result i32)
  (i32.add (local.get $str) (i32.const 4)))`},
	{"moonbit.string_data", `(func $moonbit.string_data (param $str i32) (result i32)
  (i32.add (local.get $str) (i32.const 4)))`},
	{"printc", `(func $printc (param $ptr i32))`},
}

// allocatorTemplate exports the realloc entry point on top of the
// compiler's own allocator. Only the new size is passed on; the old
// pointer and alignment are ignored.
const allocatorTemplate = `(func (export "cabi_realloc") (param i32) (param i32) (param i32) (param $len i32) (result i32)
  (call $rael.malloc (local.get $len)))`

// Shim is a parsed helper function ready to be appended to a module.
type Shim struct {
	Name  string
	Field *wat.Field
}

// Catalog holds the helper functions of one run. A shim leaves the
// pending set the first time it is activated, so each is added at most
// once.
type Catalog struct {
	shims     []*Shim
	pending   map[string]*Shim
	active    []*Shim
	allocator *Shim
}

// NewCatalog parses every template. A parse failure is a defect in the
// templates, never in user input.
func NewCatalog() (*Catalog, error) {
	c := &Catalog{pending: make(map[string]*Shim, len(shimTemplates))}
	for _, tmpl := range shimTemplates {
		f, err := wat.ParseField(tmpl.text)
		if err != nil {
			return nil, errors.Internal(errors.PhaseTransform, "parse shim "+tmpl.name, err)
		}
		s := &Shim{Name: tmpl.name, Field: f}
		c.shims = append(c.shims, s)
		c.pending[tmpl.name] = s
	}
	f, err := wat.ParseField(allocatorTemplate)
	if err != nil {
		return nil, errors.Internal(errors.PhaseTransform, "parse allocator shim", err)
	}
	c.allocator = &Shim{Name: ReallocExport, Field: f}
	return c, nil
}

// Provide records that the module defines name itself. The shim of that
// name is never activated. It reports whether name was a pending shim.
func (c *Catalog) Provide(name string) bool {
	if _, ok := c.pending[name]; !ok {
		return false
	}
	delete(c.pending, name)
	return true
}

// Activate records a direct call to target, a function name without its
// $ sigil. It reports whether the call activated a shim.
func (c *Catalog) Activate(target string) bool {
	if s, ok := c.pending[target]; ok {
		delete(c.pending, target)
		c.active = append(c.active, s)
		return true
	}
	if target == mallocTarget && c.allocator != nil {
		c.active = append(c.active, c.allocator)
		c.allocator = nil
		return true
	}
	return false
}

// Activated returns copies of the activated shims in catalog order with
// the allocator last.
func (c *Catalog) Activated() []*Shim {
	var out []*Shim
	for _, s := range c.shims {
		if slices.Contains(c.active, s) {
			out = append(out, clone(s))
		}
	}
	for _, s := range c.active {
		if s.Name == ReallocExport {
			out = append(out, clone(s))
		}
	}
	return out
}

func clone(s *Shim) *Shim {
	return &Shim{Name: s.Name, Field: s.Field.Clone()}
}
