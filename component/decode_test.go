package component

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/wippyai/componentize-mbt/internal/binary"
)

// item is one entry of a decoded index space.
type item struct {
	kind   string // import, alias, lift, lower, instance or export
	name   string // import, export or aliased export name
	inst   uint32 // aliased instance
	sort   byte   // export sort
	target uint32 // lifted core function, lowered function or exported index
	opts   []CanonOption
	items  []CoreInstanceExport // bundled instance exports
}

type coreInstance struct {
	instantiate bool
	module      uint32
	args        []CoreInstanceArg
	exports     []CoreInstanceExport // for instances built from exports
}

// decoded holds the index spaces of a component as its sections build
// them. Types are skipped.
type decoded struct {
	modules       int
	funcs         []item
	instances     []item
	coreFuncs     []item
	coreMemories  []item
	coreTables    []item
	coreInstances []coreInstance
	exports       []item
}

type reader struct {
	t    *testing.T
	data []byte
	pos  int
}

func (r *reader) u8() byte {
	r.t.Helper()
	if r.pos >= len(r.data) {
		r.t.Fatalf("unexpected end of section at offset %d", r.pos)
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

func (r *reader) expect(want byte) {
	r.t.Helper()
	if got := r.u8(); got != want {
		r.t.Fatalf("offset %d: got 0x%02x, want 0x%02x", r.pos-1, got, want)
	}
}

func (r *reader) u32() uint32 {
	r.t.Helper()
	v, n := binary.ReadU32(r.data[r.pos:])
	if n == 0 {
		r.t.Fatalf("bad LEB128 at offset %d", r.pos)
	}
	r.pos += n
	return v
}

func (r *reader) string() string {
	r.t.Helper()
	n := int(r.u32())
	if r.pos+n > len(r.data) {
		r.t.Fatalf("string of %d bytes overruns section at offset %d", n, r.pos)
	}
	s := string(r.data[r.pos : r.pos+n])
	r.pos += n
	return s
}

// name reads a plain importname' or exportname'.
func (r *reader) name() string {
	r.t.Helper()
	r.expect(0x00)
	return r.string()
}

func (r *reader) canonOptions() []CanonOption {
	r.t.Helper()
	opts := make([]CanonOption, r.u32())
	for i := range opts {
		opts[i].Kind = r.u8()
		switch opts[i].Kind {
		case CanonOptMemory, CanonOptRealloc, CanonOptPostReturn:
			opts[i].Index = r.u32()
		}
	}
	return opts
}

func decodeComponent(t *testing.T, bin []byte) *decoded {
	t.Helper()
	d := &decoded{}
	for _, sec := range compSections(t, bin) {
		switch sec.id {
		case SectionCoreModule:
			d.modules++
			continue
		case SectionCustom, SectionType:
			continue
		}
		r := &reader{t: t, data: sec.body}
		for n := r.u32(); n > 0; n-- {
			d.read(sec.id, r)
		}
		if r.pos != len(r.data) {
			t.Fatalf("section 0x%02x: %d trailing bytes", sec.id, len(r.data)-r.pos)
		}
	}
	return d
}

type compSection struct {
	id   byte
	body []byte
}

func compSections(t *testing.T, bin []byte) []compSection {
	t.Helper()
	sectionIDs(t, bin)
	var out []compSection
	pos := len(componentHeader)
	for pos < len(bin) {
		size, n := binary.ReadU32(bin[pos+1:])
		start := pos + 1 + n
		out = append(out, compSection{id: bin[pos], body: bin[start : start+int(size)]})
		pos = start + int(size)
	}
	return out
}

func (d *decoded) read(id byte, r *reader) {
	switch id {
	case SectionImport:
		it := item{kind: "import", name: r.name()}
		switch kind := r.u8(); kind {
		case externType:
			r.expect(0x00)
			r.u32()
		case externInstance:
			it.target = r.u32()
			d.instances = append(d.instances, it)
		case externFunc:
			it.target = r.u32()
			d.funcs = append(d.funcs, it)
		default:
			r.t.Fatalf("unexpected import kind 0x%02x", kind)
		}

	case SectionCoreInstance:
		var inst coreInstance
		switch tag := r.u8(); CoreInstanceKind(tag) {
		case CoreInstanceInstantiate:
			inst.instantiate = true
			inst.module = r.u32()
			for n := r.u32(); n > 0; n-- {
				arg := CoreInstanceArg{Name: r.string()}
				r.expect(CoreSortInstance)
				arg.Instance = r.u32()
				inst.args = append(inst.args, arg)
			}
		case CoreInstanceFromExports:
			for n := r.u32(); n > 0; n-- {
				inst.exports = append(inst.exports, CoreInstanceExport{Name: r.string(), Sort: r.u8(), Index: r.u32()})
			}
		default:
			r.t.Fatalf("unexpected core instance tag 0x%02x", tag)
		}
		d.coreInstances = append(d.coreInstances, inst)

	case SectionAlias:
		sort := r.u8()
		if sort == SortCore {
			coreSort := r.u8()
			r.expect(aliasCoreExport)
			it := item{kind: "alias", inst: r.u32(), name: r.string()}
			switch coreSort {
			case CoreSortFunc:
				d.coreFuncs = append(d.coreFuncs, it)
			case CoreSortMemory:
				d.coreMemories = append(d.coreMemories, it)
			case CoreSortTable:
				d.coreTables = append(d.coreTables, it)
			default:
				r.t.Fatalf("unexpected core alias sort 0x%02x", coreSort)
			}
			return
		}
		switch target := r.u8(); target {
		case aliasExport:
			it := item{kind: "alias", inst: r.u32(), name: r.string()}
			switch sort {
			case SortFunc:
				d.funcs = append(d.funcs, it)
			case SortInstance:
				d.instances = append(d.instances, it)
			}
		case aliasOuter:
			r.u32()
			r.u32()
		default:
			r.t.Fatalf("unexpected alias target 0x%02x", target)
		}

	case SectionCanon:
		kind := r.u8()
		r.expect(0x00)
		switch kind {
		case CanonLift:
			it := item{kind: "lift", target: r.u32(), opts: r.canonOptions()}
			r.u32() // type
			d.funcs = append(d.funcs, it)
		case CanonLower:
			d.coreFuncs = append(d.coreFuncs, item{kind: "lower", target: r.u32(), opts: r.canonOptions()})
		default:
			r.t.Fatalf("unexpected canon kind 0x%02x", kind)
		}

	case SectionInstance:
		r.expect(0x01)
		it := item{kind: "instance"}
		for n := r.u32(); n > 0; n-- {
			it.items = append(it.items, CoreInstanceExport{Name: r.name(), Sort: r.u8(), Index: r.u32()})
		}
		d.instances = append(d.instances, it)

	case SectionExport:
		it := item{kind: "export", name: r.name(), sort: r.u8(), target: r.u32()}
		r.expect(0x00)
		d.exports = append(d.exports, it)
		switch it.sort {
		case SortFunc:
			d.funcs = append(d.funcs, it)
		case SortInstance:
			d.instances = append(d.instances, it)
		}

	default:
		r.t.Fatalf("unexpected section 0x%02x", id)
	}
}

func (d *decoded) export(t *testing.T, name string) item {
	t.Helper()
	for _, e := range d.exports {
		if e.name == name {
			return e
		}
	}
	t.Fatalf("no export %q", name)
	return item{}
}

// lift returns the lifted function a component function index names.
func (d *decoded) lift(t *testing.T, idx uint32) item {
	t.Helper()
	if int(idx) >= len(d.funcs) || d.funcs[idx].kind != "lift" {
		t.Fatalf("func %d is not a lifted function", idx)
	}
	return d.funcs[idx]
}

// coreAlias returns the export name a core function index aliases.
func (d *decoded) coreAlias(t *testing.T, idx uint32) string {
	t.Helper()
	if int(idx) >= len(d.coreFuncs) || d.coreFuncs[idx].kind != "alias" {
		t.Fatalf("core func %d is not an alias", idx)
	}
	return d.coreFuncs[idx].name
}

func optionKinds(opts []CanonOption) []byte {
	kinds := make([]byte, len(opts))
	for i, o := range opts {
		kinds[i] = o.Kind
	}
	return kinds
}

func TestEncodeIndexSpaces(t *testing.T) {
	res, w := testWorld()
	core := compile(t, coreImports, coreExports)
	out, err := NewEncoder(res).Encode(context.Background(), embed(t, core, res, w))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	d := decodeComponent(t, out)

	var exports []string
	for _, e := range d.exports {
		exports = append(exports, fmt.Sprintf("%s/%d", e.name, e.sort))
	}
	if got, want := strings.Join(exports, " "), "greet/1 ns:pkg/api/5 mbt-init/1"; got != want {
		t.Errorf("exports = %q, want %q", got, want)
	}

	// Exports take a slot in the space of their sort.
	wantFuncs := []string{"import", "alias", "lift", "export", "lift", "lift", "export"}
	var funcs []string
	for _, f := range d.funcs {
		funcs = append(funcs, f.kind)
	}
	if !reflect.DeepEqual(funcs, wantFuncs) {
		t.Errorf("func index space = %v, want %v", funcs, wantFuncs)
	}
	if d.modules != 3 {
		t.Errorf("core modules = %d, want 3", d.modules)
	}

	t.Run("greet", func(t *testing.T) {
		greet := d.lift(t, d.export(t, "greet").target)
		if name := d.coreAlias(t, greet.target); name != "greet" {
			t.Errorf("lifted core func = %q, want greet", name)
		}
		want := []byte{CanonOptUTF8, CanonOptMemory, CanonOptRealloc, CanonOptPostReturn}
		if got := optionKinds(greet.opts); !reflect.DeepEqual(got, want) {
			t.Fatalf("options = % x, want % x", got, want)
		}
		if mem := d.coreMemories[greet.opts[1].Index]; mem.name != MemoryExport {
			t.Errorf("memory option aliases %q", mem.name)
		}
		if name := d.coreAlias(t, greet.opts[2].Index); name != ReallocExport {
			t.Errorf("realloc option aliases %q", name)
		}
		if name := d.coreAlias(t, greet.opts[3].Index); name != PostReturnPrefix+"greet" {
			t.Errorf("post-return option aliases %q", name)
		}
	})

	t.Run("interface", func(t *testing.T) {
		e := d.export(t, "ns:pkg/api")
		inst := d.instances[e.target]
		if inst.kind != "instance" || len(inst.items) != 1 {
			t.Fatalf("exported instance = %+v", inst)
		}
		add := inst.items[0]
		if add.Name != "add" || add.Sort != SortFunc {
			t.Fatalf("instance item = %+v", add)
		}
		lifted := d.lift(t, add.Index)
		if name := d.coreAlias(t, lifted.target); name != "ns:pkg/api#add" {
			t.Errorf("lifted core func = %q", name)
		}
		if len(lifted.opts) != 0 {
			t.Errorf("scalar function has options % x", optionKinds(lifted.opts))
		}
	})

	t.Run("mbt-init", func(t *testing.T) {
		lifted := d.lift(t, d.export(t, "mbt-init").target)
		if name := d.coreAlias(t, lifted.target); name != "mbt-init" {
			t.Errorf("lifted core func = %q", name)
		}
	})

	t.Run("imports", func(t *testing.T) {
		var mainInst *coreInstance
		for i, inst := range d.coreInstances {
			if inst.instantiate && inst.module == 0 {
				mainInst = &d.coreInstances[i]
			}
		}
		if mainInst == nil {
			t.Fatal("main module is never instantiated")
		}
		args := make(map[string][]CoreInstanceExport)
		for _, a := range mainInst.args {
			args[a.Name] = d.coreInstances[a.Instance].exports
		}

		// now has no options and is lowered directly.
		root := args["$root"]
		if len(root) != 1 || root[0].Name != "now" {
			t.Fatalf("$root argument = %+v", root)
		}
		now := d.coreFuncs[root[0].Index]
		if now.kind != "lower" || len(now.opts) != 0 || d.funcs[now.target].name != "now" {
			t.Errorf("now = %+v, want a plain lower of the now import", now)
		}

		// log needs the memory, so the main module gets a trampoline.
		host := args["ns:pkg/host"]
		if len(host) != 1 || host[0].Name != "log" {
			t.Fatalf("ns:pkg/host argument = %+v", host)
		}
		if name := d.coreAlias(t, host[0].Index); name != slotName(0) {
			t.Errorf("log passed as %q, want trampoline %q", name, slotName(0))
		}

		var lowered []item
		for _, f := range d.coreFuncs {
			if f.kind == "lower" && f.target != now.target {
				lowered = append(lowered, f)
			}
		}
		if len(lowered) != 1 {
			t.Fatalf("indirect lowers = %d, want 1", len(lowered))
		}
		log := d.funcs[lowered[0].target]
		if log.kind != "alias" || log.name != "log" || d.instances[log.inst].name != "ns:pkg/host" {
			t.Errorf("lowered func = %+v, want log of ns:pkg/host", log)
		}
		if got, want := optionKinds(lowered[0].opts), []byte{CanonOptUTF8, CanonOptMemory}; !reflect.DeepEqual(got, want) {
			t.Errorf("log options = % x, want % x", got, want)
		}
	})
}
