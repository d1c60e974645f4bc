package component

import (
	"fmt"

	"github.com/wippyai/componentize-mbt/errors"
	"github.com/wippyai/componentize-mbt/internal/binary"
	"github.com/wippyai/componentize-mbt/world"
	"go.bytecodealliance.org/wit"
)

// Value type codes
const (
	valBool   byte = 0x7f
	valS8     byte = 0x7e
	valU8     byte = 0x7d
	valS16    byte = 0x7c
	valU16    byte = 0x7b
	valS32    byte = 0x7a
	valU32    byte = 0x79
	valS64    byte = 0x78
	valU64    byte = 0x77
	valF32    byte = 0x76
	valF64    byte = 0x75
	valChar   byte = 0x74
	valString byte = 0x73

	defRecord  byte = 0x72
	defVariant byte = 0x71
	defList    byte = 0x70
	defTuple   byte = 0x6f
	defFlags   byte = 0x6e
	defEnum    byte = 0x6d
	defOption  byte = 0x6b
	defResult  byte = 0x6a
)

// valType is a primitive code or an index into the type space.
type valType struct {
	prim byte
	idx  uint32
}

func (v valType) encode(buf *binary.Buffer) {
	if v.prim != 0 {
		buf.AppendByte(v.prim)
		return
	}
	buf.WriteI33(int64(v.idx))
}

func encodeOptional(buf *binary.Buffer, v *valType) {
	if v == nil {
		buf.AppendByte(0x00)
		return
	}
	buf.AppendByte(0x01)
	v.encode(buf)
}

type scopeKind int

const (
	scopeComponent scopeKind = iota
	scopeComponentType
	scopeInstanceType
)

// scope is a type index space under construction: the component itself,
// or the declarations of a component or instance type. Types are defined
// on first use, so an item that references a type always follows it.
type scope struct {
	kind   scopeKind
	parent *scope
	owner  *wit.Interface // interface an instance type describes
	b      *builder       // component scope only

	decls     binary.Buffer
	n         int
	types     uint32
	instances uint32

	ifaces map[*wit.Interface]uint32 // imported interface instances
	defs   map[*wit.TypeDef]uint32
}

func newScope(kind scopeKind, parent *scope, owner *wit.Interface) *scope {
	return &scope{
		kind:   kind,
		parent: parent,
		owner:  owner,
		ifaces: make(map[*wit.Interface]uint32),
		defs:   make(map[*wit.TypeDef]uint32),
	}
}

func componentScope(b *builder) *scope {
	s := newScope(scopeComponent, nil, nil)
	s.b = b
	return s
}

func (s *scope) decl(tag byte) *binary.Buffer {
	s.decls.AppendByte(tag)
	s.n++
	return &s.decls
}

func (s *scope) typeItem() *binary.Buffer {
	if s.kind == scopeComponent {
		return s.b.item(SectionType)
	}
	return s.decl(declType)
}

func (s *scope) aliasItem() *binary.Buffer {
	if s.kind == scopeComponent {
		return s.b.item(SectionAlias)
	}
	return s.decl(declAlias)
}

func (s *scope) instanceSpace() *uint32 {
	if s.kind == scopeComponent {
		return &s.b.instances
	}
	return &s.instances
}

// extern records the index an import or export adds to its space.
func (s *scope) extern(buf *binary.Buffer, kind byte, idx uint32) uint32 {
	buf.AppendByte(kind)
	switch kind {
	case externType:
		buf.AppendByte(0x00) // eq bound
		buf.WriteU32(idx)
		return next(&s.types)
	case externInstance:
		buf.WriteU32(idx)
		return next(s.instanceSpace())
	case externFunc:
		buf.WriteU32(idx)
		if s.kind == scopeComponent {
			return next(&s.b.funcs)
		}
	default:
		buf.WriteU32(idx)
	}
	return 0
}

// importExtern imports name with the given type. Instance types cannot
// import.
func (s *scope) importExtern(name string, kind byte, idx uint32) uint32 {
	var buf *binary.Buffer
	if s.kind == scopeComponent {
		buf = s.b.item(SectionImport)
	} else {
		buf = s.decl(declImport)
	}
	writeName(buf, name)
	return s.extern(buf, kind, idx)
}

// exportExtern declares an export of a component or instance type.
func (s *scope) exportExtern(name string, kind byte, idx uint32) uint32 {
	buf := s.decl(declExport)
	writeName(buf, name)
	return s.extern(buf, kind, idx)
}

func (s *scope) defineType(enc func(*binary.Buffer)) uint32 {
	enc(s.typeItem())
	return next(&s.types)
}

func (s *scope) aliasOuterType(idx uint32) uint32 {
	buf := s.aliasItem()
	buf.AppendByte(SortType)
	buf.AppendByte(aliasOuter)
	buf.WriteU32(1)
	buf.WriteU32(idx)
	return next(&s.types)
}

func (s *scope) aliasExportType(inst uint32, name string) uint32 {
	buf := s.aliasItem()
	buf.AppendByte(SortType)
	buf.AppendByte(aliasExport)
	buf.WriteU32(inst)
	buf.WriteString(name)
	return next(&s.types)
}

func (s *scope) val(t wit.Type) (valType, error) {
	switch v := t.(type) {
	case wit.Bool:
		return valType{prim: valBool}, nil
	case wit.S8:
		return valType{prim: valS8}, nil
	case wit.U8:
		return valType{prim: valU8}, nil
	case wit.S16:
		return valType{prim: valS16}, nil
	case wit.U16:
		return valType{prim: valU16}, nil
	case wit.S32:
		return valType{prim: valS32}, nil
	case wit.U32:
		return valType{prim: valU32}, nil
	case wit.S64:
		return valType{prim: valS64}, nil
	case wit.U64:
		return valType{prim: valU64}, nil
	case wit.F32:
		return valType{prim: valF32}, nil
	case wit.F64:
		return valType{prim: valF64}, nil
	case wit.Char:
		return valType{prim: valChar}, nil
	case wit.String:
		return valType{prim: valString}, nil
	case *wit.TypeDef:
		idx, err := s.typeDef(v)
		return valType{idx: idx}, err
	}
	return valType{}, errors.New(errors.PhaseEncode, errors.KindUnsupported).
		WitType(fmt.Sprintf("%T", t)).
		Build()
}

func (s *scope) optional(t wit.Type) (*valType, error) {
	if t == nil {
		return nil, nil
	}
	v, err := s.val(t)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// typeDef returns the index of td in this scope, defining or aliasing it
// the first time.
func (s *scope) typeDef(td *wit.TypeDef) (uint32, error) {
	if idx, ok := s.defs[td]; ok {
		return idx, nil
	}
	idx, err := s.resolve(td)
	if err != nil {
		return 0, err
	}
	s.defs[td] = idx
	return idx, nil
}

func (s *scope) resolve(td *wit.TypeDef) (uint32, error) {
	if td.Name == nil {
		return s.define(td)
	}
	name := *td.Name

	if s.kind == scopeInstanceType {
		if owner, ok := td.Owner.(*wit.Interface); ok && owner == s.owner {
			idx, err := s.define(td)
			if err != nil {
				return 0, err
			}
			return s.exportExtern(name, externType, idx), nil
		}
		pidx, err := s.parent.typeDef(td)
		if err != nil {
			return 0, err
		}
		return s.aliasOuterType(pidx), nil
	}

	if owner, ok := td.Owner.(*wit.Interface); ok {
		inst, ok := s.ifaces[owner]
		if !ok {
			return 0, errors.Unsupported(errors.PhaseEncode,
				[]string{world.InterfaceName("", owner), name},
				"named type of an interface the world does not import")
		}
		return s.aliasExportType(inst, name), nil
	}
	// World types are imported before use; anything else is defined in place.
	return s.define(td)
}

// define writes the structure of td and returns its index. An alias of a
// non-primitive type returns the aliased index itself.
func (s *scope) define(td *wit.TypeDef) (uint32, error) {
	path := []string{typeDefName(td)}

	switch k := td.Kind.(type) {
	case *wit.Record:
		fields := make([]valType, len(k.Fields))
		for i, f := range k.Fields {
			v, err := s.val(f.Type)
			if err != nil {
				return 0, err
			}
			fields[i] = v
		}
		return s.defineType(func(buf *binary.Buffer) {
			buf.AppendByte(defRecord)
			buf.WriteU32(uint32(len(fields)))
			for i, f := range k.Fields {
				buf.WriteString(f.Name)
				fields[i].encode(buf)
			}
		}), nil

	case *wit.Variant:
		cases := make([]*valType, len(k.Cases))
		for i, c := range k.Cases {
			v, err := s.optional(c.Type)
			if err != nil {
				return 0, err
			}
			cases[i] = v
		}
		return s.defineType(func(buf *binary.Buffer) {
			buf.AppendByte(defVariant)
			buf.WriteU32(uint32(len(cases)))
			for i, c := range k.Cases {
				buf.WriteString(c.Name)
				encodeOptional(buf, cases[i])
				buf.AppendByte(0x00) // no refines
			}
		}), nil

	case *wit.List:
		elem, err := s.val(k.Type)
		if err != nil {
			return 0, err
		}
		return s.defineType(func(buf *binary.Buffer) {
			buf.AppendByte(defList)
			elem.encode(buf)
		}), nil

	case *wit.Tuple:
		elems := make([]valType, len(k.Types))
		for i, t := range k.Types {
			v, err := s.val(t)
			if err != nil {
				return 0, err
			}
			elems[i] = v
		}
		return s.defineType(func(buf *binary.Buffer) {
			buf.AppendByte(defTuple)
			buf.WriteU32(uint32(len(elems)))
			for _, e := range elems {
				e.encode(buf)
			}
		}), nil

	case *wit.Flags:
		return s.defineType(func(buf *binary.Buffer) {
			buf.AppendByte(defFlags)
			buf.WriteU32(uint32(len(k.Flags)))
			for _, f := range k.Flags {
				buf.WriteString(f.Name)
			}
		}), nil

	case *wit.Enum:
		return s.defineType(func(buf *binary.Buffer) {
			buf.AppendByte(defEnum)
			buf.WriteU32(uint32(len(k.Cases)))
			for _, c := range k.Cases {
				buf.WriteString(c.Name)
			}
		}), nil

	case *wit.Option:
		elem, err := s.val(k.Type)
		if err != nil {
			return 0, err
		}
		return s.defineType(func(buf *binary.Buffer) {
			buf.AppendByte(defOption)
			elem.encode(buf)
		}), nil

	case *wit.Result:
		ok, err := s.optional(k.OK)
		if err != nil {
			return 0, err
		}
		fail, err := s.optional(k.Err)
		if err != nil {
			return 0, err
		}
		return s.defineType(func(buf *binary.Buffer) {
			buf.AppendByte(defResult)
			encodeOptional(buf, ok)
			encodeOptional(buf, fail)
		}), nil

	case *wit.Resource, *wit.Own, *wit.Borrow:
		return 0, errors.New(errors.PhaseEncode, errors.KindUnsupported).
			Path(path...).
			WitType(fmt.Sprintf("%T", k)).
			Detail("resources").
			Build()

	case wit.Type:
		v, err := s.val(k)
		if err != nil {
			return 0, err
		}
		if v.prim == 0 {
			return v.idx, nil
		}
		return s.defineType(func(buf *binary.Buffer) {
			buf.AppendByte(v.prim)
		}), nil
	}
	return 0, errors.Unsupported(errors.PhaseEncode, path, "type definition kind")
}

func typeDefName(td *wit.TypeDef) string {
	if td.Name != nil {
		return *td.Name
	}
	return "(anonymous)"
}

// funcType defines the component function type of fn.
func (s *scope) funcType(fn *wit.Function) (uint32, error) {
	params := make([]valType, len(fn.Params))
	for i, p := range fn.Params {
		v, err := s.val(p.Type)
		if err != nil {
			return 0, err
		}
		params[i] = v
	}
	if len(fn.Results) > 1 {
		return 0, errors.Unsupported(errors.PhaseEncode, []string{fn.Name}, "multiple named results")
	}
	var rt wit.Type
	if len(fn.Results) == 1 {
		rt = fn.Results[0].Type
	}
	result, err := s.optional(rt)
	if err != nil {
		return 0, err
	}
	return s.defineType(func(buf *binary.Buffer) {
		buf.AppendByte(typeFunc)
		buf.WriteU32(uint32(len(params)))
		for i, p := range fn.Params {
			buf.WriteString(p.Name)
			params[i].encode(buf)
		}
		if result == nil {
			buf.AppendByte(0x01)
			buf.AppendByte(0x00)
			return
		}
		buf.AppendByte(0x00)
		result.encode(buf)
	}), nil
}

// instanceType defines an instance type exporting the types and
// functions of iface.
func (s *scope) instanceType(iface *wit.Interface) (uint32, error) {
	inner := newScope(scopeInstanceType, s, iface)
	for _, td := range iface.TypeDefs.All() {
		if _, err := inner.typeDef(td); err != nil {
			return 0, err
		}
	}
	for _, fn := range world.Functions(iface) {
		if !world.IsFreestanding(fn) {
			return 0, errors.Unsupported(errors.PhaseEncode,
				[]string{world.InterfaceName("", iface), fn.Name}, "resource functions")
		}
		idx, err := inner.funcType(fn)
		if err != nil {
			return 0, err
		}
		inner.exportExtern(fn.Name, externFunc, idx)
	}
	return s.defineType(func(buf *binary.Buffer) {
		buf.AppendByte(typeInstance)
		buf.WriteVec(inner.n, &inner.decls)
	}), nil
}

// importWorld imports everything w imports and returns the function index
// of each world-level function import.
func (s *scope) importWorld(w *wit.World) (map[*wit.Function]uint32, error) {
	funcs := make(map[*wit.Function]uint32)
	for _, it := range world.Imports(w) {
		switch {
		case it.Interface != nil:
			idx, err := s.instanceType(it.Interface)
			if err != nil {
				return nil, err
			}
			s.ifaces[it.Interface] = s.importExtern(it.Name(), externInstance, idx)
		case it.Function != nil:
			if !world.IsFreestanding(it.Function) {
				return nil, errors.Unsupported(errors.PhaseEncode, []string{it.Key}, "resource functions")
			}
			idx, err := s.funcType(it.Function)
			if err != nil {
				return nil, err
			}
			funcs[it.Function] = s.importExtern(it.Key, externFunc, idx)
		case it.Type != nil:
			idx, err := s.define(it.Type)
			if err != nil {
				return nil, err
			}
			s.defs[it.Type] = s.importExtern(it.Key, externType, idx)
		}
	}
	return funcs, nil
}
