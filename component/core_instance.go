package component

import "github.com/wippyai/componentize-mbt/internal/binary"

// CoreInstanceKind selects how a core instance is created.
type CoreInstanceKind byte

const (
	CoreInstanceInstantiate CoreInstanceKind = 0x00
	CoreInstanceFromExports CoreInstanceKind = 0x01
)

// CoreInstanceArg passes a core instance to an instantiation under the
// module name the instantiated module imports from.
type CoreInstanceArg struct {
	Name     string
	Instance uint32
}

// CoreInstanceExport names one item of a synthesized core instance.
type CoreInstanceExport struct {
	Name  string
	Sort  byte
	Index uint32
}

// instantiate instantiates core module mod and returns the instance index.
func (b *builder) instantiate(mod uint32, args []CoreInstanceArg) uint32 {
	buf := b.item(SectionCoreInstance)
	buf.AppendByte(byte(CoreInstanceInstantiate))
	buf.WriteU32(mod)
	buf.WriteU32(uint32(len(args)))
	for _, arg := range args {
		buf.WriteString(arg.Name)
		buf.AppendByte(CoreSortInstance)
		buf.WriteU32(arg.Instance)
	}
	b.coreInstances++
	return b.coreInstances - 1
}

// coreInstance bundles existing core items into a new core instance.
func (b *builder) coreInstance(exports []CoreInstanceExport) uint32 {
	buf := b.item(SectionCoreInstance)
	buf.AppendByte(byte(CoreInstanceFromExports))
	writeCoreExports(buf, exports)
	b.coreInstances++
	return b.coreInstances - 1
}

// aliasCore aliases an export of a core instance into the core index space
// of its sort and returns the new index.
func (b *builder) aliasCore(sort byte, inst uint32, name string) uint32 {
	buf := b.item(SectionAlias)
	buf.AppendByte(SortCore)
	buf.AppendByte(sort)
	buf.AppendByte(aliasCoreExport)
	buf.WriteU32(inst)
	buf.WriteString(name)
	return next(b.coreSpace(sort))
}

func (b *builder) coreSpace(sort byte) *uint32 {
	switch sort {
	case CoreSortTable:
		return &b.coreTables
	case CoreSortMemory:
		return &b.coreMemories
	case CoreSortInstance:
		return &b.coreInstances
	case CoreSortModule:
		return &b.coreModules
	}
	return &b.coreFuncs
}

// instance bundles component items into a component instance.
func (b *builder) instance(exports []CoreInstanceExport) uint32 {
	buf := b.item(SectionInstance)
	buf.AppendByte(0x01)
	buf.WriteU32(uint32(len(exports)))
	for _, e := range exports {
		writeName(buf, e.Name)
		buf.AppendByte(e.Sort)
		buf.WriteU32(e.Index)
	}
	return next(&b.instances)
}

// aliasFunc aliases a function exported by a component instance.
func (b *builder) aliasFunc(inst uint32, name string) uint32 {
	buf := b.item(SectionAlias)
	buf.AppendByte(SortFunc)
	buf.AppendByte(aliasExport)
	buf.WriteU32(inst)
	buf.WriteString(name)
	return next(&b.funcs)
}

// export exports a component item. Exports add an item to the index space
// of their sort, whose new index is returned.
func (b *builder) export(name string, sort byte, idx uint32) uint32 {
	buf := b.item(SectionExport)
	writeName(buf, name)
	buf.AppendByte(sort)
	buf.WriteU32(idx)
	buf.AppendByte(0x00) // no type ascription
	switch sort {
	case SortFunc:
		return next(&b.funcs)
	case SortInstance:
		return next(&b.instances)
	}
	return idx
}

func next(space *uint32) uint32 {
	*space++
	return *space - 1
}

func writeCoreExports(buf *binary.Buffer, exports []CoreInstanceExport) {
	buf.WriteU32(uint32(len(exports)))
	for _, e := range exports {
		buf.WriteString(e.Name)
		buf.AppendByte(e.Sort)
		buf.WriteU32(e.Index)
	}
}
