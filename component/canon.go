package component

import "github.com/wippyai/componentize-mbt/internal/binary"

// Canon kinds per Component Model binary format section 8
const (
	CanonLift  byte = 0x00 // Followed by 0x00 discriminant
	CanonLower byte = 0x01 // Followed by 0x00 discriminant
)

// CanonOption kinds per Component Model binary format
const (
	CanonOptUTF8         byte = 0x00
	CanonOptUTF16        byte = 0x01
	CanonOptCompactUTF16 byte = 0x02
	CanonOptMemory       byte = 0x03
	CanonOptRealloc      byte = 0x04
	CanonOptPostReturn   byte = 0x05
)

// CanonOption is a single option of a canon lift or lower.
type CanonOption struct {
	Kind  byte
	Index uint32 // memory, realloc or post-return function
}

// canonOptions collects the options of one lift or lower.
type canonOptions struct {
	opts []CanonOption
}

func (c *canonOptions) encoding(enc StringEncoding) {
	c.opts = append(c.opts, CanonOption{Kind: enc.option()})
}

func (c *canonOptions) memory(idx uint32) {
	c.opts = append(c.opts, CanonOption{Kind: CanonOptMemory, Index: idx})
}

func (c *canonOptions) realloc(idx uint32) {
	c.opts = append(c.opts, CanonOption{Kind: CanonOptRealloc, Index: idx})
}

func writeCanonOptions(buf *binary.Buffer, opts []CanonOption) {
	buf.WriteU32(uint32(len(opts)))
	for _, o := range opts {
		buf.AppendByte(o.Kind)
		switch o.Kind {
		case CanonOptMemory, CanonOptRealloc, CanonOptPostReturn:
			buf.WriteU32(o.Index)
		}
	}
}

// lift wraps core function coreFunc as a component function of type typ.
//
// lift: 0x00 0x00 core_func:u32 opts:vec(canonopt) type:u32
func (b *builder) lift(coreFunc uint32, opts []CanonOption, typ uint32) uint32 {
	buf := b.item(SectionCanon)
	buf.AppendByte(CanonLift)
	buf.AppendByte(0x00)
	buf.WriteU32(coreFunc)
	writeCanonOptions(buf, opts)
	buf.WriteU32(typ)
	return next(&b.funcs)
}

// lower turns component function fn into a core function.
//
// lower: 0x01 0x00 func:u32 opts:vec(canonopt)
func (b *builder) lower(fn uint32, opts []CanonOption) uint32 {
	buf := b.item(SectionCanon)
	buf.AppendByte(CanonLower)
	buf.AppendByte(0x00)
	buf.WriteU32(fn)
	writeCanonOptions(buf, opts)
	return next(&b.coreFuncs)
}
