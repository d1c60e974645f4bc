package component

import (
	"github.com/wippyai/componentize-mbt/internal/binary"
)

// Preamble of a component binary: magic, version 0x0d, layer 1.
var componentHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x0d, 0x00, 0x01, 0x00}

// Section IDs per Component Model binary format
const (
	SectionCustom       byte = 0x00
	SectionCoreModule   byte = 0x01
	SectionCoreInstance byte = 0x02
	SectionCoreType     byte = 0x03
	SectionComponent    byte = 0x04
	SectionInstance     byte = 0x05
	SectionAlias        byte = 0x06
	SectionType         byte = 0x07
	SectionCanon        byte = 0x08
	SectionStart        byte = 0x09
	SectionImport       byte = 0x0a
	SectionExport       byte = 0x0b
)

// Core sorts, written after the 0x00 sort prefix
const (
	CoreSortFunc     byte = 0x00
	CoreSortTable    byte = 0x01
	CoreSortMemory   byte = 0x02
	CoreSortGlobal   byte = 0x03
	CoreSortType     byte = 0x10
	CoreSortModule   byte = 0x11
	CoreSortInstance byte = 0x12
)

// Component sorts
const (
	SortCore      byte = 0x00
	SortFunc      byte = 0x01
	SortValue     byte = 0x02
	SortType      byte = 0x03
	SortComponent byte = 0x04
	SortInstance  byte = 0x05
)

// Alias targets
const (
	aliasExport     byte = 0x00
	aliasCoreExport byte = 0x01
	aliasOuter      byte = 0x02
)

// Type constructors
const (
	typeFunc      byte = 0x40
	typeComponent byte = 0x41
	typeInstance  byte = 0x42
)

// Declarators inside component and instance types
const (
	declCoreType byte = 0x00
	declType     byte = 0x01
	declAlias    byte = 0x02
	declImport   byte = 0x03
	declExport   byte = 0x04
)

// externdesc kinds
const (
	externCoreModule byte = 0x00
	externFunc       byte = 0x01
	externValue      byte = 0x02
	externType       byte = 0x03
	externComponent  byte = 0x04
	externInstance   byte = 0x05
)

// writeName writes an importname' or exportname': a plain kebab name.
func writeName(b *binary.Buffer, name string) {
	b.AppendByte(0x00)
	b.WriteString(name)
}

// builder appends items to a component binary, grouping consecutive items
// of one section into a single section.
type builder struct {
	out   binary.Buffer
	secID byte
	sec   binary.Buffer
	n     int

	coreModules   uint32
	coreInstances uint32
	coreFuncs     uint32
	coreTables    uint32
	coreMemories  uint32
	funcs         uint32
	instances     uint32
}

func newBuilder() *builder {
	b := &builder{}
	b.out.WriteBytes(componentHeader)
	return b
}

// item starts a new vector item in section id and returns the buffer it
// is written to.
func (b *builder) item(id byte) *binary.Buffer {
	if b.n > 0 && b.secID != id {
		b.flush()
	}
	b.secID = id
	b.n++
	return &b.sec
}

func (b *builder) flush() {
	if b.n == 0 {
		return
	}
	var body binary.Buffer
	body.WriteVec(b.n, &b.sec)
	b.out.WriteSection(b.secID, &body)
	b.sec = binary.Buffer{}
	b.n = 0
}

// module embeds a core module and returns its index.
func (b *builder) module(bin []byte) uint32 {
	b.flush()
	b.out.WriteSection(SectionCoreModule, &binary.Buffer{Bytes: bin})
	b.coreModules++
	return b.coreModules - 1
}

// custom appends a custom section.
func (b *builder) custom(name string, payload []byte) {
	b.flush()
	var body binary.Buffer
	body.WriteString(name)
	body.WriteBytes(payload)
	b.out.WriteSection(SectionCustom, &body)
}

func (b *builder) bytes() []byte {
	b.flush()
	return b.out.Bytes
}
