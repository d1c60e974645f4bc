package component

import (
	"bytes"
	"strings"

	"github.com/wippyai/componentize-mbt/errors"
	"github.com/wippyai/componentize-mbt/internal/binary"
	"github.com/wippyai/componentize-mbt/world"
	"go.bytecodealliance.org/wit"
)

// StringEncoding is the canonical ABI string encoding of a core module.
type StringEncoding byte

const (
	UTF8 StringEncoding = iota
	UTF16
	CompactUTF16
)

func (e StringEncoding) String() string {
	switch e {
	case UTF8:
		return "utf8"
	case UTF16:
		return "utf16"
	case CompactUTF16:
		return "latin1+utf16"
	}
	return "unknown"
}

func (e StringEncoding) option() byte {
	switch e {
	case UTF16:
		return CanonOptUTF16
	case CompactUTF16:
		return CanonOptCompactUTF16
	}
	return CanonOptUTF8
}

// Metadata section names
const (
	MetadataPrefix  = "component-type:"
	EncodingSection = "wit-component-encoding"

	encodingVersion byte = 0x04
)

var coreHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// EmbedMetadata appends a custom section describing w to the core module.
// The section is named after the world and holds a component that exports
// the world's component type, preceded by the string encoding.
func EmbedMetadata(core []byte, res *wit.Resolve, w *wit.World, enc StringEncoding) ([]byte, error) {
	if !bytes.HasPrefix(core, coreHeader) {
		return nil, errors.InvalidInput(errors.PhaseEncode, "not a core wasm module")
	}
	if !contains(res, w) {
		return nil, errors.InvalidInput(errors.PhaseEncode, "world "+w.Name+" is not part of the resolved packages")
	}
	payload, err := worldComponent(w, enc)
	if err != nil {
		return nil, err
	}

	var body binary.Buffer
	body.WriteString(MetadataPrefix + world.QualifiedName(w))
	body.WriteBytes(payload)

	out := make([]byte, 0, len(core)+len(body.Bytes)+6)
	buf := binary.Buffer{Bytes: append(out, core...)}
	buf.WriteSection(SectionCustom, &body)
	return buf.Bytes, nil
}

func contains(res *wit.Resolve, w *wit.World) bool {
	for _, rw := range res.Worlds {
		if rw == w {
			return true
		}
	}
	return false
}

// worldComponent encodes the metadata component: the encoding section,
// a component type wrapping the world type, and an export of that type.
func worldComponent(w *wit.World, enc StringEncoding) ([]byte, error) {
	ws := newScope(scopeComponentType, nil, nil)
	if _, err := ws.importWorld(w); err != nil {
		return nil, err
	}
	for _, it := range world.Exports(w) {
		switch {
		case it.Interface != nil:
			idx, err := ws.instanceType(it.Interface)
			if err != nil {
				return nil, err
			}
			ws.exportExtern(it.Name(), externInstance, idx)
		case it.Function != nil:
			if !world.IsFreestanding(it.Function) {
				return nil, errors.Unsupported(errors.PhaseEncode, []string{it.Key}, "resource functions")
			}
			idx, err := ws.funcType(it.Function)
			if err != nil {
				return nil, err
			}
			ws.exportExtern(it.Key, externFunc, idx)
		}
	}

	outer := newScope(scopeComponentType, nil, nil)
	worldIdx := outer.defineType(func(buf *binary.Buffer) {
		buf.AppendByte(typeComponent)
		buf.WriteVec(ws.n, &ws.decls)
	})
	outer.exportExtern(world.QualifiedName(w), externComponent, worldIdx)

	b := newBuilder()
	b.custom(EncodingSection, []byte{encodingVersion, byte(enc)})
	types := componentScope(b)
	pkg := types.defineType(func(buf *binary.Buffer) {
		buf.AppendByte(typeComponent)
		buf.WriteVec(outer.n, &outer.decls)
	})
	b.export(w.Name, SortType, pkg)
	return b.bytes(), nil
}

// metadata is the world description found in a core module.
type metadata struct {
	world    string // qualified world name
	encoding StringEncoding
}

// section is one section of a core module.
type section struct {
	id    byte
	name  string // custom sections only
	start int    // offset of the id byte
	body  int    // offset of the contents, after the name for custom sections
	end   int
}

func sections(core []byte) ([]section, error) {
	if !bytes.HasPrefix(core, coreHeader) {
		return nil, errors.InvalidInput(errors.PhaseEncode, "not a core wasm module")
	}
	var out []section
	for pos := len(coreHeader); pos < len(core); {
		s := section{id: core[pos], start: pos}
		size, n := binary.ReadU32(core[pos+1:])
		if n == 0 || pos+1+n+int(size) > len(core) {
			return nil, errors.InvalidData(errors.PhaseEncode, nil, "truncated section")
		}
		s.body = pos + 1 + n
		s.end = s.body + int(size)
		if s.id == SectionCustom {
			l, m := binary.ReadU32(core[s.body:s.end])
			if m == 0 || s.body+m+int(l) > s.end {
				return nil, errors.InvalidData(errors.PhaseEncode, nil, "malformed custom section name")
			}
			s.name = string(core[s.body+m : s.body+m+int(l)])
			s.body += m + int(l)
		}
		out = append(out, s)
		pos = s.end
	}
	return out, nil
}

// extractMetadata removes every metadata section from core and returns
// the stripped module with the description of its last metadata section.
func extractMetadata(core []byte) ([]byte, *metadata, error) {
	secs, err := sections(core)
	if err != nil {
		return nil, nil, err
	}
	var (
		meta     *metadata
		stripped = append([]byte(nil), core[:len(coreHeader)]...)
	)
	for _, s := range secs {
		if s.id != SectionCustom || !strings.HasPrefix(s.name, MetadataPrefix) {
			stripped = append(stripped, core[s.start:s.end]...)
			continue
		}
		enc, err := readEncoding(core[s.body:s.end])
		if err != nil {
			return nil, nil, err
		}
		meta = &metadata{world: strings.TrimPrefix(s.name, MetadataPrefix), encoding: enc}
	}
	if meta == nil {
		return nil, nil, errors.NotFound(errors.PhaseEncode, "custom section", MetadataPrefix+"*")
	}
	return stripped, meta, nil
}

// readEncoding reads the encoding section that opens a metadata payload.
// Payloads without one use UTF-8.
func readEncoding(payload []byte) (StringEncoding, error) {
	if !bytes.HasPrefix(payload, componentHeader) {
		return 0, errors.InvalidData(errors.PhaseEncode, nil, "metadata is not a component")
	}
	rest := payload[len(componentHeader):]
	if len(rest) == 0 || rest[0] != SectionCustom {
		return UTF8, nil
	}
	size, n := binary.ReadU32(rest[1:])
	if n == 0 || 1+n+int(size) > len(rest) {
		return 0, errors.InvalidData(errors.PhaseEncode, nil, "truncated metadata section")
	}
	body := rest[1+n : 1+n+int(size)]
	l, m := binary.ReadU32(body)
	if m == 0 || m+int(l) > len(body) || string(body[m:m+int(l)]) != EncodingSection {
		return UTF8, nil
	}
	data := body[m+int(l):]
	if len(data) != 2 || data[0] != encodingVersion || data[1] > byte(CompactUTF16) {
		return 0, errors.InvalidData(errors.PhaseEncode, []string{EncodingSection}, "unknown string encoding")
	}
	return StringEncoding(data[1]), nil
}
