package component

import (
	"bytes"
	"errors"
	"testing"

	mbterrors "github.com/wippyai/componentize-mbt/errors"
	"go.bytecodealliance.org/wit"
)

// typeSection runs define against a fresh component scope and returns
// the encoded sections that follow the header.
func typeSection(t *testing.T, define func(s *scope) error) []byte {
	t.Helper()
	b := newBuilder()
	if err := define(componentScope(b)); err != nil {
		t.Fatalf("define: %v", err)
	}
	return b.bytes()[len(componentHeader):]
}

func TestFuncType(t *testing.T) {
	tests := []struct {
		name string
		fn   *wit.Function
		want []byte
	}{
		{
			name: "primitive",
			fn:   fn("f", wit.String{}, wit.Param{Name: "a", Type: wit.U32{}}),
			want: []byte{0x07, 0x08, 0x01, 0x40, 0x01, 0x01, 'a', 0x79, 0x00, 0x73},
		},
		{
			name: "no result",
			fn:   fn("f", nil, wit.Param{Name: "b", Type: wit.Bool{}}),
			want: []byte{0x07, 0x08, 0x01, 0x40, 0x01, 0x01, 'b', 0x7f, 0x01, 0x00},
		},
		{
			name: "anonymous list",
			fn:   fn("f", &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}),
			want: []byte{0x07, 0x07, 0x02, 0x70, 0x7d, 0x40, 0x00, 0x00, 0x00},
		},
		{
			name: "result without payloads",
			fn:   fn("f", &wit.TypeDef{Kind: &wit.Result{}}),
			want: []byte{0x07, 0x08, 0x02, 0x6a, 0x00, 0x00, 0x40, 0x00, 0x00, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := typeSection(t, func(s *scope) error {
				_, err := s.funcType(tt.fn)
				return err
			})
			if !bytes.Equal(got, tt.want) {
				t.Errorf("funcType() = % x, want % x", got, tt.want)
			}
		})
	}
}

func TestInstanceType(t *testing.T) {
	pkg := &wit.Package{Name: wit.Ident{Namespace: "ns", Package: "pkg"}}
	geo := &wit.Interface{Name: ptr("geo"), Package: pkg}
	point := &wit.TypeDef{
		Name:  ptr("point"),
		Kind:  &wit.Record{Fields: []wit.Field{{Name: "x", Type: wit.U32{}}}},
		Owner: geo,
	}
	geo.TypeDefs.Set("point", point)
	geo.Functions.Set("get", fn("get", point))

	got := typeSection(t, func(s *scope) error {
		_, err := s.instanceType(geo)
		return err
	})

	want := []byte{0x07, 0x21, 0x01, 0x42, 0x04}
	want = append(want, 0x01, 0x72, 0x01, 0x01, 'x', 0x79)                           // record
	want = append(want, 0x04, 0x00, 0x05, 'p', 'o', 'i', 'n', 't', 0x03, 0x00, 0x00) // export point
	want = append(want, 0x01, 0x40, 0x00, 0x00, 0x01)                                // func -> point
	want = append(want, 0x04, 0x00, 0x03, 'g', 'e', 't', 0x01, 0x02)                 // export get
	if !bytes.Equal(got, want) {
		t.Errorf("instanceType() =\n% x\nwant\n% x", got, want)
	}
}

func TestImportedInterfaceTypes(t *testing.T) {
	pkg := &wit.Package{Name: wit.Ident{Namespace: "ns", Package: "pkg"}}
	geo := &wit.Interface{Name: ptr("geo"), Package: pkg}
	color := &wit.TypeDef{
		Name:  ptr("color"),
		Kind:  &wit.Enum{Cases: []wit.EnumCase{{Name: "red"}}},
		Owner: geo,
	}
	geo.TypeDefs.Set("color", color)

	w := &wit.World{Name: "app", Package: pkg}
	w.Imports.Set("interface-0", &wit.InterfaceRef{Interface: geo})
	w.Exports.Set("paint", fn("paint", color))

	b := newBuilder()
	s := componentScope(b)
	if _, err := s.importWorld(w); err != nil {
		t.Fatalf("importWorld: %v", err)
	}
	if inst, ok := s.ifaces[geo]; !ok || inst != 0 {
		t.Fatalf("geo instance = %d, %v", inst, ok)
	}
	idx, err := s.typeDef(color)
	if err != nil {
		t.Fatalf("typeDef: %v", err)
	}
	// type 0 is the instance type; the alias of color follows it.
	if idx != 1 {
		t.Errorf("color index = %d, want 1", idx)
	}
	again, _ := s.typeDef(color)
	if again != idx {
		t.Errorf("second lookup = %d, want cached %d", again, idx)
	}

	out := b.bytes()
	alias := []byte{0x06, 0x0a, 0x01, 0x03, 0x00, 0x00, 0x05, 'c', 'o', 'l', 'o', 'r'}
	if !bytes.Contains(out, alias) {
		t.Errorf("missing alias section % x in\n% x", alias, out)
	}
}

func TestTypeErrors(t *testing.T) {
	pkg := &wit.Package{Name: wit.Ident{Namespace: "ns", Package: "pkg"}}
	exported := &wit.Interface{Name: ptr("api"), Package: pkg}

	tests := []struct {
		name    string
		typ     wit.Type
		witType string
	}{
		{"resource", &wit.TypeDef{Name: ptr("file"), Kind: &wit.Resource{}}, "*wit.Resource"},
		{"handle", &wit.TypeDef{Kind: &wit.Own{}}, "*wit.Own"},
		{"type of an exported interface", &wit.TypeDef{
			Name:  ptr("point"),
			Kind:  &wit.Record{},
			Owner: exported,
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := componentScope(newBuilder())
			_, err := s.val(tt.typ)
			if !errors.Is(err, &mbterrors.Error{Phase: mbterrors.PhaseEncode, Kind: mbterrors.KindUnsupported}) {
				t.Fatalf("val() error = %v, want unsupported", err)
			}
			var e *mbterrors.Error
			if errors.As(err, &e) && e.WitType != tt.witType {
				t.Errorf("WitType = %q, want %q", e.WitType, tt.witType)
			}
		})
	}
}

func TestFuncTypeNamedResults(t *testing.T) {
	f := &wit.Function{
		Name:    "pair",
		Kind:    &wit.Freestanding{},
		Results: []wit.Param{{Name: "a", Type: wit.U32{}}, {Name: "b", Type: wit.U32{}}},
	}
	_, err := componentScope(newBuilder()).funcType(f)
	if !errors.Is(err, &mbterrors.Error{Phase: mbterrors.PhaseEncode, Kind: mbterrors.KindUnsupported}) {
		t.Errorf("funcType() error = %v, want unsupported", err)
	}
}

func TestBuilderGroupsSections(t *testing.T) {
	b := newBuilder()
	b.item(SectionType).AppendByte(0xaa)
	b.item(SectionType).AppendByte(0xbb)
	b.item(SectionAlias).AppendByte(0xcc)

	got := b.bytes()[len(componentHeader):]
	want := []byte{0x07, 0x03, 0x02, 0xaa, 0xbb, 0x06, 0x02, 0x01, 0xcc}
	if !bytes.Equal(got, want) {
		t.Errorf("sections = % x, want % x", got, want)
	}
}
