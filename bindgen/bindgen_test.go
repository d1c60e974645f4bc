package bindgen

import (
	"errors"
	"strings"
	"testing"

	mbterrors "github.com/wippyai/componentize-mbt/errors"
	"go.bytecodealliance.org/wit"
)

func ptr[T any](v T) *T { return &v }

func fn(name string, result wit.Type, params ...wit.Param) *wit.Function {
	f := &wit.Function{Name: name, Kind: &wit.Freestanding{}, Params: params}
	if result != nil {
		f.Results = []wit.Param{{Type: result}}
	}
	return f
}

// iface returns a world item referring to a new interface with funcs.
func iface(pkg *wit.Package, name string, funcs ...*wit.Function) *wit.InterfaceRef {
	i := &wit.Interface{Name: ptr(name), Package: pkg}
	for _, f := range funcs {
		i.Functions.Set(f.Name, f)
	}
	return &wit.InterfaceRef{Interface: i}
}

func testWorld() (*wit.Resolve, *wit.World) {
	pkg := &wit.Package{Name: wit.Ident{Namespace: "ns", Package: "pkg"}}
	w := &wit.World{Name: "app", Package: pkg}
	host := iface(pkg, "host", fn("log", nil, wit.Param{Name: "msg", Type: wit.String{}}))
	w.Imports.Set("interface-0", host)
	w.Imports.Set("now", fn("now", wit.U64{}))

	point := &wit.TypeDef{
		Name: ptr("point"),
		Kind: &wit.Record{Fields: []wit.Field{{Name: "x", Type: wit.S32{}}, {Name: "y", Type: wit.S32{}}}},
	}
	w.Exports.Set("greet", fn("greet", wit.String{}, wit.Param{Name: "name", Type: wit.String{}}))
	w.Exports.Set("interface-1", iface(pkg, "api",
		fn("greet", nil),
		fn("move", point, wit.Param{Name: "p", Type: point})))
	w.Exports.Set("mbt-init", fn("mbt-init", nil))

	res := &wit.Resolve{Worlds: []*wit.World{w}, Packages: []*wit.Package{pkg}}
	return res, w
}

func TestNames(t *testing.T) {
	_, w := testWorld()
	exports, err := Names(w)
	if err != nil {
		t.Fatalf("Names: %v", err)
	}

	want := []struct {
		key       string
		symbol    string
		hasReturn bool
	}{
		{"greet", "greet", true},
		{"api_greet", "ns:pkg/api#greet", false},
		{"api_move", "ns:pkg/api#move", true},
		{"mbt_init", "mbt-init", false},
	}
	if len(exports) != len(want) {
		t.Fatalf("exports = %d, want %d", len(exports), len(want))
	}
	for i, w := range want {
		t.Run(w.key, func(t *testing.T) {
			got := exports[i]
			if got.Key != w.key || got.Symbol.Name != w.symbol || got.Symbol.HasReturnValue != w.hasReturn {
				t.Errorf("export %d = {%s %s %v}, want {%s %s %v}",
					i, got.Key, got.Symbol.Name, got.Symbol.HasReturnValue, w.key, w.symbol, w.hasReturn)
			}
		})
	}
}

func TestNamesCollision(t *testing.T) {
	pkg := &wit.Package{Name: wit.Ident{Namespace: "ns", Package: "pkg"}}
	w := &wit.World{Name: "app", Package: pkg}
	w.Exports.Set("api-run", fn("api-run", nil))
	w.Exports.Set("interface-0", iface(pkg, "api", fn("run", nil)))
	w.Exports.Set("interface-1", iface(pkg, "api", fn("run", nil)))
	w.Exports.Set("type", fn("type", nil))

	exports, err := Names(w)
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	var keys []string
	for _, e := range exports {
		keys = append(keys, e.Key)
	}
	want := "api_run ns_pkg_api_run ns_pkg_api_run_2 type_"
	if got := strings.Join(keys, " "); got != want {
		t.Errorf("keys = %q, want %q", got, want)
	}
}

func TestNamesRejectsResources(t *testing.T) {
	w := &wit.World{Name: "app"}
	w.Exports.Set("interface-0", iface(nil, "api",
		&wit.Function{Name: "[method]res.get", Kind: &wit.Method{}}))

	_, err := Names(w)
	if !errors.Is(err, &mbterrors.Error{Phase: mbterrors.PhaseBindgen, Kind: mbterrors.KindUnsupported}) {
		t.Errorf("err = %v, want bindgen/unsupported", err)
	}
}

func TestGenerateDryRun(t *testing.T) {
	res, w := testWorld()
	g := New()
	if err := g.Generate(res, w, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	symbols := g.ExportedSymbols()
	if got := symbols["mbt_init"]; got.Name != "mbt-init" || got.HasReturnValue {
		t.Errorf("mbt_init = %+v", got)
	}
	if got := symbols["api_move"]; got.Name != "ns:pkg/api#move" || !got.HasReturnValue {
		t.Errorf("api_move = %+v", got)
	}
}

func TestGenerateFiles(t *testing.T) {
	res, w := testWorld()
	var files Files
	if err := New().Generate(res, w, &files); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	wantNames := []string{GenPackageFile, TypesFile, ExportsFile, FFIPackageFile, ImportsFile}
	if got := strings.Join(files.Names(), ","); got != strings.Join(wantNames, ",") {
		t.Fatalf("files = %s", got)
	}

	contains := map[string][]string{
		GenPackageFile: {`"exports": [`, `"api_move"`, `"mbt_init"`},
		TypesFile:      {"pub(all) struct Point {", "  x : Int"},
		ExportsFile: {
			"pub fn greet(name : String) -> String {",
			"pub fn api_move(p : Point) -> Point {",
			"pub fn mbt_init() -> Unit {\n  ()\n}",
		},
		ImportsFile: {
			`pub fn host_log(p0 : Int, p1 : Int) = "ns:pkg/host" "log"`,
			`pub fn now() -> Int64 = "$root" "now"`,
		},
	}
	for name, subs := range contains {
		b, ok := files.Get(name)
		if !ok {
			t.Fatalf("missing %s", name)
		}
		for _, s := range subs {
			if !strings.Contains(string(b), s) {
				t.Errorf("%s does not contain %q:\n%s", name, s, b)
			}
		}
	}
}

func TestGenerateForeignWorld(t *testing.T) {
	res, _ := testWorld()
	err := New().Generate(res, &wit.World{Name: "other"}, nil)
	if !errors.Is(err, &mbterrors.Error{Phase: mbterrors.PhaseBindgen, Kind: mbterrors.KindInvalidInput}) {
		t.Errorf("err = %v, want bindgen/invalid_input", err)
	}
}

func TestFilesWriteTo(t *testing.T) {
	var files Files
	files.Push("a/b.mbt", []byte("one"))
	files.Push("c.json", []byte("{}"))
	files.Push("a/b.mbt", []byte("two"))

	dir := t.TempDir()
	written, err := files.WriteTo(dir)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("written = %v", written)
	}
	if b, _ := files.Get("a/b.mbt"); string(b) != "two" {
		t.Errorf("a/b.mbt = %q, want replaced contents", b)
	}
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		typ  wit.Type
		want string
	}{
		{wit.U8{}, "Byte"},
		{wit.U32{}, "UInt"},
		{&wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}, "Bytes"},
		{&wit.TypeDef{Kind: &wit.List{Type: wit.String{}}}, "Array[String]"},
		{&wit.TypeDef{Kind: &wit.Option{Type: wit.S64{}}}, "Int64?"},
		{&wit.TypeDef{Kind: &wit.Result{OK: wit.F64{}}}, "Result[Double, Unit]"},
		{&wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{wit.Char{}, wit.Bool{}}}}, "(Char, Bool)"},
		{&wit.TypeDef{Name: ptr("http-status"), Kind: &wit.Enum{}}, "HttpStatus"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := typeName(tt.typ); got != tt.want {
				t.Errorf("typeName = %q, want %q", got, tt.want)
			}
		})
	}
}
