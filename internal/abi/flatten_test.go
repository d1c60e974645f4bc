package abi

import (
	"testing"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"
)

const (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
	f32 = api.ValueTypeF32
	f64 = api.ValueTypeF64
)

func def(kind wit.TypeDefKind) *wit.TypeDef { return &wit.TypeDef{Kind: kind} }

func TestFlattenType(t *testing.T) {
	tests := []struct {
		name string
		typ  wit.Type
		want []CoreValType
	}{
		{"bool", wit.Bool{}, []CoreValType{i32}},
		{"u64", wit.U64{}, []CoreValType{i64}},
		{"f32", wit.F32{}, []CoreValType{f32}},
		{"f64", wit.F64{}, []CoreValType{f64}},
		{"string", wit.String{}, []CoreValType{i32, i32}},
		{"list", def(&wit.List{Type: wit.U8{}}), []CoreValType{i32, i32}},
		{"record", def(&wit.Record{Fields: []wit.Field{
			{Name: "a", Type: wit.U32{}},
			{Name: "b", Type: wit.F64{}},
		}}), []CoreValType{i32, f64}},
		{"tuple", def(&wit.Tuple{Types: []wit.Type{wit.S64{}, wit.String{}}}), []CoreValType{i64, i32, i32}},
		{"option", def(&wit.Option{Type: wit.F32{}}), []CoreValType{i32, f32}},
		{"result join", def(&wit.Result{OK: wit.F32{}, Err: wit.U32{}}), []CoreValType{i32, i32}},
		{"result widen", def(&wit.Result{OK: wit.U32{}, Err: wit.U64{}}), []CoreValType{i32, i64}},
		{"result empty", def(&wit.Result{}), []CoreValType{i32}},
		{"enum", def(&wit.Enum{Cases: []wit.EnumCase{{Name: "a"}}}), []CoreValType{i32}},
		{"flags", def(&wit.Flags{Flags: []wit.Flag{{Name: "a"}}}), []CoreValType{i32}},
		{"alias", def(wit.String{}), []CoreValType{i32, i32}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlattenType(tt.typ)
			if !sameTypes(got, tt.want) {
				t.Errorf("FlattenType = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFlatten(t *testing.T) {
	many := make([]wit.Param, 17)
	for i := range many {
		many[i] = wit.Param{Name: "p", Type: wit.U32{}}
	}

	tests := []struct {
		name string
		fn   *wit.Function
		ctx  Context
		want Signature
	}{
		{
			name: "scalars",
			fn:   &wit.Function{Params: []wit.Param{{Name: "a", Type: wit.U32{}}}, Results: []wit.Param{{Type: wit.U64{}}}},
			ctx:  Lift,
			want: Signature{Params: []CoreValType{i32}, Results: []CoreValType{i64}},
		},
		{
			name: "string result lifted",
			fn:   &wit.Function{Params: []wit.Param{{Name: "s", Type: wit.String{}}}, Results: []wit.Param{{Type: wit.String{}}}},
			ctx:  Lift,
			want: Signature{Params: []CoreValType{i32, i32}, Results: []CoreValType{i32}},
		},
		{
			name: "string result lowered",
			fn:   &wit.Function{Params: []wit.Param{{Name: "s", Type: wit.String{}}}, Results: []wit.Param{{Type: wit.String{}}}},
			ctx:  Lower,
			want: Signature{Params: []CoreValType{i32, i32, i32}},
		},
		{
			name: "named results lifted",
			fn:   &wit.Function{Results: []wit.Param{{Name: "x", Type: wit.U32{}}, {Name: "y", Type: wit.F64{}}}},
			ctx:  Lift,
			want: Signature{Results: []CoreValType{i32}},
		},
		{
			name: "spilled params",
			fn:   &wit.Function{Params: many},
			ctx:  Lift,
			want: Signature{Params: []CoreValType{i32}},
		},
		{
			name: "no params no result",
			fn:   &wit.Function{},
			ctx:  Lower,
			want: Signature{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Flatten(tt.fn, tt.ctx)
			if !got.Equal(tt.want.Params, tt.want.Results) {
				t.Errorf("Flatten = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRequirements(t *testing.T) {
	str := []wit.Param{{Name: "s", Type: wit.String{}}}
	bytes := def(&wit.List{Type: wit.U8{}})

	tests := []struct {
		name string
		fn   *wit.Function
		ctx  Context
		want Options
	}{
		{"scalars", &wit.Function{Params: []wit.Param{{Name: "a", Type: wit.U32{}}}}, Lift, Options{}},
		{"lift string param", &wit.Function{Params: str}, Lift, Options{Memory: true, Realloc: true, Strings: true}},
		{"lower string param", &wit.Function{Params: str}, Lower, Options{Memory: true, Strings: true}},
		{"lift list result", &wit.Function{Results: []wit.Param{{Type: bytes}}}, Lift, Options{Memory: true}},
		{"lower list result", &wit.Function{Results: []wit.Param{{Type: bytes}}}, Lower, Options{Memory: true, Realloc: true}},
		{"spilled result", &wit.Function{Results: []wit.Param{{Type: def(&wit.Tuple{Types: []wit.Type{wit.U32{}, wit.U32{}}})}}}, Lower, Options{Memory: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Requirements(tt.fn, tt.ctx); got != tt.want {
				t.Errorf("Requirements = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSignatureString(t *testing.T) {
	sig := Signature{Params: []CoreValType{i32, i64}, Results: []CoreValType{f32}}
	if got := sig.String(); got != "(func (param i32 i64) (result f32))" {
		t.Errorf("String = %q", got)
	}
	if got := (Signature{}).String(); got != "(func)" {
		t.Errorf("empty String = %q", got)
	}
}
