package assemble

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"

	"github.com/wippyai/componentize-mbt/wat/internal/ast"
	"github.com/wippyai/componentize-mbt/wat/internal/sexpr"
)

var valTypeNames = map[string]ast.ValType{
	"i32":       ast.ValTypeI32,
	"i64":       ast.ValTypeI64,
	"f32":       ast.ValTypeF32,
	"f64":       ast.ValTypeF64,
	"funcref":   ast.ValTypeFuncref,
	"externref": ast.ValTypeExternref,
}

func valType(n *sexpr.Node) (ast.ValType, error) {
	if n.Kind == sexpr.Atom {
		if vt, ok := valTypeNames[n.Value]; ok {
			return vt, nil
		}
	}
	return 0, errorf(n, "unknown value type %s", describe(n))
}

func valTypes(nodes []*sexpr.Node) ([]ast.ValType, error) {
	vts := make([]ast.ValType, 0, len(nodes))
	for _, n := range nodes {
		vt, err := valType(n)
		if err != nil {
			return nil, err
		}
		vts = append(vts, vt)
	}
	return vts, nil
}

func refType(n *sexpr.Node) (byte, error) {
	if n.Kind == sexpr.Atom {
		switch n.Value {
		case "funcref", "func":
			return ast.RefTypeFuncref, nil
		case "externref", "extern":
			return ast.RefTypeExternref, nil
		}
	}
	return 0, errorf(n, "unknown reference type %s", describe(n))
}

func limits(nodes []*sexpr.Node) (ast.Limits, []*sexpr.Node, error) {
	var lim ast.Limits
	if len(nodes) == 0 || nodes[0].Kind != sexpr.Number {
		if len(nodes) > 0 {
			return lim, nil, errorf(nodes[0], "expected limits, got %s", describe(nodes[0]))
		}
		return lim, nil, fmt.Errorf("missing limits")
	}
	lo, err := parseU32(nodes[0])
	if err != nil {
		return lim, nil, err
	}
	lim.Min = lo
	nodes = nodes[1:]
	if len(nodes) > 0 && nodes[0].Kind == sexpr.Number {
		hi, err := parseU32(nodes[0])
		if err != nil {
			return lim, nil, err
		}
		lim.Max = &hi
		nodes = nodes[1:]
	}
	return lim, nodes, nil
}

func tableType(nodes []*sexpr.Node) (ast.Table, []*sexpr.Node, error) {
	lim, rest, err := limits(nodes)
	if err != nil {
		return ast.Table{}, nil, err
	}
	if len(rest) == 0 {
		return ast.Table{}, nil, fmt.Errorf("table: missing reference type")
	}
	rt, err := refType(rest[0])
	if err != nil {
		return ast.Table{}, nil, err
	}
	return ast.Table{Limits: lim, ElemType: rt}, rest[1:], nil
}

func globalType(nodes []*sexpr.Node) (ast.GlobalType, []*sexpr.Node, error) {
	if len(nodes) == 0 {
		return ast.GlobalType{}, nil, fmt.Errorf("global: missing type")
	}
	n := nodes[0]
	if n.Head() == "mut" {
		if len(n.Children) != 2 {
			return ast.GlobalType{}, nil, errorf(n, "mut: expected one value type")
		}
		vt, err := valType(n.Children[1])
		return ast.GlobalType{ValType: vt, Mutable: true}, nodes[1:], err
	}
	vt, err := valType(n)
	return ast.GlobalType{ValType: vt}, nodes[1:], err
}

func parseU32(n *sexpr.Node) (uint32, error) {
	if n.Kind != sexpr.Number {
		return 0, errorf(n, "expected number, got %s", describe(n))
	}
	v, err := parseUint(strings.ReplaceAll(n.Value, "_", ""), 32)
	if err != nil {
		return 0, errorf(n, "invalid u32 %s", n.Value)
	}
	return uint32(v), nil
}

// parseUint reads a decimal or 0x-prefixed hex literal. A leading zero
// does not select octal.
func parseUint(s string, size int) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, size)
	}
	return strconv.ParseUint(s, 10, size)
}

func cutSign(s string) (neg bool, rest string) {
	switch {
	case strings.HasPrefix(s, "-"):
		return true, s[1:]
	case strings.HasPrefix(s, "+"):
		return false, s[1:]
	}
	return false, s
}

// parseInt accepts both the signed and unsigned spelling of a size-bit
// integer and returns its two's complement value.
func parseInt(n *sexpr.Node, size int) (int64, error) {
	if n.Kind != sexpr.Number {
		return 0, errorf(n, "expected integer, got %s", describe(n))
	}
	neg, digits := cutSign(strings.ReplaceAll(n.Value, "_", ""))
	u, err := parseUint(digits, size)
	if err != nil {
		return 0, errorf(n, "invalid i%d %s", size, n.Value)
	}
	if neg {
		if u > uint64(1)<<(size-1) {
			return 0, errorf(n, "i%d %s out of range", size, n.Value)
		}
		return -int64(u), nil
	}
	if size == 32 {
		return int64(int32(uint32(u))), nil
	}
	return int64(u), nil
}

func parseF32(n *sexpr.Node) (float32, error) {
	b, err := parseFloat(n, 32)
	return math.Float32frombits(uint32(b)), err
}

func parseF64(n *sexpr.Node) (float64, error) {
	b, err := parseFloat(n, 64)
	return math.Float64frombits(b), err
}

// parseFloat returns the IEEE 754 bit pattern of a float literal so NaN
// payloads survive.
func parseFloat(n *sexpr.Node, size int) (uint64, error) {
	if n.Kind == sexpr.List || n.Kind == sexpr.String {
		return 0, errorf(n, "expected float, got %s", describe(n))
	}
	s := strings.ReplaceAll(n.Value, "_", "")
	neg, body := cutSign(s)

	expBits, mantBits := uint(8), uint(23)
	if size == 64 {
		expBits, mantBits = 11, 52
	}
	var sign uint64
	if neg {
		sign = uint64(1) << (size - 1)
	}
	infBits := (uint64(1)<<expBits - 1) << mantBits

	switch {
	case body == "inf":
		return sign | infBits, nil
	case body == "nan":
		return sign | infBits | uint64(1)<<(mantBits-1), nil
	case strings.HasPrefix(body, "nan:0x"):
		payload, err := strconv.ParseUint(body[len("nan:0x"):], 16, 64)
		if err != nil || payload == 0 || bits.Len64(payload) > int(mantBits) {
			return 0, errorf(n, "invalid NaN payload %s", n.Value)
		}
		return sign | infBits | payload, nil
	}

	// strconv requires an exponent on hex floats.
	if (strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X")) && !strings.ContainsAny(body, "pP") {
		s += "p0"
	}
	v, err := strconv.ParseFloat(s, size)
	if err != nil {
		return 0, errorf(n, "invalid f%d %s", size, n.Value)
	}
	if size == 32 {
		return uint64(math.Float32bits(float32(v))), nil
	}
	return math.Float64bits(v), nil
}

// alignExp converts an align=N byte count to its log2 exponent.
func alignExp(n *sexpr.Node, v uint64) (uint32, error) {
	if v == 0 || v&(v-1) != 0 {
		return 0, errorf(n, "alignment %d is not a power of two", v)
	}
	return uint32(bits.TrailingZeros64(v)), nil
}
