// Package sexpr holds the S-expression tree that WAT text is parsed into.
// Nodes keep identifiers unresolved so fields can be moved, dropped and
// appended before any index is assigned.
package sexpr

import (
	"fmt"
	"strings"

	"github.com/wippyai/componentize-mbt/wat/internal/token"
)

type Kind int

const (
	List Kind = iota
	Atom
	Number
	String
)

// Node is a list or a leaf. Leaves hold their source text; strings hold
// the escaped text without quotes.
type Node struct {
	Value    string
	Children []*Node
	Kind     Kind
	Line     int
}

func NewList(children ...*Node) *Node {
	return &Node{Kind: List, Children: children}
}

func NewAtom(v string) *Node {
	return &Node{Kind: Atom, Value: v}
}

func NewNumber(v string) *Node {
	return &Node{Kind: Number, Value: v}
}

// NewString builds a string leaf from raw bytes, escaping as needed.
func NewString(v string) *Node {
	return &Node{Kind: String, Value: Quote(v)}
}

// Head returns the keyword of a list, or "" when the node is not a list
// starting with an atom.
func (n *Node) Head() string {
	if n == nil || n.Kind != List || len(n.Children) == 0 {
		return ""
	}
	if first := n.Children[0]; first.Kind == Atom {
		return first.Value
	}
	return ""
}

// IsID reports whether n is a $identifier.
func (n *Node) IsID() bool {
	return n != nil && n.Kind == Atom && strings.HasPrefix(n.Value, "$")
}

// IsIndex reports whether n can reference an item: a $id or a number.
func (n *Node) IsIndex() bool {
	return n != nil && (n.IsID() || n.Kind == Number)
}

// Text decodes a string leaf.
func (n *Node) Text() string {
	return string(Unquote(n.Value))
}

// Clone returns a deep copy.
func (n *Node) Clone() *Node {
	c := &Node{Kind: n.Kind, Value: n.Value, Line: n.Line}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = ch.Clone()
		}
	}
	return c
}

// Parse reads every top-level expression in src.
func Parse(src string) ([]*Node, error) {
	tokens, err := token.Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	var out []*Node
	for p.pos < len(p.tokens) {
		n, err := p.node()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

type parser struct {
	tokens []token.Token
	pos    int
}

func (p *parser) node() (*Node, error) {
	t := p.tokens[p.pos]
	p.pos++
	switch t.Type {
	case token.LParen:
		list := &Node{Kind: List, Line: t.Line}
		for {
			if p.pos >= len(p.tokens) {
				return nil, fmt.Errorf("line %d: unclosed '('", t.Line)
			}
			if p.tokens[p.pos].Type == token.RParen {
				p.pos++
				return list, nil
			}
			child, err := p.node()
			if err != nil {
				return nil, err
			}
			list.Children = append(list.Children, child)
		}
	case token.RParen:
		return nil, fmt.Errorf("line %d: unexpected ')'", t.Line)
	case token.String:
		return &Node{Kind: String, Value: t.Value, Line: t.Line}, nil
	case token.Number:
		return &Node{Kind: Number, Value: t.Value, Line: t.Line}, nil
	default:
		return &Node{Kind: Atom, Value: t.Value, Line: t.Line}, nil
	}
}
