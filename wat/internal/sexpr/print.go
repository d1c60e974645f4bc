package sexpr

import "strings"

// String prints the node on a single line.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	switch n.Kind {
	case List:
		b.WriteByte('(')
		for i, c := range n.Children {
			if i > 0 {
				b.WriteByte(' ')
			}
			c.write(b)
		}
		b.WriteByte(')')
	case String:
		b.WriteByte('"')
		b.WriteString(n.Value)
		b.WriteByte('"')
	default:
		b.WriteString(n.Value)
	}
}

// Indent prints a list with its list children on separate lines, indented
// one level below prefix. Leading atoms stay on the opening line.
func (n *Node) Indent(prefix string) string {
	if n.Kind != List {
		return prefix + n.String()
	}
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('(')
	split := false
	for i, c := range n.Children {
		if c.Kind == List && isBodyNode(c) {
			split = true
		}
		if split {
			if startsLine(c) {
				b.WriteByte('\n')
				b.WriteString(prefix)
				b.WriteString("  ")
			} else {
				b.WriteByte(' ')
			}
			c.write(&b)
			continue
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		c.write(&b)
	}
	if split {
		b.WriteByte('\n')
		b.WriteString(prefix)
	}
	b.WriteByte(')')
	return b.String()
}

func isBodyNode(n *Node) bool {
	switch n.Head() {
	case "export", "import", "type", "param", "result":
		return false
	}
	return true
}

// startsLine reports whether c begins a new instruction in a body. Indices,
// literals and memargs stay on the line of their instruction.
func startsLine(c *Node) bool {
	return c.Kind == List || (c.Kind == Atom && !c.IsID() && !strings.Contains(c.Value, "="))
}
