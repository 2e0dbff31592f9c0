package reach

import (
	"io"
	"strconv"
)

// Chain returns the nodes from ref up to its root, ref first. The walk stops
// at a Root node (even if it has a parent set), at a node without parent, or
// when a node repeats; in the last case cyclic is true and the repeated node
// is not included twice.
func (x *Index) Chain(ref NodeRef) (steps []NodeRef, cyclic bool) {
	seen := make(map[NodeRef]struct{})
	for cur := ref; ; {
		if _, ok := seen[cur]; ok {
			return steps, true
		}
		seen[cur] = struct{}{}
		steps = append(steps, cur)

		n := x.nodes[cur]
		if n.Kind == KindRoot || n.Parent == NoParent {
			return steps, false
		}
		cur = n.Parent
	}
}

// WriteChain writes the ancestor chain of ref, one line per edge:
//
//	[0] 0x2000 ::Vector -> (field position: 3) -> 0x3000 ::String
//	[1] 0x1000 ::Module -> data -> 0x2000 ::Vector
//	[2] <root> -> main -> 0x1000 ::Module
//
// desc may be nil, in which case only identities are printed.
func (x *Index) WriteChain(w io.Writer, ref NodeRef, desc Describer) error {
	steps, cyclic := x.Chain(ref)
	var line []byte
	for i, r := range steps {
		n := x.nodes[r]
		line = append(line[:0], '[')
		line = strconv.AppendInt(line, int64(i), 10)
		line = append(line, "] "...)
		switch {
		case n.Kind == KindRoot:
			line = append(line, "<root>"...)
		case n.Parent == NoParent:
			line = append(line, "<unknown>"...)
		default:
			line = appendObject(line, x.nodes[n.Parent].ID, desc)
		}
		line = append(line, " -> "...)
		line = appendEdge(line, n)
		line = appendObject(line, n.ID, desc)
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	if cyclic {
		last := x.nodes[steps[len(steps)-1]]
		line = append(line[:0], '[')
		line = strconv.AppendInt(line, int64(len(steps)), 10)
		line = append(line, "] <cycle> -> "...)
		line = appendObject(line, x.nodes[last.Parent].ID, desc)
		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// appendEdge writes the label and position of the edge into n, followed by
// an arrow, or nothing when the edge carries neither.
func appendEdge(dst []byte, n Node) []byte {
	hasLabel := n.Label != ""
	if hasLabel {
		dst = append(dst, n.Label...)
	}
	if n.Kind.Positional() {
		if hasLabel {
			dst = append(dst, ' ')
		}
		dst = append(dst, "(field position: "...)
		dst = strconv.AppendUint(dst, n.Position, 10)
		dst = append(dst, ')')
	}
	if hasLabel || n.Kind.Positional() {
		dst = append(dst, " -> "...)
	}
	return dst
}

func appendObject(dst []byte, id ID, desc Describer) []byte {
	dst = append(dst, id.String()...)
	if desc != nil {
		dst = append(dst, " ::"...)
		dst = append(dst, desc.Describe(id)...)
	}
	return dst
}
