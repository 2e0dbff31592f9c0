package reach

import (
	"fmt"

	"fortio.org/safecast"
)

// NodeRef is the position of a node in the index arena.
type NodeRef int32

// NoParent marks a node without a parent: a root, or a node whose parent
// lookup failed.
const NoParent NodeRef = -1

// Node is one object discovered during the current pass.
type Node struct {
	ID       ID
	Parent   NodeRef
	Kind     EdgeKind
	Label    string // field, binding or root name; empty if not applicable
	Position uint64 // array or field index, see EdgeKind.Positional
	// Incomplete is set when the parent could not be found at insertion
	// time; the chain stops at this node with <unknown>.
	Incomplete bool
}

// MissHandler is called when an edge names a parent that is not indexed.
// It receives the freshly inserted node and the missing parent identity.
type MissHandler func(n Node, from ID)

// Index maps object identities to the node that records their provenance.
// The zero value is not usable; create one with NewIndex.
type Index struct {
	nodes  []Node
	refs   map[ID]NodeRef
	onMiss MissHandler
}

// NewIndex creates an empty index. onMiss may be nil.
func NewIndex(onMiss MissHandler) *Index {
	return &Index{
		refs:   make(map[ID]NodeRef),
		onMiss: onMiss,
	}
}

// Len returns the number of indexed objects.
func (x *Index) Len() int {
	return len(x.nodes)
}

// Reserve pre-sizes the index for n objects. It only has an effect on an
// empty index.
func (x *Index) Reserve(n int) {
	if len(x.nodes) != 0 || n <= 0 {
		return
	}
	x.nodes = make([]Node, 0, n)
	x.refs = make(map[ID]NodeRef, n)
}

// Clear drops every node.
func (x *Index) Clear() {
	x.nodes = x.nodes[:0]
	clear(x.refs)
}

// Lookup returns the node recorded for id.
func (x *Index) Lookup(id ID) (NodeRef, bool) {
	ref, ok := x.refs[id]
	return ref, ok
}

// Node returns a copy of the node at ref.
func (x *Index) Node(ref NodeRef) Node {
	return x.nodes[ref]
}

// insert returns the node for id, creating it if needed. The bool is false
// when the node already existed.
func (x *Index) insert(id ID) (NodeRef, bool) {
	if ref, ok := x.refs[id]; ok {
		return ref, false
	}
	ref, err := safecast.Conv[int32](len(x.nodes))
	if err != nil {
		panic(fmt.Errorf("reachability index overflow: %w", err))
	}
	x.nodes = append(x.nodes, Node{ID: id, Parent: NoParent})
	x.refs[id] = NodeRef(ref)
	return NodeRef(ref), true
}

// RecordRoot indexes id as a root named name. Roots never get a parent.
// It is a no-op if id is already indexed.
func (x *Index) RecordRoot(id ID, name string) (NodeRef, bool) {
	ref, created := x.insert(id)
	if !created {
		return ref, false
	}
	n := &x.nodes[ref]
	n.Kind = KindRoot
	n.Label = name
	return ref, true
}

// RecordEdge indexes to as introduced by from. It is a no-op if to is
// already indexed: the first discovery wins.
func (x *Index) RecordEdge(from, to ID, kind EdgeKind, label string, position uint64) (NodeRef, bool) {
	ref, created := x.insert(to)
	if !created {
		return ref, false
	}
	n := &x.nodes[ref]
	n.Kind = kind
	n.Label = label
	if kind.Positional() {
		n.Position = position
	}
	if parent, ok := x.refs[from]; ok && parent != ref {
		n.Parent = parent
		return ref, true
	}
	n.Incomplete = true
	if x.onMiss != nil {
		x.onMiss(*n, from)
	}
	return ref, true
}
