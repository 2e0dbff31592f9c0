package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"gctrail/internal/reach"
)

// CheckIndexInvariants runs the structural checks every reachability index
// must pass after a collection, whatever order edges arrived in:
// 1) every node is reachable through Lookup by its own identity
// 2) a parent is always an older node, so chains terminate
// 3) roots have no parent, other parentless nodes are flagged incomplete
// 4) positions are only set on positional edges
func CheckIndexInvariants(x *reach.Index) error {
	if x == nil {
		return fmt.Errorf("nil index")
	}
	for i := range x.Len() {
		r, err := safecast.Conv[int32](i)
		if err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		ref := reach.NodeRef(r)
		n := x.Node(ref)

		// 1) identity round trip
		if n.ID == 0 {
			return fmt.Errorf("node %d has a null identity", i)
		}
		got, ok := x.Lookup(n.ID)
		if !ok || got != ref {
			return fmt.Errorf("node %d (%s): lookup returned %d, %t", i, n.ID, got, ok)
		}

		// 2) parents precede children
		if n.Parent != reach.NoParent && (n.Parent < 0 || n.Parent >= ref) {
			return fmt.Errorf("node %d (%s): parent %d is not an older node", i, n.ID, n.Parent)
		}

		// 3) parentless nodes
		switch {
		case n.Kind == reach.KindRoot && n.Parent != reach.NoParent:
			return fmt.Errorf("root %d (%s) has parent %d", i, n.ID, n.Parent)
		case n.Kind == reach.KindRoot && n.Incomplete:
			return fmt.Errorf("root %d (%s) is flagged incomplete", i, n.ID)
		case n.Kind != reach.KindRoot && (n.Parent == reach.NoParent) != n.Incomplete:
			return fmt.Errorf("node %d (%s): parent %d but incomplete=%t", i, n.ID, n.Parent, n.Incomplete)
		}

		// 4) positions
		if !n.Kind.Positional() && n.Position != 0 {
			return fmt.Errorf("node %d (%s): %s edge carries position %d", i, n.ID, n.Kind, n.Position)
		}
	}
	return nil
}
