package reach

import "fmt"

// ID is the opaque identity of a host object, usually its address.
type ID uint64

// String formats the identity as a hex address.
func (id ID) String() string {
	return fmt.Sprintf("%#x", uint64(id))
}

// EdgeKind is the kind of connection from a parent to the node it introduced.
type EdgeKind uint8

const (
	KindUnknown       EdgeKind = iota
	KindRoot                   // entry point: main module, task, type map
	KindModuleBinding          // value in a module's binding table
	KindTaskFrame              // top frame of a task's stack
	KindStackFrame             // frame or slot reached from another frame
	KindArrayIndex             // element of an array, Position is the index
	KindField                  // field of an object or tuple, Position is the field index
)

// String returns the string representation of EdgeKind.
func (k EdgeKind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindModuleBinding:
		return "module-binding"
	case KindTaskFrame:
		return "task-frame"
	case KindStackFrame:
		return "stack-frame"
	case KindArrayIndex:
		return "array-index"
	case KindField:
		return "field"
	default:
		return "unknown"
	}
}

// Positional reports whether Position carries meaning for this kind.
func (k EdgeKind) Positional() bool {
	return k == KindArrayIndex || k == KindField
}
