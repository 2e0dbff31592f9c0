package heap

// snapshotSchema is the current msgpack schema; bump when Snapshot changes.
const snapshotSchema uint16 = 1

// Snapshot is the serialised form of a heap.
type Snapshot struct {
	Schema  uint16      `toml:"-" msgpack:"schema"`
	Types   []TypeDef   `toml:"types" msgpack:"types"`
	Objects []ObjectDef `toml:"objects" msgpack:"objects"`
	Roots   []RootDef   `toml:"roots" msgpack:"roots"`
}

// TypeDef describes a type layout.
type TypeDef struct {
	Name   string     `toml:"name" msgpack:"name"`
	Kind   string     `toml:"kind" msgpack:"kind"`
	Fields []FieldDef `toml:"fields" msgpack:"fields,omitempty"`
}

// FieldDef is one field of a struct-like layout.
type FieldDef struct {
	Name    string `toml:"name" msgpack:"name,omitempty"`
	Offset  uint64 `toml:"offset" msgpack:"offset"`
	Pointer bool   `toml:"pointer" msgpack:"pointer,omitempty"`
	Inline  string `toml:"inline" msgpack:"inline,omitempty"` // type stored inline
}

// ObjectDef is one object and its outgoing references. Which lists are
// meaningful depends on the kind of its type.
type ObjectDef struct {
	Addr     uint64       `toml:"addr" msgpack:"addr"`
	Type     string       `toml:"type" msgpack:"type"`
	Bindings []BindingDef `toml:"bindings" msgpack:"bindings,omitempty"` // module
	Frame    uint64       `toml:"frame" msgpack:"frame,omitempty"`       // task: top frame
	Slots    []uint64     `toml:"slots" msgpack:"slots,omitempty"`       // frame: live slots
	Next     uint64       `toml:"next" msgpack:"next,omitempty"`         // frame: caller frame
	Elems    []uint64     `toml:"elems" msgpack:"elems,omitempty"`       // array, 0 is null
	Refs     []RefDef     `toml:"refs" msgpack:"refs,omitempty"`         // struct, tuple
	Internal []uint64     `toml:"internal" msgpack:"internal,omitempty"` // runtime-owned references
	Hidden   uint64       `toml:"hidden" msgpack:"hidden,omitempty"`     // opaque payload bytes
}

// BindingDef is one entry of a module's binding table.
type BindingDef struct {
	Name      string `toml:"name" msgpack:"name"`
	Target    uint64 `toml:"target" msgpack:"target"`
	GlobalRef bool   `toml:"globalref" msgpack:"globalref,omitempty"`
}

// RefDef is a pointer stored at a byte offset of an object. The offset is
// trusted as given; see Heap.CheckFieldRefs.
type RefDef struct {
	Offset uint64 `toml:"offset" msgpack:"offset"`
	Target uint64 `toml:"target" msgpack:"target"`
}

// RootDef names an entry point of the object graph.
type RootDef struct {
	Name string `toml:"name" msgpack:"name"`
	Addr uint64 `toml:"addr" msgpack:"addr"`
}
