package reach

// FieldRef names the field of an object that holds a pointer.
type FieldRef struct {
	Index int    // index of the top-level field in the parent object
	Name  string // dotted path through inline structs, e.g. "x.y" or "[2]"
}

// FieldResolver maps a raw byte offset inside an object to the field stored
// there. It is provided by the host, which owns object layouts.
type FieldResolver interface {
	ResolveField(from ID, offset uint64) (FieldRef, error)
}

// Describer renders the type of a host object for chain output.
type Describer interface {
	Describe(id ID) string
}

// DescriberFunc adapts a function to Describer.
type DescriberFunc func(ID) string

// Describe calls f(id).
func (f DescriberFunc) Describe(id ID) string { return f(id) }

// EdgeSink receives edges from the host collector during traversal. Edges
// must be reported in discovery order: an object is reported as the source
// of an edge only after it has itself been reported.
type EdgeSink interface {
	ReportRoot(id ID, name string)
	ReportBinding(module, to ID, name string)
	ReportBindingGlobalRef(module, to ID, name string)
	ReportTaskFrame(task, frame ID)
	ReportFrameLink(from, to ID)
	ReportArrayEdge(from, to ID, index uint64)
	ReportFieldEdge(from, to ID, offset uint64)
	ReportInternalEdge(from, to ID)
	ReportOpaqueEdge(from ID, bytes uint64)
}
