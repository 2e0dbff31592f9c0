package heap

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"gctrail/internal/reach"
)

var (
	// ErrUnknownObject is returned when a reference names an address that
	// is not part of the heap.
	ErrUnknownObject = errors.New("unknown object")
	// ErrUnknownType is returned when an object or field names an undefined type.
	ErrUnknownType = errors.New("unknown type")
)

// Kind classifies a type layout.
type Kind uint8

const (
	KindStruct Kind = iota + 1
	KindTuple
	KindNamedTuple
	KindArray
	KindModule
	KindTask
	KindFrame
	KindOpaque
)

var kindNames = map[string]Kind{
	"struct":     KindStruct,
	"tuple":      KindTuple,
	"namedtuple": KindNamedTuple,
	"array":      KindArray,
	"module":     KindModule,
	"task":       KindTask,
	"frame":      KindFrame,
	"opaque":     KindOpaque,
}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	if k, ok := kindNames[strings.ToLower(s)]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("invalid type kind: %q", s)
}

// String returns the string representation of Kind.
func (k Kind) String() string {
	for name, v := range kindNames {
		if v == k {
			return name
		}
	}
	return "unknown"
}

// Field is one field of a layout.
type Field struct {
	Name    string
	Offset  uint64
	Pointer bool
	Inline  *Type
}

// Type is a resolved layout.
type Type struct {
	Name   string
	Kind   Kind
	Fields []Field // sorted by offset
}

func (t *Type) structLike() bool {
	return t.Kind == KindStruct || t.Kind == KindTuple || t.Kind == KindNamedTuple
}

// Object is one heap object.
type Object struct {
	ID   reach.ID
	Type *Type
	Def  ObjectDef
}

// Root is a named entry point.
type Root struct {
	Name string
	ID   reach.ID
}

// Heap is an immutable object graph built from a Snapshot.
type Heap struct {
	snap    *Snapshot
	types   map[string]*Type
	objects map[reach.ID]*Object
	order   []reach.ID // ascending addresses
	roots   []Root
}

// Build validates a snapshot and resolves its layouts and references.
// Field reference offsets are not checked against the layout: such a heap
// stands in for a host whose layout is corrupt, and tracing it traps when
// the bad edge is reported. Use CheckFieldRefs to reject them up front.
func Build(snap *Snapshot) (*Heap, error) {
	h := &Heap{
		snap:    snap,
		types:   make(map[string]*Type, len(snap.Types)),
		objects: make(map[reach.ID]*Object, len(snap.Objects)),
	}

	for _, td := range snap.Types {
		if td.Name == "" {
			return nil, errors.New("type without a name")
		}
		if _, dup := h.types[td.Name]; dup {
			return nil, fmt.Errorf("duplicate type %q", td.Name)
		}
		kind, err := ParseKind(td.Kind)
		if err != nil {
			return nil, fmt.Errorf("type %q: %w", td.Name, err)
		}
		h.types[td.Name] = &Type{Name: td.Name, Kind: kind}
	}
	for _, td := range snap.Types {
		t := h.types[td.Name]
		for _, fd := range td.Fields {
			f := Field{Name: fd.Name, Offset: fd.Offset, Pointer: fd.Pointer}
			if fd.Inline != "" {
				inline, ok := h.types[fd.Inline]
				if !ok {
					return nil, fmt.Errorf("type %q field %q: %w %q", td.Name, fd.Name, ErrUnknownType, fd.Inline)
				}
				if f.Pointer {
					return nil, fmt.Errorf("type %q field %q: inline field cannot be a pointer", td.Name, fd.Name)
				}
				f.Inline = inline
			}
			t.Fields = append(t.Fields, f)
		}
		slices.SortStableFunc(t.Fields, func(a, b Field) int {
			switch {
			case a.Offset < b.Offset:
				return -1
			case a.Offset > b.Offset:
				return 1
			}
			return 0
		})
	}

	if err := h.checkInlineCycles(); err != nil {
		return nil, err
	}

	for _, od := range snap.Objects {
		id := reach.ID(od.Addr)
		if id == 0 {
			return nil, errors.New("object at address 0")
		}
		if _, dup := h.objects[id]; dup {
			return nil, fmt.Errorf("duplicate object %s", id)
		}
		t, ok := h.types[od.Type]
		if !ok {
			return nil, fmt.Errorf("object %s: %w %q", id, ErrUnknownType, od.Type)
		}
		h.objects[id] = &Object{ID: id, Type: t, Def: od}
		h.order = append(h.order, id)
	}
	slices.Sort(h.order)

	for _, id := range h.order {
		if err := h.checkRefs(h.objects[id]); err != nil {
			return nil, err
		}
	}
	for _, rd := range snap.Roots {
		id := reach.ID(rd.Addr)
		if _, ok := h.objects[id]; !ok {
			return nil, fmt.Errorf("root %q: %w %s", rd.Name, ErrUnknownObject, id)
		}
		h.roots = append(h.roots, Root{Name: rd.Name, ID: id})
	}
	return h, nil
}

// checkInlineCycles rejects types that contain themselves inline, directly
// or through other inline fields; such a type would have no finite size.
func (h *Heap) checkInlineCycles() error {
	var (
		stack []*Type
		index = make(map[*Type]int)
		done  = make(map[*Type]bool)
	)
	var visit func(t *Type) error
	visit = func(t *Type) error {
		if done[t] {
			return nil
		}
		if i, ok := index[t]; ok {
			names := make([]string, 0, len(stack)-i+1)
			for _, c := range stack[i:] {
				names = append(names, c.Name)
			}
			names = append(names, t.Name)
			return fmt.Errorf("type %q contains itself inline: %s", t.Name, strings.Join(names, " -> "))
		}
		index[t] = len(stack)
		stack = append(stack, t)
		for _, f := range t.Fields {
			if f.Inline != nil {
				if err := visit(f.Inline); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		delete(index, t)
		done[t] = true
		return nil
	}
	for _, td := range h.snap.Types {
		if err := visit(h.types[td.Name]); err != nil {
			return err
		}
	}
	return nil
}

func (h *Heap) checkRefs(o *Object) error {
	check := func(what string, addr uint64) error {
		if addr == 0 {
			return nil
		}
		if _, ok := h.objects[reach.ID(addr)]; !ok {
			return fmt.Errorf("object %s %s: %w %s", o.ID, what, ErrUnknownObject, reach.ID(addr))
		}
		return nil
	}
	d := o.Def
	for _, b := range d.Bindings {
		if err := check("binding "+b.Name, b.Target); err != nil {
			return err
		}
	}
	targets := [][]uint64{{d.Frame, d.Next}, d.Slots, d.Elems, d.Internal}
	for _, list := range targets {
		for _, addr := range list {
			if err := check("reference", addr); err != nil {
				return err
			}
		}
	}
	for _, r := range d.Refs {
		if err := check(fmt.Sprintf("offset %d", r.Offset), r.Target); err != nil {
			return err
		}
		if !o.Type.structLike() {
			return fmt.Errorf("object %s: field references on %s type %q", o.ID, o.Type.Kind, o.Type.Name)
		}
	}
	return nil
}

// Snapshot returns the snapshot the heap was built from.
func (h *Heap) Snapshot() *Snapshot { return h.snap }

// Roots returns the roots in declaration order.
func (h *Heap) Roots() []Root { return h.roots }

// Len returns the number of objects.
func (h *Heap) Len() int { return len(h.objects) }

// Lookup returns the object at id.
func (h *Heap) Lookup(id reach.ID) (*Object, bool) {
	o, ok := h.objects[id]
	return o, ok
}

// Objects returns every address in ascending order.
func (h *Heap) Objects() []reach.ID {
	return slices.Clone(h.order)
}

// ObjectsOfType returns the addresses of every object of the named type, in
// ascending order.
func (h *Heap) ObjectsOfType(name string) []reach.ID {
	var out []reach.ID
	for _, id := range h.order {
		if h.objects[id].Type.Name == name {
			out = append(out, id)
		}
	}
	return out
}

// Describe returns the type name of the object at id.
func (h *Heap) Describe(id reach.ID) string {
	if o, ok := h.objects[id]; ok {
		return o.Type.Name
	}
	return "<unknown type>"
}
