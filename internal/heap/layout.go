package heap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gctrail/internal/reach"
)

// ErrBadFieldRef is returned by CheckFieldRefs for a reference whose offset
// does not name a pointer field.
var ErrBadFieldRef = errors.New("bad field reference")

// CheckFieldRefs resolves every field reference against the layout of its
// object and returns the first one that does not land on a pointer field.
func (h *Heap) CheckFieldRefs() error {
	for _, id := range h.order {
		o := h.objects[id]
		for _, r := range o.Def.Refs {
			if _, err := resolveField(o.Type, r.Offset); err != nil {
				return fmt.Errorf("object %s: %w: %w", id, ErrBadFieldRef, err)
			}
		}
	}
	return nil
}

// ResolveField maps a byte offset inside the object at from to the field
// holding the pointer. Inline structs are unwrapped level by level, so the
// name is a dotted path such as "inner.next"; tuple components have no name
// and render as "[i]". The returned index is the top-level field of from.
func (h *Heap) ResolveField(from reach.ID, offset uint64) (reach.FieldRef, error) {
	o, ok := h.objects[from]
	if !ok {
		return reach.FieldRef{}, fmt.Errorf("%w %s", ErrUnknownObject, from)
	}
	return resolveField(o.Type, offset)
}

func resolveField(t *Type, offset uint64) (reach.FieldRef, error) {
	var (
		name  strings.Builder
		ref   = reach.FieldRef{Index: -1}
		level = 0
	)
	for {
		if !t.structLike() {
			return ref, fmt.Errorf("offset %d: %s type %q has no fields", offset, t.Kind, t.Name)
		}
		// proceed backwards to the last field starting at or before offset
		idx := len(t.Fields) - 1
		for idx >= 0 && t.Fields[idx].Offset > offset {
			idx--
		}
		if idx < 0 {
			return ref, fmt.Errorf("offset %d precedes the first field of %q", offset, t.Name)
		}
		f := t.Fields[idx]
		if level == 0 {
			ref.Index = idx
		}

		switch {
		case t.Kind == KindTuple:
			name.WriteString("[" + strconv.Itoa(idx) + "]")
		default:
			if name.Len() > 0 {
				name.WriteByte('.')
			}
			if f.Name != "" {
				name.WriteString(f.Name)
			} else {
				name.WriteString("<unknown field name>")
			}
		}

		switch {
		case f.Pointer:
			if offset != f.Offset {
				return ref, fmt.Errorf("offset %d is inside pointer field %q of %q", offset, f.Name, t.Name)
			}
			ref.Name = name.String()
			return ref, nil
		case f.Inline != nil:
			offset -= f.Offset
			t = f.Inline
			level++
		default:
			return ref, fmt.Errorf("offset %d lands in non-pointer field %q of %q", offset, f.Name, t.Name)
		}
	}
}
