package engine

import (
	"fmt"

	"github.com/zeusync/polyengine/internal/core/codec"
)

// Setter applies a decoded value to a component.
type Setter func(c Component, v any) error

// Field declares a loadable field of a component type.
//
// Hidden rejects the name even if a base type declares it; Immutable rejects
// it outright. A field without Set is treated as immutable.
type Field struct {
	Name      string
	Type      codec.Type
	Immutable bool
	Hidden    bool
	Set       Setter
}

// FieldOf declares a field holding a V on components of type C. The value
// produced by the loader for t must be a V: DefaultParser yields bool, int8,
// int16, uint16 (char), int32, int64, float32, float64 and string; references
// yield *Entity or the referenced component.
func FieldOf[C Component, V any](name string, t codec.Type, set func(C, V)) Field {
	return Field{
		Name: name,
		Type: t,
		Set: func(c Component, v any) error {
			target, ok := c.(C)
			if !ok {
				return fmt.Errorf("field %s does not belong to %T", name, c)
			}
			value, ok := v.(V)
			if !ok {
				return fmt.Errorf("field %s cannot hold a %T", name, v)
			}
			set(target, value)
			return nil
		},
	}
}

// ArrayOf declares an array field whose elements are of type elem and are
// converted to E.
func ArrayOf[C Component, E any](name string, elem codec.Type, set func(C, []E)) Field {
	return Field{
		Name: name,
		Type: codec.Array(elem),
		Set: func(c Component, v any) error {
			target, ok := c.(C)
			if !ok {
				return fmt.Errorf("field %s does not belong to %T", name, c)
			}
			raw, ok := v.([]any)
			if !ok {
				return fmt.Errorf("field %s cannot hold a %T", name, v)
			}
			out := make([]E, len(raw))
			for i, item := range raw {
				if out[i], ok = item.(E); !ok {
					return fmt.Errorf("field %s: element %d cannot hold a %T", name, i, item)
				}
			}
			set(target, out)
			return nil
		},
	}
}

// HideField shadows a base type's field so the loader rejects it.
func HideField(name string) Field {
	return Field{Name: name, Hidden: true}
}
