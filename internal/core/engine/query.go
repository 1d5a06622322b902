package engine

// ComponentOf returns the first component of e that is a T.
func ComponentOf[T any](e *Entity) (T, bool) {
	for _, c := range e.components {
		if t, ok := c.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// ComponentsOf returns every component of e that is a T, in order.
func ComponentsOf[T any](e *Entity) []T {
	var out []T
	for _, c := range e.components {
		if t, ok := c.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// ManagerOf returns the first manager of w that is a T.
func ManagerOf[T any](w *World) (T, bool) {
	for _, m := range w.managers {
		if t, ok := m.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// ManagersOf returns every manager of w that is a T, in order.
func ManagersOf[T any](w *World) []T {
	var out []T
	for _, m := range w.managers {
		if t, ok := m.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// EntityWith returns the first entity of w holding a T component.
func EntityWith[T any](w *World) (*Entity, bool) {
	for _, e := range w.entities {
		if _, ok := ComponentOf[T](e); ok {
			return e, true
		}
	}
	return nil, false
}

// EntitiesWith returns every entity of w holding a T component.
func EntitiesWith[T any](w *World) []*Entity {
	var out []*Entity
	for _, e := range w.entities {
		if _, ok := ComponentOf[T](e); ok {
			out = append(out, e)
		}
	}
	return out
}

// WorldComponentOf returns the first T component across w's entities.
func WorldComponentOf[T any](w *World) (T, bool) {
	for _, e := range w.entities {
		if t, ok := ComponentOf[T](e); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// WorldComponentsOf returns every T component across w's entities.
func WorldComponentsOf[T any](w *World) []T {
	var out []T
	for _, e := range w.entities {
		out = append(out, ComponentsOf[T](e)...)
	}
	return out
}
