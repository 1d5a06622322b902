package engine

type (
	WorldID     uint64
	EntityID    uint64
	ComponentID uint64
)

// state is the four-flag lifecycle shared by worlds, entities and components.
// Entities never set initialized.
type state struct {
	registered  bool
	initialized bool
	binned      bool
	destroyed   bool
}

// live reports whether the object may still own new children.
func (s *state) live() bool {
	return s.registered && !s.binned && !s.destroyed
}

func (s *state) checkRegister(op string) *Error {
	switch {
	case s.destroyed:
		return lifecycleError(op, ErrDestroyed)
	case s.registered:
		return lifecycleError(op, ErrAlreadyRegistered)
	}
	return nil
}

func (s *state) checkDestroy(op string) *Error {
	switch {
	case s.destroyed:
		return lifecycleError(op, ErrDestroyed)
	case !s.registered:
		return lifecycleError(op, ErrNotRegistered)
	case s.binned:
		return lifecycleError(op, ErrAlreadyBinned)
	}
	return nil
}

func (s *state) checkInit(op string) *Error {
	switch {
	case !s.registered:
		return lifecycleError(op, ErrNotRegistered)
	case s.initialized:
		return lifecycleError(op, ErrAlreadyInitialized)
	}
	return nil
}

// markDestroyed is terminal. A destroyed object is neither registered nor binned.
func (s *state) markDestroyed() {
	*s = state{destroyed: true}
}

// Initializer is implemented by components and managers with an init hook.
type Initializer interface {
	Init()
}

// Terminator is implemented by components and managers with a term hook.
type Terminator interface {
	Term()
}

// Updatable components are driven by the default manager every frame.
type Updatable interface {
	Update()
}

// Listener marks a manager that tracks component init and term.
type Listener interface {
	Subscribe(c Component)
	Unsubscribe(c Component)
}
