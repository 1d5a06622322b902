package engine

import (
	"slices"

	"github.com/zeusync/polyengine/internal/core/observability/log"
)

// Entity is an ordered set of components belonging to one World.
type Entity struct {
	eng        *Engine
	id         EntityID
	world      WorldID
	state      state
	components []Component
}

func (e *Entity) ID() EntityID { return e.id }

// World resolves the owning world. It returns nil once the world is destroyed.
func (e *Entity) World() *World { return e.eng.world(e.world) }

// Components returns a snapshot of the live components in insertion order.
func (e *Entity) Components() []Component { return slices.Clone(e.components) }

func (e *Entity) IsRegistered() bool { return e.state.registered }
func (e *Entity) IsBinned() bool     { return e.state.binned }
func (e *Entity) IsDestroyed() bool  { return e.state.destroyed }

// AddComponent constructs a component of the named type and registers it.
// The component is initialized in the next init phase.
func (e *Entity) AddComponent(typeName string) (Component, error) {
	if !e.state.live() {
		return nil, e.unavailable("entity.add_component")
	}
	t, err := e.eng.registry.resolveComponent(typeName)
	if err != nil {
		return nil, err
	}
	c, err := newComponent(e, t)
	if err != nil {
		return nil, err
	}
	if err := registerComponent(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Destroy bins the entity and every component it currently owns.
func (e *Entity) Destroy() error {
	if err := e.state.checkDestroy("entity.destroy"); err != nil {
		return err.WithContext("entity", uint64(e.id))
	}
	e.state.binned = true
	e.eng.destroyEntities.Enqueue(e)
	for _, c := range slices.Clone(e.components) {
		if c.base().state.binned {
			continue
		}
		if err := c.base().Destroy(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Entity) unavailable(op string) *Error {
	cause := ErrOwnerUnavailable
	switch {
	case e.state.destroyed:
		cause = ErrDestroyed
	case !e.state.registered:
		cause = ErrNotRegistered
	case e.state.binned:
		cause = ErrAlreadyBinned
	}
	return lifecycleError(op, cause).WithContext("entity", uint64(e.id))
}

func (e *Entity) register() error {
	if err := e.state.checkRegister("entity.register"); err != nil {
		return err.WithContext("entity", uint64(e.id))
	}
	w := e.World()
	if w == nil || !w.state.live() {
		return lifecycleError("entity.register", ErrOwnerUnavailable).WithContext("entity", uint64(e.id))
	}
	w.entities = append(w.entities, e)
	e.state.registered = true
	e.eng.logger.Debug("entity registered", e.fields()...)
	e.eng.publish(EventEntityRegistered, w, e)
	return nil
}

func (e *Entity) performDestroy() {
	w := e.World()
	if w != nil {
		w.removeEntity(e)
	}
	e.components = nil
	e.state.markDestroyed()
	e.eng.logger.Debug("entity destroyed", e.fields()...)
	if w != nil {
		e.eng.publish(EventEntityDestroyed, w, e)
	}
}

func (e *Entity) removeComponent(c Component) {
	if i := slices.Index(e.components, c); i >= 0 {
		e.components = slices.Delete(e.components, i, i+1)
	}
}

func (e *Entity) fields() []log.Field {
	return []log.Field{
		log.Uint64("entity", uint64(e.id)),
		log.Uint64("world", uint64(e.world)),
	}
}
