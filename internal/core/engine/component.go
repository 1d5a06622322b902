package engine

import (
	"github.com/zeusync/polyengine/internal/core/observability/log"
)

// Component is a unit of behavior attached to an Entity. Implementations
// embed Base:
//
//	type Health struct {
//		engine.Base
//		HP int32
//	}
//
// and may implement Initializer, Terminator or Updatable.
type Component interface {
	base() *Base
}

// Base carries the bookkeeping every component needs. Owners are stored as
// handles and resolved through the Engine.
type Base struct {
	eng    *Engine
	self   Component
	typ    *ComponentType
	id     ComponentID
	world  WorldID
	entity EntityID
	state  state
}

func (b *Base) base() *Base { return b }

func (b *Base) ID() ComponentID { return b.id }

// TypeName returns the registry name the component was built from.
func (b *Base) TypeName() string {
	if b.typ == nil {
		return ""
	}
	return b.typ.Name
}

func (b *Base) Engine() *Engine { return b.eng }

// World resolves the owning world. It returns nil once the world is destroyed.
func (b *Base) World() *World {
	if b.eng == nil {
		return nil
	}
	return b.eng.world(b.world)
}

// Entity resolves the owning entity. It returns nil once the entity or its
// world is destroyed.
func (b *Base) Entity() *Entity {
	w := b.World()
	if w == nil {
		return nil
	}
	return w.index[b.entity]
}

func (b *Base) IsRegistered() bool  { return b.state.registered }
func (b *Base) IsInitialized() bool { return b.state.initialized }
func (b *Base) IsBinned() bool      { return b.state.binned }
func (b *Base) IsDestroyed() bool   { return b.state.destroyed }

// Destroy bins the component. Termination and removal happen in later
// phases of the current or next frame.
func (b *Base) Destroy() error {
	if err := b.state.checkDestroy("component.destroy"); err != nil {
		return err.WithContext("component", uint64(b.id)).WithContext("type", b.TypeName())
	}
	b.state.binned = true
	b.eng.termComponents.Enqueue(b.self)
	b.eng.destroyComponents.Enqueue(b.self)
	return nil
}

// newComponent builds an unregistered component owned by e.
func newComponent(e *Entity, t *ComponentType) (Component, error) {
	c, err := t.New(e)
	if err != nil {
		return nil, constructionError("component.new", "factory failed", err).WithContext("type", t.Name)
	}
	if c == nil {
		return nil, constructionError("component.new", "factory returned nil", nil).WithContext("type", t.Name)
	}
	b := c.base()
	if b.eng != nil {
		return nil, constructionError("component.new", "factory returned a component that is already bound", nil).WithContext("type", t.Name)
	}
	*b = Base{
		eng:    e.eng,
		self:   c,
		typ:    t,
		id:     ComponentID(e.eng.nextID()),
		world:  e.world,
		entity: e.id,
	}
	return c, nil
}

func registerComponent(c Component) error {
	b := c.base()
	if err := b.state.checkRegister("component.register"); err != nil {
		return err
	}
	e := b.Entity()
	if e == nil || !e.state.live() {
		return lifecycleError("component.register", ErrOwnerUnavailable).WithContext("type", b.TypeName())
	}
	if w := b.World(); w == nil || !w.state.live() {
		return lifecycleError("component.register", ErrOwnerUnavailable).WithContext("type", b.TypeName())
	}
	e.components = append(e.components, c)
	b.state.registered = true
	b.eng.initComponents.Enqueue(c)
	return nil
}

func performComponentInit(c Component) error {
	b := c.base()
	if b.state.binned || b.state.destroyed {
		b.eng.logger.Debug("component born dead", componentFields(b)...)
		return nil
	}
	if err := b.state.checkInit("component.init"); err != nil {
		return err
	}
	w := b.World()
	if w == nil || !w.state.initialized {
		return lifecycleError("component.init", ErrNotInitialized).WithContext("world", uint64(b.world))
	}

	if i, ok := c.(Initializer); ok {
		i.Init()
	}
	b.state.initialized = true
	for _, l := range w.listeners {
		l.Subscribe(c)
	}
	b.eng.logger.Debug("component initialized", componentFields(b)...)
	return nil
}

func performComponentTerm(c Component) {
	b := c.base()
	if !b.state.initialized {
		return
	}
	if w := b.World(); w != nil {
		for _, l := range w.listeners {
			l.Unsubscribe(c)
		}
	}
	if t, ok := c.(Terminator); ok {
		t.Term()
	}
	b.state.initialized = false
	b.eng.logger.Debug("component terminated", componentFields(b)...)
}

func performComponentDestroy(c Component) {
	b := c.base()
	if e := b.Entity(); e != nil {
		e.removeComponent(c)
	}
	b.state.markDestroyed()
}

func componentFields(b *Base) []log.Field {
	return []log.Field{
		log.Uint64("component", uint64(b.id)),
		log.String("type", b.TypeName()),
		log.Uint64("entity", uint64(b.entity)),
		log.Uint64("world", uint64(b.world)),
	}
}
