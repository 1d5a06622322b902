package engine

import (
	"errors"
	"slices"

	"github.com/zeusync/polyengine/internal/core/codec"
)

// Builtin identifiers installed by RegisterBuiltins.
const (
	DefaultName  = "default"
	LifetimeName = "lifetime"
	QuitName     = "quit"
)

// RegisterBuiltins installs the default parser and manager and the lifetime
// and quit components.
func RegisterBuiltins(r *Registry) error {
	return errors.Join(
		r.RegisterParser(DefaultName, NewDefaultParser),
		r.RegisterManager(DefaultName, NewUpdateManager),
		r.RegisterComponent(ComponentType{
			Name: LifetimeName,
			New:  func(*Entity) (Component, error) { return &Lifetime{}, nil },
			Fields: []Field{
				FieldOf(FieldFrames, codec.Int, func(c *Lifetime, v int32) { c.Frames = v }),
			},
		}),
		r.RegisterComponent(ComponentType{
			Name: QuitName,
			New:  func(*Entity) (Component, error) { return &Quit{}, nil },
			Fields: []Field{
				FieldOf(FieldFrames, codec.Int, func(c *Quit, v int32) { c.Frames = v }),
			},
		}),
	)
}

const FieldFrames = "frames"

// UpdateManager drives every initialized Updatable component of its world,
// in subscription order.
type UpdateManager struct {
	world      *World
	updatables []Updatable
}

func NewUpdateManager(w *World) (Manager, error) {
	return &UpdateManager{world: w}, nil
}

func (m *UpdateManager) Subscribe(c Component) {
	u, ok := c.(Updatable)
	if !ok || !c.base().state.initialized || slices.Contains(m.updatables, u) {
		return
	}
	m.updatables = append(m.updatables, u)
}

func (m *UpdateManager) Unsubscribe(c Component) {
	u, ok := c.(Updatable)
	if !ok {
		return
	}
	if i := slices.Index(m.updatables, u); i >= 0 {
		m.updatables = slices.Delete(m.updatables, i, i+1)
	}
}

func (m *UpdateManager) Update() {
	for _, u := range m.updatables {
		u.Update()
	}
}

func (m *UpdateManager) Term() {
	m.updatables = nil
}

// Len returns the number of subscribed components.
func (m *UpdateManager) Len() int { return len(m.updatables) }

// Lifetime destroys its entity after Frames updates.
type Lifetime struct {
	Base
	Frames  int32
	elapsed int32
}

func (c *Lifetime) Update() {
	c.elapsed++
	if c.elapsed < c.Frames {
		return
	}
	if e := c.Entity(); e != nil && !e.IsBinned() {
		if err := e.Destroy(); err != nil {
			c.Engine().logger.Warn("lifetime: destroy entity", errorFields(err)...)
		}
	}
}

// Quit stops the engine after Frames updates.
type Quit struct {
	Base
	Frames  int32
	elapsed int32
}

func (c *Quit) Update() {
	c.elapsed++
	if c.elapsed >= c.Frames {
		c.Engine().Stop()
	}
}
