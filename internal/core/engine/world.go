package engine

import (
	"bufio"
	"io"
	"os"
	"slices"

	"github.com/zeusync/polyengine/internal/core/observability/log"
)

// World owns an ordered set of entities and a fixed, ordered set of managers.
type World struct {
	eng       *Engine
	id        WorldID
	state     state
	managers  []Manager
	listeners []Listener
	entities  []*Entity

	// index holds every entity created for this world, including ones a
	// Loader has constructed but not yet registered.
	index map[EntityID]*Entity
}

func (w *World) ID() WorldID { return w.id }

func (w *World) Engine() *Engine { return w.eng }

// Managers returns the managers in construction order.
func (w *World) Managers() []Manager { return slices.Clone(w.managers) }

// Entities returns a snapshot of the registered entities in insertion order.
func (w *World) Entities() []*Entity { return slices.Clone(w.entities) }

// Entity looks up an entity created for this world.
func (w *World) Entity(id EntityID) (*Entity, bool) {
	e, ok := w.index[id]
	return e, ok
}

func (w *World) IsRegistered() bool  { return w.state.registered }
func (w *World) IsInitialized() bool { return w.state.initialized }
func (w *World) IsBinned() bool      { return w.state.binned }
func (w *World) IsDestroyed() bool   { return w.state.destroyed }

// IsActive reports whether this is the engine's active world.
func (w *World) IsActive() bool { return w.eng.active == w }

// Activate requests that the world becomes active in the next activation phase.
func (w *World) Activate() error {
	if err := w.checkOpen("world.activate"); err != nil {
		return err
	}
	w.eng.activating = w
	return nil
}

// Destroy bins the world and, transitively, all of its entities and components.
func (w *World) Destroy() error {
	if err := w.state.checkDestroy("world.destroy"); err != nil {
		return err.WithContext("world", uint64(w.id))
	}
	w.state.binned = true
	w.eng.termWorlds.Enqueue(w)
	w.eng.destroyWorlds.Enqueue(w)
	for _, e := range slices.Clone(w.entities) {
		if e.state.binned {
			continue
		}
		if err := e.Destroy(); err != nil {
			return err
		}
	}
	return nil
}

// AddEntity creates and registers an empty entity.
func (w *World) AddEntity() (*Entity, error) {
	if err := w.checkOpen("world.add_entity"); err != nil {
		return nil, err
	}
	e := w.newEntity()
	if err := e.register(); err != nil {
		delete(w.index, e.id)
		return nil, err
	}
	return e, nil
}

// LoadEntities constructs every entity and component described by r and
// returns a Loader positioned at the first field block. If r is an
// io.Closer it is closed by Finish, Close, or a failed construction.
func (w *World) LoadEntities(r io.Reader) (*Loader, error) {
	if err := w.checkOpen("world.load_entities"); err != nil {
		closeReader(r)
		return nil, err
	}
	return newLoader(w, r)
}

// LoadEntitiesFile opens path and calls LoadEntities.
func (w *World) LoadEntitiesFile(path string) (*Loader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, protocolError("world.load_entities", "open definition", err).WithContext("path", path)
	}
	return w.LoadEntities(&bufferedFile{Reader: bufio.NewReader(f), file: f})
}

func (w *World) checkOpen(op string) *Error {
	var cause error
	switch {
	case w.state.destroyed:
		cause = ErrDestroyed
	case !w.state.registered:
		cause = ErrNotRegistered
	case w.state.binned:
		cause = ErrAlreadyBinned
	default:
		return nil
	}
	return lifecycleError(op, cause).WithContext("world", uint64(w.id))
}

func (w *World) newEntity() *Entity {
	e := &Entity{eng: w.eng, id: EntityID(w.eng.nextID()), world: w.id}
	w.index[e.id] = e
	return e
}

func (w *World) removeEntity(e *Entity) {
	if i := slices.Index(w.entities, e); i >= 0 {
		w.entities = slices.Delete(w.entities, i, i+1)
	}
	delete(w.index, e.id)
}

func (w *World) performInit() error {
	if w.state.binned || w.state.destroyed {
		w.eng.logger.Debug("world born dead", w.fields()...)
		return nil
	}
	if err := w.state.checkInit("world.init"); err != nil {
		return err.WithContext("world", uint64(w.id))
	}
	for _, m := range w.managers {
		if i, ok := m.(Initializer); ok {
			i.Init()
		}
	}
	w.state.initialized = true
	w.eng.logger.Debug("world initialized", w.fields()...)
	return nil
}

func (w *World) performUpdate() {
	for _, m := range w.managers {
		m.Update()
	}
}

func (w *World) performTerm() {
	if !w.state.initialized {
		return
	}
	for _, m := range w.managers {
		if t, ok := m.(Terminator); ok {
			t.Term()
		}
	}
	w.state.initialized = false
	w.eng.logger.Debug("world terminated", w.fields()...)
}

// performDestroy leaves the world in the engine index until the destroy
// phase ends, so entities binned with it can still resolve it. Entity handles,
// including ones held by an unfinished Loader, are dropped.
func (w *World) performDestroy() {
	if i := slices.Index(w.eng.worlds, w); i >= 0 {
		w.eng.worlds = slices.Delete(w.eng.worlds, i, i+1)
	}
	w.entities = nil
	clear(w.index)
	w.state.markDestroyed()
	w.eng.logger.Info("world destroyed", w.fields()...)
}

func (w *World) fields() []log.Field {
	return []log.Field{log.Uint64("world", uint64(w.id))}
}

type bufferedFile struct {
	*bufio.Reader
	file *os.File
}

func (f *bufferedFile) Close() error { return f.file.Close() }

func closeReader(r io.Reader) error {
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
