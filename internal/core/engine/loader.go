package engine

import (
	"io"
	"slices"

	"github.com/zeusync/polyengine/internal/config"
	"github.com/zeusync/polyengine/internal/core/codec"
	"github.com/zeusync/polyengine/internal/core/observability/log"
)

// Loader decodes an entity definition stream into a World.
//
// The stream is
//
//	Stream    := EntityCount:int32, Entity*
//	Entity    := EntityId:int32, ComponentCount:int32, Component*
//	Component := ComponentId:int32, FieldCount:int32, TypeName:string
//
// followed by one field block per component in header order, each holding
// FieldCount (FieldName:string, value) pairs. Every header is read when the
// Loader is created so fields may reference entities and components that
// appear later in the stream. Each Load call decodes one entity's field
// blocks; Finish registers the whole graph with the world at once.
type Loader struct {
	world   *World
	input   io.Reader
	r       *codec.Reader
	parsers []Parser
	logger  log.Log

	entities   []entityEntry
	components []componentEntry

	entitiesByID   map[int32]*Entity
	componentsByID map[int32]Component

	loaded        int
	nextComponent int
	loading       bool
	loadingEntity bool
	finished      bool
	err           error
}

const maxArrayPrealloc = 1024

type entityEntry struct {
	id         int32
	entity     *Entity
	components int
}

type componentEntry struct {
	id     int32
	fields int
	typ    *ComponentType
	value  Component
}

func newLoader(w *World, input io.Reader) (*Loader, error) {
	l := &Loader{
		world:          w,
		input:          input,
		r:              codec.NewReader(input),
		logger:         w.eng.logger.Named("loader").With(log.Uint64("world", uint64(w.id))),
		entitiesByID:   make(map[int32]*Entity),
		componentsByID: make(map[int32]Component),
	}
	if err := l.construct(); err != nil {
		l.abandon()
		return nil, err
	}
	if err := l.buildParsers(); err != nil {
		l.abandon()
		return nil, err
	}
	l.loading = len(l.entities) > 0
	l.logger.Debug("loader constructed",
		log.Int("entities", len(l.entities)),
		log.Int("components", len(l.components)),
		log.Int("parsers", len(l.parsers)),
	)
	return l, nil
}

func (l *Loader) construct() error {
	entityCount, err := l.r.ReadLength()
	if err != nil {
		return l.streamError("entity count", err)
	}
	for range entityCount {
		id, err := l.r.ReadInt32()
		if err != nil {
			return l.streamError("entity id", err)
		}
		componentCount, err := l.r.ReadLength()
		if err != nil {
			return l.streamError("component count", err)
		}
		if _, dup := l.entitiesByID[id]; dup {
			return protocolError("loader.construct", "duplicate entity id", nil).WithContext("entity_id", id)
		}
		e := l.world.newEntity()
		l.entities = append(l.entities, entityEntry{id: id, entity: e, components: componentCount})
		l.entitiesByID[id] = e

		for range componentCount {
			cid, err := l.r.ReadInt32()
			if err != nil {
				return l.streamError("component id", err)
			}
			fieldCount, err := l.r.ReadLength()
			if err != nil {
				return l.streamError("field count", err)
			}
			typeName, err := l.r.ReadString()
			if err != nil {
				return l.streamError("component type", err)
			}
			if _, dup := l.componentsByID[cid]; dup {
				return protocolError("loader.construct", "duplicate component id", nil).WithContext("component_id", cid)
			}
			t, err := l.world.eng.registry.resolveComponent(typeName)
			if err != nil {
				return err
			}
			c, err := newComponent(e, t)
			if err != nil {
				return err
			}
			l.components = append(l.components, componentEntry{id: cid, fields: fieldCount, typ: t, value: c})
			l.componentsByID[cid] = c
		}
	}
	return nil
}

func (l *Loader) buildParsers() error {
	names, err := l.world.eng.config.Fields(config.KeyParser)
	if err != nil {
		return configurationError("loader.parsers", "parser list", err)
	}
	for _, name := range names {
		factory, err := l.world.eng.registry.parser(name)
		if err != nil {
			return err
		}
		p, err := factory(l)
		if err != nil {
			return constructionError("parser.new", "factory failed", err).WithContext("parser", name)
		}
		if p == nil {
			return constructionError("parser.new", "factory returned nil", nil).WithContext("parser", name)
		}
		l.parsers = append(l.parsers, p)
	}
	return nil
}

func (l *Loader) World() *World { return l.world }

// Reader exposes the stream to parsers.
func (l *Loader) Reader() *codec.Reader { return l.r }

func (l *Loader) IsLoading() bool       { return l.loading }
func (l *Loader) IsLoadingEntity() bool { return l.loadingEntity }
func (l *Loader) IsFinished() bool      { return l.finished }

// Err returns the error that stopped the loader, if any.
func (l *Loader) Err() error { return l.err }

// Progress is the fraction of entities whose fields have been loaded. An
// empty stream is complete from the start.
func (l *Loader) Progress() float64 {
	if len(l.entities) == 0 {
		return 1
	}
	return float64(l.loaded) / float64(len(l.entities))
}

// Load decodes the field blocks of the next entity. Any error leaves the
// loader failed; later calls return ErrLoaderFailed.
func (l *Loader) Load() error {
	switch {
	case l.err != nil:
		return lifecycleError("loader.load", ErrLoaderFailed)
	case l.finished:
		return lifecycleError("loader.load", ErrLoaderFinished)
	case l.loadingEntity:
		return lifecycleError("loader.load", ErrLoaderBusy)
	case !l.loading:
		return lifecycleError("loader.load", ErrNotLoading)
	}

	l.loadingEntity = true
	defer func() { l.loadingEntity = false }()

	entry := l.entities[l.loaded]
	for _, ce := range l.components[l.nextComponent : l.nextComponent+entry.components] {
		if err := l.loadFields(ce); err != nil {
			l.err = err
			if e, ok := err.(*Error); ok {
				e.WithContext("entity_id", entry.id).WithContext("component_id", ce.id)
			}
			l.logger.Warn("load failed", errorFields(err)...)
			return err
		}
	}

	l.loaded++
	l.nextComponent += entry.components
	if l.loaded == len(l.entities) {
		l.loading = false
	}
	return nil
}

func (l *Loader) loadFields(ce componentEntry) error {
	for range ce.fields {
		name, err := l.r.ReadString()
		if err != nil {
			return l.streamError("field name", err)
		}
		field, err := l.world.eng.registry.resolveField(ce.typ, name)
		if err != nil {
			return err
		}
		v, err := l.Parse(field.Type)
		if err != nil {
			if e, ok := err.(*Error); ok {
				e.WithContext("field", name)
			}
			return err
		}
		if err := field.Set(ce.value, v); err != nil {
			return protocolError("loader.field", "set", err).WithContext("type", ce.typ.Name).WithContext("field", name)
		}
	}
	return nil
}

// Parse decodes one value of type t. References are resolved against the
// stream's ids, arrays are decoded element by element, and everything else
// is offered to the parser chain.
func (l *Loader) Parse(t codec.Type) (any, error) {
	switch t.Kind {
	case codec.KindEntity:
		id, err := l.r.ReadInt32()
		if err != nil {
			return nil, l.streamError("entity reference", err)
		}
		e, ok := l.entitiesByID[id]
		if !ok {
			return nil, protocolError("loader.parse", "no entity with id", nil).WithContext("entity_id", id)
		}
		return e, nil

	case codec.KindComponent:
		id, err := l.r.ReadInt32()
		if err != nil {
			return nil, l.streamError("component reference", err)
		}
		c, ok := l.componentsByID[id]
		if !ok {
			return nil, protocolError("loader.parse", "no component with id", nil).WithContext("component_id", id)
		}
		return c, nil

	case codec.KindArray:
		if t.Elem == nil {
			return nil, protocolError("loader.parse", "array without element type", nil)
		}
		n, err := l.r.ReadLength()
		if err != nil {
			return nil, l.streamError("array length", err)
		}
		// n comes from the stream; grow as elements decode.
		out := make([]any, 0, min(n, maxArrayPrealloc))
		for range n {
			v, err := l.Parse(*t.Elem)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	for _, p := range l.parsers {
		v, ok, err := p.Parse(t, l)
		if err != nil {
			return nil, l.streamError(t.String(), err)
		}
		if ok {
			return v, nil
		}
	}
	return nil, protocolError("loader.parse", "no parser accepts type", nil).WithContext("value_type", t.String())
}

// Finish closes the input and registers every constructed entity, then every
// component, with the world.
func (l *Loader) Finish() (*Result, error) {
	switch {
	case l.err != nil:
		return nil, lifecycleError("loader.finish", ErrLoaderFailed)
	case l.finished:
		return nil, lifecycleError("loader.finish", ErrLoaderFinished)
	case l.loading:
		return nil, lifecycleError("loader.finish", ErrStillLoading)
	}
	if err := l.world.checkOpen("loader.finish"); err != nil {
		return nil, err
	}

	l.finished = true
	if err := closeReader(l.input); err != nil {
		return nil, protocolError("loader.finish", "close input", err)
	}

	res := &Result{
		world:      l.world,
		entities:   make([]*Entity, 0, len(l.entities)),
		components: make([]Component, 0, len(l.components)),
	}
	for _, ee := range l.entities {
		if err := ee.entity.register(); err != nil {
			return nil, err
		}
		res.entities = append(res.entities, ee.entity)
	}
	for _, ce := range l.components {
		if err := registerComponent(ce.value); err != nil {
			return nil, err
		}
		res.components = append(res.components, ce.value)
	}

	l.world.eng.registry.ClearCaches()
	l.logger.Info("loader finished",
		log.Int("entities", len(res.entities)),
		log.Int("components", len(res.components)),
	)
	return res, nil
}

// LoadAll loads every remaining entity and finishes. On failure the loader
// is closed.
func (l *Loader) LoadAll() (*Result, error) {
	for l.IsLoading() {
		if err := l.Load(); err != nil {
			_ = l.Close()
			return nil, err
		}
	}
	res, err := l.Finish()
	if err != nil {
		_ = l.Close()
		return nil, err
	}
	return res, nil
}

// Close abandons an unfinished loader, closing the input and discarding the
// constructed graph. It is a no-op after Finish.
func (l *Loader) Close() error {
	if l.finished {
		return nil
	}
	l.finished = true
	l.loading = false
	return l.abandon()
}

func (l *Loader) abandon() error {
	for _, ee := range l.entities {
		delete(l.world.index, ee.entity.id)
	}
	return closeReader(l.input)
}

func (l *Loader) streamError(what string, err error) *Error {
	return protocolError("loader", what, err).WithContext("offset", l.r.Offset())
}

// Result is the graph produced by a Loader.
type Result struct {
	world      *World
	entities   []*Entity
	components []Component
}

func (r *Result) World() *World { return r.world }

// Entities returns the loaded entities in stream order.
func (r *Result) Entities() []*Entity { return slices.Clone(r.entities) }

// Components returns the loaded components in stream order.
func (r *Result) Components() []Component { return slices.Clone(r.components) }
