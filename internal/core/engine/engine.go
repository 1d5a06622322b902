package engine

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/polyengine/internal/config"
	"github.com/zeusync/polyengine/internal/core/events/bus"
	"github.com/zeusync/polyengine/internal/core/observability/log"
	"github.com/zeusync/polyengine/pkg/sequence"
)

// Engine owns every world and the deferred lifecycle queues, and drives the
// active world one frame at a time. It is not safe for concurrent use: all
// methods, hooks and manager updates run on the goroutine calling Step or Run.
type Engine struct {
	registry *Registry
	config   *config.Config
	logger   log.Log
	events   bus.EventBus
	runID    uuid.UUID
	tick     time.Duration

	lastID     uint64
	worlds     []*World
	worldIndex map[WorldID]*World
	active     *World
	activating *World

	initWorlds    *sequence.Queue[*World]
	termWorlds    *sequence.Queue[*World]
	destroyWorlds *sequence.Queue[*World]

	initComponents    *sequence.Queue[Component]
	termComponents    *sequence.Queue[Component]
	destroyComponents *sequence.Queue[Component]

	destroyEntities *sequence.Queue[*Entity]

	frame    uint64
	stopping bool
	halted   bool
}

type Option func(*Engine)

func WithLogger(l log.Log) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTickRate paces Run to at most one frame per d. Zero runs unpaced.
func WithTickRate(d time.Duration) Option {
	return func(e *Engine) { e.tick = d }
}

func WithEventBus(b bus.EventBus) Option {
	return func(e *Engine) { e.events = b }
}

// New creates an engine resolving identifiers in reg and reading the
// manager and parser lists from cfg.
func New(reg *Registry, cfg *config.Config, opts ...Option) *Engine {
	e := &Engine{
		registry:          reg,
		config:            cfg,
		runID:             uuid.New(),
		worldIndex:        make(map[WorldID]*World),
		initWorlds:        sequence.NewQueue[*World](),
		termWorlds:        sequence.NewQueue[*World](),
		destroyWorlds:     sequence.NewQueue[*World](),
		initComponents:    sequence.NewQueue[Component](),
		termComponents:    sequence.NewQueue[Component](),
		destroyComponents: sequence.NewQueue[Component](),
		destroyEntities:   sequence.NewQueue[*Entity](),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.NewNop()
	}
	if e.events == nil {
		e.events = bus.New()
	}
	e.logger = e.logger.With(log.String("run", e.runID.String()))
	return e
}

func (e *Engine) Registry() *Registry     { return e.registry }
func (e *Engine) Config() *config.Config  { return e.config }
func (e *Engine) Logger() log.Log         { return e.logger }
func (e *Engine) Events() bus.EventBus    { return e.events }
func (e *Engine) RunID() uuid.UUID        { return e.runID }
func (e *Engine) Frame() uint64           { return e.frame }
func (e *Engine) IsStopping() bool        { return e.stopping }
func (e *Engine) IsRunning() bool         { return !e.halted }
func (e *Engine) ActiveWorld() *World     { return e.active }
func (e *Engine) Worlds() []*World        { return slices.Clone(e.worlds) }
func (e *Engine) World(id WorldID) *World { return e.world(id) }

func (e *Engine) world(id WorldID) *World {
	return e.worldIndex[id]
}

func (e *Engine) nextID() uint64 {
	e.lastID++
	return e.lastID
}

// AddWorld constructs a world with the configured managers and registers it.
// The world is initialized in the next init phase.
func (e *Engine) AddWorld() (*World, error) {
	switch {
	case e.halted:
		return nil, lifecycleError("engine.add_world", ErrHalted)
	case e.stopping:
		return nil, lifecycleError("engine.add_world", ErrStopping)
	}

	w := &World{eng: e, id: WorldID(e.nextID()), index: make(map[EntityID]*Entity)}
	if err := e.newManagers(w); err != nil {
		return nil, err
	}

	e.worlds = append(e.worlds, w)
	e.worldIndex[w.id] = w
	w.state.registered = true
	e.initWorlds.Enqueue(w)

	e.logger.Info("world created", log.Uint64("world", uint64(w.id)), log.Int("managers", len(w.managers)))
	e.publish(EventWorldCreated, w, w)
	return w, nil
}

// Stop bins every world and drops any pending activation. The engine halts
// at the end of the first frame that leaves every queue empty.
func (e *Engine) Stop() {
	if e.stopping || e.halted {
		return
	}
	e.stopping = true
	e.activating = nil
	e.logger.Info("engine stopping", log.Int("worlds", len(e.worlds)))
	for _, w := range slices.Clone(e.worlds) {
		if w.state.binned {
			continue
		}
		if err := w.Destroy(); err != nil {
			e.logger.Warn("stop: destroy world", errorFields(err)...)
		}
	}
}

// Step runs one frame: init, activation, update, term and destroy. Errors
// from the activation phase and from lifecycle checks are joined and
// returned after the frame completes.
func (e *Engine) Step() error {
	if e.halted {
		return lifecycleError("engine.step", ErrHalted)
	}

	var errs []error
	errs = append(errs, e.drainInit()...)
	if err := e.activate(); err != nil {
		errs = append(errs, err)
	}
	if e.active != nil {
		e.active.performUpdate()
	}
	e.drainTerm()
	e.drainDestroy()

	e.frame++
	if e.stopping && e.idle() {
		e.halted = true
		e.logger.Info("engine halted", log.Uint64("frames", e.frame))
	}
	return errors.Join(errs...)
}

// Run steps until the engine halts. Cancelling ctx requests Stop; the loop
// keeps stepping until the queues drain.
func (e *Engine) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if e.tick > 0 {
		t := time.NewTicker(e.tick)
		defer t.Stop()
		tick = t.C
	}

	done := ctx.Done()
	for !e.halted {
		select {
		case <-done:
			e.Stop()
			done = nil
		default:
		}

		if err := e.Step(); err != nil {
			return err
		}

		if tick != nil && !e.halted {
			select {
			case <-tick:
			case <-done:
			}
		}
	}
	return nil
}

func (e *Engine) drainInit() []error {
	var errs []error
	for !(e.initWorlds.IsEmpty() && e.initComponents.IsEmpty()) {
		worlds, components := e.initWorlds.Len(), e.initComponents.Len()
		for range worlds {
			w, _ := e.initWorlds.Dequeue()
			if err := w.performInit(); err != nil {
				errs = append(errs, err)
			}
		}
		for range components {
			c, _ := e.initComponents.Dequeue()
			if err := performComponentInit(c); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}

func (e *Engine) activate() error {
	w := e.activating
	if w == nil {
		return nil
	}
	e.activating = nil

	var cause error
	switch {
	case w.state.destroyed:
		cause = ErrDestroyed
	case !w.state.registered:
		cause = ErrNotRegistered
	case !w.state.initialized:
		cause = ErrNotInitialized
	}
	if cause != nil {
		return lifecycleError("world.activate", cause).WithContext("world", uint64(w.id))
	}
	if e.active == w {
		return nil
	}

	if prev := e.active; prev != nil {
		e.publish(EventWorldDeactivated, prev, prev)
	}
	e.active = w
	e.logger.Info("world activated", log.Uint64("world", uint64(w.id)), log.Uint64("frame", e.frame))
	e.publish(EventWorldActivated, w, w)
	return nil
}

func (e *Engine) drainTerm() {
	for !(e.termComponents.IsEmpty() && e.termWorlds.IsEmpty()) {
		components, worlds := e.termComponents.Len(), e.termWorlds.Len()
		for range components {
			c, _ := e.termComponents.Dequeue()
			performComponentTerm(c)
		}
		for range worlds {
			w, _ := e.termWorlds.Dequeue()
			w.performTerm()
		}
	}
}

func (e *Engine) drainDestroy() {
	var destroyed []*World
	for w, ok := e.destroyWorlds.Dequeue(); ok; w, ok = e.destroyWorlds.Dequeue() {
		w.performDestroy()
		destroyed = append(destroyed, w)
		if e.active == w {
			e.active = nil
			e.publish(EventWorldDeactivated, w, w)
		}
	}
	for ent, ok := e.destroyEntities.Dequeue(); ok; ent, ok = e.destroyEntities.Dequeue() {
		ent.performDestroy()
	}
	for c, ok := e.destroyComponents.Dequeue(); ok; c, ok = e.destroyComponents.Dequeue() {
		performComponentDestroy(c)
	}
	for _, w := range destroyed {
		e.publish(EventWorldDestroyed, w, w)
		delete(e.worldIndex, w.id)
	}
}

func (e *Engine) idle() bool {
	return e.activating == nil &&
		e.initWorlds.IsEmpty() && e.initComponents.IsEmpty() &&
		e.termWorlds.IsEmpty() && e.termComponents.IsEmpty() &&
		e.destroyWorlds.IsEmpty() && e.destroyEntities.IsEmpty() && e.destroyComponents.IsEmpty()
}

func (e *Engine) publish(eventType string, w *World, data any) {
	source := "world:" + strconv.FormatUint(uint64(w.id), 10)
	if err := e.events.Publish(bus.NewEvent(eventType, source, data)); err != nil {
		e.logger.Warn("event handler failed", append([]log.Field{log.String("event", eventType)}, errorFields(err)...)...)
	}
}
