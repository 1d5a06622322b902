package engine

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

var (
	ErrUnknownType  = errors.New("unknown type")
	ErrUnknownField = errors.New("unknown field")
)

// ComponentFactory builds a component owned by e. e is not registered yet
// when called from a Loader.
type ComponentFactory func(e *Entity) (Component, error)

// ComponentType describes a component type by name. Base names a parent type
// whose fields are inherited.
type ComponentType struct {
	Name   string
	Base   string
	New    ComponentFactory
	Fields []Field
}

// Registry maps identifiers to factories. It replaces lookup of types by name.
type Registry struct {
	mu         sync.RWMutex
	components map[string]*ComponentType
	managers   map[string]ManagerFactory
	parsers    map[string]ParserFactory

	cacheMu sync.Mutex
	chains  map[string][]*ComponentType
	fields  map[uint64]fieldEntry
}

type fieldEntry struct {
	typeName  string
	fieldName string
	field     *Field
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		components: make(map[string]*ComponentType),
		managers:   make(map[string]ManagerFactory),
		parsers:    make(map[string]ParserFactory),
		chains:     make(map[string][]*ComponentType),
		fields:     make(map[uint64]fieldEntry),
	}
}

func (r *Registry) RegisterComponent(t ComponentType) error {
	if t.Name == "" {
		return configurationError("registry.component", "empty name", nil)
	}
	if t.New == nil {
		return configurationError("registry.component", "nil factory", nil).WithContext("type", t.Name)
	}
	t.Fields = slices.Clone(t.Fields)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.components[t.Name]; ok {
		return configurationError("registry.component", "", ErrAlreadyRegistered).WithContext("type", t.Name)
	}
	r.components[t.Name] = &t
	return nil
}

func (r *Registry) RegisterManager(name string, factory ManagerFactory) error {
	if name == "" || factory == nil {
		return configurationError("registry.manager", "empty name or nil factory", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.managers[name]; ok {
		return configurationError("registry.manager", "", ErrAlreadyRegistered).WithContext("manager", name)
	}
	r.managers[name] = factory
	return nil
}

func (r *Registry) RegisterParser(name string, factory ParserFactory) error {
	if name == "" || factory == nil {
		return configurationError("registry.parser", "empty name or nil factory", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.parsers[name]; ok {
		return configurationError("registry.parser", "", ErrAlreadyRegistered).WithContext("parser", name)
	}
	r.parsers[name] = factory
	return nil
}

// ComponentTypes returns the registered component type names, sorted.
func (r *Registry) ComponentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) manager(name string) (ManagerFactory, error) {
	r.mu.RLock()
	f := r.managers[name]
	r.mu.RUnlock()
	if f == nil {
		return nil, configurationError("registry.manager", "", ErrUnknownType).WithContext("manager", name)
	}
	return f, nil
}

func (r *Registry) parser(name string) (ParserFactory, error) {
	r.mu.RLock()
	f := r.parsers[name]
	r.mu.RUnlock()
	if f == nil {
		return nil, configurationError("registry.parser", "", ErrUnknownType).WithContext("parser", name)
	}
	return f, nil
}

// resolveComponent returns the named type after checking its base chain.
func (r *Registry) resolveComponent(name string) (*ComponentType, error) {
	chain, err := r.chain(name)
	if err != nil {
		return nil, err
	}
	return chain[0], nil
}

// chain returns name's type followed by its bases, nearest first.
func (r *Registry) chain(name string) ([]*ComponentType, error) {
	r.cacheMu.Lock()
	chain, ok := r.chains[name]
	r.cacheMu.Unlock()
	if ok {
		return chain, nil
	}

	r.mu.RLock()
	seen := make(map[string]bool)
	for next := name; next != ""; {
		t := r.components[next]
		if t == nil {
			r.mu.RUnlock()
			return nil, configurationError("registry.component", "", ErrUnknownType).WithContext("type", next)
		}
		if seen[next] {
			r.mu.RUnlock()
			return nil, configurationError("registry.component", "base types form a cycle", nil).WithContext("type", name)
		}
		seen[next] = true
		chain = append(chain, t)
		next = t.Base
	}
	r.mu.RUnlock()

	r.cacheMu.Lock()
	r.chains[name] = chain
	r.cacheMu.Unlock()
	return chain, nil
}

// resolveField finds the loadable field fieldName of t, walking up the base
// chain. The first declaration found wins.
func (r *Registry) resolveField(t *ComponentType, fieldName string) (*Field, error) {
	key := fieldKey(t.Name, fieldName)
	r.cacheMu.Lock()
	entry, ok := r.fields[key]
	r.cacheMu.Unlock()
	if ok && entry.typeName == t.Name && entry.fieldName == fieldName {
		return entry.field, nil
	}

	chain, err := r.chain(t.Name)
	if err != nil {
		return nil, err
	}
	var found *Field
	for _, ct := range chain {
		if i := slices.IndexFunc(ct.Fields, func(f Field) bool { return f.Name == fieldName }); i >= 0 {
			found = &ct.Fields[i]
			break
		}
	}
	switch {
	case found == nil:
		return nil, protocolError("loader.field", "", ErrUnknownField).
			WithContext("type", t.Name).WithContext("field", fieldName)
	case found.Hidden:
		return nil, protocolError("loader.field", "field is inaccessible", nil).
			WithContext("type", t.Name).WithContext("field", fieldName)
	case found.Immutable || found.Set == nil:
		return nil, protocolError("loader.field", "field is immutable", nil).
			WithContext("type", t.Name).WithContext("field", fieldName)
	}

	r.cacheMu.Lock()
	r.fields[key] = fieldEntry{typeName: t.Name, fieldName: fieldName, field: found}
	r.cacheMu.Unlock()
	return found, nil
}

// ClearCaches drops resolved types and fields. Loaders call it on Finish.
func (r *Registry) ClearCaches() {
	r.cacheMu.Lock()
	clear(r.chains)
	clear(r.fields)
	r.cacheMu.Unlock()
}

// CacheLen reports the number of cached types and fields.
func (r *Registry) CacheLen() (types, fields int) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	return len(r.chains), len(r.fields)
}

func fieldKey(typeName, fieldName string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(typeName)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(fieldName)
	return d.Sum64()
}

func (t *ComponentType) String() string {
	if t.Base == "" {
		return t.Name
	}
	return fmt.Sprintf("%s(%s)", t.Name, t.Base)
}
