package engine

import "github.com/zeusync/polyengine/internal/config"

// Manager is a per-world service updated once per frame while its world is
// active. Managers may implement Initializer, Terminator and Listener.
type Manager interface {
	Update()
}

// ManagerFactory builds a manager for w. w is not registered yet.
type ManagerFactory func(w *World) (Manager, error)

func (e *Engine) newManagers(w *World) error {
	names, err := e.config.Fields(config.KeyManager)
	if err != nil {
		return configurationError("world.new", "manager list", err)
	}
	for _, name := range names {
		factory, err := e.registry.manager(name)
		if err != nil {
			return err
		}
		m, err := factory(w)
		if err != nil {
			return constructionError("manager.new", "factory failed", err).WithContext("manager", name)
		}
		if m == nil {
			return constructionError("manager.new", "factory returned nil", nil).WithContext("manager", name)
		}
		w.managers = append(w.managers, m)
		if l, ok := m.(Listener); ok {
			w.listeners = append(w.listeners, l)
		}
	}
	return nil
}
