package engine

// Lifecycle events published on Engine.Events(). World events carry the
// *World as data, entity events the *Entity. Sources are "world:<id>".
const (
	EventWorldCreated     = "world.created"
	EventWorldActivated   = "world.activated"
	EventWorldDeactivated = "world.deactivated"
	EventWorldDestroyed   = "world.destroyed"
	EventEntityRegistered = "entity.registered"
	EventEntityDestroyed  = "entity.destroyed"
)
