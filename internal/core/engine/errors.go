package engine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/zeusync/polyengine/internal/core/observability/log"
)

// Error classes. Every *Error matches exactly one of these through errors.Is.
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrConstruction   = errors.New("construction error")
	ErrProtocol       = errors.New("protocol error")
	ErrLifecycleState = errors.New("lifecycle state error")
)

// Lifecycle errors

var (
	ErrNotRegistered      = errors.New("not registered")
	ErrAlreadyRegistered  = errors.New("already registered")
	ErrAlreadyBinned      = errors.New("already binned")
	ErrDestroyed          = errors.New("destroyed")
	ErrOwnerUnavailable   = errors.New("owner is not registered or is being destroyed")
	ErrNotInitialized     = errors.New("not initialized")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrStopping           = errors.New("engine is stopping")
	ErrHalted             = errors.New("engine has halted")
)

// Loader errors

var (
	ErrLoaderBusy     = errors.New("loader is loading another entity")
	ErrNotLoading     = errors.New("loader is not loading")
	ErrStillLoading   = errors.New("loader is still loading")
	ErrLoaderFinished = errors.New("loader has been finished")
	ErrLoaderFailed   = errors.New("loader failed")
)

// Kind classifies an Error.
type Kind uint8

const (
	KindConfiguration Kind = iota + 1
	KindConstruction
	KindProtocol
	KindLifecycleState
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindConstruction:
		return ErrConstruction
	case KindProtocol:
		return ErrProtocol
	case KindLifecycleState:
		return ErrLifecycleState
	default:
		return nil
	}
}

func (k Kind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Error is the error type returned by every engine operation.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
	Context map[string]any
}

func newError(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

func configurationError(op, message string, cause error) *Error {
	return newError(KindConfiguration, op, message, cause)
}

func constructionError(op, message string, cause error) *Error {
	return newError(KindConstruction, op, message, cause)
}

func protocolError(op, message string, cause error) *Error {
	return newError(KindProtocol, op, message, cause)
}

func lifecycleError(op string, cause error) *Error {
	return newError(KindLifecycleState, op, "", cause)
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel of e's Kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Fields converts the error and its context into log fields.
func (e *Error) Fields() []log.Field {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]log.Field, 0, len(keys)+2)
	fields = append(fields, log.String("kind", e.Kind.String()), log.Error(e))
	for _, k := range keys {
		fields = append(fields, log.Any(k, e.Context[k]))
	}
	return fields
}

// errorFields returns log fields for any error, expanding *Error context.
func errorFields(err error) []log.Field {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields()
	}
	return []log.Field{log.Error(err)}
}
