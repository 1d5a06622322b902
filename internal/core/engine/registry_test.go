package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/polyengine/internal/core/codec"
)

func newComponentType(name, base string, fields ...Field) ComponentType {
	return ComponentType{
		Name:   name,
		Base:   base,
		New:    func(*Entity) (Component, error) { return &probe{}, nil },
		Fields: fields,
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))

	err := RegisterBuiltins(reg)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	assert.ErrorIs(t, reg.RegisterComponent(ComponentType{Name: "x"}), ErrConfiguration)
	assert.ErrorIs(t, reg.RegisterComponent(ComponentType{New: newComponentType("", "").New}), ErrConfiguration)
	assert.ErrorIs(t, reg.RegisterManager("", nil), ErrConfiguration)
	assert.ErrorIs(t, reg.RegisterParser("p", nil), ErrConfiguration)

	assert.Equal(t, []string{LifetimeName, QuitName}, reg.ComponentTypes())
}

func TestRegistryLookups(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg))

	_, err := reg.manager(DefaultName)
	assert.NoError(t, err)
	_, err = reg.parser(DefaultName)
	assert.NoError(t, err)

	_, err = reg.manager("physics")
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, ErrUnknownType)
	_, err = reg.parser("json")
	assert.ErrorIs(t, err, ErrUnknownType)
	_, err = reg.resolveComponent("ghost")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestRegistryBaseChain(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterComponent(newComponentType("a", "",
		FieldOf("x", codec.Int, func(*probe, int32) {}),
		FieldOf("y", codec.Int, func(*probe, int32) {}),
	)))
	require.NoError(t, reg.RegisterComponent(newComponentType("b", "a",
		FieldOf("x", codec.String, func(*probe, string) {}),
	)))
	require.NoError(t, reg.RegisterComponent(newComponentType("orphan", "missing")))
	require.NoError(t, reg.RegisterComponent(newComponentType("loop1", "loop2")))
	require.NoError(t, reg.RegisterComponent(newComponentType("loop2", "loop1")))

	chain, err := reg.chain("b")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, "b", chain[0].Name)
	assert.Equal(t, "a", chain[1].Name)
	assert.Equal(t, "b(a)", chain[0].String())

	b, err := reg.resolveComponent("b")
	require.NoError(t, err)

	x, err := reg.resolveField(b, "x")
	require.NoError(t, err)
	assert.Equal(t, codec.String, x.Type, "nearest declaration wins")

	y, err := reg.resolveField(b, "y")
	require.NoError(t, err)
	assert.Equal(t, codec.Int, y.Type)

	_, err = reg.resolveComponent("orphan")
	assert.ErrorIs(t, err, ErrUnknownType)
	_, err = reg.resolveComponent("loop1")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestRegistryFieldCache(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterComponent(newComponentType("a", "",
		FieldOf("x", codec.Int, func(*probe, int32) {}),
	)))
	a, err := reg.resolveComponent("a")
	require.NoError(t, err)

	first, err := reg.resolveField(a, "x")
	require.NoError(t, err)
	second, err := reg.resolveField(a, "x")
	require.NoError(t, err)
	assert.Same(t, first, second)

	types, fields := reg.CacheLen()
	assert.Equal(t, 1, types)
	assert.Equal(t, 1, fields)

	_, err = reg.resolveField(a, "z")
	assert.ErrorIs(t, err, ErrUnknownField)
	_, fields = reg.CacheLen()
	assert.Equal(t, 1, fields, "failed lookups are not cached")

	assert.NotEqual(t, fieldKey("ab", "c"), fieldKey("a", "bc"))

	reg.ClearCaches()
	types, fields = reg.CacheLen()
	assert.Zero(t, types)
	assert.Zero(t, fields)
}
