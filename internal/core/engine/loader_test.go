package engine

import (
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/polyengine/internal/config"
	"github.com/zeusync/polyengine/internal/core/codec"
	"github.com/zeusync/polyengine/internal/core/definition"
)

type sample struct {
	Base
	Flag   bool
	Small  int8
	Short  int16
	Letter uint16
	Count  int32
	Big    int64
	Ratio  float32
	Exact  float64
	Label  string
	Target *Entity
	Peer   *sample
	Nums   []int32
	Refs   []*Entity
	Fixed  int32
}

type namer interface {
	Component
	SetName(string)
}

type named struct {
	Base
	Name   string
	Secret int32
}

func (n *named) SetName(s string) { n.Name = s }

type hero struct {
	named
	Level int32
}

type vec2 [2]float32

// vecParser decodes the custom "vec2" type as two floats.
type vecParser struct{}

func (vecParser) Parse(t codec.Type, l *Loader) (any, bool, error) {
	if t.Kind != codec.KindCustom || t.Name != "vec2" {
		return nil, false, nil
	}
	x, err := l.Reader().ReadFloat32()
	if err != nil {
		return nil, false, err
	}
	y, err := l.Reader().ReadFloat32()
	if err != nil {
		return nil, false, err
	}
	return vec2{x, y}, true, nil
}

type mover struct {
	Base
	Pos vec2
}

func newLoaderEngine(t *testing.T) *Engine {
	t.Helper()
	eng := newTestEngine(t, map[string]string{config.KeyParser: "default vec"})
	reg := eng.Registry()
	require.NoError(t, reg.RegisterParser("vec", func(*Loader) (Parser, error) { return vecParser{}, nil }))
	require.NoError(t, reg.RegisterComponent(ComponentType{
		Name: "sample",
		New:  func(*Entity) (Component, error) { return &sample{}, nil },
		Fields: []Field{
			FieldOf("flag", codec.Bool, func(c *sample, v bool) { c.Flag = v }),
			FieldOf("small", codec.Byte, func(c *sample, v int8) { c.Small = v }),
			FieldOf("short", codec.Short, func(c *sample, v int16) { c.Short = v }),
			FieldOf("letter", codec.Char, func(c *sample, v uint16) { c.Letter = v }),
			FieldOf("count", codec.Int, func(c *sample, v int32) { c.Count = v }),
			FieldOf("big", codec.Long, func(c *sample, v int64) { c.Big = v }),
			FieldOf("ratio", codec.Float, func(c *sample, v float32) { c.Ratio = v }),
			FieldOf("exact", codec.Double, func(c *sample, v float64) { c.Exact = v }),
			FieldOf("label", codec.String, func(c *sample, v string) { c.Label = v }),
			FieldOf("target", codec.EntityRef, func(c *sample, v *Entity) { c.Target = v }),
			FieldOf("peer", codec.ComponentRef, func(c *sample, v *sample) { c.Peer = v }),
			ArrayOf("nums", codec.Int, func(c *sample, v []int32) { c.Nums = v }),
			ArrayOf("refs", codec.EntityRef, func(c *sample, v []*Entity) { c.Refs = v }),
			{Name: "fixed", Type: codec.Int, Immutable: true},
		},
	}))
	require.NoError(t, reg.RegisterComponent(ComponentType{
		Name: "named",
		New:  func(*Entity) (Component, error) { return &named{}, nil },
		Fields: []Field{
			FieldOf("name", codec.String, func(c namer, v string) { c.SetName(v) }),
			FieldOf("secret", codec.Int, func(c *named, v int32) { c.Secret = v }),
		},
	}))
	require.NoError(t, reg.RegisterComponent(ComponentType{
		Name: "hero",
		Base: "named",
		New:  func(*Entity) (Component, error) { return &hero{}, nil },
		Fields: []Field{
			FieldOf("level", codec.Int, func(c *hero, v int32) { c.Level = v }),
			HideField("secret"),
		},
	}))
	require.NoError(t, reg.RegisterComponent(ComponentType{
		Name: "mover",
		New:  func(*Entity) (Component, error) { return &mover{}, nil },
		Fields: []Field{
			FieldOf("pos", codec.Custom("vec2"), func(c *mover, v vec2) { c.Pos = v }),
		},
	}))
	return eng
}

func encode(t *testing.T, doc definition.Document) []byte {
	t.Helper()
	raw, err := doc.Bytes()
	require.NoError(t, err)
	return raw
}

func one(id int32, c definition.Component) definition.Entity {
	return definition.Entity{ID: id, Components: []definition.Component{c}}
}

// closeTracker records whether the loader closed its input.
type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestLoaderRoundTripWithForwardReferences(t *testing.T) {
	eng := newLoaderEngine(t)
	w, err := eng.AddWorld()
	require.NoError(t, err)

	doc := definition.Document{Entities: []definition.Entity{
		one(1, definition.Component{ID: 10, Type: "sample", Fields: []definition.Field{
			{Name: "flag", Type: "bool", Value: true},
			{Name: "small", Type: "byte", Value: -7},
			{Name: "short", Type: "short", Value: 1200},
			{Name: "letter", Type: "char", Value: "Z"},
			{Name: "count", Type: "int", Value: 42},
			{Name: "big", Type: "long", Value: int64(1) << 50},
			{Name: "ratio", Type: "float", Value: 0.5},
			{Name: "exact", Type: "double", Value: 3.25},
			{Name: "label", Type: "string", Value: "héllo"},
			{Name: "target", Type: "entity", Value: 2},
			{Name: "peer", Type: "component", Value: 20},
			{Name: "nums", Type: "array<int>", Value: []any{1, 2, 3}},
			{Name: "refs", Type: "array<entity>", Value: []any{2, 1}},
		}}),
		{ID: 2, Components: []definition.Component{
			{ID: 20, Type: "sample", Fields: []definition.Field{
				{Name: "peer", Type: "component", Value: 10},
			}},
			{ID: 21, Type: "hero", Fields: []definition.Field{
				{Name: "name", Type: "string", Value: "ayla"},
				{Name: "level", Type: "int", Value: 9},
			}},
			{ID: 22, Type: "mover", Fields: []definition.Field{
				{Name: "pos", Type: "long", Value: packVec2(1.5, -2)},
			}},
		}},
	}}
	input := &closeTracker{Reader: bytes.NewReader(encode(t, doc))}

	l, err := w.LoadEntities(input)
	require.NoError(t, err)
	assert.Empty(t, w.Entities(), "construction does not register")

	res, err := l.LoadAll()
	require.NoError(t, err)
	assert.True(t, input.closed)
	assert.True(t, l.IsFinished())
	assert.Same(t, w, res.World())

	entities := res.Entities()
	components := res.Components()
	require.Len(t, entities, 2)
	require.Len(t, components, 4)
	assert.Equal(t, entities, w.Entities())

	a := components[0].(*sample)
	b := components[1].(*sample)
	assert.True(t, a.Flag)
	assert.Equal(t, int8(-7), a.Small)
	assert.Equal(t, int16(1200), a.Short)
	assert.Equal(t, uint16('Z'), a.Letter)
	assert.Equal(t, int32(42), a.Count)
	assert.Equal(t, int64(1)<<50, a.Big)
	assert.Equal(t, float32(0.5), a.Ratio)
	assert.Equal(t, 3.25, a.Exact)
	assert.Equal(t, "héllo", a.Label)
	assert.Same(t, entities[1], a.Target, "forward entity reference resolves to the live object")
	assert.Same(t, b, a.Peer, "forward component reference resolves to the live object")
	assert.Same(t, a, b.Peer)
	assert.Equal(t, []int32{1, 2, 3}, a.Nums)
	require.Len(t, a.Refs, 2)
	assert.Same(t, entities[1], a.Refs[0])
	assert.Same(t, entities[0], a.Refs[1])

	h := components[2].(*hero)
	assert.Equal(t, "ayla", h.Name)
	assert.Equal(t, int32(9), h.Level)
	assert.Equal(t, vec2{1.5, -2}, components[3].(*mover).Pos)

	for _, c := range components {
		assert.True(t, c.base().IsRegistered())
		assert.False(t, c.base().IsInitialized())
	}
	step(t, eng, 1)
	assert.True(t, a.IsInitialized())
	assert.Same(t, entities[0], a.Entity())
}

// packVec2 returns the long whose big-endian bytes equal two float32 values,
// standing in for a custom vec2 field in a definition document.
func packVec2(x, y float32) int64 {
	return int64(uint64(math.Float32bits(x))<<32 | uint64(math.Float32bits(y)))
}

func TestLoaderProgress(t *testing.T) {
	eng := newLoaderEngine(t)
	w, _ := eng.AddWorld()
	doc := definition.Document{}
	for i := range int32(4) {
		doc.Entities = append(doc.Entities, one(i, definition.Component{
			ID: 100 + i, Type: "sample",
			Fields: []definition.Field{{Name: "count", Type: "int", Value: int(i)}},
		}))
	}

	l, err := w.LoadEntities(bytes.NewReader(encode(t, doc)))
	require.NoError(t, err)
	assert.Equal(t, 0.0, l.Progress())

	_, err = l.Finish()
	assert.ErrorIs(t, err, ErrStillLoading)

	last := 0.0
	for i := 1; i <= 4; i++ {
		require.True(t, l.IsLoading())
		require.NoError(t, l.Load())
		assert.Equal(t, float64(i)/4, l.Progress())
		assert.Greater(t, l.Progress(), last)
		last = l.Progress()
	}
	assert.False(t, l.IsLoading())
	assert.Equal(t, 1.0, l.Progress())
	assert.ErrorIs(t, l.Load(), ErrNotLoading)

	types, fields := eng.Registry().CacheLen()
	assert.NotZero(t, types)
	assert.NotZero(t, fields)

	res, err := l.Finish()
	require.NoError(t, err)
	assert.Len(t, res.Entities(), 4)

	types, fields = eng.Registry().CacheLen()
	assert.Zero(t, types)
	assert.Zero(t, fields)

	_, err = l.Finish()
	assert.ErrorIs(t, err, ErrLoaderFinished)
	assert.ErrorIs(t, l.Load(), ErrLoaderFinished)
}

func TestLoaderEmptyStream(t *testing.T) {
	eng := newLoaderEngine(t)
	w, _ := eng.AddWorld()
	l, err := w.LoadEntities(bytes.NewReader(encode(t, definition.Document{})))
	require.NoError(t, err)
	assert.False(t, l.IsLoading())
	assert.Equal(t, 1.0, l.Progress())

	res, err := l.Finish()
	require.NoError(t, err)
	assert.Empty(t, res.Entities())
	assert.Empty(t, res.Components())
}

func TestLoaderFieldErrors(t *testing.T) {
	cases := map[string]struct {
		field   definition.Field
		typ     string
		parsers string
		is      error
	}{
		"unknown field": {
			field: definition.Field{Name: "nope", Type: "int", Value: 1},
			typ:   "sample",
			is:    ErrUnknownField,
		},
		"immutable field": {
			field: definition.Field{Name: "fixed", Type: "int", Value: 1},
			typ:   "sample",
		},
		"hidden override": {
			field: definition.Field{Name: "secret", Type: "int", Value: 1},
			typ:   "hero",
		},
		"dangling reference": {
			field: definition.Field{Name: "target", Type: "int", Value: 99},
			typ:   "sample",
		},
		"no parser": {
			field:   definition.Field{Name: "pos", Type: "long", Value: 0},
			typ:     "mover",
			parsers: DefaultName,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			eng := newLoaderEngine(t)
			if tc.parsers != "" {
				eng = newLoaderEngineWithParsers(t, tc.parsers)
			}
			w, err := eng.AddWorld()
			require.NoError(t, err)
			doc := definition.Document{Entities: []definition.Entity{
				one(1, definition.Component{ID: 1, Type: tc.typ, Fields: []definition.Field{tc.field}}),
			}}
			input := &closeTracker{Reader: bytes.NewReader(encode(t, doc))}
			l, err := w.LoadEntities(input)
			require.NoError(t, err)
			require.Len(t, w.index, 1)

			err = l.Load()
			assert.ErrorIs(t, err, ErrProtocol)
			if tc.is != nil {
				assert.ErrorIs(t, err, tc.is)
			}
			assert.ErrorIs(t, l.Load(), ErrLoaderFailed)
			_, err = l.Finish()
			assert.ErrorIs(t, err, ErrLoaderFailed)

			require.NoError(t, l.Close())
			assert.True(t, input.closed)
			assert.Empty(t, w.index)
		})
	}
}

func newLoaderEngineWithParsers(t *testing.T, parsers string) *Engine {
	t.Helper()
	base := newLoaderEngine(t)
	values := map[string]string{config.KeyManager: DefaultName, config.KeyParser: parsers}
	return New(base.Registry(), config.FromMap(values))
}

// sampleStream writes the header of one entity holding one sample component
// with fields field blocks, leaving the field data to the caller.
func sampleStream(t *testing.T, fields int32) *codec.Writer {
	t.Helper()
	w := codec.NewWriter()
	w.WriteInt32(1) // entities
	w.WriteInt32(1) // entity id
	w.WriteInt32(1) // components
	w.WriteInt32(1) // component id
	w.WriteInt32(fields)
	require.NoError(t, w.WriteString("sample"))
	return w
}

func TestLoaderStreamLengths(t *testing.T) {
	cases := map[string]struct {
		build func(t *testing.T) []byte
		is    error
	}{
		"huge array length without payload": {
			build: func(t *testing.T) []byte {
				w := sampleStream(t, 1)
				require.NoError(t, w.WriteString("nums"))
				w.WriteInt32(math.MaxInt32)
				return w.Bytes()
			},
			is: codec.ErrTruncated,
		},
		"huge array length with short payload": {
			build: func(t *testing.T) []byte {
				w := sampleStream(t, 1)
				require.NoError(t, w.WriteString("refs"))
				w.WriteInt32(math.MaxInt32)
				w.WriteInt32(1)
				w.WriteInt32(1)
				return w.Bytes()
			},
			is: codec.ErrTruncated,
		},
		"negative array length": {
			build: func(t *testing.T) []byte {
				w := sampleStream(t, 1)
				require.NoError(t, w.WriteString("nums"))
				w.WriteInt32(-5)
				return w.Bytes()
			},
			is: codec.ErrNegativeLen,
		},
		"field block shorter than its count": {
			build: func(t *testing.T) []byte {
				w := sampleStream(t, 3)
				require.NoError(t, w.WriteString("count"))
				w.WriteInt32(4)
				return w.Bytes()
			},
			is: codec.ErrTruncated,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			eng := newLoaderEngine(t)
			w, err := eng.AddWorld()
			require.NoError(t, err)
			l, err := w.LoadEntities(bytes.NewReader(tc.build(t)))
			require.NoError(t, err)

			err = l.Load()
			assert.ErrorIs(t, err, ErrProtocol)
			assert.ErrorIs(t, err, tc.is)
			assert.ErrorIs(t, l.Err(), ErrProtocol)
			require.NoError(t, l.Close())
		})
	}
}

func TestLoaderHeaderLengths(t *testing.T) {
	cases := map[string]struct {
		build func() []byte
		is    error
	}{
		"huge entity count": {
			build: func() []byte {
				w := codec.NewWriter()
				w.WriteInt32(math.MaxInt32)
				w.WriteInt32(1)
				w.WriteInt32(0)
				return w.Bytes()
			},
			is: codec.ErrTruncated,
		},
		"huge component count": {
			build: func() []byte {
				w := codec.NewWriter()
				w.WriteInt32(1)
				w.WriteInt32(1)
				w.WriteInt32(math.MaxInt32)
				return w.Bytes()
			},
			is: codec.ErrTruncated,
		},
		"negative component count": {
			build: func() []byte {
				w := codec.NewWriter()
				w.WriteInt32(1)
				w.WriteInt32(1)
				w.WriteInt32(-1)
				return w.Bytes()
			},
			is: codec.ErrNegativeLen,
		},
		"negative field count": {
			build: func() []byte { return sampleStream(t, -2).Bytes() },
			is:    codec.ErrNegativeLen,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			eng := newLoaderEngine(t)
			w, err := eng.AddWorld()
			require.NoError(t, err)
			_, err = w.LoadEntities(bytes.NewReader(tc.build()))
			assert.ErrorIs(t, err, ErrProtocol)
			assert.ErrorIs(t, err, tc.is)
			assert.Empty(t, w.index)
		})
	}
}

func TestDestroyedWorldDropsPendingLoad(t *testing.T) {
	eng := newLoaderEngine(t)
	w, _ := eng.AddWorld()
	raw := encode(t, definition.Document{Entities: []definition.Entity{
		one(1, definition.Component{ID: 1, Type: "sample"}),
		one(2, definition.Component{ID: 2, Type: "sample"}),
	}})
	l, err := w.LoadEntities(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, w.index, 2)

	eng.Stop()
	step(t, eng, 1)
	assert.True(t, w.IsDestroyed())
	assert.Empty(t, w.index, "a destroyed world holds no entity handles")

	require.NoError(t, l.Load())
	require.NoError(t, l.Load())
	_, err = l.Finish()
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.NoError(t, l.Close())
}

func TestLoaderConstructionErrors(t *testing.T) {
	eng := newLoaderEngine(t)
	w, _ := eng.AddWorld()

	raw := encode(t, definition.Document{Entities: []definition.Entity{
		one(1, definition.Component{ID: 1, Type: "sample"}),
		one(2, definition.Component{ID: 2, Type: "sample"}),
	}})

	input := &closeTracker{Reader: bytes.NewReader(raw[:len(raw)-3])}
	_, err := w.LoadEntities(input)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.ErrorIs(t, err, codec.ErrTruncated)
	assert.True(t, input.closed)
	assert.Empty(t, w.index, "constructed entities are discarded")

	unknown := encode(t, definition.Document{Entities: []definition.Entity{
		one(1, definition.Component{ID: 1, Type: "ghost"}),
	}})
	_, err = w.LoadEntities(bytes.NewReader(unknown))
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, ErrUnknownType)

	dup := codec.NewWriter()
	dup.WriteInt32(2)
	for range 2 {
		dup.WriteInt32(7)
		dup.WriteInt32(0)
	}
	_, err = w.LoadEntities(bytes.NewReader(dup.Bytes()))
	assert.ErrorIs(t, err, ErrProtocol)

	negative := codec.NewWriter()
	negative.WriteInt32(-1)
	_, err = w.LoadEntities(bytes.NewReader(negative.Bytes()))
	assert.ErrorIs(t, err, codec.ErrNegativeLen)

	noParsers := New(eng.Registry(), config.FromMap(map[string]string{config.KeyManager: DefaultName}))
	nw, err := noParsers.AddWorld()
	require.NoError(t, err)
	_, err = nw.LoadEntities(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, config.ErrMissingKey)
}

func TestLoaderAgainstUnavailableWorld(t *testing.T) {
	eng := newLoaderEngine(t)
	w, _ := eng.AddWorld()
	raw := encode(t, definition.Document{Entities: []definition.Entity{
		one(1, definition.Component{ID: 1, Type: "sample"}),
	}})

	l, err := w.LoadEntities(bytes.NewReader(raw))
	require.NoError(t, err)
	require.NoError(t, l.Load())
	require.NoError(t, w.Destroy())

	_, err = l.Finish()
	assert.ErrorIs(t, err, ErrLifecycleState)
	assert.ErrorIs(t, err, ErrAlreadyBinned)

	_, err = w.LoadEntities(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrAlreadyBinned)
}

func TestLoadEntitiesFile(t *testing.T) {
	eng := newLoaderEngine(t)
	w, _ := eng.AddWorld()
	path := filepath.Join(t.TempDir(), "launcher.bin")
	raw := encode(t, definition.Document{Entities: []definition.Entity{
		one(1, definition.Component{ID: 1, Type: QuitName, Fields: []definition.Field{
			{Name: FieldFrames, Type: "int", Value: 5},
		}}),
	}})
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	l, err := w.LoadEntitiesFile(path)
	require.NoError(t, err)
	res, err := l.LoadAll()
	require.NoError(t, err)
	q, ok := ComponentOf[*Quit](res.Entities()[0])
	require.True(t, ok)
	assert.Equal(t, int32(5), q.Frames)

	_, err = w.LoadEntitiesFile(filepath.Join(t.TempDir(), "missing.bin"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
