package engine

import (
	"github.com/zeusync/polyengine/internal/core/codec"
)

// Parser decodes field values the Loader does not handle itself. Parse
// returns ok=false to pass t to the next parser in the chain; a parser that
// returns ok=false must not consume input.
type Parser interface {
	Parse(t codec.Type, l *Loader) (value any, ok bool, err error)
}

// ParserFactory builds a parser bound to l.
type ParserFactory func(l *Loader) (Parser, error)

// DefaultParser decodes the scalar kinds in Java DataInput layout.
type DefaultParser struct{}

func NewDefaultParser(*Loader) (Parser, error) {
	return DefaultParser{}, nil
}

func (DefaultParser) Parse(t codec.Type, l *Loader) (any, bool, error) {
	r := l.Reader()
	var (
		v   any
		err error
	)
	switch t.Kind {
	case codec.KindBool:
		v, err = r.ReadBool()
	case codec.KindByte:
		v, err = r.ReadInt8()
	case codec.KindShort:
		v, err = r.ReadInt16()
	case codec.KindChar:
		v, err = r.ReadUint16()
	case codec.KindInt:
		v, err = r.ReadInt32()
	case codec.KindLong:
		v, err = r.ReadInt64()
	case codec.KindFloat:
		v, err = r.ReadFloat32()
	case codec.KindDouble:
		v, err = r.ReadFloat64()
	case codec.KindString:
		v, err = r.ReadString()
	default:
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}
