package definition

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/zeusync/polyengine/internal/core/codec"
	"github.com/zeusync/polyengine/pkg/generic"
)

var writers = generic.NewPool(codec.NewWriter, (*codec.Writer).Reset)

// Encode validates d and writes it to w.
func (d *Document) Encode(w io.Writer) error {
	b, err := d.Bytes()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Bytes validates d and returns its binary form: every header first, then
// the field blocks in header order.
func (d *Document) Bytes() ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	w := writers.Get()
	defer writers.Put(w)

	w.WriteInt32(int32(len(d.Entities)))
	for _, e := range d.Entities {
		w.WriteInt32(e.ID)
		w.WriteInt32(int32(len(e.Components)))
		for _, c := range e.Components {
			w.WriteInt32(c.ID)
			w.WriteInt32(int32(len(c.Fields)))
			if err := w.WriteString(c.Type); err != nil {
				return nil, fmt.Errorf("component %d type: %w", c.ID, err)
			}
		}
	}

	for _, e := range d.Entities {
		for _, c := range e.Components {
			for _, f := range c.Fields {
				if err := encodeField(w, f); err != nil {
					return nil, fmt.Errorf("component %d field %s: %w", c.ID, f.Name, err)
				}
			}
		}
	}
	return bytes.Clone(w.Bytes()), nil
}

func encodeField(w *codec.Writer, f Field) error {
	t, err := codec.ParseType(f.Type)
	if err != nil {
		return err
	}
	if err := w.WriteString(f.Name); err != nil {
		return err
	}
	return encodeValue(w, t, f.Value)
}

func encodeValue(w *codec.Writer, t codec.Type, v any) error {
	switch t.Kind {
	case codec.KindBool:
		b, ok := v.(bool)
		if !ok {
			return invalid(t, v)
		}
		w.WriteBool(b)
	case codec.KindByte:
		n, err := integer(t, v, math.MinInt8, math.MaxInt8)
		if err != nil {
			return err
		}
		w.WriteInt8(int8(n))
	case codec.KindShort:
		n, err := integer(t, v, math.MinInt16, math.MaxInt16)
		if err != nil {
			return err
		}
		w.WriteInt16(int16(n))
	case codec.KindChar:
		if s, ok := v.(string); ok {
			r, size := utf8.DecodeRuneInString(s)
			if size == 0 || size != len(s) || r > math.MaxUint16 {
				return invalid(t, v)
			}
			w.WriteUint16(uint16(r))
			return nil
		}
		n, err := integer(t, v, 0, math.MaxUint16)
		if err != nil {
			return err
		}
		w.WriteUint16(uint16(n))
	case codec.KindInt, codec.KindEntity, codec.KindComponent:
		n, err := integer(t, v, math.MinInt32, math.MaxInt32)
		if err != nil {
			return err
		}
		w.WriteInt32(int32(n))
	case codec.KindLong:
		n, err := integer(t, v, math.MinInt64, math.MaxInt64)
		if err != nil {
			return err
		}
		w.WriteInt64(n)
	case codec.KindFloat:
		f, err := toFloat(t, v)
		if err != nil {
			return err
		}
		w.WriteFloat32(float32(f))
	case codec.KindDouble:
		f, err := toFloat(t, v)
		if err != nil {
			return err
		}
		w.WriteFloat64(f)
	case codec.KindString:
		s, ok := v.(string)
		if !ok {
			return invalid(t, v)
		}
		return w.WriteString(s)
	case codec.KindArray:
		items, ok := v.([]any)
		if !ok {
			return invalid(t, v)
		}
		w.WriteInt32(int32(len(items)))
		for i, item := range items {
			if err := encodeValue(w, *t.Elem, item); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("%w: type %s has no encoding", ErrInvalidValue, t)
	}
	return nil
}

func checkRefs(f Field, entities, components map[int32]bool) error {
	t, err := codec.ParseType(f.Type)
	if err != nil {
		return err
	}
	return walkRefs(t, f.Value, entities, components)
}

func walkRefs(t codec.Type, v any, entities, components map[int32]bool) error {
	switch t.Kind {
	case codec.KindEntity, codec.KindComponent:
		n, err := integer(t, v, math.MinInt32, math.MaxInt32)
		if err != nil {
			return err
		}
		ids := entities
		if t.Kind == codec.KindComponent {
			ids = components
		}
		if !ids[int32(n)] {
			return fmt.Errorf("%w: %s %d", ErrDanglingRef, t, n)
		}
	case codec.KindArray:
		items, ok := v.([]any)
		if !ok {
			return invalid(t, v)
		}
		for _, item := range items {
			if err := walkRefs(*t.Elem, item, entities, components); err != nil {
				return err
			}
		}
	}
	return nil
}

func integer(t codec.Type, v any, lo, hi int64) (int64, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return 0, invalid(t, v)
		}
		n = int64(x)
	default:
		return 0, invalid(t, v)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %d out of range for %s", ErrInvalidValue, n, t)
	}
	return n, nil
}

func toFloat(t codec.Type, v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	default:
		n, err := integer(t, v, math.MinInt64, math.MaxInt64)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	}
}

func invalid(t codec.Type, v any) error {
	return fmt.Errorf("%w: %T for %s", ErrInvalidValue, v, t)
}
