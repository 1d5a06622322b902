package codec

import (
	"fmt"
	"strings"
)

// Kind identifies how a field value is laid out on the wire.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindByte
	KindShort
	KindChar
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindString
	KindArray
	KindEntity
	KindComponent
	KindCustom
)

var kindNames = map[Kind]string{
	KindBool:      "bool",
	KindByte:      "byte",
	KindShort:     "short",
	KindChar:      "char",
	KindInt:       "int",
	KindLong:      "long",
	KindFloat:     "float",
	KindDouble:    "double",
	KindString:    "string",
	KindArray:     "array",
	KindEntity:    "entity",
	KindComponent: "component",
	KindCustom:    "custom",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Type is the declared type of a component field. Elem is set for arrays,
// Name for custom types handled by application parsers.
type Type struct {
	Kind Kind
	Elem *Type
	Name string
}

var (
	Bool      = Type{Kind: KindBool}
	Byte      = Type{Kind: KindByte}
	Short     = Type{Kind: KindShort}
	Char      = Type{Kind: KindChar}
	Int       = Type{Kind: KindInt}
	Long      = Type{Kind: KindLong}
	Float     = Type{Kind: KindFloat}
	Double    = Type{Kind: KindDouble}
	String    = Type{Kind: KindString}
	EntityRef = Type{Kind: KindEntity}
	// ComponentRef references any component by stream id.
	ComponentRef = Type{Kind: KindComponent}
)

// Array returns the type of an array whose elements have type elem.
func Array(elem Type) Type {
	e := elem
	return Type{Kind: KindArray, Elem: &e}
}

// Custom returns a named type that only application parsers understand.
func Custom(name string) Type {
	return Type{Kind: KindCustom, Name: name}
}

// Equal reports whether two types describe the same wire layout.
func (t Type) Equal(other Type) bool {
	if t.Kind != other.Kind || t.Name != other.Name {
		return false
	}
	if t.Kind != KindArray {
		return true
	}
	if t.Elem == nil || other.Elem == nil {
		return t.Elem == other.Elem
	}
	return t.Elem.Equal(*other.Elem)
}

func (t Type) String() string {
	switch t.Kind {
	case KindArray:
		if t.Elem == nil {
			return "array<?>"
		}
		return "array<" + t.Elem.String() + ">"
	case KindCustom:
		return t.Name
	default:
		return t.Kind.String()
	}
}

// ParseType parses the textual form produced by Type.String. Names that are
// not builtin kinds parse as custom types.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Type{}, fmt.Errorf("empty type")
	}
	if strings.HasPrefix(s, "array<") {
		if !strings.HasSuffix(s, ">") {
			return Type{}, fmt.Errorf("unterminated array type %q", s)
		}
		elem, err := ParseType(s[len("array<") : len(s)-1])
		if err != nil {
			return Type{}, fmt.Errorf("array element: %w", err)
		}
		return Array(elem), nil
	}
	for kind, name := range kindNames {
		if name == s {
			if kind == KindArray || kind == KindCustom {
				return Type{}, fmt.Errorf("type %q needs a parameter", s)
			}
			return Type{Kind: kind}, nil
		}
	}
	return Custom(s), nil
}
