// Package definition describes entity definition streams in YAML and encodes
// them into the binary layout read by engine.Loader.
package definition

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrDuplicateID  = errors.New("duplicate id")
	ErrDanglingRef  = errors.New("reference to unknown id")
	ErrInvalidValue = errors.New("invalid value")
)

// Document is a whole definition stream.
type Document struct {
	Entities []Entity `yaml:"entities" json:"entities"`
}

type Entity struct {
	ID         int32       `yaml:"id" json:"id"`
	Components []Component `yaml:"components,omitempty" json:"components,omitempty"`
}

type Component struct {
	ID     int32   `yaml:"id" json:"id"`
	Type   string  `yaml:"type" json:"type"`
	Fields []Field `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// Field is one named value. Type uses codec type names such as "int",
// "entity" or "array<string>". Entity and component values are stream ids.
type Field struct {
	Name  string `yaml:"name" json:"name"`
	Type  string `yaml:"type" json:"type"`
	Value any    `yaml:"value" json:"value"`
}

// LoadYAML loads a document from a YAML reader.
func LoadYAML(r io.Reader) (*Document, error) {
	var d Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return &d, nil
		}
		return nil, err
	}
	return &d, nil
}

// LoadYAMLFile loads a document from path.
func LoadYAMLFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, err := LoadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Validate checks id uniqueness and that every reference resolves.
func (d *Document) Validate() error {
	entities := make(map[int32]bool)
	components := make(map[int32]bool)
	for _, e := range d.Entities {
		if entities[e.ID] {
			return fmt.Errorf("entity %d: %w", e.ID, ErrDuplicateID)
		}
		entities[e.ID] = true
		for _, c := range e.Components {
			if components[c.ID] {
				return fmt.Errorf("component %d: %w", c.ID, ErrDuplicateID)
			}
			components[c.ID] = true
		}
	}

	for _, e := range d.Entities {
		for _, c := range e.Components {
			for _, f := range c.Fields {
				if err := checkRefs(f, entities, components); err != nil {
					return fmt.Errorf("component %d field %s: %w", c.ID, f.Name, err)
				}
			}
		}
	}
	return nil
}
