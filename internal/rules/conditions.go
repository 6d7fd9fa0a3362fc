package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Conditions is a rule's `when` clause: a conjunction by default, or a
// disjunction when Any is true. Every predicate field is optional; an
// absent predicate is vacuously true under AND and vacuously false
// under OR.
type Conditions struct {
	Any bool `yaml:"any,omitempty"`

	Filename     string              `yaml:"filename,omitempty"`
	Extensions   stringOrList        `yaml:"extensions,omitempty"`
	Path         string              `yaml:"path,omitempty"`
	SizeKB       *SizeRange          `yaml:"size_kb,omitempty"`
	MimeType     string              `yaml:"mime_type,omitempty"`
	CreatedDate  *DateRange          `yaml:"created_date,omitempty"`
	ModifiedDate *DateRange          `yaml:"modified_date,omitempty"`
	IsSymlink    *bool               `yaml:"is_symlink,omitempty"`
	Metadata     []MetadataPredicate `yaml:"metadata,omitempty"`
}

// SizeRange bounds a file's size in KiB; either bound may be nil to leave
// it unconstrained.
type SizeRange struct {
	Min *float64 `yaml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty"`
}

// DateRange bounds an ISO-8601 date; either bound may be empty.
type DateRange struct {
	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`
}

// MetadataPredicate checks for the presence (and optionally the value) of
// an EXIF/metadata field.
type MetadataPredicate struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value,omitempty"`
	// HasValue distinguishes an absent Value (existence check only) from
	// an explicit empty string, which YAML can't tell apart on its own.
	HasValue bool `yaml:"-"`
}

// UnmarshalYAML records whether "value" was present in the source
// document, so an existence-only predicate (no value key at all) can be
// told apart from `value: ""`.
func (m *MetadataPredicate) UnmarshalYAML(value *yaml.Node) error {
	type alias struct {
		Key   string `yaml:"key"`
		Value string `yaml:"value"`
	}
	var a alias
	if err := value.Decode(&a); err != nil {
		return err
	}
	m.Key = a.Key
	m.Value = a.Value
	for i := 0; i+1 < len(value.Content); i += 2 {
		if value.Content[i].Value == "value" {
			m.HasValue = true
			break
		}
	}
	return nil
}

// stringOrList handles YAML fields that can be written as either a single
// scalar or a list of scalars, e.g. `extensions: jpg` or
// `extensions: [jpg, png]`.
type stringOrList []string

func (s *stringOrList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*s = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("expected string or list, got %v", value.Kind)
	}
}

func (s stringOrList) MarshalYAML() (any, error) {
	if len(s) == 1 {
		return s[0], nil
	}
	return []string(s), nil
}
