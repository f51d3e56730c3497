// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package model

import (
	"sort"

	"github.com/pkg/errors"
)

// Field declares one property of a model.
type Field struct {
	Name   string    `yaml:"name" json:"name"`
	Type   FieldType `yaml:"type" json:"type"`
	Length int       `yaml:"length,omitempty" json:"length,omitempty"`
	// Index names a non-unique index. Fields sharing a name form one index.
	Index string `yaml:"index,omitempty" json:"index,omitempty"`
	// Unique names a unique index. Fields sharing a name form one composite index.
	Unique       string      `yaml:"unique,omitempty" json:"unique,omitempty"`
	NotNull      bool        `yaml:"not_null,omitempty" json:"not_null,omitempty"`
	PrimaryKey   bool        `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
	CompositeKey bool        `yaml:"composite_key,omitempty" json:"composite_key,omitempty"`
	Default      interface{} `yaml:"default,omitempty" json:"default,omitempty"`
}

// Index is a named set of fields.
type Index struct {
	Name   string
	Fields []string
	Unique bool
}

// Schema describes one entity model. It is immutable once initialized.
type Schema struct {
	Name     string  `yaml:"name" json:"name"`
	Table    string  `yaml:"table,omitempty" json:"table,omitempty"`
	Memory   bool    `yaml:"memory,omitempty" json:"memory,omitempty"`
	ReadOnly bool    `yaml:"readonly,omitempty" json:"readonly,omitempty"`
	Local    bool    `yaml:"local,omitempty" json:"local,omitempty"`
	Fields   []Field `yaml:"fields" json:"fields"`

	fields     map[string]*Field
	primaryKey []string
	uniques    []Index
	indexes    []Index
	inited     bool
}

// MustSchema initializes the schema and panics on error.
func MustSchema(s *Schema) *Schema {
	if err := s.Init(); err != nil {
		panic(err)
	}
	return s
}

// Init validates the declaration and derives keys and indexes.
func (s *Schema) Init() error {
	if s.inited {
		return nil
	}
	if s.Name == "" {
		return errors.WithMessage(ErrInvalidArgument, "model name is empty")
	}
	if s.Table == "" {
		s.Table = s.Name
	}
	s.fields = make(map[string]*Field, len(s.Fields))

	uniques := make(map[string][]string)
	indexes := make(map[string][]string)
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" || f.Name == VersionProperty {
			return errors.WithMessagef(ErrInvalidArgument, "model %s: bad field name %q", s.Name, f.Name)
		}
		if _, dup := s.fields[f.Name]; dup {
			return errors.WithMessagef(ErrInvalidArgument, "model %s: duplicated field %s", s.Name, f.Name)
		}
		if !f.Type.valid() {
			return errors.WithMessagef(ErrInvalidArgument, "model %s: field %s has unknown type %q", s.Name, f.Name, f.Type)
		}
		if f.Default != nil {
			def, err := f.Type.normalize(f.Default)
			if err != nil {
				return errors.WithMessagef(err, "model %s: default of %s", s.Name, f.Name)
			}
			f.Default = def
		}
		s.fields[f.Name] = f
		if f.PrimaryKey || f.CompositeKey {
			if f.Type == JSON {
				return errors.WithMessagef(ErrInvalidArgument, "model %s: key field %s cannot be Json", s.Name, f.Name)
			}
			s.primaryKey = append(s.primaryKey, f.Name)
		}
		if f.Unique != "" {
			uniques[f.Unique] = append(uniques[f.Unique], f.Name)
		}
		if f.Index != "" {
			indexes[f.Index] = append(indexes[f.Index], f.Name)
		}
	}
	if len(s.primaryKey) == 0 {
		return errors.WithMessagef(ErrInvalidArgument, "model %s: no primary key", s.Name)
	}
	s.uniques = buildIndexes(uniques, true)
	s.indexes = buildIndexes(indexes, false)
	s.inited = true
	return nil
}

func buildIndexes(m map[string][]string, unique bool) []Index {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Index, 0, len(names))
	for _, name := range names {
		out = append(out, Index{Name: name, Fields: m[name], Unique: unique})
	}
	return out
}

// IsCompositeKey reports whether the primary key spans several fields.
func (s *Schema) IsCompositeKey() bool { return len(s.primaryKey) > 1 }

// PrimaryKey returns the primary key field names.
func (s *Schema) PrimaryKey() []string { return s.primaryKey }

// UniqueIndexes returns the unique indexes sorted by name.
func (s *Schema) UniqueIndexes() []Index { return s.uniques }

// Indexes returns the non-unique indexes sorted by name.
func (s *Schema) Indexes() []Index { return s.indexes }

// UniqueIndex returns the unique index with the given name.
func (s *Schema) UniqueIndex(name string) (Index, bool) {
	for _, idx := range s.uniques {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// Field returns the named field declaration.
func (s *Schema) Field(name string) (*Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// IsValidProperty reports whether name is a declared field.
func (s *Schema) IsValidProperty(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// JSONFields returns the names of Json typed fields.
func (s *Schema) JSONFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Type == JSON {
			out = append(out, f.Name)
		}
	}
	return out
}

// NormalizeValue converts v to the canonical representation of the named field.
// VersionProperty is normalized to uint64.
func (s *Schema) NormalizeValue(name string, v interface{}) (interface{}, error) {
	if name == VersionProperty {
		if v == nil {
			return nil, nil
		}
		ver, ok := versionOf(v)
		if !ok {
			return nil, errors.WithMessagef(ErrInvalidArgument, "bad version %v", v)
		}
		return ver, nil
	}
	f, ok := s.fields[name]
	if !ok {
		return nil, errors.WithMessagef(ErrInvalidArgument, "model %s has no property %s", s.Name, name)
	}
	return f.Type.normalize(v)
}

// Normalize converts every known property of e in place. Unknown
// properties are rejected.
func (s *Schema) Normalize(e Entity) error {
	for k, v := range e {
		nv, err := s.NormalizeValue(k, v)
		if err != nil {
			return err
		}
		e[k] = nv
	}
	return nil
}

// CopyProperties returns a copy of e holding only declared fields.
func (s *Schema) CopyProperties(e Entity, includePrimaryKey bool) Entity {
	out := make(Entity, len(e))
	for _, f := range s.Fields {
		if !includePrimaryKey && (f.PrimaryKey || f.CompositeKey) {
			continue
		}
		if v, ok := e[f.Name]; ok {
			out[f.Name] = CloneValue(v)
		}
	}
	return out
}

// SetDefaultValues fills absent fields that declare a default.
func (s *Schema) SetDefaultValues(e Entity) {
	for _, f := range s.Fields {
		if f.Default == nil {
			continue
		}
		if v, ok := e[f.Name]; !ok || v == nil {
			e[f.Name] = CloneValue(f.Default)
		}
	}
}

// CheckNotNull returns an error naming the first not-null field without a value.
func (s *Schema) CheckNotNull(e Entity) error {
	for _, f := range s.Fields {
		if f.NotNull && e[f.Name] == nil {
			return errors.WithMessagef(ErrInvalidArgument, "model %s: %s must not be null", s.Name, f.Name)
		}
	}
	return nil
}
