// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package model

import "github.com/pkg/errors"

// Registry holds the schemas of all models, in registration order.
type Registry struct {
	schemas map[string]*Schema
	order   []*Schema
}

// NewRegistry initializes and registers the given schemas.
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*Schema)}
	for _, s := range schemas {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a schema. Names must be unique.
func (r *Registry) Register(s *Schema) error {
	if err := s.Init(); err != nil {
		return err
	}
	if _, ok := r.schemas[s.Name]; ok {
		return errors.WithMessagef(ErrInvalidArgument, "model %s already registered", s.Name)
	}
	r.schemas[s.Name] = s
	r.order = append(r.order, s)
	return nil
}

// Get returns the schema of the named model.
func (r *Registry) Get(name string) (*Schema, error) {
	s, ok := r.schemas[name]
	if !ok {
		return nil, errors.WithMessage(ErrUnknownModel, name)
	}
	return s, nil
}

// Has reports whether the model is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.schemas[name]
	return ok
}

// All returns every schema in registration order.
func (r *Registry) All() []*Schema {
	return append([]*Schema(nil), r.order...)
}

// Filter returns the schemas accepted by fn.
func (r *Registry) Filter(fn func(*Schema) bool) []*Schema {
	var out []*Schema
	for _, s := range r.order {
		if fn(s) {
			out = append(out, s)
		}
	}
	return out
}
