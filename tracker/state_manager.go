// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tracker

import (
	"github.com/pkg/errors"

	"github.com/vechain/smartdb/model"
)

// StateManager owns the lifecycle of one tracked entity. The entity map is
// shared with the cache and always mutated in place.
type StateManager struct {
	schema  *model.Schema
	key     model.CacheKey
	pk      model.Entity
	entity  model.Entity
	state   model.EntityState
	version uint64

	// changes accumulates the diff since the last accepted version.
	changes *model.EntityChanges
	// snap is taken on the first touch inside a confirm scope.
	snap    *snapshot
	pending bool
}

type snapshot struct {
	state   model.EntityState
	version uint64
	changes *model.EntityChanges
	values  model.Entity
}

func newStateManager(schema *model.Schema, pk model.Entity, entity model.Entity, state model.EntityState, version uint64) *StateManager {
	return &StateManager{
		schema:  schema,
		key:     model.CacheKeyOf(schema.PrimaryKey(), pk),
		pk:      pk,
		entity:  entity,
		state:   state,
		version: version,
	}
}

func (m *StateManager) Key() model.CacheKey      { return m.key }
func (m *StateManager) PrimaryKey() model.Entity { return m.pk }
func (m *StateManager) Entity() model.Entity     { return m.entity }
func (m *StateManager) State() model.EntityState { return m.state }
func (m *StateManager) Version() uint64          { return m.version }

// HasChanges reports whether a diff exists since the last accepted version.
func (m *StateManager) HasChanges() bool { return m.changes != nil }

// Dirty reports whether an unconfirmed diff exists.
func (m *StateManager) Dirty() bool { return m.snap != nil }

// DeletedOrTransient reports whether the entity is invisible to queries.
func (m *StateManager) DeletedOrTransient() bool {
	return m.state == model.Deleted || m.state == model.Transient
}

func (m *StateManager) takeSnapshot() {
	if m.snap != nil {
		return
	}
	m.snap = &snapshot{
		state:   m.state,
		version: m.version,
		changes: m.changes.Clone(),
		values:  m.entity.Clone(),
	}
}

func (m *StateManager) invalidOp(op string) error {
	return errors.WithMessagef(model.ErrInvalidOperation, "%s %s(%s) in state %s", op, m.schema.Name, m.key, m.state)
}

func (m *StateManager) trackNew() error {
	if m.state != model.Transient {
		return m.invalidOp("create")
	}
	m.state = model.New
	m.version = 1
	m.entity[model.VersionProperty] = m.version

	c := &model.EntityChanges{
		Type:       model.ChangeNew,
		Model:      m.schema.Name,
		PrimaryKey: m.pk.Clone(),
	}
	for _, f := range m.schema.Fields {
		if v, ok := m.entity[f.Name]; ok {
			c.PropertyChanges = append(c.PropertyChanges, model.PropertyChange{Name: f.Name, Current: model.CloneValue(v)})
		}
	}
	c.PropertyChanges = append(c.PropertyChanges, model.PropertyChange{Name: model.VersionProperty, Current: m.version})
	m.changes = c
	return nil
}

// trackModify applies props and records the diff. It reports whether any
// value actually changed.
func (m *StateManager) trackModify(props model.Entity) (bool, error) {
	switch m.state {
	case model.Deleted, model.Transient:
		return false, m.invalidOp("modify")
	}

	var names []string
	for _, f := range m.schema.Fields {
		if v, ok := props[f.Name]; ok && !model.ValueEqual(m.entity[f.Name], v) {
			names = append(names, f.Name)
		}
	}
	if len(names) == 0 {
		return false, nil
	}

	if m.state == model.Persistent {
		m.state = model.Modified
		m.changes = &model.EntityChanges{
			Type:       model.ChangeModify,
			Model:      m.schema.Name,
			PrimaryKey: m.pk.Clone(),
			PropertyChanges: []model.PropertyChange{
				{Name: model.VersionProperty, Original: m.version, Current: m.version + 1},
			},
		}
		m.version++
		m.entity[model.VersionProperty] = m.version
	}

	for _, name := range names {
		v := props[name]
		if pc, ok := m.changes.Find(name); ok {
			pc.Current = model.CloneValue(v)
		} else {
			original := m.entity[name]
			if m.changes.Type == model.ChangeNew {
				original = nil
			}
			m.changes.PropertyChanges = append(m.changes.PropertyChanges, model.PropertyChange{
				Name:     name,
				Original: model.CloneValue(original),
				Current:  model.CloneValue(v),
			})
		}
		m.entity[name] = v
	}
	return true, nil
}

func (m *StateManager) trackDelete() error {
	switch m.state {
	case model.Deleted, model.Transient:
		return m.invalidOp("delete")
	case model.New:
		m.state = model.Transient
		m.changes = nil
		return nil
	}

	// the delete record carries the values as of the last accepted version
	originals := m.entity.Clone()
	version := m.version
	if m.changes != nil {
		for _, pc := range m.changes.PropertyChanges {
			originals[pc.Name] = model.CloneValue(pc.Original)
		}
		if pc, ok := m.changes.Find(model.VersionProperty); ok {
			version, _ = pc.Original.(uint64)
		}
	}
	c := &model.EntityChanges{
		Type:       model.ChangeDelete,
		Model:      m.schema.Name,
		PrimaryKey: m.pk.Clone(),
	}
	for _, f := range m.schema.Fields {
		if v, ok := originals[f.Name]; ok {
			c.PropertyChanges = append(c.PropertyChanges, model.PropertyChange{Name: f.Name, Original: v})
		}
	}
	c.PropertyChanges = append(c.PropertyChanges, model.PropertyChange{Name: model.VersionProperty, Original: version})
	m.changes = c
	m.state = model.Deleted
	return nil
}

func (m *StateManager) confirm() {
	m.snap = nil
}

// cancel restores the state taken at the first touch of the scope.
func (m *StateManager) cancel() {
	if m.snap == nil {
		return
	}
	m.state = m.snap.state
	m.version = m.snap.version
	m.changes = m.snap.changes
	m.replaceValues(m.snap.values)
	m.snap = nil
}

func (m *StateManager) replaceValues(values model.Entity) {
	for k := range m.entity {
		delete(m.entity, k)
	}
	for k, v := range values {
		m.entity[k] = v
	}
}

// accept stamps the accumulated diff with the version and returns it.
// Deleted managers stay Deleted for the tracker to drop.
func (m *StateManager) accept(version uint64) *model.EntityChanges {
	c := m.changes
	m.changes = nil
	m.snap = nil
	switch m.state {
	case model.New, model.Modified:
		m.state = model.Persistent
	}
	if c != nil {
		c.DBVersion = version
	}
	return c
}

// undo applies the inverse of a modify record.
func (m *StateManager) undo(c *model.EntityChanges) {
	for _, pc := range c.PropertyChanges {
		if pc.Name == model.VersionProperty {
			continue
		}
		if pc.Original == nil {
			delete(m.entity, pc.Name)
		} else {
			m.entity[pc.Name] = model.CloneValue(pc.Original)
		}
	}
	if pc, ok := c.Find(model.VersionProperty); ok {
		if v, ok := pc.Original.(uint64); ok {
			m.version = v
		}
	}
	m.entity[model.VersionProperty] = m.version
	m.state = model.Persistent
	m.changes = nil
	m.snap = nil
}
