// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package model

import "fmt"

// EntityState is the lifecycle state of a tracked entity.
type EntityState int8

const (
	Transient  EntityState = -1
	Persistent EntityState = 0
	New        EntityState = 1
	Modified   EntityState = 2
	Deleted    EntityState = 3
)

func (s EntityState) String() string {
	switch s {
	case Transient:
		return "transient"
	case Persistent:
		return "persistent"
	case New:
		return "new"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	}
	return fmt.Sprintf("state(%d)", int8(s))
}

// ChangeType classifies an EntityChanges record.
type ChangeType int

const (
	ChangeNew    ChangeType = 1
	ChangeModify ChangeType = 2
	ChangeDelete ChangeType = 3
)

func (t ChangeType) String() string {
	switch t {
	case ChangeNew:
		return "new"
	case ChangeModify:
		return "modify"
	case ChangeDelete:
		return "delete"
	}
	return fmt.Sprintf("change(%d)", int(t))
}

// PropertyChange is one field's before and after value.
type PropertyChange struct {
	Name     string      `json:"name"`
	Original interface{} `json:"original"`
	Current  interface{} `json:"current"`
}

// EntityChanges is the replayable change record of one entity in one version.
type EntityChanges struct {
	Type            ChangeType       `json:"type"`
	DBVersion       uint64           `json:"dbVersion"`
	Model           string           `json:"model"`
	PrimaryKey      Entity           `json:"primaryKey"`
	PropertyChanges []PropertyChange `json:"propertyChanges"`
}

// Clone returns a deep copy.
func (c *EntityChanges) Clone() *EntityChanges {
	if c == nil {
		return nil
	}
	out := *c
	out.PrimaryKey = c.PrimaryKey.Clone()
	out.PropertyChanges = make([]PropertyChange, len(c.PropertyChanges))
	for i, pc := range c.PropertyChanges {
		out.PropertyChanges[i] = PropertyChange{pc.Name, CloneValue(pc.Original), CloneValue(pc.Current)}
	}
	return &out
}

// Find returns the change of the named property.
func (c *EntityChanges) Find(name string) (*PropertyChange, bool) {
	for i := range c.PropertyChanges {
		if c.PropertyChanges[i].Name == name {
			return &c.PropertyChanges[i], true
		}
	}
	return nil, false
}

// Originals returns the original values as an entity.
func (c *EntityChanges) Originals() Entity {
	e := make(Entity, len(c.PropertyChanges))
	for _, pc := range c.PropertyChanges {
		e[pc.Name] = CloneValue(pc.Original)
	}
	return e
}

// Currents returns the current values as an entity.
func (c *EntityChanges) Currents() Entity {
	e := make(Entity, len(c.PropertyChanges))
	for _, pc := range c.PropertyChanges {
		e[pc.Name] = CloneValue(pc.Current)
	}
	return e
}

// Normalize converts decoded values back to canonical types using the schema.
func (c *EntityChanges) Normalize(s *Schema) error {
	if _, err := s.normalizeFields(c.PrimaryKey); err != nil {
		return err
	}
	for i := range c.PropertyChanges {
		pc := &c.PropertyChanges[i]
		var err error
		if pc.Original, err = s.NormalizeValue(pc.Name, pc.Original); err != nil {
			return err
		}
		if pc.Current, err = s.NormalizeValue(pc.Name, pc.Current); err != nil {
			return err
		}
	}
	return nil
}
