// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package model

import "github.com/pkg/errors"

// VersionProperty is the reserved property holding an entity's row version.
const VersionProperty = "_version_"

// Entity is a record of named field values.
type Entity map[string]interface{}

// Clone returns a deep copy of the entity.
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	c := make(Entity, len(e))
	for k, v := range e {
		c[k] = CloneValue(v)
	}
	return c
}

// Version returns the entity's row version, or 0 if unset.
func (e Entity) Version() uint64 {
	v, _ := versionOf(e[VersionProperty])
	return v
}

func versionOf(v interface{}) (uint64, bool) {
	if u, ok := v.(uint64); ok {
		return u, true
	}
	if i, ok := toInt64(v); ok && i >= 0 {
		return uint64(i), true
	}
	return 0, false
}

// Versioned is an entity paired with its row version.
type Versioned struct {
	Entity  Entity
	Version uint64
}

// Merge returns the entity with the version stored under VersionProperty.
func (v Versioned) Merge() Entity {
	e := v.Entity.Clone()
	if e == nil {
		e = make(Entity)
	}
	e[VersionProperty] = v.Version
	return e
}

// SplitEntityAndVersion separates the version from a versioned entity.
// The returned entity is a copy without VersionProperty.
func SplitEntityAndVersion(e Entity) (Versioned, error) {
	c := e.Clone()
	raw, ok := c[VersionProperty]
	if !ok {
		return Versioned{Entity: c}, nil
	}
	delete(c, VersionProperty)
	ver, ok := versionOf(raw)
	if !ok {
		return Versioned{}, errors.WithMessagef(ErrInvalidArgument, "bad version %v", raw)
	}
	return Versioned{Entity: c, Version: ver}, nil
}
