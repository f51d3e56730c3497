// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package model

import (
	"strconv"
	"strings"
)

// Key identifies an entity. It is either a scalar, for models with a
// simple primary key, or an Entity holding primary or unique key fields.
type Key = interface{}

// CacheKey is a primary or unique key normalized to one string.
type CacheKey string

// ResolvedKey is a key matched against the schema.
type ResolvedKey struct {
	// Index is empty for the primary key, otherwise the unique index name.
	Index string
	Key   Entity
}

// IsPrimary reports whether the key resolved to the primary key.
func (r ResolvedKey) IsPrimary() bool { return r.Index == "" }

func asEntity(key Key) (Entity, bool) {
	switch k := key.(type) {
	case Entity:
		return k, true
	case map[string]interface{}:
		return Entity(k), true
	}
	return nil, false
}

func pick(e Entity, fields []string) (Entity, bool) {
	out := make(Entity, len(fields))
	for _, f := range fields {
		v, ok := e[f]
		if !ok || v == nil {
			return nil, false
		}
		out[f] = v
	}
	return out, true
}

func (s *Schema) normalizeFields(e Entity) (Entity, error) {
	for k, v := range e {
		nv, err := s.NormalizeValue(k, v)
		if err != nil {
			return nil, err
		}
		e[k] = nv
	}
	return e, nil
}

// NormalizePrimaryKey converts a primary key into an Entity of the key
// fields with canonical values.
func (s *Schema) NormalizePrimaryKey(key Key) (Entity, error) {
	if key == nil {
		return nil, &InvalidEntityKeyError{s.Name, key}
	}
	if e, ok := asEntity(key); ok {
		if len(e) != len(s.primaryKey) {
			return nil, &InvalidEntityKeyError{s.Name, key}
		}
		picked, ok := pick(e, s.primaryKey)
		if !ok {
			return nil, &InvalidEntityKeyError{s.Name, key}
		}
		return s.normalizeFields(picked)
	}
	if s.IsCompositeKey() {
		return nil, &InvalidEntityKeyError{s.Name, key}
	}
	return s.normalizeFields(Entity{s.primaryKey[0]: key})
}

// GetPrimaryKey extracts the normalized primary key from an entity.
func (s *Schema) GetPrimaryKey(e Entity) (Entity, error) {
	picked, ok := pick(e, s.primaryKey)
	if !ok {
		return nil, &InvalidEntityKeyError{s.Name, e}
	}
	return s.normalizeFields(picked)
}

// SetPrimaryKey writes the key fields into e.
func (s *Schema) SetPrimaryKey(e Entity, key Key) error {
	pk, err := s.NormalizePrimaryKey(key)
	if err != nil {
		return err
	}
	for k, v := range pk {
		e[k] = v
	}
	return nil
}

// IsValidPrimaryKey reports whether key names exactly the primary key.
func (s *Schema) IsValidPrimaryKey(key Key) bool {
	_, err := s.NormalizePrimaryKey(key)
	return err == nil
}

// IsValidUniqueKey reports whether key names exactly one unique index.
func (s *Schema) IsValidUniqueKey(key Key) bool {
	e, ok := asEntity(key)
	if !ok {
		return false
	}
	_, ok = s.matchUnique(e)
	return ok
}

func (s *Schema) matchUnique(e Entity) (Index, bool) {
	for _, idx := range s.uniques {
		if len(idx.Fields) != len(e) {
			continue
		}
		if _, ok := pick(e, idx.Fields); ok {
			return idx, true
		}
	}
	return Index{}, false
}

// IsValidEntityKey reports whether key resolves to the primary key or a unique index.
func (s *Schema) IsValidEntityKey(key Key) bool {
	_, err := s.ResolveKey(key)
	return err == nil
}

// ResolveKey matches key against the primary key first, then the unique indexes.
func (s *Schema) ResolveKey(key Key) (ResolvedKey, error) {
	if pk, err := s.NormalizePrimaryKey(key); err == nil {
		return ResolvedKey{Key: pk}, nil
	}
	if e, ok := asEntity(key); ok {
		if idx, ok := s.matchUnique(e); ok {
			picked, _ := pick(e, idx.Fields)
			nk, err := s.normalizeFields(picked)
			if err != nil {
				return ResolvedKey{}, err
			}
			return ResolvedKey{Index: idx.Name, Key: nk}, nil
		}
	}
	return ResolvedKey{}, &InvalidEntityKeyError{s.Name, key}
}

// CacheKeyOf renders the normalized key fields in declaration order.
func CacheKeyOf(fields []string, key Entity) CacheKey {
	if len(fields) == 1 {
		return CacheKey(formatKeyPart(key[fields[0]]))
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = strconv.Quote(formatKeyPart(key[f]))
	}
	return CacheKey(strings.Join(parts, ","))
}

// CacheKey normalizes a primary key into its cache key.
func (s *Schema) CacheKey(key Key) (CacheKey, error) {
	pk, err := s.NormalizePrimaryKey(key)
	if err != nil {
		return "", err
	}
	return CacheKeyOf(s.primaryKey, pk), nil
}

// UniqueKeyOf renders the unique key of e for the index. It returns false
// if any indexed field is missing.
func (s *Schema) UniqueKeyOf(idx Index, e Entity) (CacheKey, bool) {
	picked, ok := pick(e, idx.Fields)
	if !ok {
		return "", false
	}
	return CacheKeyOf(idx.Fields, picked), true
}

