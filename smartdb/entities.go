// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package smartdb

import (
	"context"
	"math/big"

	"github.com/pkg/errors"

	"github.com/vechain/smartdb/cache"
	"github.com/vechain/smartdb/model"
	"github.com/vechain/smartdb/tracker"
)

func (db *DB) trackerOf(s *model.Schema) *tracker.Tracker {
	if s.Local {
		return db.local
	}
	return db.tracker
}

func (db *DB) cacheOf(s *model.Schema) *cache.EntityCache {
	if s.Local {
		return db.localCache
	}
	return db.cache
}

// writable returns the schema of a model that may be written now. Block
// scoped models need an open block, local models do not.
func (db *DB) writable(name string) (*model.Schema, error) {
	if err := db.ensureInited(); err != nil {
		return nil, err
	}
	s, err := db.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if s.ReadOnly {
		return nil, errors.WithMessage(model.ErrReadonlyModel, name)
	}
	if !s.Local && db.current == nil {
		return nil, errors.WithMessagef(model.ErrNoScope, "write %s outside a block", name)
	}
	return s, nil
}

func (db *DB) readable(name string) (*model.Schema, error) {
	if err := db.ensureInited(); err != nil {
		return nil, err
	}
	return db.registry.Get(name)
}

// Create tracks a new entity built from the declared properties of e and
// returns a copy of it with version 1.
func (db *DB) Create(name string, e model.Entity) (model.Entity, error) {
	s, err := db.writable(name)
	if err != nil {
		return nil, err
	}
	entity := s.CopyProperties(e, true)
	if err := s.Normalize(entity); err != nil {
		return nil, err
	}
	s.SetDefaultValues(entity)
	if err := s.CheckNotNull(entity); err != nil {
		return nil, err
	}
	if _, err := s.GetPrimaryKey(entity); err != nil {
		return nil, err
	}
	created, err := db.trackerOf(s).TrackNew(name, entity)
	if err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// CreateOrLoad returns the existing entity with the primary key of e, or
// creates it. created tells which happened.
func (db *DB) CreateOrLoad(ctx context.Context, name string, e model.Entity) (entity model.Entity, created bool, err error) {
	s, err := db.writable(name)
	if err != nil {
		return nil, false, err
	}
	pk, err := s.GetPrimaryKey(e)
	if err != nil {
		return nil, false, err
	}
	existing, err := db.Load(ctx, name, pk)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	entity, err = db.Create(name, e)
	if err != nil {
		return nil, false, err
	}
	return entity, true, nil
}

// modifier filters props down to the updatable fields.
func (db *DB) modifier(s *model.Schema, props model.Entity) (model.Entity, error) {
	if db.opts.CheckModifier {
		for k := range props {
			f, ok := s.Field(k)
			if !ok {
				return nil, errors.WithMessagef(model.ErrInvalidArgument, "model %s has no property %s", s.Name, k)
			}
			if f.PrimaryKey || f.CompositeKey {
				return nil, errors.WithMessagef(model.ErrInvalidArgument, "model %s: primary key %s cannot be modified", s.Name, k)
			}
		}
	}
	m := s.CopyProperties(props, false)
	if err := s.Normalize(m); err != nil {
		return nil, err
	}
	return m, nil
}

// track makes sure the entity with key is tracked and returns its primary key.
func (db *DB) track(ctx context.Context, s *model.Schema, key model.Key) (model.Entity, error) {
	e, err := db.load(ctx, s, key)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, errors.WithMessagef(model.ErrNotFound, "%s(%v)", s.Name, key)
	}
	return s.GetPrimaryKey(e)
}

// Update applies props to the entity with key, loading it if needed.
func (db *DB) Update(ctx context.Context, name string, props model.Entity, key model.Key) error {
	s, err := db.writable(name)
	if err != nil {
		return err
	}
	m, err := db.modifier(s, props)
	if err != nil {
		return err
	}
	pk, err := db.track(ctx, s, key)
	if err != nil {
		return err
	}
	if len(m) == 0 {
		return nil
	}
	return db.trackerOf(s).TrackModify(name, pk, m)
}

// Increase adds the increments to numeric fields of the entity with key
// and returns the new values of those fields.
func (db *DB) Increase(ctx context.Context, name string, increments model.Entity, key model.Key) (model.Entity, error) {
	s, err := db.writable(name)
	if err != nil {
		return nil, err
	}
	pk, err := db.track(ctx, s, key)
	if err != nil {
		return nil, err
	}
	current, _ := db.trackerOf(s).GetTrackingEntity(name, pk)

	props := make(model.Entity, len(increments))
	for k, delta := range increments {
		f, ok := s.Field(k)
		if !ok || f.PrimaryKey || f.CompositeKey {
			return nil, errors.WithMessagef(model.ErrInvalidArgument, "model %s: cannot increase %s", s.Name, k)
		}
		d, err := s.NormalizeValue(k, delta)
		if err != nil {
			return nil, err
		}
		switch f.Type {
		case model.Number:
			base, _ := current[k].(int64)
			inc := d.(int64)
			sum := base + inc
			if (inc > 0 && sum < base) || (inc < 0 && sum > base) {
				return nil, errors.WithMessagef(model.ErrInvalidArgument, "model %s: %s overflows int64", s.Name, k)
			}
			props[k] = sum
		case model.BigInt:
			base, ok := current[k].(*big.Int)
			if !ok {
				base = new(big.Int)
			}
			props[k] = new(big.Int).Add(base, d.(*big.Int))
		default:
			return nil, errors.WithMessagef(model.ErrInvalidArgument, "model %s: %s is not numeric", s.Name, k)
		}
	}
	if err := db.trackerOf(s).TrackModify(name, pk, props); err != nil {
		return nil, err
	}
	out := make(model.Entity, len(props))
	for k, v := range props {
		out[k] = model.CloneValue(v)
	}
	return out, nil
}

// Del deletes the entity with key, loading it if needed.
func (db *DB) Del(ctx context.Context, name string, key model.Key) error {
	s, err := db.writable(name)
	if err != nil {
		return err
	}
	pk, err := db.track(ctx, s, key)
	if err != nil {
		return err
	}
	return db.trackerOf(s).TrackDelete(name, pk)
}

// Load returns a copy of the entity with the primary or unique key, from
// the cache or else from persistence. It returns nil if there is none.
func (db *DB) Load(ctx context.Context, name string, key model.Key) (model.Entity, error) {
	s, err := db.readable(name)
	if err != nil {
		return nil, err
	}
	e, err := db.load(ctx, s, key)
	if err != nil || e == nil {
		return nil, err
	}
	return e.Clone(), nil
}

func (db *DB) load(ctx context.Context, s *model.Schema, key model.Key) (model.Entity, error) {
	rk, err := s.ResolveKey(key)
	if err != nil {
		return nil, err
	}
	if e, ok := db.cached(s, rk); ok {
		return e, nil
	}
	t := db.trackerOf(s)
	if rk.IsPrimary() {
		if m, ok := t.Manager(s.Name, rk.Key); ok && m.DeletedOrTransient() {
			return nil, nil
		}
	}
	if s.Memory {
		return nil, nil
	}
	row, err := db.persist.Get(ctx, s, rk.Key)
	if err != nil || row == nil {
		return nil, err
	}
	return db.trackRow(t, s, row, rk)
}

func (db *DB) cached(s *model.Schema, rk model.ResolvedKey) (model.Entity, bool) {
	if rk.IsPrimary() {
		return db.cacheOf(s).Get(s.Name, rk.Key)
	}
	return db.cacheOf(s).GetUnique(s.Name, rk.Index, rk.Key)
}

// trackRow tracks a persisted row. A row whose tracked entity was deleted,
// or no longer matches the key it was found by, yields nil.
func (db *DB) trackRow(t *tracker.Tracker, s *model.Schema, row model.Entity, rk model.ResolvedKey) (model.Entity, error) {
	v, err := model.SplitEntityAndVersion(row)
	if err != nil {
		return nil, err
	}
	e, err := t.TrackPersistent(s.Name, v)
	if err != nil || e == nil {
		return nil, err
	}
	for k, want := range rk.Key {
		if !model.ValueEqual(e[k], want) {
			return nil, nil
		}
	}
	return e, nil
}

// LoadMany queries persistence. With track set, every row is tracked and
// the tracked version of each entity is returned.
func (db *DB) LoadMany(ctx context.Context, name string, cond Condition, track bool) ([]model.Entity, error) {
	s, err := db.readable(name)
	if err != nil {
		return nil, err
	}
	rows, err := db.persist.Find(ctx, s, cond, FindOptions{})
	if err != nil || !track {
		return rows, err
	}
	t := db.trackerOf(s)
	out := make([]model.Entity, 0, len(rows))
	for _, row := range rows {
		v, err := model.SplitEntityAndVersion(row)
		if err != nil {
			return nil, err
		}
		e, err := t.TrackPersistent(name, v)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

// Get returns a copy of the cached entity with the primary or unique key.
func (db *DB) Get(name string, key model.Key) (model.Entity, error) {
	s, err := db.readable(name)
	if err != nil {
		return nil, err
	}
	rk, err := s.ResolveKey(key)
	if err != nil {
		return nil, err
	}
	if e, ok := db.cached(s, rk); ok {
		return e.Clone(), nil
	}
	return nil, nil
}

// GetAll returns copies of the cached entities of a memory model accepted
// by filter.
func (db *DB) GetAll(name string, filter func(model.Entity) bool) ([]model.Entity, error) {
	s, err := db.readable(name)
	if err != nil {
		return nil, err
	}
	if !s.Memory {
		return nil, errors.WithMessagef(model.ErrInvalidOperation, "%s is not a memory model", name)
	}
	all, _ := db.cacheOf(s).GetAll(name, filter)
	out := make([]model.Entity, len(all))
	for i, e := range all {
		out[i] = e.Clone()
	}
	return out, nil
}
