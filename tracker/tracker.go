// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package tracker records entity changes, confirms them in contract scopes,
// stamps them with block versions and replays them backwards on rollback.
package tracker

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/vechain/smartdb/cache"
	"github.com/vechain/smartdb/log"
	"github.com/vechain/smartdb/metrics"
	"github.com/vechain/smartdb/model"
)

var (
	logger                = log.WithContext("pkg", "tracker")
	metricHistoryVersions = metrics.LazyLoadGaugeVec("tracker_history_versions", []string{"session"})
)

// Tracker binds (model, key) to the state manager of a tracked entity.
// It is not safe for concurrent use.
type Tracker struct {
	name     string
	registry *model.Registry
	cache    *cache.EntityCache
	history  *History
	loader   HistoryLoader

	managers   map[string]map[model.CacheKey]*StateManager
	confirming bool
	touched    []*StateManager
	pending    []*StateManager
	version    uint64
}

// New creates a tracker over the cache. The tracker takes over the cache's
// eviction hooks: entities with changes are pinned, evicted clean entities
// stop being tracked.
func New(name string, registry *model.Registry, c *cache.EntityCache, maxHistoryHold int, loader HistoryLoader) *Tracker {
	t := &Tracker{
		name:     name,
		registry: registry,
		cache:    c,
		history:  NewHistory(maxHistoryHold),
		loader:   loader,
		managers: make(map[string]map[model.CacheKey]*StateManager),
	}
	c.SetPinned(t.isPinned)
	c.OnEvict(func(name string, key model.CacheKey, _ model.Entity) {
		t.stopTrack(name, key)
	})
	return t
}

// Version returns the last accepted version.
func (t *Tracker) Version() uint64 { return t.version }

// SetVersion sets the version the tracker resumes from.
func (t *Tracker) SetVersion(v uint64) { t.version = v }

// History returns the retained window.
func (t *Tracker) History() *History { return t.history }

// IsConfirming reports whether a confirm scope is open.
func (t *Tracker) IsConfirming() bool { return t.confirming }

func (t *Tracker) lookup(name string, key model.CacheKey) (*StateManager, bool) {
	m, ok := t.managers[name][key]
	return m, ok
}

func (t *Tracker) register(m *StateManager) {
	byKey, ok := t.managers[m.schema.Name]
	if !ok {
		byKey = make(map[model.CacheKey]*StateManager)
		t.managers[m.schema.Name] = byKey
	}
	byKey[m.key] = m
}

func (t *Tracker) unregister(m *StateManager) {
	if byKey, ok := t.managers[m.schema.Name]; ok && byKey[m.key] == m {
		delete(byKey, m.key)
	}
}

func (t *Tracker) isPinned(name string, key model.CacheKey) bool {
	m, ok := t.lookup(name, key)
	return ok && (m.changes != nil || m.snap != nil)
}

func (t *Tracker) stopTrack(name string, key model.CacheKey) {
	if m, ok := t.lookup(name, key); ok && m.changes == nil && m.snap == nil {
		t.unregister(m)
	}
}

// Manager returns the state manager of a tracked entity.
func (t *Tracker) Manager(name string, key model.Key) (*StateManager, bool) {
	s, err := t.registry.Get(name)
	if err != nil {
		return nil, false
	}
	ck, err := s.CacheKey(key)
	if err != nil {
		return nil, false
	}
	return t.lookup(name, ck)
}

// IsTracking reports whether the entity is tracked.
func (t *Tracker) IsTracking(name string, key model.Key) bool {
	_, ok := t.Manager(name, key)
	return ok
}

// GetTrackingEntity returns the tracked entity unless it is deleted or transient.
func (t *Tracker) GetTrackingEntity(name string, key model.Key) (model.Entity, bool) {
	m, ok := t.Manager(name, key)
	if !ok || m.DeletedOrTransient() {
		return nil, false
	}
	return m.entity, true
}

// TrackingCount returns the number of tracked entities.
func (t *Tracker) TrackingCount() int {
	n := 0
	for _, byKey := range t.managers {
		n += len(byKey)
	}
	return n
}

func (t *Tracker) touch(m *StateManager) {
	if t.confirming && m.snap == nil {
		m.takeSnapshot()
		t.touched = append(t.touched, m)
	}
}

func (t *Tracker) markPending(m *StateManager) {
	if !m.pending {
		m.pending = true
		t.pending = append(t.pending, m)
	}
}

// TrackNew starts tracking a new entity. The entity must be normalized and
// carry its primary key. It is stamped with version 1 and cached.
func (t *Tracker) TrackNew(name string, e model.Entity) (model.Entity, error) {
	s, err := t.registry.Get(name)
	if err != nil {
		return nil, err
	}
	pk, err := s.GetPrimaryKey(e)
	if err != nil {
		return nil, err
	}
	m := newStateManager(s, pk, e, model.Transient, 0)
	if existing, ok := t.lookup(name, m.key); ok {
		if existing.state == model.Deleted {
			return nil, existing.invalidOp("create")
		}
		if existing.state != model.Transient {
			return nil, errors.WithMessagef(model.ErrDuplicateEntity, "%s(%s)", name, m.key)
		}
	}
	if err := m.trackNew(); err != nil {
		return nil, err
	}
	if err := t.cache.Put(name, pk, e); err != nil {
		return nil, err
	}
	if t.confirming {
		m.snap = &snapshot{state: model.Transient, values: model.Entity{}}
		t.touched = append(t.touched, m)
	}
	t.register(m)
	t.markPending(m)
	logger.Trace("track new", "session", t.name, "model", name, "key", m.key)
	return e, nil
}

// TrackPersistent starts tracking an entity loaded from persistence. An
// already tracked entity is returned as is.
func (t *Tracker) TrackPersistent(name string, v model.Versioned) (model.Entity, error) {
	s, err := t.registry.Get(name)
	if err != nil {
		return nil, err
	}
	pk, err := s.GetPrimaryKey(v.Entity)
	if err != nil {
		return nil, err
	}
	ck := model.CacheKeyOf(s.PrimaryKey(), pk)
	if m, ok := t.lookup(name, ck); ok {
		if m.DeletedOrTransient() {
			return nil, nil
		}
		return m.entity, nil
	}
	m := newStateManager(s, pk, v.Merge(), model.Persistent, v.Version)
	if err := t.cache.Put(name, pk, m.entity); err != nil {
		return nil, err
	}
	t.register(m)
	return m.entity, nil
}

// TrackModify applies props to a tracked entity.
func (t *Tracker) TrackModify(name string, key model.Key, props model.Entity) error {
	m, ok := t.Manager(name, key)
	if !ok {
		return errors.WithMessagef(model.ErrNotFound, "%s(%v) is not tracked", name, key)
	}
	if err := t.checkUniques(m, props); err != nil {
		return err
	}
	if m.DeletedOrTransient() {
		return m.invalidOp("modify")
	}
	t.touch(m)
	changed, err := m.trackModify(props)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := t.cache.RefreshUniques(name, m.pk); err != nil {
		logger.Error("refresh uniques failed", "model", name, "key", m.key, "err", err)
	}
	t.markPending(m)
	logger.Trace("track modify", "session", t.name, "model", name, "key", m.key, "version", m.version)
	return nil
}

// checkUniques rejects a modification that would take a unique key owned
// by another cached entity.
func (t *Tracker) checkUniques(m *StateManager, props model.Entity) error {
	for _, idx := range m.schema.UniqueIndexes() {
		touched := false
		next := make(model.Entity, len(idx.Fields))
		for _, f := range idx.Fields {
			v, ok := props[f]
			if ok {
				touched = true
			} else {
				v = m.entity[f]
			}
			next[f] = v
		}
		if !touched {
			continue
		}
		if owner, ok := t.cache.GetUnique(m.schema.Name, idx.Name, next); ok {
			opk, err := m.schema.GetPrimaryKey(owner)
			if err == nil && model.CacheKeyOf(m.schema.PrimaryKey(), opk) != m.key {
				return errors.WithMessagef(model.ErrDuplicateEntity, "%s: unique %s taken", m.schema.Name, idx.Name)
			}
		}
	}
	return nil
}

// TrackDelete deletes a tracked entity. A new entity not yet accepted
// stops being tracked.
func (t *Tracker) TrackDelete(name string, key model.Key) error {
	m, ok := t.Manager(name, key)
	if !ok {
		return errors.WithMessagef(model.ErrNotFound, "%s(%v) is not tracked", name, key)
	}
	if m.DeletedOrTransient() {
		return m.invalidOp("delete")
	}
	t.touch(m)
	if err := m.trackDelete(); err != nil {
		return err
	}
	t.cache.Evict(name, m.pk)
	if m.state == model.Transient {
		t.unregister(m)
	} else {
		t.markPending(m)
	}
	logger.Trace("track delete", "session", t.name, "model", name, "key", m.key, "state", m.state)
	return nil
}

// StopTrack forgets a clean entity. The cache is left untouched.
func (t *Tracker) StopTrack(name string, key model.Key) {
	if m, ok := t.Manager(name, key); ok {
		t.stopTrack(name, m.key)
	}
}

// StopTrackAll forgets every entity and discards pending changes.
func (t *Tracker) StopTrackAll() {
	t.managers = make(map[string]map[model.CacheKey]*StateManager)
	t.touched = nil
	t.pending = nil
	t.confirming = false
}

// BeginConfirm opens a confirm scope.
func (t *Tracker) BeginConfirm() error {
	if t.confirming {
		return errors.WithMessage(model.ErrNestedScope, "confirm scope")
	}
	t.confirming = true
	t.touched = nil
	return nil
}

// Confirm freezes the diffs made in the scope.
func (t *Tracker) Confirm() error {
	if !t.confirming {
		return errors.WithMessage(model.ErrNoScope, "confirm scope")
	}
	for _, m := range t.touched {
		m.confirm()
	}
	t.touched = nil
	t.confirming = false
	return nil
}

// CancelConfirm restores every entity touched in the scope.
func (t *Tracker) CancelConfirm() error {
	if !t.confirming {
		return errors.WithMessage(model.ErrNoScope, "confirm scope")
	}
	t.rejectTouched()
	t.confirming = false
	return nil
}

// RejectChanges undoes the in-flight diff of the open scope, if any.
func (t *Tracker) RejectChanges() {
	if t.confirming {
		t.rejectTouched()
		t.confirming = false
	}
}

func (t *Tracker) rejectTouched() {
	for i := len(t.touched) - 1; i >= 0; i-- {
		m := t.touched[i]
		m.cancel()
		t.reconcile(m)
	}
	t.touched = nil
	t.cache.Settle()
}

// reconcile makes the tracker map and the cache agree with the state of m.
func (t *Tracker) reconcile(m *StateManager) {
	switch m.state {
	case model.Transient:
		t.unregister(m)
		t.cache.Evict(m.schema.Name, m.pk)
	case model.Deleted:
		t.register(m)
		t.cache.Evict(m.schema.Name, m.pk)
	default:
		t.register(m)
		if err := t.cache.Put(m.schema.Name, m.pk, m.entity); err != nil {
			logger.Error("restore cached entity failed", "model", m.schema.Name, "key", m.key, "err", err)
		}
	}
}

// PendingChanges returns copies of the changes made since the last
// accepted version, in first-change order.
func (t *Tracker) PendingChanges() []*model.EntityChanges {
	var out []*model.EntityChanges
	for _, m := range t.pending {
		if m.changes != nil {
			out = append(out, m.changes.Clone())
		}
	}
	return out
}

// HasPendingChanges reports whether anything would be accepted.
func (t *Tracker) HasPendingChanges() bool {
	for _, m := range t.pending {
		if m.changes != nil {
			return true
		}
	}
	return false
}

// AcceptChanges stamps pending changes with version, appends them to the
// history window and drops deleted entities.
func (t *Tracker) AcceptChanges(version uint64) []*model.EntityChanges {
	batch := make([]*model.EntityChanges, 0, len(t.pending))
	for _, m := range t.pending {
		m.pending = false
		if c := m.accept(version); c != nil {
			batch = append(batch, c)
		}
		if m.DeletedOrTransient() {
			t.unregister(m)
		}
	}
	t.pending = nil
	t.history.Add(version, batch)
	t.version = version
	t.cache.Settle()
	metricHistoryVersions().SetWithLabel(int64(t.history.Len()), map[string]string{"session": t.name})
	logger.Debug("changes accepted", "session", t.name, "version", version, "changes", len(batch))
	return batch
}

// ChangesUntil returns the accepted batches with version > v, oldest
// first. Versions outside the window come from the history loader.
func (t *Tracker) ChangesUntil(ctx context.Context, v uint64) ([]Batch, error) {
	if v >= t.version {
		return nil, nil
	}
	from := v + 1
	windowed := t.history.After(v)
	missingTo := t.version
	if len(windowed) > 0 {
		if windowed[0].Version == from {
			return windowed, nil
		}
		missingTo = windowed[0].Version - 1
	}
	if t.loader == nil {
		return nil, errors.WithMessagef(model.ErrHistoryUnavailable, "versions [%d, %d] outside window", from, missingTo)
	}
	loaded, err := t.loader(ctx, from, missingTo)
	if err != nil {
		return nil, errors.Wrapf(model.ErrHistoryUnavailable, "load versions [%d, %d]: %v", from, missingTo, err)
	}
	out := make([]Batch, 0, int(missingTo-from)+1+len(windowed))
	for ver := from; ver <= missingTo; ver++ {
		changes, ok := loaded[ver]
		if !ok {
			return nil, errors.WithMessagef(model.ErrHistoryUnavailable, "version %d missing", ver)
		}
		for _, c := range changes {
			s, err := t.registry.Get(c.Model)
			if err != nil {
				return nil, err
			}
			if err := c.Normalize(s); err != nil {
				return nil, errors.Wrapf(model.ErrHistoryUnavailable, "version %d: %v", ver, err)
			}
		}
		out = append(out, Batch{ver, changes})
	}
	return append(out, windowed...), nil
}

// RollbackChanges discards pending changes and undoes every batch newer
// than v, newest first.
func (t *Tracker) RollbackChanges(ctx context.Context, v uint64) error {
	if v > t.version {
		return errors.WithMessagef(model.ErrInvalidArgument, "rollback to %d beyond version %d", v, t.version)
	}
	batches, err := t.ChangesUntil(ctx, v)
	if err != nil {
		return err
	}
	return t.Revert(v, batches)
}

// Revert discards pending changes and undoes batches, which must be the
// result of ChangesUntil(v).
func (t *Tracker) Revert(v uint64, batches []Batch) error {
	if v > t.version {
		return errors.WithMessagef(model.ErrInvalidArgument, "rollback to %d beyond version %d", v, t.version)
	}
	t.DiscardPending()
	for i := len(batches) - 1; i >= 0; i-- {
		changes := batches[i].Changes
		for j := len(changes) - 1; j >= 0; j-- {
			if err := t.undo(changes[j]); err != nil {
				return err
			}
		}
	}
	t.history.Truncate(v)
	t.version = v
	t.cache.Settle()
	metricHistoryVersions().SetWithLabel(int64(t.history.Len()), map[string]string{"session": t.name})
	logger.Debug("changes rolled back", "session", t.name, "version", v, "batches", len(batches))
	return nil
}

// DiscardPending drops every change not yet accepted.
func (t *Tracker) DiscardPending() {
	t.RejectChanges()
	for i := len(t.pending) - 1; i >= 0; i-- {
		m := t.pending[i]
		m.pending = false
		if c := m.changes; c != nil {
			if err := t.undo(c); err != nil {
				logger.Error("discard pending failed", "model", m.schema.Name, "key", m.key, "err", err)
			}
		} else if m.state == model.Transient {
			t.unregister(m)
		}
	}
	t.pending = nil
}

// undo applies the inverse of one change record to the tracker and cache.
func (t *Tracker) undo(c *model.EntityChanges) error {
	s, err := t.registry.Get(c.Model)
	if err != nil {
		return err
	}
	pk, err := s.NormalizePrimaryKey(c.PrimaryKey)
	if err != nil {
		return err
	}
	ck := model.CacheKeyOf(s.PrimaryKey(), pk)
	m, tracked := t.lookup(c.Model, ck)

	switch c.Type {
	case model.ChangeNew:
		if tracked {
			t.unregister(m)
		}
		t.cache.Evict(c.Model, pk)
	case model.ChangeModify:
		if !tracked {
			// not resident, persistence holds the reverted row
			return nil
		}
		m.undo(c)
		t.reconcile(m)
	case model.ChangeDelete:
		entity := c.Originals()
		delete(entity, model.VersionProperty)
		for k, v := range pk {
			entity[k] = v
		}
		var version uint64
		if pc, ok := c.Find(model.VersionProperty); ok {
			version, _ = pc.Original.(uint64)
		}
		if tracked {
			m.replaceValues(entity)
			m.entity[model.VersionProperty] = version
			m.version = version
			m.state = model.Persistent
			m.changes = nil
			m.snap = nil
		} else {
			entity[model.VersionProperty] = version
			m = newStateManager(s, pk, entity, model.Persistent, version)
		}
		t.reconcile(m)
	default:
		return errors.WithMessagef(model.ErrInvalidArgument, "unknown change type %d", c.Type)
	}
	return nil
}

// TrackedKeys returns the tracked keys of a model in sorted order.
func (t *Tracker) TrackedKeys(name string) []model.CacheKey {
	keys := make([]model.CacheKey, 0, len(t.managers[name]))
	for k := range t.managers[name] {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
