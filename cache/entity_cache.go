// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package cache keeps the canonical in-memory copy of entities, indexed by
// primary key and by every unique index of their model.
package cache

import (
	"io"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"

	"github.com/vechain/smartdb/log"
	"github.com/vechain/smartdb/metrics"
	"github.com/vechain/smartdb/model"
)

var (
	logger             = log.WithContext("pkg", "cache")
	metricCacheHitMiss = metrics.LazyLoadGaugeVec("entity_cache_hit_miss", []string{"event"})
)

// DefaultMaxCached is the per-model LRU bound used when none is configured.
const DefaultMaxCached = 50000

// Options configures entity retention.
type Options struct {
	// Default is the LRU bound of models without an override.
	Default int `yaml:"default"`
	// Models overrides the bound per model name.
	Models map[string]int `yaml:"models,omitempty"`
}

func (o Options) maxCached(name string) int {
	if n, ok := o.Models[name]; ok {
		return n
	}
	if o.Default > 0 {
		return o.Default
	}
	return DefaultMaxCached
}

// EvictFunc is called when a clean entity leaves the cache because of the LRU bound.
type EvictFunc func(model string, key model.CacheKey, e model.Entity)

// PinnedFunc reports whether an entity holds changes not yet durable.
// Pinned entities are never evicted.
type PinnedFunc func(model string, key model.CacheKey) bool

// EntityCache is the multi-model entity cache.
type EntityCache struct {
	opts    Options
	caches  map[string]*UniquedCache
	schemas map[string]*model.Schema
	onEvict EvictFunc
	pinned  PinnedFunc
	stats   stats
}

// New creates an empty entity cache.
func New(opts Options) *EntityCache {
	return &EntityCache{
		opts:    opts,
		caches:  make(map[string]*UniquedCache),
		schemas: make(map[string]*model.Schema),
	}
}

// OnEvict sets the eviction callback.
func (c *EntityCache) OnEvict(fn EvictFunc) { c.onEvict = fn }

// SetPinned sets the guard consulted before any LRU eviction.
func (c *EntityCache) SetPinned(fn PinnedFunc) { c.pinned = fn }

// RegisterModel creates the cache of a model. Readonly, local and memory
// models are never bounded.
func (c *EntityCache) RegisterModel(s *model.Schema) {
	size := c.opts.maxCached(s.Name)
	if s.ReadOnly || s.Local || s.Memory {
		size = 0
	}
	uc := NewUniquedCache(s, size)
	name := s.Name
	uc.pinned = func(key model.CacheKey) bool {
		return c.pinned != nil && c.pinned(name, key)
	}
	uc.onEvict = func(key model.CacheKey, e model.Entity) {
		if c.onEvict != nil {
			c.onEvict(name, key, e)
		}
	}
	c.caches[name] = uc
	c.schemas[name] = s
	logger.Debug("model cache registered", "model", name, "bound", size)
}

// Models returns the names of the registered models.
func (c *EntityCache) Models() []string {
	names := make([]string, 0, len(c.caches))
	for name := range c.caches {
		names = append(names, name)
	}
	return names
}

// Model returns the cache of a single model.
func (c *EntityCache) Model(name string) (*UniquedCache, error) {
	uc, ok := c.caches[name]
	if !ok {
		return nil, errors.WithMessage(model.ErrUnknownModel, name)
	}
	return uc, nil
}

func (c *EntityCache) resolve(name string, key model.Key) (*UniquedCache, model.CacheKey, error) {
	uc, err := c.Model(name)
	if err != nil {
		return nil, "", err
	}
	ck, err := c.schemas[name].CacheKey(key)
	if err != nil {
		return nil, "", err
	}
	return uc, ck, nil
}

// Clear drops the given models, or every model if none is given.
func (c *EntityCache) Clear(names ...string) {
	if len(names) == 0 {
		names = c.Models()
	}
	for _, name := range names {
		if uc, ok := c.caches[name]; ok {
			uc.Clear()
		}
	}
}

// Get returns the cached entity by primary key.
func (c *EntityCache) Get(name string, key model.Key) (model.Entity, bool) {
	uc, ck, err := c.resolve(name, key)
	if err != nil {
		return nil, false
	}
	e, ok := uc.Get(ck)
	c.record(ok)
	return e, ok
}

// GetUnique returns the cached entity owning the unique key.
func (c *EntityCache) GetUnique(name, index string, uniqueKey model.Key) (model.Entity, bool) {
	uc, ok := c.caches[name]
	if !ok {
		return nil, false
	}
	s := c.schemas[name]
	idx, ok := s.UniqueIndex(index)
	if !ok {
		return nil, false
	}
	uk, ok := uniqueKey.(model.Entity)
	if !ok {
		if m, isMap := uniqueKey.(map[string]interface{}); isMap {
			uk = m
		} else if len(idx.Fields) == 1 {
			uk = model.Entity{idx.Fields[0]: uniqueKey}
		} else {
			return nil, false
		}
	}
	normalized := make(model.Entity, len(idx.Fields))
	for _, f := range idx.Fields {
		v, err := s.NormalizeValue(f, uk[f])
		if err != nil {
			return nil, false
		}
		normalized[f] = v
	}
	ck, ok := s.UniqueKeyOf(idx, normalized)
	if !ok {
		return nil, false
	}
	e, ok := uc.GetUnique(index, ck)
	c.record(ok)
	return e, ok
}

// ExistsUnique reports whether a unique key is cached.
func (c *EntityCache) ExistsUnique(name, index string, uniqueKey model.Key) bool {
	_, ok := c.GetUnique(name, index, uniqueKey)
	return ok
}

// GetAll returns the cached entities of the model accepted by filter, in
// key order. The second result is false for unknown models.
func (c *EntityCache) GetAll(name string, filter func(model.Entity) bool) ([]model.Entity, bool) {
	uc, ok := c.caches[name]
	if !ok {
		return nil, false
	}
	var out []model.Entity
	uc.ForEach(func(_ model.CacheKey, e model.Entity) bool {
		if filter == nil || filter(e) {
			out = append(out, e)
		}
		return true
	})
	return out, true
}

// Put caches the entity under its primary key.
func (c *EntityCache) Put(name string, key model.Key, e model.Entity) error {
	uc, ck, err := c.resolve(name, key)
	if err != nil {
		return err
	}
	return uc.Set(ck, e)
}

// Evict removes the entity from the primary map and every unique index.
func (c *EntityCache) Evict(name string, key model.Key) {
	uc, ck, err := c.resolve(name, key)
	if err != nil {
		return
	}
	uc.Evict(ck)
}

// Exists reports whether the entity is cached.
func (c *EntityCache) Exists(name string, key model.Key) bool {
	uc, ck, err := c.resolve(name, key)
	if err != nil {
		return false
	}
	return uc.Has(ck)
}

// RefreshCached replaces the entity and re-derives its unique entries.
func (c *EntityCache) RefreshCached(name string, key model.Key, e model.Entity) error {
	return c.Put(name, key, e)
}

// RefreshUniques re-derives unique entries after an in-place modification.
func (c *EntityCache) RefreshUniques(name string, key model.Key) error {
	uc, ck, err := c.resolve(name, key)
	if err != nil {
		return err
	}
	return uc.RefreshUniques(ck)
}

// Settle evicts entities kept past the LRU bound while they were pinned.
func (c *EntityCache) Settle() {
	for _, uc := range c.caches {
		uc.Settle()
	}
}

// Dump writes a human readable view of every cached entity.
func (c *EntityCache) Dump(w io.Writer) {
	view := make(map[string]map[model.CacheKey]model.Entity, len(c.caches))
	for name, uc := range c.caches {
		m := make(map[model.CacheKey]model.Entity, uc.Len())
		uc.ForEach(func(k model.CacheKey, e model.Entity) bool {
			m[k] = e
			return true
		})
		view[name] = m
	}
	cfg := spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true}
	cfg.Fdump(w, view)
}

func (c *EntityCache) record(hit bool) {
	if hit {
		c.stats.hit.Add(1)
	} else {
		c.stats.miss.Add(1)
	}
	if changed, hit, miss := c.stats.rate(); changed {
		metricCacheHitMiss().SetWithLabel(hit, map[string]string{"event": "hit"})
		metricCacheHitMiss().SetWithLabel(miss, map[string]string{"event": "miss"})
	}
}

// stats collects cache hit/miss counts.
type stats struct {
	hit, miss atomic.Int64
	flag      atomic.Int32
}

// rate returns the counters and whether the hit rate moved by at least
// one permille since the last call.
func (s *stats) rate() (bool, int64, int64) {
	hit, miss := s.hit.Load(), s.miss.Load()
	hitRate := float64(0)
	if lookups := hit + miss; lookups > 0 {
		hitRate = float64(hit) / float64(lookups)
	}
	flag := int32(hitRate * 1000)
	return s.flag.Swap(flag) != flag, hit, miss
}
