// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/vechain/smartdb/model"
)

// UniquedCache is the cache of one model: a primary store plus one map per
// unique index. Both are always updated together.
type UniquedCache struct {
	schema *model.Schema
	store  store
	// uniques maps index name to unique key to primary key.
	uniques map[string]map[model.CacheKey]model.CacheKey
	// indexed records the unique keys each primary key was indexed under.
	indexed map[model.CacheKey]map[string]model.CacheKey

	pinned  func(model.CacheKey) bool
	onEvict func(model.CacheKey, model.Entity)
}

// NewUniquedCache creates a cache for the model. A maxSize <= 0 means unbounded.
func NewUniquedCache(schema *model.Schema, maxSize int) *UniquedCache {
	c := &UniquedCache{
		schema:  schema,
		uniques: make(map[string]map[model.CacheKey]model.CacheKey),
		indexed: make(map[model.CacheKey]map[string]model.CacheKey),
	}
	for _, idx := range schema.UniqueIndexes() {
		c.uniques[idx.Name] = make(map[model.CacheKey]model.CacheKey)
	}
	if maxSize > 0 {
		c.store = newLRUStore(maxSize, c.isPinned, c.evicted)
	} else {
		c.store = make(mapStore)
	}
	return c
}

// Bounded reports whether the cache has LRU retention.
func (c *UniquedCache) Bounded() bool {
	_, ok := c.store.(*lruStore)
	return ok
}

func (c *UniquedCache) isPinned(key model.CacheKey) bool {
	return c.pinned != nil && c.pinned(key)
}

func (c *UniquedCache) evicted(key model.CacheKey, e model.Entity) {
	c.dropUniques(key)
	logger.Trace("entity evicted", "model", c.schema.Name, "key", key)
	if c.onEvict != nil {
		c.onEvict(key, e)
	}
}

// Has reports whether the key is cached, without touching recency.
func (c *UniquedCache) Has(key model.CacheKey) bool {
	_, ok := c.store.peek(key)
	return ok
}

// Get returns the cached entity and marks it recently used.
func (c *UniquedCache) Get(key model.CacheKey) (model.Entity, bool) {
	return c.store.get(key)
}

// Set caches the entity under key and indexes it. A unique key already
// owned by another entity is rejected without mutating anything.
func (c *UniquedCache) Set(key model.CacheKey, e model.Entity) error {
	next, err := c.uniqueKeys(key, e)
	if err != nil {
		return err
	}
	c.dropUniques(key)
	c.addUniques(key, next)
	c.store.set(key, e)
	return nil
}

func (c *UniquedCache) uniqueKeys(key model.CacheKey, e model.Entity) (map[string]model.CacheKey, error) {
	next := make(map[string]model.CacheKey)
	for _, idx := range c.schema.UniqueIndexes() {
		uk, ok := c.schema.UniqueKeyOf(idx, e)
		if !ok {
			continue
		}
		if owner, ok := c.uniques[idx.Name][uk]; ok && owner != key {
			return nil, errors.WithMessagef(model.ErrDuplicateEntity,
				"model %s: unique %s=%s owned by %s", c.schema.Name, idx.Name, uk, owner)
		}
		next[idx.Name] = uk
	}
	return next, nil
}

func (c *UniquedCache) addUniques(key model.CacheKey, keys map[string]model.CacheKey) {
	if len(keys) == 0 {
		return
	}
	for name, uk := range keys {
		c.uniques[name][uk] = key
	}
	c.indexed[key] = keys
}

func (c *UniquedCache) dropUniques(key model.CacheKey) {
	for name, uk := range c.indexed[key] {
		if c.uniques[name][uk] == key {
			delete(c.uniques[name], uk)
		}
	}
	delete(c.indexed, key)
}

// Evict removes the entity and its unique entries.
func (c *UniquedCache) Evict(key model.CacheKey) {
	c.dropUniques(key)
	c.store.remove(key)
}

// RefreshUniques re-derives the unique entries of an entity modified in place.
func (c *UniquedCache) RefreshUniques(key model.CacheKey) error {
	e, ok := c.store.peek(key)
	if !ok {
		return nil
	}
	next, err := c.uniqueKeys(key, e)
	if err != nil {
		return err
	}
	c.dropUniques(key)
	c.addUniques(key, next)
	return nil
}

// GetUnique looks an entity up through a unique index.
func (c *UniquedCache) GetUnique(index string, uniqueKey model.CacheKey) (model.Entity, bool) {
	key, ok := c.uniques[index][uniqueKey]
	if !ok {
		return nil, false
	}
	return c.Get(key)
}

// Settle evicts entries held past the bound once they are no longer pinned.
func (c *UniquedCache) Settle() {
	c.store.trim()
}

// Keys returns the cached keys in sorted order.
func (c *UniquedCache) Keys() []model.CacheKey {
	keys := c.store.keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ForEach visits every cached entity in key order without touching recency.
func (c *UniquedCache) ForEach(fn func(model.CacheKey, model.Entity) bool) {
	for _, k := range c.Keys() {
		e, _ := c.store.peek(k)
		if !fn(k, e) {
			return
		}
	}
}

// Len returns the number of cached entities.
func (c *UniquedCache) Len() int {
	return c.store.len()
}

// Clear drops everything without firing evict callbacks.
func (c *UniquedCache) Clear() {
	c.store.purge()
	for name := range c.uniques {
		c.uniques[name] = make(map[model.CacheKey]model.CacheKey)
	}
	c.indexed = make(map[model.CacheKey]map[string]model.CacheKey)
}
