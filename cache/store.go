// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import (
	"math"

	"github.com/hashicorp/golang-lru/simplelru"

	"github.com/vechain/smartdb/model"
)

// store is the primary map of one model.
type store interface {
	get(key model.CacheKey) (model.Entity, bool)
	peek(key model.CacheKey) (model.Entity, bool)
	set(key model.CacheKey, e model.Entity)
	remove(key model.CacheKey)
	keys() []model.CacheKey
	len() int
	purge()
	// trim restores the retention bound where pinning allows.
	trim()
}

// mapStore retains everything.
type mapStore map[model.CacheKey]model.Entity

func (m mapStore) get(key model.CacheKey) (model.Entity, bool)  { e, ok := m[key]; return e, ok }
func (m mapStore) peek(key model.CacheKey) (model.Entity, bool) { e, ok := m[key]; return e, ok }
func (m mapStore) set(key model.CacheKey, e model.Entity)       { m[key] = e }
func (m mapStore) remove(key model.CacheKey)                    { delete(m, key) }
func (m mapStore) len() int                                     { return len(m) }
func (m mapStore) trim()                                        {}

func (m mapStore) keys() []model.CacheKey {
	keys := make([]model.CacheKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func (m mapStore) purge() {
	for k := range m {
		delete(m, k)
	}
}

// lruStore retains at most size entries. Pinned entries are never chosen
// as victims, so the store only grows past size while they hold it full.
type lruStore struct {
	lru     *simplelru.LRU
	size    int
	pinned  func(model.CacheKey) bool
	onEvict func(model.CacheKey, model.Entity)
}

func newLRUStore(size int, pinned func(model.CacheKey) bool, onEvict func(model.CacheKey, model.Entity)) *lruStore {
	// the list itself is never full, trim picks the victims
	l, err := simplelru.NewLRU(math.MaxInt32, nil)
	if err != nil {
		panic(err)
	}
	return &lruStore{lru: l, size: size, pinned: pinned, onEvict: onEvict}
}

func (l *lruStore) get(key model.CacheKey) (model.Entity, bool) {
	if v, ok := l.lru.Get(key); ok {
		return v.(model.Entity), true
	}
	return nil, false
}

func (l *lruStore) peek(key model.CacheKey) (model.Entity, bool) {
	if v, ok := l.lru.Peek(key); ok {
		return v.(model.Entity), true
	}
	return nil, false
}

// set adds or refreshes the entry. The entry just set is never its own victim.
func (l *lruStore) set(key model.CacheKey, e model.Entity) {
	l.lru.Add(key, e)
	l.evictOver(key)
}

func (l *lruStore) trim() { l.evictOver("") }

// evictOver drops the least recently used unpinned entries, other than
// keep, until the bound holds or no candidate is left.
func (l *lruStore) evictOver(keep model.CacheKey) {
	for l.lru.Len() > l.size {
		key, e, ok := l.victim(keep)
		if !ok {
			return
		}
		l.lru.Remove(key)
		l.onEvict(key, e)
	}
}

func (l *lruStore) victim(keep model.CacheKey) (model.CacheKey, model.Entity, bool) {
	if k, v, ok := l.lru.GetOldest(); ok {
		if key := k.(model.CacheKey); key != keep && !l.pinned(key) {
			return key, v.(model.Entity), true
		}
	}
	// oldest to newest
	for _, k := range l.lru.Keys() {
		key := k.(model.CacheKey)
		if key == keep || l.pinned(key) {
			continue
		}
		v, _ := l.lru.Peek(key)
		return key, v.(model.Entity), true
	}
	return "", nil, false
}

func (l *lruStore) len() int                  { return l.lru.Len() }
func (l *lruStore) remove(key model.CacheKey) { l.lru.Remove(key) }
func (l *lruStore) purge()                    { l.lru.Purge() }

func (l *lruStore) keys() []model.CacheKey {
	raw := l.lru.Keys()
	keys := make([]model.CacheKey, len(raw))
	for i, k := range raw {
		keys[i] = k.(model.CacheKey)
	}
	return keys
}
