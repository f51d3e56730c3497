// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package smartdb

import (
	"sync"

	"github.com/vechain/smartdb/block"
)

// BlockCache keeps the most recent contiguous block headers.
type BlockCache struct {
	lock     sync.RWMutex
	max      int
	byHeight map[uint64]*block.Header
	byID     map[string]uint64
	min      uint64
	top      uint64
}

// NewBlockCache creates a cache holding up to max headers.
func NewBlockCache(max int) *BlockCache {
	return &BlockCache{
		max:      max,
		byHeight: make(map[uint64]*block.Header),
		byID:     make(map[string]uint64),
	}
}

// IsCached reports whether the header at height is cached.
func (c *BlockCache) IsCached(height uint64) bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	_, ok := c.byHeight[height]
	return ok
}

// CachedHeightRange returns the lowest and highest cached heights. ok is
// false when the cache is empty.
func (c *BlockCache) CachedHeightRange() (min, max uint64, ok bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if len(c.byHeight) == 0 {
		return 0, 0, false
	}
	return c.min, c.top, true
}

// Push caches the header. A header not following the highest cached one
// restarts the cache.
func (c *BlockCache) Push(h *block.Header) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if len(c.byHeight) > 0 && h.Height != c.top+1 {
		c.reset()
	}
	if len(c.byHeight) == 0 {
		c.min = h.Height
	}
	h = h.Copy()
	c.byHeight[h.Height] = h
	if h.ID != "" {
		c.byID[h.ID] = h.Height
	}
	c.top = h.Height
	for len(c.byHeight) > c.max {
		c.remove(c.min)
		c.min++
	}
}

// Get returns the cached header at height, or nil.
func (c *BlockCache) Get(height uint64) *block.Header {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if h, ok := c.byHeight[height]; ok {
		return h.Copy()
	}
	return nil
}

// GetByID returns the cached header with the id, or nil.
func (c *BlockCache) GetByID(id string) *block.Header {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if height, ok := c.byID[id]; ok {
		return c.byHeight[height].Copy()
	}
	return nil
}

// EvitUntil drops the headers from the highest down to minEvitHeight.
func (c *BlockCache) EvitUntil(minEvitHeight uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if len(c.byHeight) == 0 || minEvitHeight > c.top {
		return
	}
	if minEvitHeight <= c.min {
		c.reset()
		return
	}
	for height := c.top; height >= minEvitHeight; height-- {
		c.remove(height)
	}
	c.top = minEvitHeight - 1
}

func (c *BlockCache) remove(height uint64) {
	if h, ok := c.byHeight[height]; ok {
		delete(c.byID, h.ID)
		delete(c.byHeight, height)
	}
}

func (c *BlockCache) reset() {
	c.byHeight = make(map[uint64]*block.Header)
	c.byID = make(map[string]uint64)
	c.min, c.top = 0, 0
}
