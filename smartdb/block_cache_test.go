// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package smartdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockCache(t *testing.T) {
	c := NewBlockCache(3)
	_, _, ok := c.CachedHeightRange()
	assert.False(t, ok)

	for h := uint64(1); h <= 5; h++ {
		c.Push(header(h))
	}
	min, max, ok := c.CachedHeightRange()
	assert.True(t, ok)
	assert.Equal(t, uint64(3), min)
	assert.Equal(t, uint64(5), max)
	assert.False(t, c.IsCached(2))
	assert.Nil(t, c.GetByID("block-2"))
	assert.Equal(t, uint64(4), c.GetByID("block-4").Height)

	got := c.Get(5)
	got.ID = "changed"
	assert.Equal(t, "block-5", c.Get(5).ID)

	c.EvitUntil(5)
	assert.False(t, c.IsCached(5))
	min, max, _ = c.CachedHeightRange()
	assert.Equal(t, uint64(3), min)
	assert.Equal(t, uint64(4), max)

	c.Push(header(5))
	assert.True(t, c.IsCached(5))

	// a gap restarts the cache
	c.Push(header(9))
	min, max, _ = c.CachedHeightRange()
	assert.Equal(t, uint64(9), min)
	assert.Equal(t, uint64(9), max)
	assert.Nil(t, c.Get(5))

	c.EvitUntil(0)
	_, _, ok = c.CachedHeightRange()
	assert.False(t, ok)
}
