// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"testing"

	"github.com/elastic/gosigar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCacheSize(t *testing.T) {
	assert.Equal(t, minCacheSizeMB, normalizeCacheSize(0))
	assert.Equal(t, minCacheSizeMB, normalizeCacheSize(-5))

	var mem gosigar.Mem
	require.NoError(t, mem.Get())
	half := int(mem.Total/1024/1024) / 2

	assert.LessOrEqual(t, normalizeCacheSize(1<<30), max(half, minCacheSizeMB))
	if half > 64 {
		assert.Equal(t, 64, normalizeCacheSize(64))
	}
}
