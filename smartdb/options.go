// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package smartdb

import "github.com/vechain/smartdb/cache"

const (
	DefaultMaxBlockHistoryHold = 10
	DefaultMaxLocalHistoryHold = 10
	DefaultCachedBlockCount    = 10
)

// Options configures a DB. Zero values take the defaults.
type Options struct {
	// MaxBlockHistoryHold is the number of committed blocks whose changes
	// stay in memory for rollback. Older blocks are reloaded from the block db.
	MaxBlockHistoryHold int `yaml:"maxBlockHistoryHold"`
	// MaxLocalHistoryHold is the number of saved local change sets that can
	// be rolled back.
	MaxLocalHistoryHold int `yaml:"maxLocalHistoryHold"`
	// CachedBlockCount is the number of recent headers kept in memory.
	CachedBlockCount int           `yaml:"cachedBlockCount"`
	EntityCache      cache.Options `yaml:"entityCache"`
	// CheckModifier rejects updates naming unknown or primary key fields
	// instead of ignoring them.
	CheckModifier bool `yaml:"checkModifier"`
	// AutoCleanPersistedHistory deletes persisted history older than the
	// in-memory window after each commit.
	AutoCleanPersistedHistory bool `yaml:"autoCleanPersistedHistory"`
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		MaxBlockHistoryHold: DefaultMaxBlockHistoryHold,
		MaxLocalHistoryHold: DefaultMaxLocalHistoryHold,
		CachedBlockCount:    DefaultCachedBlockCount,
		EntityCache:         cache.Options{Default: cache.DefaultMaxCached},
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxBlockHistoryHold <= 0 {
		o.MaxBlockHistoryHold = def.MaxBlockHistoryHold
	}
	if o.MaxLocalHistoryHold <= 0 {
		o.MaxLocalHistoryHold = def.MaxLocalHistoryHold
	}
	if o.CachedBlockCount <= 0 {
		o.CachedBlockCount = def.CachedBlockCount
	}
	if o.EntityCache.Default <= 0 {
		o.EntityCache.Default = def.EntityCache.Default
	}
	return o
}
