// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package smartdb

import (
	"context"

	"github.com/vechain/smartdb/block"
	"github.com/vechain/smartdb/model"
)

// Find queries persisted rows. Uncommitted changes are not visible.
func (db *DB) Find(ctx context.Context, name string, cond Condition, opts FindOptions) ([]model.Entity, error) {
	s, err := db.readable(name)
	if err != nil {
		return nil, err
	}
	return db.persist.Find(ctx, s, cond, opts)
}

// FindOne returns the first persisted row matching cond, or nil.
func (db *DB) FindOne(ctx context.Context, name string, cond Condition, sort ...Sort) (model.Entity, error) {
	rows, err := db.Find(ctx, name, cond, FindOptions{Limit: 1, Sort: sort})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// FindAll returns every persisted row matching cond.
func (db *DB) FindAll(ctx context.Context, name string, cond Condition, sort ...Sort) ([]model.Entity, error) {
	return db.Find(ctx, name, cond, FindOptions{Sort: sort})
}

// Exists reports whether a persisted row matches cond.
func (db *DB) Exists(ctx context.Context, name string, cond Condition) (bool, error) {
	s, err := db.readable(name)
	if err != nil {
		return false, err
	}
	return db.persist.Exists(ctx, s, cond)
}

// Count returns the number of persisted rows matching cond.
func (db *DB) Count(ctx context.Context, name string, cond Condition) (int, error) {
	s, err := db.readable(name)
	if err != nil {
		return 0, err
	}
	return db.persist.Count(ctx, s, cond)
}

// GetBlockByHeight returns the committed header at height, or nil.
func (db *DB) GetBlockByHeight(height uint64) (*block.Header, error) {
	if h := db.blockCache.Get(height); h != nil {
		return h, nil
	}
	return db.blocks.GetBlock(height)
}

// GetBlockByID returns the committed header with the id, or nil.
func (db *DB) GetBlockByID(id string) (*block.Header, error) {
	if h := db.blockCache.GetByID(id); h != nil {
		return h, nil
	}
	return db.blocks.GetBlockByID(id)
}

// GetBlocksByHeightRange returns the committed headers in [min, max].
func (db *DB) GetBlocksByHeightRange(min, max uint64) ([]*block.Header, error) {
	if lo, hi, ok := db.blockCache.CachedHeightRange(); ok && min >= lo && max <= hi {
		out := make([]*block.Header, 0, max-min+1)
		for h := min; h <= max; h++ {
			out = append(out, db.blockCache.Get(h))
		}
		return out, nil
	}
	return db.blocks.GetBlocksByHeightRange(min, max)
}

// GetBlocksByIDs returns the committed headers with the ids, skipping
// unknown ones.
func (db *DB) GetBlocksByIDs(ids []string) ([]*block.Header, error) {
	return db.blocks.GetBlocksByIDs(ids)
}

// GetHistoryChanges returns the persisted changes of the heights in [min, max].
func (db *DB) GetHistoryChanges(min, max uint64) (map[uint64][]*model.EntityChanges, error) {
	return db.blocks.GetHistoryChanges(min, max)
}
