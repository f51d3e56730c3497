// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package blockdb persists block headers together with the change history
// accepted at each height.
package blockdb

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/qianbin/directcache"

	"github.com/vechain/smartdb/block"
	"github.com/vechain/smartdb/kv"
	"github.com/vechain/smartdb/log"
	"github.com/vechain/smartdb/model"
)

var logger = log.WithContext("pkg", "blockdb")

// ErrNotContinuous is returned when appending a block that does not
// follow the last one.
var ErrNotContinuous = errors.New("block height not continuous")

const headerCacheSize = 4 * 1024 * 1024

// DB stores headers and history in one kv store.
type DB struct {
	store   kv.Store
	headers kv.Store
	ids     kv.Store
	history kv.Store
	meta    kv.Store
	cache   *directcache.Cache

	rw    sync.RWMutex
	empty bool
	first uint64
	last  uint64
}

// New opens the block db on the store.
func New(store kv.Store) (*DB, error) {
	db := &DB{
		store:   store,
		headers: kv.Bucket(headerStoreName).NewStore(store),
		ids:     kv.Bucket(idStoreName).NewStore(store),
		history: kv.Bucket(historyStoreName).NewStore(store),
		meta:    kv.Bucket(metaStoreName).NewStore(store),
		cache:   directcache.New(headerCacheSize),
		empty:   true,
	}
	var m meta
	if err := loadRLP(db.meta, lastHeightKey, &m.Last); err != nil {
		if !db.meta.IsNotFound(err) {
			return nil, errors.Wrap(err, "load last height")
		}
		return db, nil
	}
	if err := loadRLP(db.meta, firstHeightKey, &m.First); err != nil {
		return nil, errors.Wrap(err, "load first height")
	}
	db.empty, db.first, db.last = false, m.First, m.Last
	logger.Debug("block db opened", "first", m.First, "last", m.Last)
	return db, nil
}

// LastBlockHeight returns the height of the last block. The second result
// is false when no block has been appended.
func (db *DB) LastBlockHeight() (uint64, bool) {
	db.rw.RLock()
	defer db.rw.RUnlock()
	return db.last, !db.empty
}

// BlocksCount returns the number of stored blocks.
func (db *DB) BlocksCount() uint64 {
	db.rw.RLock()
	defer db.rw.RUnlock()
	if db.empty {
		return 0
	}
	return db.last - db.first + 1
}

// AppendBlock stores the header and the changes accepted at its height in
// one atomic write.
func (db *DB) AppendBlock(h *block.Header, changes []*model.EntityChanges) error {
	db.rw.Lock()
	defer db.rw.Unlock()

	if !db.empty && h.Height != db.last+1 {
		return errors.WithMessagef(ErrNotContinuous, "append %d after %d", h.Height, db.last)
	}
	data, err := encodeChanges(changes)
	if err != nil {
		return errors.Wrap(err, "encode changes")
	}

	first := db.first
	if db.empty {
		first = h.Height
	}
	bulk := db.newBulk()
	if err := saveHeader(bulk.headers, h); err != nil {
		return err
	}
	if h.ID != "" {
		if err := saveHeightOfID(bulk.ids, h.ID, h.Height); err != nil {
			return err
		}
	}
	if err := bulk.history.Put(heightKey(h.Height), data); err != nil {
		return err
	}
	if err := saveRLP(bulk.meta, firstHeightKey, first); err != nil {
		return err
	}
	if err := saveRLP(bulk.meta, lastHeightKey, h.Height); err != nil {
		return err
	}
	if err := bulk.Write(); err != nil {
		return errors.Wrap(err, "append block")
	}

	db.empty, db.first, db.last = false, first, h.Height
	if enc, err := h.Encode(); err == nil {
		_ = db.cache.Set(heightKey(h.Height), enc)
	}
	return nil
}

// DeleteLastBlock removes the last block, which must be at height.
func (db *DB) DeleteLastBlock(height uint64) error {
	db.rw.Lock()
	defer db.rw.Unlock()

	if db.empty || height != db.last {
		return errors.WithMessagef(model.ErrInvalidArgument, "delete block %d, last is %d", height, db.last)
	}
	return db.truncate(height)
}

// DeleteBlocksAfter removes every block above height in one atomic write.
func (db *DB) DeleteBlocksAfter(height uint64) error {
	db.rw.Lock()
	defer db.rw.Unlock()

	if db.empty || height >= db.last {
		return nil
	}
	from := height + 1
	if from < db.first {
		from = db.first
	}
	return db.truncate(from)
}

// truncate removes the blocks in [from, last].
func (db *DB) truncate(from uint64) error {
	bulk := db.newBulk()
	for height := from; height <= db.last; height++ {
		h, err := loadHeader(db.headers, height)
		if err != nil {
			return errors.Wrapf(err, "load block %d", height)
		}
		if err := bulk.headers.Delete(heightKey(height)); err != nil {
			return err
		}
		if h.ID != "" {
			if err := bulk.ids.Delete([]byte(h.ID)); err != nil {
				return err
			}
		}
		if err := bulk.history.Delete(heightKey(height)); err != nil {
			return err
		}
	}
	empty := from == db.first
	if empty {
		if err := bulk.meta.Delete(lastHeightKey); err != nil {
			return err
		}
		if err := bulk.meta.Delete(firstHeightKey); err != nil {
			return err
		}
	} else if err := saveRLP(bulk.meta, lastHeightKey, from-1); err != nil {
		return err
	}
	if err := bulk.Write(); err != nil {
		return errors.Wrap(err, "delete blocks")
	}

	logger.Debug("blocks deleted", "from", from, "to", db.last)
	if empty {
		db.empty, db.first, db.last = true, 0, 0
	} else {
		db.last = from - 1
	}
	return nil
}

// GetBlock returns the header at height, or nil if there is none.
func (db *DB) GetBlock(height uint64) (*block.Header, error) {
	db.rw.RLock()
	defer db.rw.RUnlock()
	return db.getBlock(height)
}

func (db *DB) getBlock(height uint64) (*block.Header, error) {
	if db.empty || height < db.first || height > db.last {
		return nil, nil
	}
	var cached []byte
	if db.cache.AdvGet(heightKey(height), func(val []byte) {
		cached = append([]byte(nil), val...)
	}, false) {
		return block.Decode(cached)
	}
	h, err := loadHeader(db.headers, height)
	if err != nil {
		if db.headers.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if enc, err := h.Encode(); err == nil {
		_ = db.cache.Set(heightKey(height), enc)
	}
	return h, nil
}

// GetBlockByID returns the header with the id, or nil if there is none.
func (db *DB) GetBlockByID(id string) (*block.Header, error) {
	db.rw.RLock()
	defer db.rw.RUnlock()

	height, err := loadHeightOfID(db.ids, id)
	if err != nil {
		if db.ids.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return db.getBlock(height)
}

// GetBlocksByHeightRange returns the headers in [min, max].
func (db *DB) GetBlocksByHeightRange(min, max uint64) ([]*block.Header, error) {
	db.rw.RLock()
	defer db.rw.RUnlock()

	var out []*block.Header
	for height := min; height <= max; height++ {
		h, err := db.getBlock(height)
		if err != nil {
			return nil, err
		}
		if h == nil {
			if height > db.last {
				break
			}
			continue
		}
		out = append(out, h)
		if height == max {
			break
		}
	}
	return out, nil
}

// GetBlocksByIDs returns the headers with the ids, skipping unknown ones.
func (db *DB) GetBlocksByIDs(ids []string) ([]*block.Header, error) {
	var out []*block.Header
	for _, id := range ids {
		h, err := db.GetBlockByID(id)
		if err != nil {
			return nil, err
		}
		if h != nil {
			out = append(out, h)
		}
	}
	return out, nil
}

// GetHistoryChanges returns the persisted changes of heights in [min, max].
// Heights without history are absent from the result.
func (db *DB) GetHistoryChanges(min, max uint64) (map[uint64][]*model.EntityChanges, error) {
	out := make(map[uint64][]*model.EntityChanges)
	iter := db.history.Iterate(kv.Range{Start: heightKey(min)})
	defer iter.Release()
	for iter.Next() {
		height := decodeHeight(iter.Key())
		if height > max {
			break
		}
		changes, err := decodeChanges(iter.Value())
		if err != nil {
			return nil, errors.Wrapf(err, "decode history at %d", height)
		}
		out[height] = changes
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteHistoryBefore removes persisted history of heights < height.
func (db *DB) DeleteHistoryBefore(height uint64) error {
	iter := db.history.Iterate(kv.Range{Limit: heightKey(height)})
	defer iter.Release()

	bulk := db.history.Bulk()
	bulk.EnableAutoFlush()
	n := 0
	for iter.Next() {
		if err := bulk.Delete(append([]byte(nil), iter.Key()...)); err != nil {
			return err
		}
		n++
	}
	if err := iter.Error(); err != nil {
		return err
	}
	if err := bulk.Write(); err != nil {
		return err
	}
	logger.Debug("history cleaned", "before", height, "count", n)
	return nil
}

// bucketedBulk writes through every bucket in one atomic batch.
type bucketedBulk struct {
	kv.Bulk
	headers kv.Putter
	ids     kv.Putter
	history kv.Putter
	meta    kv.Putter
}

func (db *DB) newBulk() *bucketedBulk {
	bulk := db.store.Bulk()
	return &bucketedBulk{
		Bulk:    bulk,
		headers: kv.Bucket(headerStoreName).NewPutter(bulk),
		ids:     kv.Bucket(idStoreName).NewPutter(bulk),
		history: kv.Bucket(historyStoreName).NewPutter(bulk),
		meta:    kv.Bucket(metaStoreName).NewPutter(bulk),
	}
}

func decodeHeight(k []byte) uint64 {
	var h uint64
	for _, b := range k {
		h = h<<8 | uint64(b)
	}
	return h
}
