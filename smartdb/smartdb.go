// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package smartdb is the state layer of a blockchain node. Entity changes
// are tracked in memory, confirmed per contract, flushed per block and can
// be rolled back to any retained height.
package smartdb

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"

	"github.com/vechain/smartdb/block"
	"github.com/vechain/smartdb/blockdb"
	"github.com/vechain/smartdb/cache"
	"github.com/vechain/smartdb/kv"
	"github.com/vechain/smartdb/log"
	"github.com/vechain/smartdb/metrics"
	"github.com/vechain/smartdb/model"
	"github.com/vechain/smartdb/tracker"
)

var (
	logger = log.WithContext("pkg", "smartdb")

	metricBlockCommitCount    = metrics.LazyLoadCounter("block_commit_count")
	metricBlockRollbackCount  = metrics.LazyLoadCounter("block_rollback_count")
	metricBlockCommitDuration = metrics.LazyLoadHistogram("block_commit_duration_ms", metrics.Bucket10s)
)

// DB coordinates block and contract scopes over the entity tracker, the
// block db and the persistence. It is not safe for concurrent use.
type DB struct {
	opts     Options
	registry *model.Registry
	persist  Persistence
	blocks   *blockdb.DB

	cache      *cache.EntityCache
	tracker    *tracker.Tracker
	localCache *cache.EntityCache
	local      *tracker.Tracker
	blockCache *BlockCache

	commitHooks   hooks[CommitBlockHook]
	rollbackHooks hooks[RollbackBlockHook]
	locks         map[string]struct{}

	current    *block.Header
	inContract bool
	inited     bool
	closed     bool

	feed       event.Feed
	scope      event.SubscriptionScope
	events     chan *Event
	eventsDone chan struct{}
}

// Open creates a DB over the persistence and the kv store holding block
// headers and history. Init must be called before use.
func Open(registry *model.Registry, persist Persistence, store kv.Store, opts Options) (*DB, error) {
	opts = opts.withDefaults()
	blocks, err := blockdb.New(store)
	if err != nil {
		return nil, errors.Wrap(err, "open block db")
	}

	db := &DB{
		opts:       opts,
		registry:   registry,
		persist:    persist,
		blocks:     blocks,
		cache:      cache.New(opts.EntityCache),
		localCache: cache.New(opts.EntityCache),
		blockCache: NewBlockCache(opts.CachedBlockCount),
		locks:      make(map[string]struct{}),
		events:     make(chan *Event, eventQueueSize),
		eventsDone: make(chan struct{}),
	}
	for _, s := range registry.All() {
		if s.Local {
			db.localCache.RegisterModel(s)
		} else {
			db.cache.RegisterModel(s)
		}
	}
	db.tracker = tracker.New("block", registry, db.cache, opts.MaxBlockHistoryHold, db.loadHistory)
	db.local = tracker.New("local", registry, db.localCache, opts.MaxLocalHistoryHold, nil)

	go db.eventLoop()
	return db, nil
}

func (db *DB) loadHistory(_ context.Context, from, to uint64) (map[uint64][]*model.EntityChanges, error) {
	return db.blocks.GetHistoryChanges(from, to)
}

// Init restores the last committed height, warms the block cache and
// loads memory models.
func (db *DB) Init(ctx context.Context) error {
	if db.inited {
		return errors.WithMessage(model.ErrInvalidOperation, "already initialized")
	}
	if last, ok := db.blocks.LastBlockHeight(); ok {
		db.tracker.SetVersion(last)
		from := uint64(0)
		if last+1 > uint64(db.opts.CachedBlockCount) {
			from = last + 1 - uint64(db.opts.CachedBlockCount)
		}
		headers, err := db.blocks.GetBlocksByHeightRange(from, last)
		if err != nil {
			return errors.Wrap(err, "load recent blocks")
		}
		for _, h := range headers {
			db.blockCache.Push(h)
		}
	}

	for _, s := range db.registry.Filter(func(s *model.Schema) bool { return s.Memory }) {
		rows, err := db.persist.LoadAll(ctx, s)
		if err != nil {
			return errors.WithMessagef(err, "load memory model %s", s.Name)
		}
		t := db.trackerOf(s)
		for _, row := range rows {
			v, err := model.SplitEntityAndVersion(row)
			if err != nil {
				return err
			}
			if _, err := t.TrackPersistent(s.Name, v); err != nil {
				return errors.WithMessagef(err, "load memory model %s", s.Name)
			}
		}
		logger.Debug("memory model loaded", "model", s.Name, "count", len(rows))
	}

	db.inited = true
	last, _ := db.blocks.LastBlockHeight()
	logger.Info("smartdb initialized", "lastBlock", last, "blocks", db.blocks.BlocksCount(), "models", len(db.registry.All()))
	db.emit(&Event{Type: EventReady, Height: last})
	return nil
}

// Close discards uncommitted changes and stops event delivery. The
// persistence and kv store stay open.
func (db *DB) Close() error {
	if db.closed {
		return nil
	}
	db.tracker.StopTrackAll()
	db.local.StopTrackAll()
	db.cache.Clear()
	db.localCache.Clear()
	db.current = nil
	db.inContract = false

	db.emit(&Event{Type: EventClose})
	db.closed = true
	close(db.events)
	<-db.eventsDone
	db.scope.Close()
	logger.Info("smartdb closed")
	return nil
}

func (db *DB) ensureInited() error {
	if db.closed {
		return errors.WithMessage(model.ErrInvalidOperation, "db closed")
	}
	if !db.inited {
		return errors.WithMessage(model.ErrInvalidOperation, "db not initialized")
	}
	return nil
}

// Registry returns the model registry.
func (db *DB) Registry() *model.Registry { return db.registry }

// BlockCache returns the cache of recent headers.
func (db *DB) BlockCache() *BlockCache { return db.blockCache }

// EntityCache returns the cache of block scoped models.
func (db *DB) EntityCache() *cache.EntityCache { return db.cache }

// LastBlockHeight returns the height of the last committed block, 0 if none.
func (db *DB) LastBlockHeight() uint64 {
	h, _ := db.blocks.LastBlockHeight()
	return h
}

// BlocksCount returns the number of committed blocks.
func (db *DB) BlocksCount() uint64 { return db.blocks.BlocksCount() }

// LastBlock returns the last committed header, or nil.
func (db *DB) LastBlock() (*block.Header, error) {
	h, ok := db.blocks.LastBlockHeight()
	if !ok {
		return nil, nil
	}
	return db.GetBlockByHeight(h)
}

// CurrentBlock returns the open block, or nil.
func (db *DB) CurrentBlock() *block.Header {
	if db.current == nil {
		return nil
	}
	return db.current.Copy()
}

// LockInCurrentBlock takes the named lock for the rest of the block. A lock
// already taken fails with ErrLockConflict, or returns false if notThrow.
func (db *DB) LockInCurrentBlock(name string, notThrow bool) (bool, error) {
	if _, held := db.locks[name]; held {
		if notThrow {
			return false, nil
		}
		return false, errors.WithMessagef(model.ErrLockConflict, "lock %s", name)
	}
	db.locks[name] = struct{}{}
	return true, nil
}

// TryLock takes the named lock, reporting whether it was free.
func (db *DB) TryLock(name string) bool {
	ok, _ := db.LockInCurrentBlock(name, true)
	return ok
}

// Lock takes the named lock or fails with ErrLockConflict.
func (db *DB) Lock(name string) error {
	_, err := db.LockInCurrentBlock(name, false)
	return err
}

// BeginContract opens a contract scope inside the open block.
func (db *DB) BeginContract() error {
	if err := db.ensureInited(); err != nil {
		return err
	}
	if db.current == nil {
		return errors.WithMessage(model.ErrNoScope, "no open block")
	}
	if db.inContract {
		return errors.WithMessage(model.ErrNestedScope, "contract scope")
	}
	if err := db.tracker.BeginConfirm(); err != nil {
		return err
	}
	db.inContract = true
	return nil
}

// CommitContract confirms the changes made in the contract scope.
func (db *DB) CommitContract() error {
	if !db.inContract {
		return errors.WithMessage(model.ErrNoScope, "contract scope")
	}
	if err := db.tracker.Confirm(); err != nil {
		return err
	}
	db.inContract = false
	return nil
}

// RollbackContract restores every entity touched in the contract scope.
func (db *DB) RollbackContract() error {
	if !db.inContract {
		return errors.WithMessage(model.ErrNoScope, "contract scope")
	}
	if err := db.tracker.CancelConfirm(); err != nil {
		return err
	}
	db.inContract = false
	return nil
}

// BeginBlock opens a block and resets the lock namespace. After the first
// block, heights must follow the last committed one.
func (db *DB) BeginBlock(h *block.Header) error {
	if err := db.ensureInited(); err != nil {
		return err
	}
	if h == nil {
		return errors.WithMessage(model.ErrInvalidArgument, "nil block")
	}
	if db.current != nil {
		return errors.WithMessagef(model.ErrNestedScope, "block %d is open", db.current.Height)
	}
	if last, ok := db.blocks.LastBlockHeight(); ok && h.Height != last+1 {
		return errors.WithMessagef(model.ErrInvalidArgument, "block %d does not follow %d", h.Height, last)
	}
	db.current = h.Copy()
	db.locks = make(map[string]struct{})
	logger.Debug("begin block", "height", h.Height, "id", h.ID)
	return nil
}

// CommitBlock runs the commit hooks, flushes the block's changes and
// appends them to the history. It returns the committed height.
func (db *DB) CommitBlock(ctx context.Context) (uint64, error) {
	if err := db.ensureInited(); err != nil {
		return 0, err
	}
	if db.current == nil {
		return 0, errors.WithMessage(model.ErrNoScope, "no open block")
	}
	if db.inContract {
		return 0, errors.WithMessage(model.ErrInvalidOperation, "contract scope still open")
	}
	start := time.Now()
	header := db.current
	height := header.Height

	if err := db.tracker.BeginConfirm(); err != nil {
		return 0, err
	}
	if err := db.commitHooks.run(func(fn CommitBlockHook) error { return fn(header.Copy()) }); err != nil {
		_ = db.tracker.CancelConfirm()
		return 0, errors.WithMessagef(err, "commit block %d", height)
	}

	// the hook scope stays open until persisted so a failed flush undoes the hooks too
	changes := db.tracker.PendingChanges()
	for _, c := range changes {
		c.DBVersion = height
	}
	if err := db.flush(ctx, header, changes); err != nil {
		_ = db.tracker.CancelConfirm()
		return 0, errors.WithMessagef(err, "commit block %d", height)
	}
	if err := db.tracker.Confirm(); err != nil {
		return 0, err
	}

	db.tracker.AcceptChanges(height)
	db.blockCache.Push(header)
	db.current = nil
	db.locks = make(map[string]struct{})

	if db.opts.AutoCleanPersistedHistory && height >= uint64(db.opts.MaxBlockHistoryHold) {
		if err := db.blocks.DeleteHistoryBefore(height - uint64(db.opts.MaxBlockHistoryHold) + 1); err != nil {
			logger.Warn("clean persisted history failed", "height", height, "err", err)
		}
	}

	elapsed := time.Since(start)
	metricBlockCommitCount().Add(1)
	metricBlockCommitDuration().Observe(elapsed.Milliseconds())
	logger.Info("block committed", "height", height, "id", header.ID, "changes", len(changes), "elapsed", elapsed)
	db.emit(&Event{Type: EventCommit, Height: height})
	return height, nil
}

// flush writes the changes to persistence and the header with its history
// to the block db. Either both are written or neither.
func (db *DB) flush(ctx context.Context, header *block.Header, changes []*model.EntityChanges) error {
	tx, err := db.persist.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.Apply(ctx, changes); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := db.blocks.AppendBlock(header, changes); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		if derr := db.blocks.DeleteLastBlock(header.Height); derr != nil {
			logger.Error("undo appended block failed", "height", header.Height, "err", derr)
		}
		return err
	}
	return nil
}

// RollbackBlock undoes every block above toHeight and any uncommitted
// changes. With toHeight equal to the last height only the open block is
// discarded. Rollback hooks run first and a failing hook aborts.
func (db *DB) RollbackBlock(ctx context.Context, toHeight uint64) error {
	if err := db.ensureInited(); err != nil {
		return err
	}
	last, ok := db.blocks.LastBlockHeight()
	if ok && toHeight > last {
		return errors.WithMessagef(model.ErrInvalidArgument, "rollback to %d above last block %d", toHeight, last)
	}
	if err := db.rollbackHooks.run(func(fn RollbackBlockHook) error { return fn(last, toHeight) }); err != nil {
		return errors.WithMessagef(err, "rollback block to %d", toHeight)
	}

	if !ok || toHeight == last {
		db.tracker.DiscardPending()
	} else {
		batches, err := db.tracker.ChangesUntil(ctx, toHeight)
		if err != nil {
			return err
		}
		if err := db.revert(ctx, toHeight, batches); err != nil {
			return errors.WithMessagef(err, "rollback block to %d", toHeight)
		}
		if err := db.tracker.Revert(toHeight, batches); err != nil {
			return err
		}
		db.blockCache.EvitUntil(toHeight + 1)
	}
	db.current = nil
	db.inContract = false
	db.locks = make(map[string]struct{})

	metricBlockRollbackCount().Add(1)
	logger.Info("block rolled back", "from", last, "to", toHeight)
	db.emit(&Event{Type: EventRollback, Height: toHeight, FromHeight: last})
	return nil
}

// revert writes the inverse of the batches to persistence and removes the
// blocks above toHeight.
func (db *DB) revert(ctx context.Context, toHeight uint64, batches []tracker.Batch) error {
	var changes []*model.EntityChanges
	for _, b := range batches {
		changes = append(changes, b.Changes...)
	}
	tx, err := db.persist.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.Revert(ctx, changes); err != nil {
		_ = tx.Rollback()
		return err
	}
	headers, err := db.blocks.GetBlocksByHeightRange(toHeight+1, db.LastBlockHeight())
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := db.blocks.DeleteBlocksAfter(toHeight); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		db.restoreBlocks(headers, batches)
		return err
	}
	return nil
}

// restoreBlocks re-appends blocks removed by a rollback whose persistence
// commit failed.
func (db *DB) restoreBlocks(headers []*block.Header, batches []tracker.Batch) {
	byHeight := make(map[uint64][]*model.EntityChanges, len(batches))
	for _, b := range batches {
		byHeight[b.Version] = b.Changes
	}
	for _, h := range headers {
		if err := db.blocks.AppendBlock(h, byHeight[h.Height]); err != nil {
			logger.Error("restore block failed", "height", h.Height, "err", err)
			return
		}
	}
}
