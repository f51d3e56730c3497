// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package smartdb

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/smartdb/block"
	"github.com/vechain/smartdb/lvldb"
	"github.com/vechain/smartdb/model"
	"github.com/vechain/smartdb/sqlstore"
)

type testEnv struct {
	registry *model.Registry
	sql      *sqlstore.Store
	kv       *lvldb.LevelDB
}

func newSchemas() []*model.Schema {
	return []*model.Schema{
		model.MustSchema(&model.Schema{
			Name: "User",
			Fields: []model.Field{
				{Name: "id", Type: model.Number, PrimaryKey: true},
				{Name: "name", Type: model.String, Unique: "uk_name"},
				{Name: "balance", Type: model.BigInt},
				{Name: "level", Type: model.Number, Default: 0},
			},
		}),
		model.MustSchema(&model.Schema{
			Name:   "Config",
			Memory: true,
			Fields: []model.Field{
				{Name: "key", Type: model.String, PrimaryKey: true},
				{Name: "value", Type: model.Text},
			},
		}),
		model.MustSchema(&model.Schema{
			Name:  "Setting",
			Local: true,
			Fields: []model.Field{
				{Name: "key", Type: model.String, PrimaryKey: true},
				{Name: "value", Type: model.Text},
			},
		}),
		model.MustSchema(&model.Schema{
			Name:     "Asset",
			ReadOnly: true,
			Fields: []model.Field{
				{Name: "symbol", Type: model.String, PrimaryKey: true},
			},
		}),
	}
}

func newEnv(t *testing.T) *testEnv {
	reg, err := model.NewRegistry(newSchemas()...)
	require.NoError(t, err)
	sql, err := sqlstore.OpenMem(context.Background(), reg)
	require.NoError(t, err)
	kv, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() {
		sql.Close()
		kv.Close()
	})
	return &testEnv{reg, sql, kv}
}

func (env *testEnv) open(t *testing.T, opts Options) *DB {
	db, err := Open(env.registry, NewSQLPersistence(env.sql), env.kv, opts)
	require.NoError(t, err)
	require.NoError(t, db.Init(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db
}

func header(height uint64) *block.Header {
	return &block.Header{Height: height, ID: fmt.Sprintf("block-%d", height), Timestamp: 1000 + height}
}

// commit runs fn inside block height and commits it.
func commit(t *testing.T, db *DB, height uint64, fn func()) {
	require.NoError(t, db.BeginBlock(header(height)))
	if fn != nil {
		fn()
	}
	got, err := db.CommitBlock(context.Background())
	require.NoError(t, err)
	require.Equal(t, height, got)
}

func TestCreateCommitRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	db := env.open(t, Options{})

	commit(t, db, 1, func() {
		created, err := db.Create("User", model.Entity{"id": 1, "name": "a", "unknown": true})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), created.Version())
	})

	want := model.Entity{"id": int64(1), "name": "a", "level": int64(0), model.VersionProperty: uint64(1)}
	got, err := db.Load(ctx, "User", 1)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	row, err := db.FindOne(ctx, "User", Condition{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, want, row)

	assert.Equal(t, uint64(1), db.LastBlockHeight())
	assert.Equal(t, uint64(1), db.BlocksCount())
	last, err := db.LastBlock()
	require.NoError(t, err)
	assert.Equal(t, "block-1", last.ID)

	require.NoError(t, db.Close())

	reopened := env.open(t, Options{})
	assert.Equal(t, uint64(1), reopened.LastBlockHeight())
	got, err = reopened.Load(ctx, "User", model.Entity{"name": "a"})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	b, err := reopened.GetBlockByID("block-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), b.Height)
}

func TestRollbackRestoresValues(t *testing.T) {
	ctx := context.Background()
	db := newEnv(t).open(t, Options{})

	commit(t, db, 1, func() {
		_, err := db.Create("User", model.Entity{"id": 1, "name": "a"})
		require.NoError(t, err)
	})
	commit(t, db, 2, func() {
		require.NoError(t, db.Update(ctx, "User", model.Entity{"name": "b"}, 1))
		_, err := db.Create("User", model.Entity{"id": 2, "name": "c"})
		require.NoError(t, err)
	})

	require.NoError(t, db.RollbackBlock(ctx, 1))
	assert.Equal(t, uint64(1), db.LastBlockHeight())

	got, err := db.Load(ctx, "User", 1)
	require.NoError(t, err)
	assert.Equal(t, "a", got["name"])
	assert.Equal(t, uint64(1), got.Version())

	row, err := db.FindOne(ctx, "User", Condition{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, "a", row["name"])

	gone, err := db.Load(ctx, "User", 2)
	require.NoError(t, err)
	assert.Nil(t, gone)
	n, err := db.Count(ctx, "User", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, err := db.GetBlockByHeight(2)
	require.NoError(t, err)
	assert.Nil(t, b)
	assert.False(t, db.BlockCache().IsCached(2))

	// the unique key of the reverted entity is usable again
	commit(t, db, 2, func() {
		_, err := db.Create("User", model.Entity{"id": 3, "name": "b"})
		require.NoError(t, err)
	})
}

func TestRollbackDelete(t *testing.T) {
	ctx := context.Background()
	db := newEnv(t).open(t, Options{})

	commit(t, db, 1, func() {
		_, err := db.Create("User", model.Entity{"id": 1, "name": "a", "balance": 10})
		require.NoError(t, err)
	})
	commit(t, db, 2, func() {
		require.NoError(t, db.Update(ctx, "User", model.Entity{"name": "b"}, 1))
		require.NoError(t, db.Del(ctx, "User", 1))
		got, err := db.Load(ctx, "User", 1)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
	exists, err := db.Exists(ctx, "User", Condition{"id": 1})
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, db.RollbackBlock(ctx, 1))
	got, err := db.Load(ctx, "User", model.Entity{"name": "a"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, model.ValueEqual(big.NewInt(10), got["balance"]))
	assert.Equal(t, uint64(1), got.Version())
}

func TestNewThenDeleteLeavesNothing(t *testing.T) {
	ctx := context.Background()
	db := newEnv(t).open(t, Options{})

	commit(t, db, 1, func() {
		_, err := db.Create("User", model.Entity{"id": 1, "name": "a"})
		require.NoError(t, err)
		require.NoError(t, db.Del(ctx, "User", 1))
		assert.False(t, db.tracker.IsTracking("User", 1))
	})

	got, err := db.Load(ctx, "User", 1)
	require.NoError(t, err)
	assert.Nil(t, got)
	n, err := db.Count(ctx, "User", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	history, err := db.GetHistoryChanges(1, 1)
	require.NoError(t, err)
	assert.Empty(t, history[1])
}

func TestVersionMonotonic(t *testing.T) {
	ctx := context.Background()
	db := newEnv(t).open(t, Options{})

	version := func() uint64 {
		e, err := db.Load(ctx, "User", 1)
		require.NoError(t, err)
		return e.Version()
	}

	commit(t, db, 1, func() {
		_, err := db.Create("User", model.Entity{"id": 1, "name": "a"})
		require.NoError(t, err)
	})
	assert.Equal(t, uint64(1), version())

	commit(t, db, 2, func() {
		require.NoError(t, db.Update(ctx, "User", model.Entity{"name": "b"}, 1))
		require.NoError(t, db.Update(ctx, "User", model.Entity{"name": "c"}, 1))
		assert.Equal(t, uint64(2), version())
	})
	commit(t, db, 3, func() {
		require.NoError(t, db.Update(ctx, "User", model.Entity{"name": "b"}, 1))
	})
	assert.Equal(t, uint64(3), version())

	row, err := db.FindOne(ctx, "User", Condition{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), row.Version())
}

func TestLockInCurrentBlock(t *testing.T) {
	db := newEnv(t).open(t, Options{})

	require.NoError(t, db.BeginBlock(header(1)))
	ok, err := db.LockInCurrentBlock("x", false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.LockInCurrentBlock("x", true)
	assert.NoError(t, err)
	assert.False(t, ok)
	_, err = db.LockInCurrentBlock("x", false)
	assert.Equal(t, ErrLockConflict, errors.Cause(err))
	assert.False(t, db.TryLock("x"))
	assert.True(t, db.TryLock("y"))

	_, err = db.CommitBlock(context.Background())
	require.NoError(t, err)

	require.NoError(t, db.BeginBlock(header(2)))
	assert.NoError(t, db.Lock("x"))
	assert.Error(t, db.Lock("x"))
}

func TestScopes(t *testing.T) {
	ctx := context.Background()
	db := newEnv(t).open(t, Options{})

	assert.Equal(t, ErrNoScope, errors.Cause(db.BeginContract()))
	_, err := db.Create("User", model.Entity{"id": 1})
	assert.Equal(t, ErrNoScope, errors.Cause(err))
	_, err = db.CommitBlock(ctx)
	assert.Equal(t, ErrNoScope, errors.Cause(err))

	require.NoError(t, db.BeginBlock(header(5)))
	assert.Equal(t, ErrNestedScope, errors.Cause(db.BeginBlock(header(6))))

	require.NoError(t, db.BeginContract())
	assert.Equal(t, ErrNestedScope, errors.Cause(db.BeginContract()))
	_, err = db.Create("User", model.Entity{"id": 1, "name": "a"})
	require.NoError(t, err)
	require.NoError(t, db.RollbackContract())
	got, err := db.Get("User", 1)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, db.BeginContract())
	_, err = db.Create("User", model.Entity{"id": 2, "name": "b"})
	require.NoError(t, err)
	_, err = db.CommitBlock(ctx)
	assert.Equal(t, ErrInvalidOperation, errors.Cause(err))
	require.NoError(t, db.CommitContract())
	assert.Equal(t, ErrNoScope, errors.Cause(db.CommitContract()))

	height, err := db.CommitBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), height)

	assert.Equal(t, ErrInvalidArgument, errors.Cause(db.BeginBlock(header(7))))
	n, err := db.Count(ctx, "User", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCommitHooks(t *testing.T) {
	ctx := context.Background()
	db := newEnv(t).open(t, Options{})

	var order []string
	require.NoError(t, db.RegisterCommitBlockHook("first", func(b *block.Header) error {
		order = append(order, "first")
		_, err := db.Create("User", model.Entity{"id": int64(b.Height), "name": b.ID})
		return err
	}))
	require.NoError(t, db.RegisterCommitBlockHook("second", func(b *block.Header) error {
		order = append(order, "second")
		return nil
	}))
	assert.Error(t, db.RegisterCommitBlockHook("first", func(*block.Header) error { return nil }))

	commit(t, db, 1, nil)
	assert.Equal(t, []string{"first", "second"}, order)
	exists, err := db.Exists(ctx, "User", Condition{"name": "block-1"})
	require.NoError(t, err)
	assert.True(t, exists)

	failing := errors.New("boom")
	require.NoError(t, db.RegisterCommitBlockHook("third", func(*block.Header) error { return failing }))
	require.NoError(t, db.BeginBlock(header(2)))
	_, err = db.CommitBlock(ctx)
	assert.Equal(t, failing, errors.Cause(err))

	// the first hook's entity was cancelled with the scope
	got, err := db.Get("User", 2)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, uint64(1), db.LastBlockHeight())

	require.NoError(t, db.RollbackBlock(ctx, 1))
	db.UnregisterCommitBlockHook("third")
	commit(t, db, 2, nil)
}

func TestRollbackHookAborts(t *testing.T) {
	ctx := context.Background()
	db := newEnv(t).open(t, Options{})

	commit(t, db, 1, func() {
		_, err := db.Create("User", model.Entity{"id": 1, "name": "a"})
		require.NoError(t, err)
	})
	commit(t, db, 2, func() {
		require.NoError(t, db.Update(ctx, "User", model.Entity{"name": "b"}, 1))
	})

	var calls [][2]uint64
	require.NoError(t, db.RegisterRollbackBlockHook("veto", func(from, to uint64) error {
		calls = append(calls, [2]uint64{from, to})
		return errors.New("veto")
	}))
	assert.Error(t, db.RollbackBlock(ctx, 1))
	assert.Equal(t, [][2]uint64{{2, 1}}, calls)
	assert.Equal(t, uint64(2), db.LastBlockHeight())
	got, err := db.Load(ctx, "User", 1)
	require.NoError(t, err)
	assert.Equal(t, "b", got["name"])

	db.UnregisterRollbackBlockHook("veto")
	require.NoError(t, db.RollbackBlock(ctx, 1))
	assert.Error(t, db.RollbackBlock(ctx, 5))
}

func TestRollbackBeyondWindow(t *testing.T) {
	ctx := context.Background()
	db := newEnv(t).open(t, Options{MaxBlockHistoryHold: 2})

	commit(t, db, 1, func() {
		_, err := db.Create("User", model.Entity{"id": 1, "name": "v1"})
		require.NoError(t, err)
	})
	for h := uint64(2); h <= 5; h++ {
		commit(t, db, h, func() {
			require.NoError(t, db.Update(ctx, "User", model.Entity{"name": fmt.Sprintf("v%d", h)}, 1))
		})
	}

	require.NoError(t, db.RollbackBlock(ctx, 1))
	got, err := db.Load(ctx, "User", 1)
	require.NoError(t, err)
	assert.Equal(t, "v1", got["name"])
	assert.Equal(t, uint64(1), got.Version())
}

func TestRollbackAfterAutoClean(t *testing.T) {
	ctx := context.Background()
	db := newEnv(t).open(t, Options{MaxBlockHistoryHold: 2, AutoCleanPersistedHistory: true})

	commit(t, db, 1, func() {
		_, err := db.Create("User", model.Entity{"id": 1, "name": "v1"})
		require.NoError(t, err)
	})
	for h := uint64(2); h <= 5; h++ {
		commit(t, db, h, func() {
			require.NoError(t, db.Update(ctx, "User", model.Entity{"name": fmt.Sprintf("v%d", h)}, 1))
		})
	}

	err := db.RollbackBlock(ctx, 1)
	assert.Equal(t, ErrHistoryUnavailable, errors.Cause(err))
	assert.Equal(t, uint64(5), db.LastBlockHeight())
	row, err := db.FindOne(ctx, "User", Condition{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, "v5", row["name"])

	require.NoError(t, db.RollbackBlock(ctx, 3))
	got, err := db.Load(ctx, "User", 1)
	require.NoError(t, err)
	assert.Equal(t, "v3", got["name"])
}

type failMode int

const (
	failNone failMode = iota
	failApply
	failRevert
	failCommit
)

var errDiskFull = errors.New("disk full")

type failingTx struct {
	PersistenceTx
	mode failMode
}

func (tx failingTx) Apply(ctx context.Context, changes []*model.EntityChanges) error {
	if tx.mode == failApply {
		return errDiskFull
	}
	return tx.PersistenceTx.Apply(ctx, changes)
}

func (tx failingTx) Revert(ctx context.Context, changes []*model.EntityChanges) error {
	if tx.mode == failRevert {
		return errDiskFull
	}
	return tx.PersistenceTx.Revert(ctx, changes)
}

func (tx failingTx) Commit() error {
	if tx.mode == failCommit {
		_ = tx.PersistenceTx.Rollback()
		return errDiskFull
	}
	return tx.PersistenceTx.Commit()
}

type failingPersistence struct {
	Persistence
	mode failMode
}

func (p *failingPersistence) Begin(ctx context.Context) (PersistenceTx, error) {
	tx, err := p.Persistence.Begin(ctx)
	if err != nil || p.mode == failNone {
		return tx, err
	}
	return failingTx{tx, p.mode}, nil
}

func (env *testEnv) openFailing(t *testing.T) (*DB, *failingPersistence) {
	persist := &failingPersistence{Persistence: NewSQLPersistence(env.sql)}
	db, err := Open(env.registry, persist, env.kv, Options{})
	require.NoError(t, err)
	require.NoError(t, db.Init(context.Background()))
	t.Cleanup(func() { db.Close() })
	return db, persist
}

func TestPersistenceFailureLeavesMemory(t *testing.T) {
	ctx := context.Background()
	db, persist := newEnv(t).openFailing(t)

	require.NoError(t, db.BeginBlock(header(1)))
	_, err := db.Create("User", model.Entity{"id": 1, "name": "a"})
	require.NoError(t, err)

	persist.mode = failApply
	_, err = db.CommitBlock(ctx)
	assert.Error(t, err)
	assert.Equal(t, uint64(0), db.BlocksCount())
	assert.True(t, db.tracker.HasPendingChanges())
	got, err := db.Get("User", 1)
	require.NoError(t, err)
	assert.Equal(t, "a", got["name"])

	persist.mode = failNone
	height, err := db.CommitBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), height)
}

func TestFailedCommitUndoesHooks(t *testing.T) {
	ctx := context.Background()
	db, persist := newEnv(t).openFailing(t)

	commit(t, db, 1, func() {
		_, err := db.Create("User", model.Entity{"id": 1, "name": "a"})
		require.NoError(t, err)
	})

	require.NoError(t, db.RegisterCommitBlockHook("levelup", func(*block.Header) error {
		_, err := db.Increase(ctx, "User", model.Entity{"level": 1}, 1)
		return err
	}))

	require.NoError(t, db.BeginBlock(header(2)))
	_, err := db.Create("User", model.Entity{"id": 2, "name": "b"})
	require.NoError(t, err)

	persist.mode = failApply
	_, err = db.CommitBlock(ctx)
	require.Error(t, err)
	assert.False(t, db.tracker.IsConfirming())
	got, err := db.Get("User", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got["level"])
	got, err = db.Get("User", 2)
	require.NoError(t, err)
	assert.NotNil(t, got, "block changes made before the hooks survive")

	persist.mode = failCommit
	_, err = db.CommitBlock(ctx)
	require.Error(t, err)
	assert.Equal(t, uint64(1), db.LastBlockHeight())
	got, err = db.Get("User", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got["level"])

	persist.mode = failNone
	height, err := db.CommitBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), height)

	got, err = db.Load(ctx, "User", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got["level"])
	row, err := db.FindOne(ctx, "User", Condition{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), row["level"])
	assert.False(t, db.tracker.HasPendingChanges())
}

func TestFailedRollbackLeavesState(t *testing.T) {
	ctx := context.Background()
	db, persist := newEnv(t).openFailing(t)

	for h := uint64(1); h <= 3; h++ {
		commit(t, db, h, func() {
			_, err := db.Create("User", model.Entity{"id": int64(h), "name": fmt.Sprintf("u%d", h)})
			require.NoError(t, err)
		})
	}
	histLen := db.tracker.History().Len()

	assertIntact := func() {
		t.Helper()
		assert.Equal(t, uint64(3), db.LastBlockHeight())
		stored, err := db.blocks.GetBlock(3)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, "block-3", stored.ID)
		got, err := db.GetBlockByHeight(3)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, histLen, db.tracker.History().Len())
		top, ok := db.tracker.History().MaxVersion()
		require.True(t, ok)
		assert.Equal(t, uint64(3), top)
		for id := int64(1); id <= 3; id++ {
			e, err := db.Get("User", id)
			require.NoError(t, err)
			require.NotNil(t, e)
			assert.Equal(t, fmt.Sprintf("u%d", id), e["name"])
			row, err := db.FindOne(ctx, "User", Condition{"id": id})
			require.NoError(t, err)
			require.NotNil(t, row)
		}
	}

	persist.mode = failRevert
	require.Error(t, db.RollbackBlock(ctx, 1))
	assertIntact()

	persist.mode = failCommit
	require.Error(t, db.RollbackBlock(ctx, 1))
	assertIntact()

	persist.mode = failNone
	require.NoError(t, db.RollbackBlock(ctx, 1))
	assert.Equal(t, uint64(1), db.LastBlockHeight())
	gone, err := db.Get("User", 2)
	require.NoError(t, err)
	assert.Nil(t, gone)
	row, err := db.FindOne(ctx, "User", Condition{"id": 3})
	require.NoError(t, err)
	assert.Nil(t, row)
	got, err := db.blocks.GetBlock(2)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateAndIncrease(t *testing.T) {
	ctx := context.Background()
	db := newEnv(t).open(t, Options{CheckModifier: true})

	commit(t, db, 1, func() {
		_, err := db.Create("User", model.Entity{"id": 1, "name": "a", "balance": "100"})
		require.NoError(t, err)
		_, err = db.Create("User", model.Entity{"id": 2, "name": "b"})
		require.NoError(t, err)
	})

	commit(t, db, 2, func() {
		err := db.Update(ctx, "User", model.Entity{"nope": 1}, 1)
		assert.Equal(t, ErrInvalidArgument, errors.Cause(err))
		err = db.Update(ctx, "User", model.Entity{"id": 3}, 1)
		assert.Equal(t, ErrInvalidArgument, errors.Cause(err))
		err = db.Update(ctx, "User", model.Entity{"name": "b"}, 1)
		assert.Equal(t, ErrDuplicateEntity, errors.Cause(err))
		err = db.Update(ctx, "User", model.Entity{"name": "z"}, 9)
		assert.Equal(t, ErrNotFound, errors.Cause(err))
		_, err = db.Load(ctx, "User", model.Entity{"level": 1})
		assert.True(t, IsInvalidEntityKey(err))

		got, err := db.Increase(ctx, "User", model.Entity{"balance": 50, "level": 2}, model.Entity{"name": "a"})
		require.NoError(t, err)
		assert.True(t, model.ValueEqual(big.NewInt(150), got["balance"]))
		assert.Equal(t, int64(2), got["level"])

		_, err = db.Increase(ctx, "User", model.Entity{"name": 1}, 1)
		assert.Equal(t, ErrInvalidArgument, errors.Cause(err))

		_, err = db.Increase(ctx, "User", model.Entity{"level": int64(math.MaxInt64)}, 1)
		assert.Equal(t, ErrInvalidArgument, errors.Cause(err))
		_, err = db.Increase(ctx, "User", model.Entity{"level": int64(math.MinInt64)}, 2)
		require.NoError(t, err)
		_, err = db.Increase(ctx, "User", model.Entity{"level": -1}, 2)
		assert.Equal(t, ErrInvalidArgument, errors.Cause(err))
		got, err = db.Get("User", 2)
		require.NoError(t, err)
		assert.Equal(t, int64(math.MinInt64), got["level"])
	})

	row, err := db.FindOne(ctx, "User", Condition{"id": 1})
	require.NoError(t, err)
	assert.True(t, model.ValueEqual(big.NewInt(150), row["balance"]))
	assert.Equal(t, int64(2), row["level"])

	loose := newEnv(t).open(t, Options{})
	commit(t, loose, 1, func() {
		_, err := loose.Create("User", model.Entity{"id": 1, "name": "a"})
		require.NoError(t, err)
		require.NoError(t, loose.Update(ctx, "User", model.Entity{"nope": 1, "id": 7, "level": 4}, 1))
		got, err := loose.Get("User", 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got["id"])
		assert.Equal(t, int64(4), got["level"])
	})
}

func TestCreateOrLoad(t *testing.T) {
	ctx := context.Background()
	db := newEnv(t).open(t, Options{})

	commit(t, db, 1, func() {
		e, created, err := db.CreateOrLoad(ctx, "User", model.Entity{"id": 1, "name": "a"})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "a", e["name"])

		_, err = db.Create("User", model.Entity{"id": 1, "name": "x"})
		assert.Equal(t, ErrDuplicateEntity, errors.Cause(err))
	})
	commit(t, db, 2, func() {
		e, created, err := db.CreateOrLoad(ctx, "User", model.Entity{"id": 1, "name": "other"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "a", e["name"])
	})
}

func TestModelFlags(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	db := env.open(t, Options{})

	_, err := db.Create("Asset", model.Entity{"symbol": "VET"})
	assert.Equal(t, ErrReadonlyModel, errors.Cause(err))
	_, err = db.Create("Nope", model.Entity{"id": 1})
	assert.Equal(t, ErrUnknownModel, errors.Cause(err))
	_, err = db.GetAll("User", nil)
	assert.Equal(t, ErrInvalidOperation, errors.Cause(err))

	commit(t, db, 1, func() {
		for i := 0; i < 3; i++ {
			_, err := db.Create("Config", model.Entity{"key": fmt.Sprintf("k%d", i), "value": "v"})
			require.NoError(t, err)
		}
	})
	require.NoError(t, db.Close())

	reopened := env.open(t, Options{})
	all, err := reopened.GetAll("Config", nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	some, err := reopened.GetAll("Config", func(e model.Entity) bool { return e["key"] == "k1" })
	require.NoError(t, err)
	assert.Len(t, some, 1)

	missing, err := reopened.Load(ctx, "Config", "k9")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLocalChanges(t *testing.T) {
	ctx := context.Background()
	db := newEnv(t).open(t, Options{})

	_, err := db.Create("Setting", model.Entity{"key": "theme", "value": "dark"})
	require.NoError(t, err)
	serial, err := db.SaveLocalChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), serial)

	require.NoError(t, db.Update(ctx, "Setting", model.Entity{"value": "light"}, "theme"))
	serial, err = db.SaveLocalChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), serial)

	row, err := db.FindOne(ctx, "Setting", Condition{"key": "theme"})
	require.NoError(t, err)
	assert.Equal(t, "light", row["value"])

	assert.Equal(t, ErrInvalidArgument, errors.Cause(db.RollbackLocalChanges(ctx, 3)))
	require.NoError(t, db.RollbackLocalChanges(ctx, 2))

	got, err := db.Load(ctx, "Setting", "theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", got["value"])
	row, err = db.FindOne(ctx, "Setting", Condition{"key": "theme"})
	require.NoError(t, err)
	assert.Equal(t, "dark", row["value"])

	require.NoError(t, db.RollbackLocalChanges(ctx, 1))
	exists, err := db.Exists(ctx, "Setting", nil)
	require.NoError(t, err)
	assert.False(t, exists)

	// local changes never enter block history
	commit(t, db, 1, nil)
	history, err := db.GetHistoryChanges(1, 1)
	require.NoError(t, err)
	assert.Empty(t, history[1])
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	db, err := Open(env.registry, NewSQLPersistence(env.sql), env.kv, Options{})
	require.NoError(t, err)

	ch := make(chan *Event, 8)
	sub := db.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	next := func() *Event {
		select {
		case ev := <-ch:
			return ev
		case <-time.After(time.Second):
			t.Fatal("no event")
			return nil
		}
	}

	require.NoError(t, db.Init(ctx))
	assert.Equal(t, EventReady, next().Type)

	commit(t, db, 1, nil)
	commit(t, db, 2, nil)
	assert.Equal(t, &Event{Type: EventCommit, Height: 1}, next())
	assert.Equal(t, &Event{Type: EventCommit, Height: 2}, next())

	require.NoError(t, db.RollbackBlock(ctx, 1))
	assert.Equal(t, &Event{Type: EventRollback, Height: 1, FromHeight: 2}, next())

	require.NoError(t, db.Close())
	assert.Equal(t, EventClose, next().Type)
	assert.Equal(t, ErrInvalidOperation, errors.Cause(db.BeginBlock(header(2))))
}

func TestBlockQueries(t *testing.T) {
	db := newEnv(t).open(t, Options{CachedBlockCount: 2})
	for h := uint64(1); h <= 4; h++ {
		commit(t, db, h, nil)
	}
	lo, hi, ok := db.BlockCache().CachedHeightRange()
	assert.True(t, ok)
	assert.Equal(t, [2]uint64{3, 4}, [2]uint64{lo, hi})

	b, err := db.GetBlockByHeight(1)
	require.NoError(t, err)
	assert.Equal(t, "block-1", b.ID)

	blocks, err := db.GetBlocksByHeightRange(2, 4)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, uint64(2), blocks[0].Height)

	blocks, err = db.GetBlocksByHeightRange(3, 4)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	blocks, err = db.GetBlocksByIDs([]string{"block-4", "nope", "block-2"})
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, uint64(4), blocks[0].Height)
}

func TestLoadManyAndFindAll(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	db := env.open(t, Options{})

	commit(t, db, 1, func() {
		for i, name := range []string{"a", "b", "c"} {
			_, err := db.Create("User", model.Entity{"id": i + 1, "name": name, "level": 1 + i%2})
			require.NoError(t, err)
		}
	})

	rows, err := db.FindAll(ctx, "User", Condition{"level": 1}, Sort{Field: "id", Desc: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3), rows[0]["id"])
	assert.Equal(t, int64(1), rows[1]["id"])

	require.NoError(t, db.Close())
	db = env.open(t, Options{})

	e, err := db.Get("User", 2)
	require.NoError(t, err)
	assert.Nil(t, e, "nothing cached after reopen")

	rows, err = db.LoadMany(ctx, "User", Condition{"level": 2}, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	e, err = db.Get("User", 2)
	require.NoError(t, err)
	assert.Nil(t, e, "untracked load leaves the cache alone")

	rows, err = db.LoadMany(ctx, "User", Condition{"level": 2}, true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(1), rows[0].Version())
	e, err = db.Get("User", model.Entity{"name": "b"})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(2), e["id"])
}
