// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sqlstore

import (
	"context"
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/smartdb/model"
)

func newTestStore(t *testing.T) *Store {
	account := model.MustSchema(&model.Schema{
		Name:  "Account",
		Table: "accounts",
		Fields: []model.Field{
			{Name: "address", Type: model.String, Length: 64, PrimaryKey: true},
			{Name: "name", Type: model.String, Unique: "uk_name"},
			{Name: "balance", Type: model.BigInt},
			{Name: "level", Type: model.Number, Index: "idx_level"},
			{Name: "meta", Type: model.JSON},
		},
	})
	pair := model.MustSchema(&model.Schema{
		Name:  "Pair",
		Table: "pairs",
		Fields: []model.Field{
			{Name: "a", Type: model.String, CompositeKey: true},
			{Name: "b", Type: model.Number, CompositeKey: true},
			{Name: "v", Type: model.Text},
		},
	})
	reg, err := model.NewRegistry(account, pair)
	require.NoError(t, err)

	s, err := OpenMem(context.Background(), reg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newChange(name string, version uint64, pk model.Entity, values model.Entity) *model.EntityChanges {
	c := &model.EntityChanges{Type: model.ChangeNew, DBVersion: version, Model: name, PrimaryKey: pk}
	for k, v := range values {
		c.PropertyChanges = append(c.PropertyChanges, model.PropertyChange{Name: k, Current: v})
	}
	return c
}

func apply(t *testing.T, s *Store, changes ...*model.EntityChanges) {
	ctx := context.Background()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Apply(ctx, changes))
	require.NoError(t, tx.Commit())
}

func accountSchema(t *testing.T, s *Store) *model.Schema {
	schema, err := s.registry.Get("Account")
	require.NoError(t, err)
	return schema
}

func TestApplyAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	schema := accountSchema(t, s)

	c := newChange("Account", 1, model.Entity{"address": "0x01"}, model.Entity{
		"name":                "alice",
		"balance":             big.NewInt(1000),
		"level":               int64(3),
		"meta":                map[string]interface{}{"tag": "x"},
		model.VersionProperty: uint64(1),
	})
	apply(t, s, c)

	e, err := s.Get(ctx, schema, model.Entity{"address": "0x01"})
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "alice", e["name"])
	assert.True(t, model.ValueEqual(big.NewInt(1000), e["balance"]))
	assert.Equal(t, int64(3), e["level"])
	assert.Equal(t, map[string]interface{}{"tag": "x"}, e["meta"])
	assert.Equal(t, uint64(1), e.Version())

	byName, err := s.Get(ctx, schema, model.Entity{"name": "alice"})
	require.NoError(t, err)
	assert.Equal(t, "0x01", byName["address"])

	missing, err := s.Get(ctx, schema, model.Entity{"address": "0x02"})
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRevert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	schema := accountSchema(t, s)

	created := newChange("Account", 1, model.Entity{"address": "0x01"}, model.Entity{
		"name": "a", model.VersionProperty: uint64(1),
	})
	apply(t, s, created)

	block2 := []*model.EntityChanges{
		{
			Type: model.ChangeModify, DBVersion: 2, Model: "Account",
			PrimaryKey: model.Entity{"address": "0x01"},
			PropertyChanges: []model.PropertyChange{
				{Name: "name", Original: "a", Current: "b"},
				{Name: model.VersionProperty, Original: uint64(1), Current: uint64(2)},
			},
		},
		{
			Type: model.ChangeNew, DBVersion: 2, Model: "Account",
			PrimaryKey: model.Entity{"address": "0x02"},
			PropertyChanges: []model.PropertyChange{
				{Name: "name", Current: "c"},
				{Name: model.VersionProperty, Current: uint64(1)},
			},
		},
	}
	apply(t, s, block2...)

	e, err := s.Get(ctx, schema, model.Entity{"address": "0x01"})
	require.NoError(t, err)
	assert.Equal(t, "b", e["name"])
	assert.Equal(t, uint64(2), e.Version())

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Revert(ctx, block2))
	require.NoError(t, tx.Commit())

	e, err = s.Get(ctx, schema, model.Entity{"address": "0x01"})
	require.NoError(t, err)
	assert.Equal(t, "a", e["name"])
	assert.Equal(t, uint64(1), e.Version())

	n, err := s.Count(ctx, schema, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRevertDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	schema := accountSchema(t, s)

	created := newChange("Account", 1, model.Entity{"address": "0x01"}, model.Entity{
		"name": "a", "level": int64(2), model.VersionProperty: uint64(1),
	})
	apply(t, s, created)

	del := &model.EntityChanges{
		Type: model.ChangeDelete, DBVersion: 2, Model: "Account",
		PrimaryKey: model.Entity{"address": "0x01"},
		PropertyChanges: []model.PropertyChange{
			{Name: "name", Original: "a"},
			{Name: "level", Original: int64(2)},
			{Name: model.VersionProperty, Original: uint64(1)},
		},
	}
	apply(t, s, del)

	exists, err := s.Exists(ctx, schema, Condition{"address": "0x01"})
	require.NoError(t, err)
	assert.False(t, exists)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Revert(ctx, []*model.EntityChanges{del}))
	require.NoError(t, tx.Commit())

	e, err := s.Get(ctx, schema, model.Entity{"address": "0x01"})
	require.NoError(t, err)
	assert.Equal(t, model.Entity{"address": "0x01", "name": "a", "level": int64(2), model.VersionProperty: uint64(1)}, e)
}

func rename(address, from, to string, version uint64) *model.EntityChanges {
	return &model.EntityChanges{
		Type: model.ChangeModify, DBVersion: version, Model: "Account",
		PrimaryKey: model.Entity{"address": address},
		PropertyChanges: []model.PropertyChange{
			{Name: "name", Original: from, Current: to},
			{Name: model.VersionProperty, Original: version - 1, Current: version},
		},
	}
}

func TestApplyReleasesUniqueFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	schema := accountSchema(t, s)

	apply(t, s,
		newChange("Account", 1, model.Entity{"address": "0x01"}, model.Entity{"name": "x", "level": int64(5), model.VersionProperty: uint64(1)}),
		newChange("Account", 1, model.Entity{"address": "0x02"}, model.Entity{"name": "y", model.VersionProperty: uint64(1)}),
		newChange("Account", 1, model.Entity{"address": "0x03"}, model.Entity{"name": "w", model.VersionProperty: uint64(1)}),
	)
	names := func() map[string]interface{} {
		rows, err := s.LoadAll(ctx, schema)
		require.NoError(t, err)
		out := make(map[string]interface{}, len(rows))
		for _, r := range rows {
			out[r["address"].(string)] = r["name"]
		}
		return out
	}

	// 0x02 claims "x" before 0x01 gives it up, 0x04 claims "w" before 0x03 is deleted
	block2 := []*model.EntityChanges{
		rename("0x02", "y", "x", 2),
		rename("0x01", "x", "z", 2),
		newChange("Account", 2, model.Entity{"address": "0x04"}, model.Entity{"name": "w", model.VersionProperty: uint64(1)}),
		{
			Type: model.ChangeDelete, DBVersion: 2, Model: "Account",
			PrimaryKey: model.Entity{"address": "0x03"},
			PropertyChanges: []model.PropertyChange{
				{Name: "name", Original: "w"},
				{Name: model.VersionProperty, Original: uint64(1)},
			},
		},
	}
	apply(t, s, block2...)
	assert.Equal(t, map[string]interface{}{"0x01": "z", "0x02": "x", "0x04": "w"}, names())

	e, err := s.Get(ctx, schema, model.Entity{"address": "0x01"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), e["level"], "columns outside the diff survive the rewrite")
	assert.Equal(t, uint64(2), e.Version())

	// a swap is a cycle no statement order can resolve
	apply(t, s, rename("0x01", "z", "x", 3), rename("0x02", "x", "z", 3))
	assert.Equal(t, map[string]interface{}{"0x01": "x", "0x02": "z", "0x04": "w"}, names())

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Revert(ctx, append(block2, rename("0x01", "z", "x", 3), rename("0x02", "x", "z", 3))))
	require.NoError(t, tx.Commit())
	assert.Equal(t, map[string]interface{}{"0x01": "x", "0x02": "y", "0x03": "w"}, names())

	e, err = s.Get(ctx, schema, model.Entity{"address": "0x01"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.Version())
	assert.Equal(t, int64(5), e["level"])
}

func TestTxRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	schema := accountSchema(t, s)

	c := newChange("Account", 1, model.Entity{"address": "0x01"}, model.Entity{model.VersionProperty: uint64(1)})

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Apply(ctx, []*model.EntityChanges{c}))
	require.NoError(t, tx.Rollback())
	assert.NoError(t, tx.Commit())

	n, err := s.Count(ctx, schema, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestApplyErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newChange("Account", 1, model.Entity{"address": "0x01"}, model.Entity{"name": "same", model.VersionProperty: uint64(1)})
	b := newChange("Account", 1, model.Entity{"address": "0x02"}, model.Entity{"name": "same", model.VersionProperty: uint64(1)})

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	err = tx.Apply(ctx, []*model.EntityChanges{a, b})
	assert.Equal(t, model.ErrDuplicateEntity, errors.Cause(err))
	require.NoError(t, tx.Rollback())

	missing := &model.EntityChanges{
		Type: model.ChangeModify, DBVersion: 1, Model: "Account",
		PrimaryKey:      model.Entity{"address": "0x09"},
		PropertyChanges: []model.PropertyChange{{Name: "name", Original: "x", Current: "y"}},
	}
	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	err = tx.Apply(ctx, []*model.EntityChanges{missing})
	assert.Equal(t, model.ErrNotFound, errors.Cause(err))
	require.NoError(t, tx.Rollback())

	unknown := &model.EntityChanges{Type: model.ChangeNew, Model: "Nope"}
	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	err = tx.Apply(ctx, []*model.EntityChanges{unknown})
	assert.Equal(t, model.ErrUnknownModel, errors.Cause(err))
	require.NoError(t, tx.Rollback())
}

func TestFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	schema := accountSchema(t, s)

	var changes []*model.EntityChanges
	for i, addr := range []string{"0x01", "0x02", "0x03", "0x04"} {
		c := newChange("Account", 1, model.Entity{"address": addr}, model.Entity{
			"level": int64(i % 2), model.VersionProperty: uint64(1),
		})
		changes = append(changes, c)
	}
	apply(t, s, changes...)

	rows, err := s.Find(ctx, schema, Condition{"level": 1}, FindOptions{Sort: []Sort{{Field: "address", Desc: true}}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "0x04", rows[0]["address"])
	assert.Equal(t, "0x02", rows[1]["address"])

	rows, err = s.Find(ctx, schema, Condition{"address": []interface{}{"0x01", "0x03", "0x09"}}, FindOptions{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = s.Find(ctx, schema, nil, FindOptions{Limit: 2, Offset: 1, Sort: []Sort{{Field: "address"}}})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "0x02", rows[0]["address"])

	rows, err = s.Find(ctx, schema, Condition{"address": []interface{}{}}, FindOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)

	n, err := s.Count(ctx, schema, Condition{"level": int64(0)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Find(ctx, schema, Condition{"nope": 1}, FindOptions{})
	assert.Equal(t, model.ErrInvalidArgument, errors.Cause(err))

	all, err := s.LoadAll(ctx, schema)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestCompositeKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	schema, err := s.registry.Get("Pair")
	require.NoError(t, err)

	c := newChange("Pair", 1, model.Entity{"a": "x", "b": int64(1)}, model.Entity{"v": "hello", model.VersionProperty: uint64(1)})
	apply(t, s, c)

	e, err := s.Get(ctx, schema, model.Entity{"a": "x", "b": 1})
	require.NoError(t, err)
	assert.Equal(t, "hello", e["v"])

	del := &model.EntityChanges{Type: model.ChangeDelete, Model: "Pair", PrimaryKey: model.Entity{"a": "x", "b": int64(1)}}
	apply(t, s, del)
	e, err = s.Get(ctx, schema, model.Entity{"a": "x", "b": 1})
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestDDL(t *testing.T) {
	schema := model.MustSchema(&model.Schema{
		Name: "T", Table: "t",
		Fields: []model.Field{
			{Name: "id", Type: model.Number, PrimaryKey: true},
			{Name: "x", Type: model.String, Unique: "uk_x"},
		},
	})
	stmts := tableDDL(schema)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], `"_version_" INTEGER NOT NULL DEFAULT 0`)
	assert.Contains(t, stmts[0], `PRIMARY KEY ("id")`)
	assert.Equal(t, `CREATE UNIQUE INDEX IF NOT EXISTS "t_uk_x" ON "t" ("x")`, stmts[1])
}
