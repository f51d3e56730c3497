// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package smartdb

import (
	"context"

	"github.com/vechain/smartdb/model"
	"github.com/vechain/smartdb/sqlstore"
)

type (
	// Condition selects rows by field equality, a slice value meaning IN.
	Condition = sqlstore.Condition
	// FindOptions pages and orders query results.
	FindOptions = sqlstore.FindOptions
	// Sort orders query results by a field.
	Sort = sqlstore.Sort
)

// Persistence stores the rows the tracked entities are flushed to.
type Persistence interface {
	Begin(ctx context.Context) (PersistenceTx, error)
	// Get returns the row matching a normalized primary or unique key, or nil.
	Get(ctx context.Context, schema *model.Schema, key model.Entity) (model.Entity, error)
	Find(ctx context.Context, schema *model.Schema, cond Condition, opts FindOptions) ([]model.Entity, error)
	Count(ctx context.Context, schema *model.Schema, cond Condition) (int, error)
	Exists(ctx context.Context, schema *model.Schema, cond Condition) (bool, error)
	LoadAll(ctx context.Context, schema *model.Schema) ([]model.Entity, error)
}

// PersistenceTx applies change records atomically.
type PersistenceTx interface {
	// Apply writes the changes forward, in order.
	Apply(ctx context.Context, changes []*model.EntityChanges) error
	// Revert writes the inverse of the changes, newest first.
	Revert(ctx context.Context, changes []*model.EntityChanges) error
	Commit() error
	Rollback() error
}

type sqlPersistence struct {
	*sqlstore.Store
}

// NewSQLPersistence adapts a sql store.
func NewSQLPersistence(s *sqlstore.Store) Persistence {
	return sqlPersistence{s}
}

func (p sqlPersistence) Begin(ctx context.Context) (PersistenceTx, error) {
	tx, err := p.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}
