// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sqlstore

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/vechain/smartdb/model"
)

// Tx writes change records into the store atomically. Store reads block
// until the Tx ends.
type Tx struct {
	store *Store
	tx    *sql.Tx
	done  bool
}

// Apply writes the changes forward. Changes of one row are folded in
// order, then rows are written so that unique values are released before
// they are claimed again.
func (t *Tx) Apply(ctx context.Context, changes []*model.EntityChanges) error {
	var p plan
	for _, c := range changes {
		if err := p.add(t.store.registry, c, c.Type, c.Currents()); err != nil {
			return errors.WithMessagef(err, "apply %s %s %v", c.Type, c.Model, c.PrimaryKey)
		}
	}
	return t.write(ctx, "apply", p.rows)
}

// Revert undoes the changes, newest first.
func (t *Tx) Revert(ctx context.Context, changes []*model.EntityChanges) error {
	var p plan
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		typ := c.Type
		switch c.Type {
		case model.ChangeNew:
			typ = model.ChangeDelete
		case model.ChangeDelete:
			typ = model.ChangeNew
		}
		if err := p.add(t.store.registry, c, typ, c.Originals()); err != nil {
			return errors.WithMessagef(err, "revert %s %s %v", c.Type, c.Model, c.PrimaryKey)
		}
	}
	return t.write(ctx, "revert", p.rows)
}

// rowWrite is the net effect of a run of changes on one row.
type rowWrite struct {
	schema *model.Schema
	pk     model.Entity
	// existed and exists tell whether the row is there before and after the run.
	existed bool
	exists  bool
	// replaced rows were deleted and inserted again within the run.
	replaced bool
	values   model.Entity
}

// movesUnique reports whether an update changes a unique column.
func (w *rowWrite) movesUnique() bool {
	for _, idx := range w.schema.UniqueIndexes() {
		for _, f := range idx.Fields {
			if _, ok := w.values[f]; ok {
				return true
			}
		}
	}
	return false
}

func (w *rowWrite) inPlace() bool {
	return w.existed && w.exists && !w.replaced && !w.movesUnique()
}

// plan folds changes into one write per row, in first-touch order.
type plan struct {
	rows  []*rowWrite
	index map[string]*rowWrite
}

func (p *plan) add(registry *model.Registry, c *model.EntityChanges, typ model.ChangeType, values model.Entity) error {
	schema, err := registry.Get(c.Model)
	if err != nil {
		return err
	}
	ck, err := schema.CacheKey(c.PrimaryKey)
	if err != nil {
		return err
	}
	id := schema.Name + "/" + string(ck)
	w, ok := p.index[id]
	if !ok {
		w = &rowWrite{schema: schema, pk: c.PrimaryKey, existed: typ != model.ChangeNew}
		w.exists = w.existed
		if p.index == nil {
			p.index = make(map[string]*rowWrite)
		}
		p.index[id] = w
		p.rows = append(p.rows, w)
	}
	switch typ {
	case model.ChangeNew:
		if w.exists && ok {
			return errors.WithMessage(model.ErrDuplicateEntity, "row created twice")
		}
		w.replaced = w.existed
		w.exists = true
		w.values = values
	case model.ChangeModify:
		if !w.exists {
			return errors.WithMessage(model.ErrNotFound, "row modified after delete")
		}
		if w.values == nil {
			w.values = make(model.Entity, len(values))
		}
		for k, v := range values {
			w.values[k] = v
		}
	case model.ChangeDelete:
		if !w.exists && ok {
			return errors.WithMessage(model.ErrNotFound, "row deleted twice")
		}
		w.exists = false
		w.replaced = false
		w.values = nil
	default:
		return errors.WithMessagef(model.ErrInvalidArgument, "change type %d", typ)
	}
	return nil
}

// write runs the planned rows in three passes: removals, in-place updates,
// then inserts. A row whose unique columns change is removed in the first
// pass and inserted whole in the last.
func (t *Tx) write(ctx context.Context, op string, rows []*rowWrite) error {
	fail := func(w *rowWrite, err error) error {
		return errors.WithMessagef(err, "%s %s %v", op, w.schema.Name, w.pk)
	}
	for _, w := range rows {
		if !w.existed || w.inPlace() {
			continue
		}
		if w.exists && !w.replaced {
			row, err := t.row(ctx, w.schema, w.pk)
			if err != nil {
				return fail(w, err)
			}
			for k, v := range w.values {
				row[k] = v
			}
			w.values = row
		}
		if err := t.delete(ctx, w.schema, w.pk); err != nil {
			return fail(w, err)
		}
	}
	for _, w := range rows {
		if w.inPlace() {
			if err := t.update(ctx, w.schema, w.pk, w.values); err != nil {
				return fail(w, err)
			}
		}
	}
	for _, w := range rows {
		if w.exists && !w.inPlace() {
			if err := t.insert(ctx, w.schema, w.pk, w.values); err != nil {
				return fail(w, err)
			}
		}
	}
	return nil
}

// row reads the current row inside the transaction.
func (t *Tx) row(ctx context.Context, schema *model.Schema, pk model.Entity) (model.Entity, error) {
	where, args, err := t.keyClause(schema, pk)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + selectColumns(schema) + " FROM " + quote(schema.Table) + where
	rs, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query", query, err)
	}
	defer rs.Close()
	rows, err := scanRows(schema, query, rs)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &Error{Op: "read", SQL: query, Err: errors.WithMessage(model.ErrNotFound, "row missing")}
	}
	return rows[0], nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return wrapErr("commit", "", err)
	}
	return nil
}

// Rollback aborts the transaction. It is a no-op after Commit.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil {
		return wrapErr("rollback", "", err)
	}
	return nil
}

func (t *Tx) exec(ctx context.Context, op, query string, args []interface{}) (sql.Result, error) {
	// the pool holds one connection, which the tx owns until it ends
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(op, query, err)
	}
	return res, nil
}

func sortedNames(e model.Entity) []string {
	names := make([]string, 0, len(e))
	for k := range e {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (t *Tx) insert(ctx context.Context, schema *model.Schema, pk, values model.Entity) error {
	row := values.Clone()
	for k, v := range pk {
		row[k] = v
	}
	names := sortedNames(row)
	cols := make([]string, len(names))
	marks := make([]string, len(names))
	args := make([]interface{}, len(names))
	for i, name := range names {
		enc, err := encodeValue(schema, name, row[name])
		if err != nil {
			return err
		}
		cols[i] = quote(name)
		marks[i] = "?"
		args[i] = enc
	}
	query := "INSERT INTO " + quote(schema.Table) + " (" + strings.Join(cols, ", ") +
		") VALUES (" + strings.Join(marks, ", ") + ")"
	_, err := t.exec(ctx, "insert", query, args)
	return err
}

func (t *Tx) keyClause(schema *model.Schema, pk model.Entity) (string, []interface{}, error) {
	var (
		parts []string
		args  []interface{}
	)
	for _, name := range schema.PrimaryKey() {
		v, ok := pk[name]
		if !ok {
			return "", nil, errors.WithMessagef(model.ErrInvalidArgument, "primary key %s missing", name)
		}
		enc, err := encodeValue(schema, name, v)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, quote(name)+" = ?")
		args = append(args, enc)
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

func (t *Tx) update(ctx context.Context, schema *model.Schema, pk, values model.Entity) error {
	names := sortedNames(values)
	if len(names) == 0 {
		return nil
	}
	sets := make([]string, len(names))
	args := make([]interface{}, 0, len(names)+len(pk))
	for i, name := range names {
		enc, err := encodeValue(schema, name, values[name])
		if err != nil {
			return err
		}
		sets[i] = quote(name) + " = ?"
		args = append(args, enc)
	}
	where, keyArgs, err := t.keyClause(schema, pk)
	if err != nil {
		return err
	}
	query := "UPDATE " + quote(schema.Table) + " SET " + strings.Join(sets, ", ") + where
	res, err := t.exec(ctx, "update", query, append(args, keyArgs...))
	if err != nil {
		return err
	}
	return expectOneRow(res, query)
}

func (t *Tx) delete(ctx context.Context, schema *model.Schema, pk model.Entity) error {
	where, args, err := t.keyClause(schema, pk)
	if err != nil {
		return err
	}
	query := "DELETE FROM " + quote(schema.Table) + where
	res, err := t.exec(ctx, "delete", query, args)
	if err != nil {
		return err
	}
	return expectOneRow(res, query)
}

func expectOneRow(res sql.Result, query string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("rows affected", query, err)
	}
	if n != 1 {
		return &Error{Op: "write", SQL: query, Err: errors.WithMessagef(model.ErrNotFound, "%d rows affected", n)}
	}
	return nil
}
