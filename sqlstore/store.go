// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package sqlstore persists entity rows in sqlite, one table per model.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/vechain/smartdb/log"
	"github.com/vechain/smartdb/model"
)

var logger = log.WithContext("pkg", "sqlstore")

const stmtCacheSize = 256

// Error carries the failed statement.
type Error struct {
	Op  string
	SQL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sqlstore: %s: %v [%s]", e.Op, e.Err, e.SQL)
}

// Cause returns the underlying error.
func (e *Error) Cause() error { return e.Err }

func (e *Error) Unwrap() error { return e.Err }

func wrapErr(op, query string, err error) error {
	if se, ok := err.(sqlite3.Error); ok {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			err = errors.WithMessage(model.ErrDuplicateEntity, se.Error())
		}
	}
	return &Error{Op: op, SQL: query, Err: err}
}

// Store is a sqlite backed row store.
type Store struct {
	path     string
	db       *sql.DB
	registry *model.Registry
	stmts    *lru.Cache
}

// Open opens or creates the database at path and creates missing tables.
func Open(ctx context.Context, path string, registry *model.Registry) (store *Store, err error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if store == nil {
			db.Close()
		}
	}()
	// a single connection keeps :memory: databases coherent and serializes writers
	db.SetMaxOpenConns(1)

	stmts, err := lru.NewWithEvict(stmtCacheSize, func(_, v interface{}) {
		_ = v.(*sql.Stmt).Close()
	})
	if err != nil {
		return nil, err
	}

	s := &Store{path: path, db: db, registry: registry, stmts: stmts}
	for _, schema := range registry.All() {
		for _, ddl := range tableDDL(schema) {
			if _, err := db.ExecContext(ctx, ddl); err != nil {
				return nil, wrapErr("create table", ddl, err)
			}
		}
	}
	ver, _, _ := sqlite3.Version()
	logger.Debug("sql store opened", "path", path, "sqlite", ver, "models", len(registry.All()))
	return s, nil
}

// OpenMem opens an in-memory store.
func OpenMem(ctx context.Context, registry *model.Registry) (*Store, error) {
	return Open(ctx, ":memory:", registry)
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	s.stmts.Purge()
	return s.db.Close()
}

func (s *Store) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if cached, ok := s.stmts.Get(query); ok {
		return cached.(*sql.Stmt), nil
	}
	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, wrapErr("prepare", query, err)
	}
	s.stmts.Add(query, stmt)
	return stmt, nil
}

// Condition selects rows by field equality. A slice value matches any of
// its elements.
type Condition map[string]interface{}

// Sort orders query results by a field.
type Sort struct {
	Field string
	Desc  bool
}

// FindOptions pages and orders query results.
type FindOptions struct {
	Limit  int
	Offset int
	Sort   []Sort
}

func (s *Store) whereClause(schema *model.Schema, cond Condition) (string, []interface{}, error) {
	names := make([]string, 0, len(cond))
	for name := range cond {
		if name != model.VersionProperty && !schema.IsValidProperty(name) {
			return "", nil, errors.WithMessagef(model.ErrInvalidArgument, "model %s has no property %s", schema.Name, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		sb   strings.Builder
		args []interface{}
	)
	sb.WriteString(" WHERE 1")
	for _, name := range names {
		switch v := cond[name].(type) {
		case []interface{}:
			if len(v) == 0 {
				sb.WriteString(" AND 0")
				continue
			}
			sb.WriteString(" AND " + quote(name) + " IN (")
			for i, item := range v {
				enc, err := encodeValue(schema, name, item)
				if err != nil {
					return "", nil, err
				}
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString("?")
				args = append(args, enc)
			}
			sb.WriteString(")")
		case nil:
			sb.WriteString(" AND " + quote(name) + " IS NULL")
		default:
			enc, err := encodeValue(schema, name, v)
			if err != nil {
				return "", nil, err
			}
			sb.WriteString(" AND " + quote(name) + " = ?")
			args = append(args, enc)
		}
	}
	return sb.String(), args, nil
}

func selectColumns(schema *model.Schema) string {
	cols := columns(schema)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	return strings.Join(quoted, ", ")
}

// Find returns the rows matching the condition.
func (s *Store) Find(ctx context.Context, schema *model.Schema, cond Condition, opts FindOptions) ([]model.Entity, error) {
	where, args, err := s.whereClause(schema, cond)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + selectColumns(schema) + " FROM " + quote(schema.Table) + where
	if len(opts.Sort) > 0 {
		var parts []string
		for _, o := range opts.Sort {
			if o.Field != model.VersionProperty && !schema.IsValidProperty(o.Field) {
				return nil, errors.WithMessagef(model.ErrInvalidArgument, "cannot sort by %s", o.Field)
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts = append(parts, quote(o.Field)+" "+dir)
		}
		query += " ORDER BY " + strings.Join(parts, ", ")
	}
	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, opts.Offset)
	}
	return s.query(ctx, schema, query, args...)
}

func (s *Store) query(ctx context.Context, schema *model.Schema, query string, args ...interface{}) ([]model.Entity, error) {
	stmt, err := s.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, wrapErr("query", query, err)
	}
	defer rows.Close()
	return scanRows(schema, query, rows)
}

func scanRows(schema *model.Schema, query string, rows *sql.Rows) ([]model.Entity, error) {
	cols := columns(schema)
	var out []model.Entity
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, wrapErr("scan", query, err)
		}
		e := make(model.Entity, len(cols))
		for i, name := range cols {
			v, err := decodeValue(schema, name, values[i])
			if err != nil {
				return nil, err
			}
			if v != nil {
				e[name] = v
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("query", query, err)
	}
	return out, nil
}

// Get returns the row matching a normalized primary or unique key, or nil.
func (s *Store) Get(ctx context.Context, schema *model.Schema, key model.Entity) (model.Entity, error) {
	rows, err := s.Find(ctx, schema, Condition(key), FindOptions{Limit: 1})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// LoadAll returns every row of the model.
func (s *Store) LoadAll(ctx context.Context, schema *model.Schema) ([]model.Entity, error) {
	return s.Find(ctx, schema, nil, FindOptions{})
}

// Count returns the number of rows matching the condition.
func (s *Store) Count(ctx context.Context, schema *model.Schema, cond Condition) (int, error) {
	where, args, err := s.whereClause(schema, cond)
	if err != nil {
		return 0, err
	}
	query := "SELECT COUNT(*) FROM " + quote(schema.Table) + where
	stmt, err := s.prepare(ctx, query)
	if err != nil {
		return 0, err
	}
	var n int
	if err := stmt.QueryRowContext(ctx, args...).Scan(&n); err != nil {
		return 0, wrapErr("count", query, err)
	}
	return n, nil
}

// Exists reports whether any row matches the condition.
func (s *Store) Exists(ctx context.Context, schema *model.Schema, cond Condition) (bool, error) {
	where, args, err := s.whereClause(schema, cond)
	if err != nil {
		return false, err
	}
	query := "SELECT EXISTS(SELECT 1 FROM " + quote(schema.Table) + where + ")"
	stmt, err := s.prepare(ctx, query)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := stmt.QueryRowContext(ctx, args...).Scan(&exists); err != nil {
		return false, wrapErr("exists", query, err)
	}
	return exists, nil
}

// Begin starts a write transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapErr("begin", "", err)
	}
	return &Tx{store: s, tx: tx}, nil
}
