// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package smartdb

import (
	"context"

	"github.com/pkg/errors"

	"github.com/vechain/smartdb/model"
)

// SaveLocalChanges flushes the changes of local models and returns the
// serial they were saved under. Serials restart from 1 when the DB opens.
func (db *DB) SaveLocalChanges(ctx context.Context) (uint64, error) {
	if err := db.ensureInited(); err != nil {
		return 0, err
	}
	serial := db.local.Version() + 1
	changes := db.local.PendingChanges()
	for _, c := range changes {
		c.DBVersion = serial
	}
	tx, err := db.persist.Begin(ctx)
	if err != nil {
		return 0, err
	}
	if err := tx.Apply(ctx, changes); err != nil {
		_ = tx.Rollback()
		return 0, errors.WithMessagef(err, "save local changes %d", serial)
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.WithMessagef(err, "save local changes %d", serial)
	}
	db.local.AcceptChanges(serial)
	logger.Debug("local changes saved", "serial", serial, "changes", len(changes))
	return serial, nil
}

// RollbackLocalChanges undoes the local changes saved under serial and
// every later serial, along with unsaved local changes.
func (db *DB) RollbackLocalChanges(ctx context.Context, serial uint64) error {
	if err := db.ensureInited(); err != nil {
		return err
	}
	if serial == 0 || serial > db.local.Version() {
		return errors.WithMessagef(model.ErrInvalidArgument, "local serial %d, last is %d", serial, db.local.Version())
	}
	to := serial - 1
	batches, err := db.local.ChangesUntil(ctx, to)
	if err != nil {
		return err
	}
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
		return errors.WithMessagef(err, "rollback local changes to %d", to)
	}
	if err := tx.Commit(); err != nil {
		return errors.WithMessagef(err, "rollback local changes to %d", to)
	}
	if err := db.local.Revert(to, batches); err != nil {
		return err
	}
	logger.Debug("local changes rolled back", "serial", serial)
	return nil
}
