// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package smartdb

import (
	"github.com/pkg/errors"

	"github.com/vechain/smartdb/block"
	"github.com/vechain/smartdb/model"
)

// CommitBlockHook runs before a block is flushed. Entity changes it makes
// are committed with the block.
type CommitBlockHook func(b *block.Header) error

// RollbackBlockHook runs before blocks above toHeight are rolled back.
type RollbackBlockHook func(fromHeight, toHeight uint64) error

type namedHook[F any] struct {
	name string
	fn   F
}

// hooks keeps named hooks in registration order.
type hooks[F any] struct {
	entries []namedHook[F]
}

func (h *hooks[F]) register(name string, fn F) error {
	if name == "" {
		return errors.WithMessage(model.ErrInvalidArgument, "empty hook name")
	}
	for _, e := range h.entries {
		if e.name == name {
			return errors.WithMessagef(model.ErrInvalidArgument, "hook %s already registered", name)
		}
	}
	h.entries = append(h.entries, namedHook[F]{name, fn})
	return nil
}

func (h *hooks[F]) unregister(name string) {
	for i, e := range h.entries {
		if e.name == name {
			h.entries = append(h.entries[:i:i], h.entries[i+1:]...)
			return
		}
	}
}

// run calls each hook in order and stops at the first failure.
func (h *hooks[F]) run(call func(F) error) error {
	for _, e := range h.entries {
		if err := call(e.fn); err != nil {
			return errors.WithMessagef(err, "hook %s", e.name)
		}
	}
	return nil
}

// RegisterCommitBlockHook adds a hook run by CommitBlock.
func (db *DB) RegisterCommitBlockHook(name string, fn CommitBlockHook) error {
	return db.commitHooks.register(name, fn)
}

// UnregisterCommitBlockHook removes a commit hook.
func (db *DB) UnregisterCommitBlockHook(name string) {
	db.commitHooks.unregister(name)
}

// RegisterRollbackBlockHook adds a hook run by RollbackBlock.
func (db *DB) RegisterRollbackBlockHook(name string, fn RollbackBlockHook) error {
	return db.rollbackHooks.register(name, fn)
}

// UnregisterRollbackBlockHook removes a rollback hook.
func (db *DB) UnregisterRollbackBlockHook(name string) {
	db.rollbackHooks.unregister(name)
}
