// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package smartdb

import "github.com/vechain/smartdb/model"

// Errors returned by DB, classified with errors.Cause.
var (
	ErrInvalidArgument    = model.ErrInvalidArgument
	ErrUnknownModel       = model.ErrUnknownModel
	ErrReadonlyModel      = model.ErrReadonlyModel
	ErrInvalidOperation   = model.ErrInvalidOperation
	ErrNestedScope        = model.ErrNestedScope
	ErrNoScope            = model.ErrNoScope
	ErrLockConflict       = model.ErrLockConflict
	ErrHistoryUnavailable = model.ErrHistoryUnavailable
	ErrNotFound           = model.ErrNotFound
	ErrDuplicateEntity    = model.ErrDuplicateEntity
)

// InvalidEntityKeyError is returned for keys matching neither the primary
// key nor a unique index.
type InvalidEntityKeyError = model.InvalidEntityKeyError

// IsInvalidEntityKey reports whether err is caused by an InvalidEntityKeyError.
func IsInvalidEntityKey(err error) bool { return model.IsInvalidEntityKey(err) }
