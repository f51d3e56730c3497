// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error sentinels shared by every layer. Callers classify with errors.Cause.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnknownModel       = errors.New("unknown model")
	ErrReadonlyModel      = errors.New("model is readonly")
	ErrInvalidOperation   = errors.New("invalid operation")
	ErrNestedScope        = errors.New("scope already open")
	ErrNoScope            = errors.New("no open scope")
	ErrLockConflict       = errors.New("lock already held in current block")
	ErrHistoryUnavailable = errors.New("history unavailable")
	ErrNotFound           = errors.New("entity not found")
	ErrDuplicateEntity    = errors.New("entity already exists")
)

// InvalidEntityKeyError is returned when a key matches neither the primary
// key nor any unique index of a model.
type InvalidEntityKeyError struct {
	Model string
	Key   interface{}
}

func (e *InvalidEntityKeyError) Error() string {
	return fmt.Sprintf("invalid entity key %v for model %s", e.Key, e.Model)
}

// IsInvalidEntityKey reports whether err is caused by an InvalidEntityKeyError.
func IsInvalidEntityKey(err error) bool {
	_, ok := errors.Cause(err).(*InvalidEntityKeyError)
	return ok
}
