// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package httpserver

import (
	"sync"

	"github.com/vechain/smartdb/api"
	"github.com/vechain/smartdb/smartdb"
)

func StartAPIServer(addr string, db *smartdb.DB, lock sync.Locker, opts api.Options) (string, func(), error) {
	handler, closeSubs := api.New(db, lock, opts)
	a, closeFunc, err := start("API", addr, handler)
	if err != nil {
		closeSubs()
		return "", nil, err
	}
	return "http://" + a.String() + "/", func() {
		closeSubs()
		closeFunc()
	}, nil
}
