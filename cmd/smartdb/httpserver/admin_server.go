// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package httpserver

import (
	"log/slog"
	"sync/atomic"

	"github.com/vechain/smartdb/api/admin"
	"github.com/vechain/smartdb/health"
)

func StartAdminServer(
	addr string,
	logLevel *slog.LevelVar,
	apiLogs *atomic.Bool,
	healthStatus *health.Health,
) (string, func(), error) {
	a, closeFunc, err := start("admin API", addr, admin.New(logLevel, apiLogs, healthStatus))
	if err != nil {
		return "", nil, err
	}
	return "http://" + a.String() + "/admin", closeFunc, nil
}
