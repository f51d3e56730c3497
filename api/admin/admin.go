// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package admin

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/vechain/smartdb/api/admin/apilogs"
	healthAPI "github.com/vechain/smartdb/api/admin/health"
	"github.com/vechain/smartdb/api/admin/loglevel"
	"github.com/vechain/smartdb/health"
)

// New returns the admin router serving log controls and health under /admin.
func New(logLevel *slog.LevelVar, apiLogs *atomic.Bool, healthStatus *health.Health) http.HandlerFunc {
	router := mux.NewRouter()
	sub := router.PathPrefix("/admin").Subrouter()

	loglevel.New(logLevel).Mount(sub, "/loglevel")
	apilogs.New(apiLogs).Mount(sub, "/apilogs")
	healthAPI.NewAPI(healthStatus).Mount(sub, "/health")

	handler := handlers.CompressHandler(router)

	return handler.ServeHTTP
}
