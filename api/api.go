// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/vechain/smartdb/api/blocks"
	"github.com/vechain/smartdb/api/entities"
	"github.com/vechain/smartdb/api/middleware"
	"github.com/vechain/smartdb/api/status"
	"github.com/vechain/smartdb/api/subscriptions"
	"github.com/vechain/smartdb/log"
	"github.com/vechain/smartdb/smartdb"
)

var logger = log.WithContext("pkg", "api")

type Options struct {
	AllowedOrigins string
	QueryLimit     uint64
	EnableMetrics  bool
	// EnableReqLogger turns logging of every request on and off at runtime.
	EnableReqLogger      *atomic.Bool
	SlowQueriesThreshold time.Duration
}

// New return api router and a func closing open subscriptions. lock guards
// every access to db.
func New(db *smartdb.DB, lock sync.Locker, opts Options) (http.HandlerFunc, func()) {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	router := mux.NewRouter()

	status.New(db, lock).
		Mount(router, "/status")
	blocks.New(db, lock).
		Mount(router, "/blocks")
	entities.New(db, lock, opts.QueryLimit).
		Mount(router, "/entities")
	subs := subscriptions.New(db, origins)
	subs.Mount(router, "/subscriptions")

	if opts.EnableMetrics {
		router.Use(metricsMiddleware)
	}

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type"}),
	)(handler)

	reqLogs := opts.EnableReqLogger
	if reqLogs == nil {
		reqLogs = &atomic.Bool{}
	}
	handler = middleware.RequestLogger(logger, reqLogs, opts.SlowQueriesThreshold)(handler)

	return handler.ServeHTTP, subs.Close
}
