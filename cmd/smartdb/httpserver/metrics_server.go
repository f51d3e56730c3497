// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package httpserver

import (
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/vechain/smartdb/metrics"
)

func StartMetricsServer(addr string) (string, func(), error) {
	router := mux.NewRouter()
	router.PathPrefix("/metrics").Handler(metrics.HTTPHandler())

	a, closeFunc, err := start("metrics API", addr, handlers.CompressHandler(router))
	if err != nil {
		return "", nil, err
	}
	return "http://" + a.String() + "/metrics", closeFunc, nil
}
