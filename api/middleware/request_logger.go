// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package middleware

import (
	"bytes"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/vechain/smartdb/log"
)

// maxLoggedBody bounds the request body copied into a log record.
const maxLoggedBody = 4096

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs every request while enabled is set. Otherwise only
// requests slower than slowThreshold, when positive, and 5xx responses
// are logged. Websocket upgrades are passed through unlogged.
func RequestLogger(logger log.Logger, enabled *atomic.Bool, slowThreshold time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") != "" {
				next.ServeHTTP(w, r)
				return
			}

			var body []byte
			if r.Body != nil {
				var err error
				body, err = io.ReadAll(r.Body)
				if err != nil {
					logger.Warn("unexpected body read error", "err", err)
					http.Error(w, "bad request body", http.StatusBadRequest)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			slow := slowThreshold > 0 && duration > slowThreshold
			if !enabled.Load() && !slow && rec.status < http.StatusInternalServerError {
				return
			}
			if len(body) > maxLoggedBody {
				body = body[:maxLoggedBody]
			}
			ctx := []interface{}{
				"method", r.Method,
				"uri", r.URL.String(),
				"status", rec.status,
				"durationMs", duration.Milliseconds(),
				"body", string(body),
			}
			if slow || rec.status >= http.StatusInternalServerError {
				logger.Warn("api request", ctx...)
			} else {
				logger.Info("api request", ctx...)
			}
		})
	}
}
