// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vechain/smartdb/log"
)

type record struct {
	level slog.Level
	ctx   []interface{}
}

// mockLogger records info and warn lines.
type mockLogger struct {
	records []record
}

func (m *mockLogger) With(...interface{}) log.Logger { return m }
func (m *mockLogger) New(...interface{}) log.Logger { return m }
func (m *mockLogger) Log(slog.Level, string, ...interface{}) {}
func (m *mockLogger) Trace(string, ...interface{}) {}
func (m *mockLogger) Debug(string, ...interface{}) {}
func (m *mockLogger) Error(string, ...interface{}) {}
func (m *mockLogger) Crit(string, ...interface{}) {}
func (m *mockLogger) Enabled(context.Context, slog.Level) bool { return true }
func (m *mockLogger) Handler() slog.Handler { return nil }
func (m *mockLogger) Info(_ string, ctx ...interface{}) { m.add(log.LevelInfo, ctx) }
func (m *mockLogger) Warn(_ string, ctx ...interface{}) { m.add(log.LevelWarn, ctx) }
func (m *mockLogger) add(level slog.Level, ctx []interface{}) { m.records = append(m.records, record{level, ctx}) }

func TestRequestLogger(t *testing.T) {
	ok := func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("OK")) }
	slow := func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte("OK"))
	}
	failing := func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}

	tests := []struct {
		name      string
		handler   http.HandlerFunc
		enabled   bool
		threshold time.Duration
		logged    bool
		level     slog.Level
		status    int
	}{
		{"enabled fast", ok, true, 0, true, log.LevelInfo, http.StatusOK},
		{"disabled fast", ok, false, time.Second, false, 0, http.StatusOK},
		{"disabled slow", slow, false, time.Millisecond, true, log.LevelWarn, http.StatusOK},
		{"disabled no threshold", slow, false, 0, false, 0, http.StatusOK},
		{"disabled 5xx", failing, false, 0, true, log.LevelWarn, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &mockLogger{}
			var enabled atomic.Bool
			enabled.Store(tt.enabled)

			handler := RequestLogger(logger, &enabled, tt.threshold)(tt.handler)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/entities/User/query", strings.NewReader(`{"limit":1}`)))

			assert.Equal(t, tt.status, rr.Code)
			if !tt.logged {
				assert.Empty(t, logger.records)
				return
			}
			if assert.Len(t, logger.records, 1) {
				rec := logger.records[0]
				assert.Equal(t, tt.level, rec.level)
				assert.Contains(t, rec.ctx, "/entities/User/query")
				assert.Contains(t, rec.ctx, `{"limit":1}`)
				assert.Contains(t, rec.ctx, tt.status)
			}
		})
	}
}
