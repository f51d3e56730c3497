// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/smartdb/health"
)

func TestStartAdminServer(t *testing.T) {
	var level slog.LevelVar
	level.Set(slog.LevelWarn)

	url, closeFunc, err := StartAdminServer("127.0.0.1:0", &level, &atomic.Bool{}, &health.Health{})
	require.NoError(t, err)
	defer closeFunc()
	assert.True(t, strings.HasSuffix(url, "/admin"))

	resp, err := http.Get(url + "/loglevel")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var res struct {
		CurrentLevel string `json:"currentLevel"`
	}
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, "warn", res.CurrentLevel)
}

func TestStartListenError(t *testing.T) {
	_, _, err := StartMetricsServer("not-an-addr")
	assert.Error(t, err)
}
