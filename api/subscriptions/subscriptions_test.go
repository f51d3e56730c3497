// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package subscriptions_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/smartdb/api/subscriptions"
	"github.com/vechain/smartdb/block"
	"github.com/vechain/smartdb/lvldb"
	"github.com/vechain/smartdb/model"
	"github.com/vechain/smartdb/smartdb"
	"github.com/vechain/smartdb/sqlstore"
)

func newDB(t *testing.T) *smartdb.DB {
	ctx := context.Background()
	reg, err := model.NewRegistry()
	require.NoError(t, err)
	store, err := sqlstore.OpenMem(ctx, reg)
	require.NoError(t, err)
	kv, err := lvldb.NewMem()
	require.NoError(t, err)
	db, err := smartdb.Open(reg, smartdb.NewSQLPersistence(store), kv, smartdb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
		kv.Close()
		store.Close()
	})
	require.NoError(t, db.Init(ctx))
	return db
}

func newServer(t *testing.T, db *smartdb.DB) (*httptest.Server, *subscriptions.Subscriptions) {
	router := mux.NewRouter()
	subs := subscriptions.New(db, []string{"http://example.com"})
	subs.Mount(router, "/subscriptions")
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, subs
}

func dial(t *testing.T, ts *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/subscriptions/events"
	return websocket.DefaultDialer.Dial(url, header)
}

func commit(t *testing.T, db *smartdb.DB, height uint64) {
	require.NoError(t, db.BeginBlock(&block.Header{Height: height}))
	_, err := db.CommitBlock(context.Background())
	require.NoError(t, err)
}

func readEvent(t *testing.T, conn *websocket.Conn) *subscriptions.EventMessage {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg subscriptions.EventMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

func TestSubscribeEvents(t *testing.T) {
	db := newDB(t)
	ts, subs := newServer(t, db)
	defer subs.Close()

	conn, _, err := dial(t, ts, nil)
	require.NoError(t, err)
	defer conn.Close()

	commit(t, db, 1)
	commit(t, db, 2)

	msg := readEvent(t, conn)
	assert.Equal(t, "commit", msg.Type)
	assert.Equal(t, uint64(1), msg.Height)
	assert.Nil(t, msg.FromHeight)

	msg = readEvent(t, conn)
	assert.Equal(t, uint64(2), msg.Height)

	require.NoError(t, db.RollbackBlock(context.Background(), 1))
	msg = readEvent(t, conn)
	assert.Equal(t, "rollback", msg.Type)
	assert.Equal(t, uint64(1), msg.Height)
	require.NotNil(t, msg.FromHeight)
	assert.Equal(t, uint64(2), *msg.FromHeight)
}

func TestSubscriptionsClose(t *testing.T) {
	db := newDB(t)
	ts, subs := newServer(t, db)

	conn, _, err := dial(t, ts, nil)
	require.NoError(t, err)
	defer conn.Close()

	subs.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), err.Error())
}

func TestSubscribeOrigin(t *testing.T) {
	db := newDB(t)
	ts, subs := newServer(t, db)
	defer subs.Close()

	conn, _, err := dial(t, ts, http.Header{"Origin": {"http://Example.com"}})
	require.NoError(t, err)
	conn.Close()

	_, resp, err := dial(t, ts, http.Header{"Origin": {"http://evil.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
