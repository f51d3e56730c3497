// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package subscriptions

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pborman/uuid"

	"github.com/vechain/smartdb/api/utils"
	"github.com/vechain/smartdb/log"
	"github.com/vechain/smartdb/metrics"
	"github.com/vechain/smartdb/smartdb"
)

const (
	eventBufferSize = 64
	pingPeriod      = 20 * time.Second
	writeWait       = 10 * time.Second
)

var (
	logger                = log.WithContext("pkg", "subscriptions")
	metricActiveWebsocket = metrics.LazyLoadGauge("api_active_websocket_count")
)

// Subscriptions streams db events over websocket. The event feed is safe
// for concurrent use, so no db lock is taken.
type Subscriptions struct {
	db       *smartdb.DB
	upgrader *websocket.Upgrader
	done     chan struct{}
	wg       sync.WaitGroup
}

func New(db *smartdb.DB, allowedOrigins []string) *Subscriptions {
	return &Subscriptions{
		db: db,
		upgrader: &websocket.Upgrader{
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if allowed == "*" || allowed == strings.ToLower(origin) {
						return true
					}
				}
				return false
			},
		},
		done: make(chan struct{}),
	}
}

func (s *Subscriptions) handleSubscribeEvents(w http.ResponseWriter, req *http.Request) error {
	// subscribe before the handshake completes so no event is missed
	ch := make(chan *smartdb.Event, eventBufferSize)
	sub := s.db.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	conn, err := s.upgrader.Upgrade(w, req, nil)
	// the upgrader has already responded on failure
	if err != nil {
		logger.Debug("upgrade failed", "err", err)
		return nil
	}
	s.wg.Add(1)
	defer s.wg.Done()
	defer conn.Close()

	id := uuid.New()
	metricActiveWebsocket().Add(1)
	defer metricActiveWebsocket().Add(-1)
	logger.Debug("subscription opened", "id", id, "remote", req.RemoteAddr)
	defer logger.Debug("subscription closed", "id", id)

	// drain the read side so control frames get processed
	peerGone := make(chan struct{})
	go func() {
		defer close(peerGone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			closeConn(conn, websocket.CloseGoingAway, "server shutdown")
			return nil
		case <-sub.Err():
			closeConn(conn, websocket.CloseGoingAway, "db closed")
			return nil
		case <-peerGone:
			return nil
		case ev := <-ch:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return nil
			}
			if err := conn.WriteJSON(convertEvent(ev)); err != nil {
				logger.Debug("write event failed", "id", id, "err", err)
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		}
	}
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// Close disconnects every subscriber and waits for the handlers to return.
func (s *Subscriptions) Close() {
	close(s.done)
	s.wg.Wait()
}

func (s *Subscriptions) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/events").
		Methods(http.MethodGet).
		Name("WS /subscriptions/events").
		HandlerFunc(utils.WrapHandlerFunc(s.handleSubscribeEvents))
}
