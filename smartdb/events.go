// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package smartdb

import (
	"github.com/ethereum/go-ethereum/event"
)

// EventType tells what happened to the DB.
type EventType int

const (
	EventReady EventType = iota + 1
	EventClose
	EventCommit
	EventRollback
)

func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventClose:
		return "close"
	case EventCommit:
		return "commit"
	case EventRollback:
		return "rollback"
	}
	return "unknown"
}

// Event is sent to subscribers. For commits Height is the committed
// height, for rollbacks the DB went from FromHeight down to Height.
type Event struct {
	Type       EventType
	Height     uint64
	FromHeight uint64
}

const eventQueueSize = 128

// SubscribeEvents delivers DB events to ch until the subscription is
// cancelled or the DB is closed.
func (db *DB) SubscribeEvents(ch chan *Event) event.Subscription {
	return db.scope.Track(db.feed.Subscribe(ch))
}

func (db *DB) emit(ev *Event) {
	if db.closed {
		return
	}
	select {
	case db.events <- ev:
	default:
		logger.Warn("event queue full, dropped", "event", ev.Type, "height", ev.Height)
	}
}

func (db *DB) eventLoop() {
	defer close(db.eventsDone)
	for ev := range db.events {
		db.feed.Send(ev)
	}
}
