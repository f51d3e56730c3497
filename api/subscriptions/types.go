// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package subscriptions

import "github.com/vechain/smartdb/smartdb"

// EventMessage is pushed to subscribers for every db event.
type EventMessage struct {
	Type       string  `json:"type"`
	Height     uint64  `json:"height"`
	FromHeight *uint64 `json:"fromHeight,omitempty"`
}

func convertEvent(ev *smartdb.Event) *EventMessage {
	msg := &EventMessage{
		Type:   ev.Type.String(),
		Height: ev.Height,
	}
	if ev.Type == smartdb.EventRollback {
		from := ev.FromHeight
		msg.FromHeight = &from
	}
	return msg
}
