// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package health

import (
	"context"
	"sync"
	"time"

	"github.com/vechain/smartdb/smartdb"
)

type BlockIngestion struct {
	LastBlock                   *uint64    `json:"lastBlock"`
	LastBlockIngestionTimestamp *time.Time `json:"lastBlockIngestionTimestamp"`
}

type Status struct {
	Healthy        bool            `json:"healthy"`
	BlockIngestion *BlockIngestion `json:"blockIngestion"`
	Ready          bool            `json:"ready"`
}

type Health struct {
	lock        sync.RWMutex
	lastBlockAt time.Time
	lastBlock   *uint64
	ready       bool
}

// NewBlock records a block committed or rolled back to.
func (h *Health) NewBlock(height uint64) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.lastBlockAt = time.Now()
	h.lastBlock = &height
}

// Ready records whether the db is open and initialized.
func (h *Health) Ready(ready bool) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.ready = ready
}

// Status reports the db healthy when it is ready and, if maxTimeBetweenBlocks
// is positive, a block arrived within that duration.
func (h *Health) Status(maxTimeBetweenBlocks time.Duration) *Status {
	h.lock.RLock()
	defer h.lock.RUnlock()

	var ingestion BlockIngestion
	if h.lastBlock != nil {
		height, at := *h.lastBlock, h.lastBlockAt
		ingestion.LastBlock = &height
		ingestion.LastBlockIngestionTimestamp = &at
	}

	healthy := h.ready
	if maxTimeBetweenBlocks > 0 {
		healthy = healthy && h.lastBlock != nil && time.Since(h.lastBlockAt) <= maxTimeBetweenBlocks
	}

	return &Status{
		Healthy:        healthy,
		BlockIngestion: &ingestion,
		Ready:          h.ready,
	}
}

// Watch follows the db events in the background until ctx is done or the
// db closes. The returned channel is closed when it stops.
func (h *Health) Watch(ctx context.Context, db *smartdb.DB) <-chan struct{} {
	ch := make(chan *smartdb.Event, 16)
	sub := db.SubscribeEvents(ch)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Err():
				h.Ready(false)
				return
			case ev := <-ch:
				switch ev.Type {
				case smartdb.EventReady:
					h.Ready(true)
				case smartdb.EventClose:
					h.Ready(false)
					return
				case smartdb.EventCommit, smartdb.EventRollback:
					h.NewBlock(ev.Height)
				}
			}
		}
	}()
	return done
}
