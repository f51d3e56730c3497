// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tracker

import (
	"context"

	"github.com/vechain/smartdb/model"
)

// Batch is the set of changes accepted at one version.
type Batch struct {
	Version uint64
	Changes []*model.EntityChanges
}

// HistoryLoader returns the batches persisted for versions in [from, to].
type HistoryLoader func(ctx context.Context, from, to uint64) (map[uint64][]*model.EntityChanges, error)

// History is the bounded, version ordered window of recent batches.
type History struct {
	max     int
	batches []Batch
}

// NewHistory creates a window retaining at most max versions.
func NewHistory(max int) *History {
	if max < 1 {
		max = 1
	}
	return &History{max: max}
}

// Add appends the batch of a new version and drops the oldest ones beyond capacity.
func (h *History) Add(version uint64, changes []*model.EntityChanges) {
	h.batches = append(h.batches, Batch{version, changes})
	if over := len(h.batches) - h.max; over > 0 {
		h.batches = append(h.batches[:0:0], h.batches[over:]...)
	}
}

// Len returns the number of retained versions.
func (h *History) Len() int { return len(h.batches) }

// MinVersion returns the oldest retained version.
func (h *History) MinVersion() (uint64, bool) {
	if len(h.batches) == 0 {
		return 0, false
	}
	return h.batches[0].Version, true
}

// MaxVersion returns the newest retained version.
func (h *History) MaxVersion() (uint64, bool) {
	if len(h.batches) == 0 {
		return 0, false
	}
	return h.batches[len(h.batches)-1].Version, true
}

// After returns the retained batches with version > v, oldest first.
func (h *History) After(v uint64) []Batch {
	for i, b := range h.batches {
		if b.Version > v {
			return append([]Batch(nil), h.batches[i:]...)
		}
	}
	return nil
}

// Truncate drops every batch with version > v.
func (h *History) Truncate(v uint64) {
	for i, b := range h.batches {
		if b.Version > v {
			h.batches = h.batches[:i]
			return
		}
	}
}

// Clear drops everything.
func (h *History) Clear() { h.batches = nil }
