// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package status

import (
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/mux"

	"github.com/vechain/smartdb/api/utils"
	"github.com/vechain/smartdb/smartdb"
)

type Status struct {
	db   *smartdb.DB
	lock sync.Locker
}

// JSONModel describes a registered model.
type JSONModel struct {
	Name     string `json:"name"`
	Table    string `json:"table"`
	Memory   bool   `json:"memory,omitempty"`
	Local    bool   `json:"local,omitempty"`
	ReadOnly bool   `json:"readonly,omitempty"`
}

// JSONStatus summarizes the committed state.
type JSONStatus struct {
	LastBlock      uint64      `json:"lastBlock"`
	BlocksCount    uint64      `json:"blocksCount"`
	CachedFrom     uint64      `json:"cachedFrom,omitempty"`
	CachedTo       uint64      `json:"cachedTo,omitempty"`
	OpenBlock      *uint64     `json:"openBlock"`
	Models         []JSONModel `json:"models"`
	EntityCacheLen int         `json:"entityCacheLen"`
}

func New(db *smartdb.DB, lock sync.Locker) *Status {
	return &Status{db, lock}
}

func (s *Status) handleGetStatus(w http.ResponseWriter, _ *http.Request) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	st := &JSONStatus{
		LastBlock:   s.db.LastBlockHeight(),
		BlocksCount: s.db.BlocksCount(),
	}
	if from, to, ok := s.db.BlockCache().CachedHeightRange(); ok {
		st.CachedFrom, st.CachedTo = from, to
	}
	if cur := s.db.CurrentBlock(); cur != nil {
		st.OpenBlock = &cur.Height
	}
	for _, m := range s.db.Registry().All() {
		st.Models = append(st.Models, JSONModel{m.Name, m.Table, m.Memory, m.Local, m.ReadOnly})
	}
	sort.Slice(st.Models, func(i, j int) bool { return st.Models[i].Name < st.Models[j].Name })
	cache := s.db.EntityCache()
	for _, name := range cache.Models() {
		if uc, err := cache.Model(name); err == nil {
			st.EntityCacheLen += uc.Len()
		}
	}
	return utils.WriteJSON(w, st)
}

func (s *Status) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()
	sub.Path("").
		Methods(http.MethodGet).
		Name("GET /status").
		HandlerFunc(utils.WrapHandlerFunc(s.handleGetStatus))
}
