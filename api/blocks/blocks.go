// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package blocks

import (
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/vechain/smartdb/api/utils"
	"github.com/vechain/smartdb/block"
	"github.com/vechain/smartdb/smartdb"
)

// maxRange bounds the headers returned by one range query.
const maxRange = 256

type Blocks struct {
	db   *smartdb.DB
	lock sync.Locker
}

// New creates the blocks api. lock guards every access to db.
func New(db *smartdb.DB, lock sync.Locker) *Blocks {
	return &Blocks{
		db,
		lock,
	}
}

func (b *Blocks) convert(h *block.Header) *JSONBlock {
	if h == nil {
		return nil
	}
	return &JSONBlock{Header: h, IsCached: b.db.BlockCache().IsCached(h.Height)}
}

func (b *Blocks) handleGetBlock(w http.ResponseWriter, req *http.Request) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	height, err := utils.ParseHeight(mux.Vars(req)["revision"], b.db.LastBlockHeight())
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "revision"))
	}
	h, err := b.db.GetBlockByHeight(height)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, b.convert(h))
}

func (b *Blocks) handleGetBlockByID(w http.ResponseWriter, req *http.Request) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	h, err := b.db.GetBlockByID(mux.Vars(req)["id"])
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, b.convert(h))
}

func (b *Blocks) handleGetBlocks(w http.ResponseWriter, req *http.Request) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	query := req.URL.Query()
	last := b.db.LastBlockHeight()
	to, err := utils.ParseUint(query.Get("to"), last)
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "to"))
	}
	from, err := utils.ParseUint(query.Get("from"), to)
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "from"))
	}
	if from > to {
		return utils.BadRequest(errors.New("from: greater than to"))
	}
	if to-from >= maxRange {
		return utils.BadRequest(errors.Errorf("range: exceeds %d blocks", maxRange))
	}
	headers, err := b.db.GetBlocksByHeightRange(from, to)
	if err != nil {
		return err
	}
	out := make([]*JSONBlock, 0, len(headers))
	for _, h := range headers {
		out = append(out, b.convert(h))
	}
	return utils.WriteJSON(w, out)
}

func (b *Blocks) handleGetChanges(w http.ResponseWriter, req *http.Request) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	height, err := utils.ParseHeight(mux.Vars(req)["revision"], b.db.LastBlockHeight())
	if err != nil {
		return utils.BadRequest(errors.WithMessage(err, "revision"))
	}
	history, err := b.db.GetHistoryChanges(height, height)
	if err != nil {
		return err
	}
	changes, ok := history[height]
	if !ok {
		return utils.NotFound(errors.Errorf("no history at height %d", height))
	}
	return utils.WriteJSON(w, convertChanges(height, changes))
}

func (b *Blocks) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		Name("GET /blocks").
		HandlerFunc(utils.WrapHandlerFunc(b.handleGetBlocks))
	sub.Path("/id/{id}").
		Methods(http.MethodGet).
		Name("GET /blocks/id/{id}").
		HandlerFunc(utils.WrapHandlerFunc(b.handleGetBlockByID))
	sub.Path("/{revision}").
		Methods(http.MethodGet).
		Name("GET /blocks/{revision}").
		HandlerFunc(utils.WrapHandlerFunc(b.handleGetBlock))
	sub.Path("/{revision}/changes").
		Methods(http.MethodGet).
		Name("GET /blocks/{revision}/changes").
		HandlerFunc(utils.WrapHandlerFunc(b.handleGetChanges))
}
