// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package entities

import (
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/vechain/smartdb/api/utils"
	"github.com/vechain/smartdb/model"
	"github.com/vechain/smartdb/smartdb"
)

// Entities serves reads of committed entity state.
type Entities struct {
	db         *smartdb.DB
	lock       sync.Locker
	queryLimit uint64
}

// New creates the entities api. lock guards every access to db.
func New(db *smartdb.DB, lock sync.Locker, queryLimit uint64) *Entities {
	return &Entities{
		db,
		lock,
		queryLimit,
	}
}

func (e *Entities) handleGetEntity(w http.ResponseWriter, req *http.Request) error {
	vars := mux.Vars(req)
	key, err := utils.ParseEntityKey(vars["key"])
	if err != nil {
		return utils.BadRequest(err)
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	entity, err := e.db.Load(req.Context(), vars["model"], key)
	if err != nil {
		return err
	}
	if entity == nil {
		return utils.NotFound(errors.Errorf("%s not found", vars["model"]))
	}
	return utils.WriteJSON(w, entity)
}

func (e *Entities) parseQuery(req *http.Request) (*QueryRequest, error) {
	var query QueryRequest
	if req.ContentLength == 0 {
		return &query, nil
	}
	if err := utils.ParseJSON(req.Body, &query); err != nil {
		return nil, utils.BadRequest(errors.WithMessage(err, "body"))
	}
	return &query, nil
}

func (e *Entities) handleQuery(w http.ResponseWriter, req *http.Request) error {
	query, err := e.parseQuery(req)
	if err != nil {
		return err
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	rows, err := e.db.Find(req.Context(), mux.Vars(req)["model"], query.Where, query.options(e.queryLimit))
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []model.Entity{}
	}
	return utils.WriteJSON(w, rows)
}

func (e *Entities) handleCount(w http.ResponseWriter, req *http.Request) error {
	query, err := e.parseQuery(req)
	if err != nil {
		return err
	}

	e.lock.Lock()
	defer e.lock.Unlock()

	n, err := e.db.Count(req.Context(), mux.Vars(req)["model"], query.Where)
	if err != nil {
		return err
	}
	return utils.WriteJSON(w, &CountResponse{n})
}

func (e *Entities) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("/{model}/query").
		Methods(http.MethodPost).
		Name("POST /entities/{model}/query").
		HandlerFunc(utils.WrapHandlerFunc(e.handleQuery))
	sub.Path("/{model}/count").
		Methods(http.MethodPost).
		Name("POST /entities/{model}/count").
		HandlerFunc(utils.WrapHandlerFunc(e.handleCount))
	sub.Path("/{model}/{key}").
		Methods(http.MethodGet).
		Name("GET /entities/{model}/{key}").
		HandlerFunc(utils.WrapHandlerFunc(e.handleGetEntity))
}
