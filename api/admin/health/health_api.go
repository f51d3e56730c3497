// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package health

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/vechain/smartdb/api/utils"
	"github.com/vechain/smartdb/health"
)

type API struct {
	healthStatus *health.Health
}

func NewAPI(healthStatus *health.Health) *API {
	return &API{
		healthStatus: healthStatus,
	}
}

func (h *API) handleGetHealth(w http.ResponseWriter, r *http.Request) error {
	var maxTimeBetweenBlocks time.Duration
	if q := r.URL.Query().Get("maxTimeBetweenBlocks"); q != "" {
		parsed, err := time.ParseDuration(q)
		if err != nil {
			return utils.BadRequest(errors.WithMessage(err, "maxTimeBetweenBlocks"))
		}
		maxTimeBetweenBlocks = parsed
	}

	status := h.healthStatus.Status(maxTimeBetweenBlocks)
	if !status.Healthy {
		w.Header().Set("Content-Type", utils.JSONContentType)
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	return utils.WriteJSON(w, status)
}

func (h *API) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		Name("health").
		HandlerFunc(utils.WrapHandlerFunc(h.handleGetHealth))
}
