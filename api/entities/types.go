// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package entities

import "github.com/vechain/smartdb/smartdb"

// SortOrder orders query results by one field.
type SortOrder struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// QueryRequest selects persisted entities of a model. A list value in
// Where matches any of its items.
type QueryRequest struct {
	Where  map[string]interface{} `json:"where,omitempty"`
	Sort   []SortOrder            `json:"sort,omitempty"`
	Limit  uint64                 `json:"limit,omitempty"`
	Offset uint64                 `json:"offset,omitempty"`
}

// CountResponse is the number of matching entities.
type CountResponse struct {
	Count int `json:"count"`
}

// options caps the requested limit at max, when max is set.
func (q *QueryRequest) options(max uint64) smartdb.FindOptions {
	limit := q.Limit
	if max > 0 && (limit == 0 || limit > max) {
		limit = max
	}
	opts := smartdb.FindOptions{Limit: int(limit), Offset: int(q.Offset)}
	for _, s := range q.Sort {
		opts.Sort = append(opts.Sort, smartdb.Sort{Field: s.Field, Desc: s.Desc})
	}
	return opts
}
