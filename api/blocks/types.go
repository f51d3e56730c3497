// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package blocks

import (
	"github.com/vechain/smartdb/block"
	"github.com/vechain/smartdb/model"
)

// JSONBlock is a committed block header.
type JSONBlock struct {
	*block.Header
	IsCached bool `json:"isCached"`
}

// JSONPropertyChange is one field's before and after value.
type JSONPropertyChange struct {
	Name     string      `json:"name"`
	Original interface{} `json:"original"`
	Current  interface{} `json:"current"`
}

// JSONChange is the change record of one entity at a height.
type JSONChange struct {
	Type       string               `json:"type"`
	Model      string               `json:"model"`
	PrimaryKey model.Entity         `json:"primaryKey"`
	Properties []JSONPropertyChange `json:"properties"`
}

// JSONBlockChanges is the history kept for a height.
type JSONBlockChanges struct {
	Height  uint64       `json:"height"`
	Changes []JSONChange `json:"changes"`
}

func convertChanges(height uint64, changes []*model.EntityChanges) *JSONBlockChanges {
	out := &JSONBlockChanges{Height: height, Changes: make([]JSONChange, 0, len(changes))}
	for _, c := range changes {
		jc := JSONChange{
			Type:       c.Type.String(),
			Model:      c.Model,
			PrimaryKey: c.PrimaryKey,
			Properties: make([]JSONPropertyChange, 0, len(c.PropertyChanges)),
		}
		for _, pc := range c.PropertyChanges {
			jc.Properties = append(jc.Properties, JSONPropertyChange(pc))
		}
		out.Changes = append(out.Changes, jc)
	}
	return out
}
