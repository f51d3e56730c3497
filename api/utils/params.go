// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package utils

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseHeight parses a block height. Empty or "best" yields best.
func ParseHeight(s string, best uint64) (uint64, error) {
	if s == "" || s == "best" {
		return best, nil
	}
	h, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.New("invalid height")
	}
	return h, nil
}

// ParseUint parses an optional query value, returning def when empty.
func ParseUint(s string, def uint64) (uint64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// ParseEntityKey parses a path key. A JSON object names the fields of a
// composite or unique key, anything else is a simple primary key.
func ParseEntityKey(s string) (interface{}, error) {
	if !strings.HasPrefix(s, "{") {
		return s, nil
	}
	var key map[string]interface{}
	decoder := json.NewDecoder(bytes.NewReader([]byte(s)))
	decoder.UseNumber()
	if err := decoder.Decode(&key); err != nil {
		return nil, errors.WithMessage(err, "key")
	}
	return key, nil
}
