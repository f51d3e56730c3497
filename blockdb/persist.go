// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package blockdb

import (
	"bytes"
	"encoding/binary"
	"encoding/json"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/golang/snappy"

	"github.com/vechain/smartdb/block"
	"github.com/vechain/smartdb/kv"
	"github.com/vechain/smartdb/model"
)

const (
	headerStoreName  = "h" // height => rlp(header)
	idStoreName      = "i" // block id => height
	historyStoreName = "c" // height => snappy(json(changes))
	metaStoreName    = "m"
)

var (
	lastHeightKey  = []byte("last")
	firstHeightKey = []byte("first")
)

// meta holds the persisted height range.
type meta struct {
	First uint64
	Last  uint64
}

func heightKey(h uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], h)
	return k[:]
}

func saveRLP(w kv.Putter, key []byte, val interface{}) error {
	data, err := rlp.EncodeToBytes(val)
	if err != nil {
		return err
	}
	return w.Put(key, data)
}

func loadRLP(r kv.Getter, key []byte, val interface{}) error {
	data, err := r.Get(key)
	if err != nil {
		return err
	}
	return rlp.DecodeBytes(data, val)
}

func saveHeader(w kv.Putter, h *block.Header) error {
	return saveRLP(w, heightKey(h.Height), h)
}

func loadHeader(r kv.Getter, height uint64) (*block.Header, error) {
	var h block.Header
	if err := loadRLP(r, heightKey(height), &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func saveHeightOfID(w kv.Putter, id string, height uint64) error {
	return w.Put([]byte(id), heightKey(height))
}

func loadHeightOfID(r kv.Getter, id string) (uint64, error) {
	data, err := r.Get([]byte(id))
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

// encodeChanges renders changes as a JSON array and compresses it.
func encodeChanges(changes []*model.EntityChanges) ([]byte, error) {
	if changes == nil {
		changes = []*model.EntityChanges{}
	}
	data, err := json.Marshal(changes)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, data), nil
}

// decodeChanges is the inverse of encodeChanges. Numbers are kept as
// json.Number so they can be normalized against the model schema.
func decodeChanges(data []byte) ([]*model.EntityChanges, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var changes []*model.EntityChanges
	if err := dec.Decode(&changes); err != nil {
		return nil, err
	}
	return changes, nil
}
