// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package block

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// Header is the block header the state is synchronized with.
type Header struct {
	Height        uint64 `json:"height" yaml:"height"`
	ID            string `json:"id,omitempty" yaml:"id,omitempty"`
	Timestamp     uint64 `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	PayloadLength uint64 `json:"payloadLength,omitempty" yaml:"payloadLength,omitempty"`
	PayloadHash   string `json:"payloadHash,omitempty" yaml:"payloadHash,omitempty"`
	PrevBlockID   string `json:"prevBlockId,omitempty" yaml:"prevBlockId,omitempty"`
	PointID       string `json:"pointId,omitempty" yaml:"pointId,omitempty"`
	PointHeight   uint64 `json:"pointHeight,omitempty" yaml:"pointHeight,omitempty"`
	Delegate      string `json:"delegate,omitempty" yaml:"delegate,omitempty"`
	Signature     string `json:"signature,omitempty" yaml:"signature,omitempty"`
	Count         uint64 `json:"count,omitempty" yaml:"count,omitempty"`
}

// Copy returns a copy of the header.
func (h *Header) Copy() *Header {
	c := *h
	return &c
}

// Encode encodes the header into RLP.
func (h *Header) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(h)
}

// Decode decodes an RLP encoded header.
func Decode(data []byte) (*Header, error) {
	var h Header
	if err := rlp.DecodeBytes(data, &h); err != nil {
		return nil, errors.Wrap(err, "decode block header")
	}
	return &h, nil
}

func (h *Header) String() string {
	return fmt.Sprintf(`Header(%v):
	Height:         %v
	Timestamp:      %v
	PrevBlockID:    %v
	PayloadHash:    %v
	Delegate:       %v
	Count:          %v`, h.ID, h.Height, h.Timestamp, h.PrevBlockID, h.PayloadHash, h.Delegate, h.Count)
}
