// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/cheggaaa/pb.v1"

	"github.com/vechain/smartdb/block"
	"github.com/vechain/smartdb/smartdb"
)

const verifyStep = uint64(256)

type verifyResult struct {
	First, Last    uint64
	Blocks         uint64
	MissingHistory uint64
	Changes        int
	// Digest is the blake2b-256 of the json encoded history, height by height.
	Digest []byte
}

// jsonDiff renders a unified diff of the json forms of a and b.
func jsonDiff(a, b any) string {
	ja, _ := json.MarshalIndent(a, "", "  ")
	jb, _ := json.MarshalIndent(b, "", "  ")
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(ja) + "\n"),
		B:        difflib.SplitLines(string(jb) + "\n"),
		FromFile: "by height",
		ToFile:   "by id",
		Context:  1,
	})
	return diff
}

// checkIDIndex verifies the id index resolves to the header stored at its
// height.
func checkIDIndex(db *smartdb.DB, h *block.Header) error {
	if h.ID == "" {
		return nil
	}
	byID, err := db.GetBlockByID(h.ID)
	if err != nil {
		return err
	}
	if byID == nil {
		return errors.Errorf("block %d: id %s not indexed", h.Height, h.ID)
	}
	if *byID != *h {
		return errors.Errorf("block %d: id index mismatch\n%s", h.Height, jsonDiff(h, byID))
	}
	return nil
}

// verifyBlocks walks every stored block and checks heights are continuous,
// headers link to their parents and history names registered models.
func verifyBlocks(ctx context.Context, db *smartdb.DB, progress bool) (*verifyResult, error) {
	count := db.BlocksCount()
	if count == 0 {
		return &verifyResult{}, nil
	}
	last := db.LastBlockHeight()
	res := &verifyResult{First: last + 1 - count, Last: last}
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}

	var bar *pb.ProgressBar
	if progress {
		fmt.Println(">> Verifying block db <<")
		bar = pb.New64(int64(count)).
			Set64(0).
			SetMaxWidth(90).
			Start()
		defer func() { bar.NotPrint = true }()
	}

	var prevID string
	for from := res.First; from <= last; from += verifyStep {
		to := from + verifyStep - 1
		if to > last {
			to = last
		}
		headers, err := db.GetBlocksByHeightRange(from, to)
		if err != nil {
			return nil, err
		}
		history, err := db.GetHistoryChanges(from, to)
		if err != nil {
			return nil, err
		}
		if uint64(len(headers)) != to-from+1 {
			return nil, errors.Errorf("blocks [%d, %d]: got %d headers", from, to, len(headers))
		}
		for i, h := range headers {
			if want := from + uint64(i); h.Height != want {
				return nil, errors.Errorf("block %d: unexpected height %d", want, h.Height)
			}
			if prevID != "" && h.PrevBlockID != "" && h.PrevBlockID != prevID {
				return nil, errors.Errorf("block %d: parent %s, previous block is %s", h.Height, h.PrevBlockID, prevID)
			}
			prevID = h.ID
			if err := checkIDIndex(db, h); err != nil {
				return nil, err
			}

			changes, ok := history[h.Height]
			if !ok {
				res.MissingHistory++
			}
			enc, err := json.Marshal(changes)
			if err != nil {
				return nil, errors.Wrapf(err, "block %d: encode history", h.Height)
			}
			hasher.Write(enc)
			for _, c := range changes {
				if !db.Registry().Has(c.Model) {
					return nil, errors.Errorf("block %d: change of unknown model %s", h.Height, c.Model)
				}
			}
			res.Changes += len(changes)
			res.Blocks++
			if bar != nil {
				bar.Add64(1)
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	if bar != nil {
		bar.Finish()
	}
	res.Digest = hasher.Sum(nil)
	return res, nil
}
