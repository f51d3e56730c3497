// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sqlstore

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/pkg/errors"

	"github.com/vechain/smartdb/model"
)

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func columnType(f *model.Field) string {
	switch f.Type {
	case model.String:
		if f.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", f.Length)
		}
		return "TEXT"
	case model.Number:
		return "INTEGER"
	default:
		// BigInt is kept as decimal text, Json as encoded text
		return "TEXT"
	}
}

// tableDDL returns the statements creating the table and its indexes.
func tableDDL(s *model.Schema) []string {
	var cols []string
	for i := range s.Fields {
		f := &s.Fields[i]
		col := quote(f.Name) + " " + columnType(f)
		if f.NotNull || f.PrimaryKey || f.CompositeKey {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	cols = append(cols, quote(model.VersionProperty)+" INTEGER NOT NULL DEFAULT 0")

	pk := make([]string, len(s.PrimaryKey()))
	for i, name := range s.PrimaryKey() {
		pk[i] = quote(name)
	}
	cols = append(cols, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quote(s.Table), strings.Join(cols, ",\n\t")),
	}
	for _, idx := range append(s.UniqueIndexes(), s.Indexes()...) {
		fields := make([]string, len(idx.Fields))
		for i, name := range idx.Fields {
			fields[i] = quote(name)
		}
		kind := "INDEX"
		if idx.Unique {
			kind = "UNIQUE INDEX"
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
			kind, quote(s.Table+"_"+idx.Name), quote(s.Table), strings.Join(fields, ", ")))
	}
	return stmts
}

// columns returns every column of the table, version last.
func columns(s *model.Schema) []string {
	cols := make([]string, 0, len(s.Fields)+1)
	for _, f := range s.Fields {
		cols = append(cols, f.Name)
	}
	return append(cols, model.VersionProperty)
}

// encodeValue converts a canonical field value into a sql parameter.
func encodeValue(s *model.Schema, name string, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	v, err := s.NormalizeValue(name, v)
	if err != nil {
		return nil, err
	}
	if name == model.VersionProperty {
		return int64(v.(uint64)), nil
	}
	f, _ := s.Field(name)
	switch f.Type {
	case model.BigInt:
		return v.(*big.Int).String(), nil
	case model.JSON:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "encode json field %s", name)
		}
		return string(data), nil
	}
	return v, nil
}

// decodeValue converts a scanned column into the canonical field value.
func decodeValue(s *model.Schema, name string, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if name != model.VersionProperty {
		if f, ok := s.Field(name); ok && f.Type == model.JSON {
			str, ok := v.(string)
			if !ok {
				return v, nil
			}
			var out interface{}
			if err := json.Unmarshal([]byte(str), &out); err != nil {
				return nil, errors.Wrapf(err, "decode json field %s", name)
			}
			return out, nil
		}
	}
	return s.NormalizeValue(name, v)
}
