// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package model

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"

	"github.com/pkg/errors"
)

// FieldType is the declared type of a model field.
type FieldType string

const (
	String FieldType = "String"
	Text   FieldType = "Text"
	// Number holds an int64. Fractional values are rejected.
	Number FieldType = "Number"
	BigInt FieldType = "BigInt"
	JSON   FieldType = "Json"
)

func (t FieldType) valid() bool {
	switch t {
	case String, Text, Number, BigInt, JSON:
		return true
	}
	return false
}

// normalize converts v to the canonical Go representation of the type:
// string for String/Text, int64 for Number, *big.Int for BigInt.
// JSON values are left untouched.
func (t FieldType) normalize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case String, Text:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		case fmt.Stringer:
			return s.String(), nil
		}
	case Number:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	case BigInt:
		if b, ok := toBigInt(v); ok {
			return b, nil
		}
	case JSON:
		return v, nil
	}
	return nil, errors.WithMessagef(ErrInvalidArgument, "value %v (%T) is not %s", v, v, t)
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case float32:
		return toInt64(float64(n))
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return toInt64(f)
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	case *big.Int:
		if n == nil || !n.IsInt64() {
			return 0, false
		}
		return n.Int64(), true
	}
	return 0, false
}

func toBigInt(v interface{}) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, false
		}
		return new(big.Int).Set(n), true
	case big.Int:
		return new(big.Int).Set(&n), true
	case json.Number:
		return new(big.Int).SetString(n.String(), 10)
	case string:
		return new(big.Int).SetString(n, 10)
	case uint64:
		return new(big.Int).SetUint64(n), true
	case uint:
		return new(big.Int).SetUint64(uint64(n)), true
	}
	if i, ok := toInt64(v); ok {
		return big.NewInt(i), true
	}
	return nil, false
}

// ValueEqual compares two field values, treating numerically equal
// *big.Int values as equal.
func ValueEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ab, ok := a.(*big.Int); ok {
		bb, ok := b.(*big.Int)
		return ok && ab.Cmp(bb) == 0
	}
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && bytes.Equal(ab, bb)
	}
	return reflect.DeepEqual(a, b)
}

// CloneValue returns a copy of v that shares no mutable state with it.
func CloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case *big.Int:
		if val == nil {
			return val
		}
		return new(big.Int).Set(val)
	case []byte:
		return append([]byte(nil), val...)
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, x := range val {
			m[k] = CloneValue(x)
		}
		return m
	case Entity:
		return val.Clone()
	case []interface{}:
		s := make([]interface{}, len(val))
		for i, x := range val {
			s[i] = CloneValue(x)
		}
		return s
	}
	return v
}

// formatKeyPart renders one key value into its cache key form. Numeric
// values of any Go type render identically.
func formatKeyPart(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return hex.EncodeToString(val)
	case *big.Int:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if i, ok := toInt64(val); ok {
			return strconv.FormatInt(i, 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case json.Number:
		return val.String()
	}
	if i, ok := toInt64(v); ok {
		return strconv.FormatInt(i, 10)
	}
	if b, ok := toBigInt(v); ok {
		return b.String()
	}
	return fmt.Sprint(v)
}
