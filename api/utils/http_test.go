// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/smartdb/model"
)

func TestWrapHandlerFunc(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"ok", nil, http.StatusOK},
		{"http error", BadRequest(errors.New("bad")), http.StatusBadRequest},
		{"not found", NotFound(errors.New("none")), http.StatusNotFound},
		{"unknown model", errors.WithMessage(model.ErrUnknownModel, "X"), http.StatusBadRequest},
		{"invalid key", &model.InvalidEntityKeyError{Model: "X"}, http.StatusBadRequest},
		{"history", errors.WithMessage(model.ErrHistoryUnavailable, "3"), http.StatusNotFound},
		{"internal", errors.New("disk"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WrapHandlerFunc(func(http.ResponseWriter, *http.Request) error { return tc.err })(rr, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestParseJSON(t *testing.T) {
	var v struct {
		N interface{} `json:"n"`
	}
	require.NoError(t, ParseJSON(strings.NewReader(`{"n": 123456789012345678901234567890}`), &v))
	assert.Equal(t, json.Number("123456789012345678901234567890"), v.N)
	assert.Error(t, ParseJSON(strings.NewReader(`{"m": 1}`), &v))
}

func TestParseParams(t *testing.T) {
	h, err := ParseHeight("best", 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), h)
	h, err = ParseHeight("3", 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), h)
	_, err = ParseHeight("-1", 9)
	assert.Error(t, err)

	n, err := ParseUint("", 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)

	key, err := ParseEntityKey("42")
	require.NoError(t, err)
	assert.Equal(t, "42", key)
	key, err = ParseEntityKey(`{"a":"x","b":2}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": "x", "b": json.Number("2")}, key)
	_, err = ParseEntityKey("{bad")
	assert.Error(t, err)
}
