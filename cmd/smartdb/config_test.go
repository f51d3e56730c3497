// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vechain/smartdb/model"
	"github.com/vechain/smartdb/smartdb"
)

const testConfig = `
options:
  maxBlockHistoryHold: 20
  checkModifier: true
  entityCache:
    models:
      Account: 100
models:
  - name: Account
    table: accounts
    fields:
      - name: address
        type: String
        primary_key: true
      - name: name
        type: String
        unique: uk_name
      - name: balance
        type: BigInt
      - name: nonce
        type: Number
        default: 0
  - name: Config
    memory: true
    fields:
      - name: key
        type: String
        primary_key: true
      - name: value
        type: Json
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smartdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Options.MaxBlockHistoryHold)
	assert.Equal(t, smartdb.DefaultMaxLocalHistoryHold, cfg.Options.MaxLocalHistoryHold)
	assert.True(t, cfg.Options.CheckModifier)
	assert.Equal(t, 100, cfg.Options.EntityCache.Models["Account"])

	reg, err := cfg.Registry()
	require.NoError(t, err)
	account, err := reg.Get("Account")
	require.NoError(t, err)
	assert.Equal(t, "accounts", account.Table)
	assert.True(t, account.IsValidUniqueKey(model.Entity{"name": "alice"}))

	config, err := reg.Get("Config")
	require.NoError(t, err)
	assert.True(t, config.Memory)
	assert.Equal(t, "Config", config.Table)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, smartdb.DefaultOptions(), cfg.Options)
	assert.Empty(t, cfg.Models)

	cfg, err = parseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, smartdb.DefaultOptions(), cfg.Options)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = parseConfig([]byte("options:\n  unknownOption: 1\n"))
	assert.Error(t, err)

	cfg, err := parseConfig([]byte("models:\n  - name: A\n    fields:\n      - name: x\n        type: Float\n"))
	require.NoError(t, err)
	_, err = cfg.Registry()
	assert.Error(t, err)
}
