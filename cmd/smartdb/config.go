// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vechain/smartdb/model"
	"github.com/vechain/smartdb/smartdb"
)

// Config declares the models and the state options of a data dir.
type Config struct {
	Options smartdb.Options `yaml:"options"`
	Models  []*model.Schema `yaml:"models"`
}

// loadConfig reads the YAML config at path. An empty path gives the
// default options and no models.
func loadConfig(path string) (*Config, error) {
	if path == "" {
		return &Config{Options: smartdb.DefaultOptions()}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*Config, error) {
	cfg := Config{Options: smartdb.DefaultOptions()}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode config")
	}
	return &cfg, nil
}

// Registry initializes every declared model.
func (c *Config) Registry() (*model.Registry, error) {
	reg, err := model.NewRegistry(c.Models...)
	if err != nil {
		return nil, errors.WithMessage(err, "register models")
	}
	return reg, nil
}
