// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	cli "gopkg.in/urfave/cli.v1"

	"github.com/vechain/smartdb/log"
)

var (
	dataDirFlag = cli.StringFlag{
		Name:  "data-dir",
		Value: defaultDataDir(),
		Usage: "directory for the block and state databases",
	}
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "path to the YAML file declaring models and options",
	}
	cacheFlag = cli.IntFlag{
		Name:  "cache",
		Value: 128,
		Usage: "megabytes of ram allocated to the block db",
	}
	apiAddrFlag = cli.StringFlag{
		Name:  "api-addr",
		Value: "localhost:8679",
		Usage: "API service listening address",
	}
	apiCorsFlag = cli.StringFlag{
		Name:  "api-cors",
		Value: "",
		Usage: "comma separated list of domains from which to accept cross origin requests to API",
	}
	apiQueryLimitFlag = cli.Uint64Flag{
		Name:  "api-query-limit",
		Value: 1000,
		Usage: "limit the number of entities returned by /entities queries",
	}
	apiSlowQueriesThresholdFlag = cli.Uint64Flag{
		Name:  "api-slow-queries-threshold",
		Value: 0,
		Usage: "log requests slower than this many milliseconds (0 disables)",
	}
	enableAPILogsFlag = cli.BoolFlag{
		Name:  "enable-api-logs",
		Usage: "enables API requests logging",
	}
	verbosityFlag = cli.Uint64Flag{
		Name:  "verbosity",
		Value: log.LegacyLevelInfo,
		Usage: "log verbosity (0-5)",
	}
	jsonLogsFlag = cli.BoolFlag{
		Name:  "json-logs",
		Usage: "output logs in JSON format",
	}
	enableMetricsFlag = cli.BoolFlag{
		Name:  "enable-metrics",
		Usage: "enables metrics collection",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:  "metrics-addr",
		Value: "localhost:2112",
		Usage: "metrics service listening address",
	}
	enableAdminFlag = cli.BoolFlag{
		Name:  "enable-admin",
		Usage: "enables admin server",
	}
	adminAddrFlag = cli.StringFlag{
		Name:  "admin-addr",
		Value: "localhost:2113",
		Usage: "admin service listening address",
	}

	heightFlag = cli.Uint64Flag{
		Name:  "height",
		Usage: "block height",
	}
	fromFlag = cli.Uint64Flag{
		Name:  "from",
		Usage: "first block height of the range",
	}
	toFlag = cli.Uint64Flag{
		Name:  "to",
		Usage: "last block height of the range",
	}
	yesFlag = cli.BoolFlag{
		Name:  "yes",
		Usage: "skip the confirmation prompt",
	}
)
