// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/vechain/smartdb/api"
	"github.com/vechain/smartdb/cmd/smartdb/httpserver"
	"github.com/vechain/smartdb/health"
	"github.com/vechain/smartdb/log"
	"github.com/vechain/smartdb/metrics"
	"github.com/vechain/smartdb/smartdb"
)

var (
	version   string
	gitCommit string
	gitTag    string
	logger    = log.WithContext("pkg", "main")
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func main() {
	commonFlags := []cli.Flag{
		dataDirFlag,
		configFlag,
		cacheFlag,
		verbosityFlag,
		jsonLogsFlag,
	}
	app := cli.App{
		Version:   fullVersion(),
		Name:      "SmartDB",
		Usage:     "Entity state store of a blockchain node",
		Copyright: "2026 VeChain Foundation <https://vechain.org/>",
		Flags: append(commonFlags,
			apiAddrFlag,
			apiCorsFlag,
			apiQueryLimitFlag,
			apiSlowQueriesThresholdFlag,
			enableAPILogsFlag,
			enableMetricsFlag,
			metricsAddrFlag,
			enableAdminFlag,
			adminAddrFlag,
		),
		Action: defaultAction,
		Commands: []cli.Command{
			{
				Name:   "status",
				Usage:  "Print the committed height and the registered models",
				Flags:  commonFlags,
				Action: statusAction,
			},
			{
				Name:   "block",
				Usage:  "Print a block header",
				Flags:  append(commonFlags, heightFlag),
				Action: blockAction,
			},
			{
				Name:   "history",
				Usage:  "Print the entity changes of a block range as JSON",
				Flags:  append(commonFlags, fromFlag, toFlag),
				Action: historyAction,
			},
			{
				Name:   "rollback",
				Usage:  "Revert the state to a block height",
				Flags:  append(commonFlags, toFlag, yesFlag),
				Action: rollbackAction,
			},
			{
				Name:   "verify",
				Usage:  "Check the stored blocks and their history",
				Flags:  commonFlags,
				Action: verifyAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withDB runs fn on the db opened from the command flags.
func withDB(ctx *cli.Context, fn func(context.Context, *smartdb.DB) error) error {
	initLogger(ctx)
	cfg, err := loadConfig(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}
	exitCtx, stop := handleExitSignal()
	defer stop()

	db, closeDB, err := openDB(exitCtx, cfg, makeDataDir(ctx), ctx.Int(cacheFlag.Name))
	if err != nil {
		return err
	}
	defer closeDB()
	return fn(exitCtx, db)
}

func defaultAction(ctx *cli.Context) error {
	logLevel := initLogger(ctx)
	cfg, err := loadConfig(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}
	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
	}

	exitCtx, stop := handleExitSignal()
	defer stop()

	db, closeDB, err := openDB(exitCtx, cfg, makeDataDir(ctx), ctx.Int(cacheFlag.Name))
	if err != nil {
		return err
	}
	defer closeDB()

	healthStatus := &health.Health{}
	healthStatus.Ready(true)
	if db.BlocksCount() > 0 {
		healthStatus.NewBlock(db.LastBlockHeight())
	}
	watchDone := healthStatus.Watch(exitCtx, db)
	defer func() {
		stop()
		<-watchDone
	}()

	apiLogs := &atomic.Bool{}
	apiLogs.Store(ctx.Bool(enableAPILogsFlag.Name))

	apiURL, closeAPI, err := httpserver.StartAPIServer(ctx.String(apiAddrFlag.Name), db, &sync.Mutex{}, api.Options{
		AllowedOrigins:       ctx.String(apiCorsFlag.Name),
		QueryLimit:           ctx.Uint64(apiQueryLimitFlag.Name),
		EnableMetrics:        ctx.Bool(enableMetricsFlag.Name),
		EnableReqLogger:      apiLogs,
		SlowQueriesThreshold: time.Duration(ctx.Uint64(apiSlowQueriesThresholdFlag.Name)) * time.Millisecond,
	})
	if err != nil {
		return err
	}
	defer func() { logger.Info("stopping API server..."); closeAPI() }()
	logger.Info("API server started", "url", apiURL)

	if ctx.Bool(enableMetricsFlag.Name) {
		url, closeMetrics, err := httpserver.StartMetricsServer(ctx.String(metricsAddrFlag.Name))
		if err != nil {
			return err
		}
		defer func() { logger.Info("stopping metrics server..."); closeMetrics() }()
		logger.Info("metrics server started", "url", url)
	}

	if ctx.Bool(enableAdminFlag.Name) {
		url, closeAdmin, err := httpserver.StartAdminServer(ctx.String(adminAddrFlag.Name), logLevel, apiLogs, healthStatus)
		if err != nil {
			return err
		}
		defer func() { logger.Info("stopping admin server..."); closeAdmin() }()
		logger.Info("admin server started", "url", url)
	}

	<-exitCtx.Done()
	return nil
}

func statusAction(ctx *cli.Context) error {
	return withDB(ctx, func(_ context.Context, db *smartdb.DB) error {
		last, err := db.LastBlock()
		if err != nil {
			return err
		}
		if last == nil {
			fmt.Println("no block committed")
		} else {
			fmt.Printf("last block:  %d %s\n", last.Height, last.ID)
		}
		fmt.Printf("blocks:      %d\n", db.BlocksCount())
		for _, s := range db.Registry().All() {
			var flags []string
			if s.Memory {
				flags = append(flags, "memory")
			}
			if s.Local {
				flags = append(flags, "local")
			}
			if s.ReadOnly {
				flags = append(flags, "readonly")
			}
			fmt.Printf("model:       %s (%s) %s\n", s.Name, s.Table, strings.Join(flags, ","))
		}
		return nil
	})
}

func blockAction(ctx *cli.Context) error {
	return withDB(ctx, func(_ context.Context, db *smartdb.DB) error {
		height := db.LastBlockHeight()
		if ctx.IsSet(heightFlag.Name) {
			height = ctx.Uint64(heightFlag.Name)
		}
		h, err := db.GetBlockByHeight(height)
		if err != nil {
			return err
		}
		if h == nil {
			return errors.Errorf("block %d not found", height)
		}
		fmt.Println(h)
		return nil
	})
}

func historyAction(ctx *cli.Context) error {
	return withDB(ctx, func(_ context.Context, db *smartdb.DB) error {
		to := db.LastBlockHeight()
		if ctx.IsSet(toFlag.Name) {
			to = ctx.Uint64(toFlag.Name)
		}
		from := to
		if ctx.IsSet(fromFlag.Name) {
			from = ctx.Uint64(fromFlag.Name)
		}
		if from > to {
			return errors.Errorf("invalid range [%d, %d]", from, to)
		}
		history, err := db.GetHistoryChanges(from, to)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	})
}

func rollbackAction(ctx *cli.Context) error {
	if !ctx.IsSet(toFlag.Name) {
		return errors.Errorf("missing -%s", toFlag.Name)
	}
	to := ctx.Uint64(toFlag.Name)
	return withDB(ctx, func(exitCtx context.Context, db *smartdb.DB) error {
		last := db.LastBlockHeight()
		if to >= last {
			fmt.Printf("nothing to roll back, last block is %d\n", last)
			return nil
		}
		if !ctx.Bool(yesFlag.Name) && !confirm(fmt.Sprintf("roll back blocks %d to %d?", to+1, last)) {
			return nil
		}
		if err := db.RollbackBlock(exitCtx, to); err != nil {
			return err
		}
		fmt.Printf("rolled back to block %d\n", db.LastBlockHeight())
		return nil
	})
}

func verifyAction(ctx *cli.Context) error {
	return withDB(ctx, func(exitCtx context.Context, db *smartdb.DB) error {
		res, err := verifyBlocks(exitCtx, db, true)
		if err != nil {
			return err
		}
		fmt.Printf("verified %d blocks [%d, %d], %d changes, %d without history\n",
			res.Blocks, res.First, res.Last, res.Changes, res.MissingHistory)
		fmt.Printf("history digest: %x\n", res.Digest)
		return nil
	})
}
