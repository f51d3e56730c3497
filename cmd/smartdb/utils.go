// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/elastic/gosigar"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-tty"
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/vechain/smartdb/log"
	"github.com/vechain/smartdb/lvldb"
	"github.com/vechain/smartdb/smartdb"
	"github.com/vechain/smartdb/sqlstore"
)

func fatal(args ...interface{}) {
	var w io.Writer
	if runtime.GOOS == "windows" {
		// The SameFile check below doesn't work on Windows.
		w = os.Stdout
	} else {
		outf, _ := os.Stdout.Stat()
		errf, _ := os.Stderr.Stat()
		if outf != nil && errf != nil && os.SameFile(outf, errf) {
			w = os.Stderr
		} else {
			w = io.MultiWriter(os.Stdout, os.Stderr)
		}
	}
	fmt.Fprint(w, "Fatal: ")
	fmt.Fprintln(w, args...)
	os.Exit(1)
}

func initLogger(ctx *cli.Context) *slog.LevelVar {
	logLevel := new(slog.LevelVar)
	logLevel.Set(log.FromLegacyLevel(int(ctx.Uint64(verbosityFlag.Name))))

	var handler slog.Handler
	if ctx.Bool(jsonLogsFlag.Name) {
		handler = log.JSONHandlerWithLevel(os.Stderr, logLevel)
	} else {
		useColor := (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
		handler = log.NewTerminalHandlerWithLevel(os.Stderr, logLevel, useColor)
	}
	log.SetDefault(log.NewLogger(handler))
	return logLevel
}

func defaultDataDir() string {
	if home := homeDir(); home != "" {
		return filepath.Join(home, ".smartdb")
	}
	return ""
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

func makeDataDir(ctx *cli.Context) string {
	dataDir := ctx.String(dataDirFlag.Name)
	if dataDir == "" {
		fatal(fmt.Sprintf("unable to infer default data dir, use -%s to specify", dataDirFlag.Name))
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		fatal(fmt.Sprintf("create data dir [%v]: %v", dataDir, err))
	}
	return dataDir
}

// openDB opens the block db and the sql store under dataDir and
// initializes the state on top of them.
func openDB(ctx context.Context, cfg *Config, dataDir string, cacheMB int) (db *smartdb.DB, closeFunc func(), err error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, nil, err
	}

	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("failed to close", "err", err)
			}
		}
	}
	defer func() {
		if err != nil {
			closeAll()
		}
	}()

	blocksDir := filepath.Join(dataDir, "blocks")
	kv, err := lvldb.New(blocksDir, lvldb.Options{
		CacheSize:              normalizeCacheSize(cacheMB),
		OpenFilesCacheCapacity: 64,
		SyncWrite:              true,
	})
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "open block db [%v]", blocksDir)
	}
	closers = append(closers, kv.Close)

	statePath := filepath.Join(dataDir, "state.db")
	store, err := sqlstore.Open(ctx, statePath, reg)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "open state db [%v]", statePath)
	}
	closers = append(closers, store.Close)

	db, err = smartdb.Open(reg, smartdb.NewSQLPersistence(store), kv, cfg.Options)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, db.Close)

	if err := db.Init(ctx); err != nil {
		return nil, nil, err
	}
	return db, closeAll, nil
}

const minCacheSizeMB = 16

// normalizeCacheSize clamps the block db cache to [16MB, half of the
// physical memory].
func normalizeCacheSize(sizeMB int) int {
	if sizeMB < minCacheSizeMB {
		sizeMB = minCacheSizeMB
	}

	var mem gosigar.Mem
	if err := mem.Get(); err != nil {
		logger.Warn("failed to get total mem", "err", err)
		return sizeMB
	}
	total := int(mem.Total / 1024 / 1024)
	half := total / 2
	if half < minCacheSizeMB {
		half = minCacheSizeMB
	}
	if sizeMB > half {
		logger.Warn("cache size too large, reduced", "want", sizeMB, "total", total, "use", half)
		return half
	}
	return sizeMB
}

// confirm asks a yes/no question on the controlling terminal, falling back
// to stdin when there is none.
func confirm(prompt string) bool {
	var (
		line string
		err  error
	)
	if t, terr := tty.Open(); terr == nil {
		fmt.Fprintf(t.Output(), "%s [y/N] ", prompt)
		line, err = t.ReadString()
		t.Close()
	} else {
		fmt.Printf("%s [y/N] ", prompt)
		line, err = bufio.NewReader(os.Stdin).ReadString('\n')
	}
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// handleExitSignal returns a context canceled on the first interrupt.
func handleExitSignal() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	exitSignalCh := make(chan os.Signal, 1)
	signal.Notify(exitSignalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-exitSignalCh:
			logger.Info("exit signal received", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(exitSignalCh)
		cancel()
	}
}
