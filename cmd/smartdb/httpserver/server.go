// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package httpserver starts the API, admin and metrics listeners.
package httpserver

import (
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/vechain/smartdb/log"
)

var logger = log.WithContext("pkg", "httpserver")

// start serves handler on addr until the returned close func is called.
func start(kind, addr string, handler http.Handler) (net.Addr, func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "listen %s addr [%v]", kind, addr)
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: time.Second, ReadTimeout: 5 * time.Second}
	var g errgroup.Group
	g.Go(func() error {
		if err := srv.Serve(listener); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	return listener.Addr(), func() {
		srv.Close()
		if err := g.Wait(); err != nil {
			logger.Warn("server stopped with error", "kind", kind, "err", err)
		}
	}, nil
}
