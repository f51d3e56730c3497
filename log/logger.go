// Copyright (c) 2026 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package log

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

const (
	LevelTrace slog.Level = -8
	LevelDebug            = slog.LevelDebug
	LevelInfo             = slog.LevelInfo
	LevelWarn             = slog.LevelWarn
	LevelError            = slog.LevelError
	LevelCrit  slog.Level = 12

	levelMaxVerbosity slog.Level = LevelTrace
)

// legacy verbosity levels, as accepted by the --verbosity flag.
const (
	LegacyLevelCrit = iota
	LegacyLevelError
	LegacyLevelWarn
	LegacyLevelInfo
	LegacyLevelDebug
	LegacyLevelTrace
)

// FromLegacyLevel converts a verbosity number (0-5) to a slog level.
func FromLegacyLevel(lvl int) slog.Level {
	switch lvl {
	case LegacyLevelCrit:
		return LevelCrit
	case LegacyLevelError:
		return LevelError
	case LegacyLevelWarn:
		return LevelWarn
	case LegacyLevelInfo:
		return LevelInfo
	case LegacyLevelDebug:
		return LevelDebug
	case LegacyLevelTrace:
		return LevelTrace
	}
	if lvl > LegacyLevelTrace {
		return LevelTrace
	}
	return LevelCrit
}

// LevelString returns a 5-character string containing the name of a level.
func LevelString(l slog.Level) string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelCrit:
		return "crit"
	default:
		return "unknown"
	}
}

// LevelAlignedString returns a 5-character upper-case name of a level.
func LevelAlignedString(l slog.Level) string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO "
	case LevelWarn:
		return "WARN "
	case LevelError:
		return "ERROR"
	case LevelCrit:
		return "CRIT "
	default:
		return "?????"
	}
}

// Logger writes key/value pairs to a Handler.
type Logger interface {
	// With returns a new Logger that has this logger's attributes plus the given attributes.
	With(ctx ...interface{}) Logger
	// New is an alias of With.
	New(ctx ...interface{}) Logger

	Log(level slog.Level, msg string, ctx ...interface{})
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})

	Enabled(ctx context.Context, level slog.Level) bool
	Handler() slog.Handler
}

type logger struct {
	inner *slog.Logger
}

// NewLogger returns a logger with the specified handler set.
func NewLogger(h slog.Handler) Logger {
	return &logger{slog.New(h)}
}

func (l *logger) Handler() slog.Handler {
	return l.inner.Handler()
}

func (l *logger) write(level slog.Level, msg string, attrs ...any) {
	if !l.inner.Enabled(context.Background(), level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.Add(attrs...)
	_ = l.inner.Handler().Handle(context.Background(), r)
}

func (l *logger) Log(level slog.Level, msg string, attrs ...any) { l.write(level, msg, attrs...) }

func (l *logger) With(ctx ...interface{}) Logger {
	return &logger{l.inner.With(ctx...)}
}

func (l *logger) New(ctx ...interface{}) Logger { return l.With(ctx...) }

func (l *logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.inner.Enabled(ctx, level)
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LevelTrace, msg, ctx...) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LevelDebug, msg, ctx...) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LevelInfo, msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...any)          { l.write(LevelWarn, msg, ctx...) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LevelError, msg, ctx...) }

func (l *logger) Crit(msg string, ctx ...interface{}) {
	l.write(LevelCrit, msg, ctx...)
	os.Exit(1)
}

var root atomic.Value

func init() {
	root.Store(NewLogger(DiscardHandler()))
}

// SetDefault sets the default global logger.
func SetDefault(l Logger) {
	root.Store(l)
}

// Root returns the root logger.
func Root() Logger {
	return root.Load().(Logger)
}

// WithContext returns a logger carrying the given context which always writes
// through the current root logger, so it can be declared as a package variable
// before the root is configured.
func WithContext(ctx ...interface{}) Logger {
	return &contextLogger{ctx: ctx}
}

type contextLogger struct {
	ctx    []interface{}
	cached atomic.Pointer[boundLogger]
}

type boundLogger struct {
	root  Logger
	inner Logger
}

func (c *contextLogger) get() Logger {
	r := Root()
	if b := c.cached.Load(); b != nil && b.root == r {
		return b.inner
	}
	inner := r.With(c.ctx...)
	c.cached.Store(&boundLogger{r, inner})
	return inner
}

func (c *contextLogger) With(ctx ...interface{}) Logger {
	return WithContext(append(append([]interface{}{}, c.ctx...), ctx...)...)
}

func (c *contextLogger) New(ctx ...interface{}) Logger { return c.With(ctx...) }

func (c *contextLogger) Log(level slog.Level, msg string, ctx ...interface{}) {
	c.get().Log(level, msg, ctx...)
}

func (c *contextLogger) Trace(msg string, ctx ...interface{}) { c.get().Trace(msg, ctx...) }
func (c *contextLogger) Debug(msg string, ctx ...interface{}) { c.get().Debug(msg, ctx...) }
func (c *contextLogger) Info(msg string, ctx ...interface{})  { c.get().Info(msg, ctx...) }
func (c *contextLogger) Warn(msg string, ctx ...interface{})  { c.get().Warn(msg, ctx...) }
func (c *contextLogger) Error(msg string, ctx ...interface{}) { c.get().Error(msg, ctx...) }
func (c *contextLogger) Crit(msg string, ctx ...interface{})  { c.get().Crit(msg, ctx...) }

func (c *contextLogger) Enabled(ctx context.Context, level slog.Level) bool {
	return c.get().Enabled(ctx, level)
}

func (c *contextLogger) Handler() slog.Handler { return c.get().Handler() }
