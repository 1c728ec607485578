// Copyright 2023 The subnetd Authors
// This file is part of the subnetd library.
//
// The subnetd library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The subnetd library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the subnetd library. If not, see <http://www.gnu.org/licenses/>.

// Package log is subnetd's structured logger, a thin wrapper around
// log/slog in the same shape as go-ethereum's log package: a Logger is a
// context (a set of key/value pairs bound once, e.g. "layer"="chain") plus
// leveled Trace/Debug/Info/Warn/Error/Crit methods. Every interpreter
// layer, the parent syncer, and the checkpoint engine hold their own named
// sub-logger (§4.D/§4.H), so that `layer=chain` or `component=sync` can
// filter output without touching call sites.
package log

import (
	"context"
	"log/slog"
	"os"
)

// Logger writes structured, leveled log records.
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
	With(ctx ...interface{}) Logger
}

const levelTrace = slog.Level(-8)

type logger struct {
	inner *slog.Logger
}

// New creates a new Logger with the given key/value pairs bound as
// permanent context, in the style of log.New("component", "syncer").
func New(ctx ...interface{}) Logger {
	return &logger{inner: root.inner.With(ctx...)}
}

func (l *logger) With(ctx ...interface{}) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

func (l *logger) Trace(msg string, ctx ...interface{}) {
	l.inner.Log(context.Background(), levelTrace, msg, ctx...)
}

func (l *logger) Debug(msg string, ctx ...interface{}) {
	l.inner.Debug(msg, ctx...)
}

func (l *logger) Info(msg string, ctx ...interface{}) {
	l.inner.Info(msg, ctx...)
}

func (l *logger) Warn(msg string, ctx ...interface{}) {
	l.inner.Warn(msg, ctx...)
}

func (l *logger) Error(msg string, ctx ...interface{}) {
	l.inner.Error(msg, ctx...)
}

// Crit logs at error level and terminates the process with exit status 1.
// cmd/subnetd calls it when loading the config or running the node fails.
func (l *logger) Crit(msg string, ctx ...interface{}) {
	l.inner.Error(msg, ctx...)
	os.Exit(1)
}

var root = &logger{inner: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))}

// Root returns the root logger, the parent of every logger returned by New.
func Root() Logger { return root }

// SetDefault installs l as the root logger used by the package-level
// Trace/Debug/Info/Warn/Error/Crit helpers.
func SetDefault(l Logger) {
	if ll, ok := l.(*logger); ok {
		root = ll
	}
}

func Trace(msg string, ctx ...interface{}) { root.Trace(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { root.Info(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { root.Warn(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { root.Error(msg, ctx...) }
func Crit(msg string, ctx ...interface{})  { root.Crit(msg, ctx...) }

// NewJSONHandler returns a handler writing line-delimited JSON records.
func NewJSONHandler(w *os.File, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// SetLevel adjusts the root logger's minimum emitted level.
func SetLevel(level slog.Level) {
	root.inner = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
