// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for KodiakView components.
//
// The package wraps the standard library slog with a small amount of
// policy shared by every binary in this repo:
//
//   - stderr output by default, following Unix CLI conventions
//   - text format when stderr is a terminal, JSON otherwise
//   - optional file logging (always JSON, one file per service per day)
//   - a "service" attribute stamped on every record
//
// Typical usage:
//
//	logger := logging.New(logging.Config{Service: "viewport"})
//	defer logger.Close()
//	slog.SetDefault(logger.Slog())
//
// After SetDefault, packages log through the plain slog API and inherit
// the configured handlers. Logger is safe for concurrent use.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
)

// Config controls logger construction. The zero value logs Info and
// above to stderr.
type Config struct {
	// Level is the minimum level to emit. Default: slog.LevelInfo.
	Level slog.Leveler

	// Service is stamped on every record as the "service" attribute.
	Service string

	// LogDir, when set, enables file logging to
	// {LogDir}/{Service}_{YYYY-MM-DD}.log in JSON format. The directory
	// is created if missing.
	LogDir string

	// ForceJSON forces JSON output on stderr even when it is a
	// terminal. File output is always JSON.
	ForceJSON bool

	// Quiet disables stderr output. Useful for daemons where only the
	// log file is monitored.
	Quiet bool
}

// Logger is a configured slog.Logger plus the file handle it may own.
type Logger struct {
	slog *slog.Logger
	file *os.File
}

// New builds a Logger from cfg. Construction never fails: if the log
// file cannot be opened the logger falls back to stderr only.
func New(cfg Config) *Logger {
	level := cfg.Level
	if level == nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if !cfg.Quiet {
		if !cfg.ForceJSON && isatty.IsTerminal(os.Stderr.Fd()) {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		}
	}

	l := &Logger{}
	if cfg.LogDir != "" {
		if f, err := openLogFile(cfg.LogDir, cfg.Service); err == nil {
			l.file = f
			handlers = append(handlers, slog.NewJSONHandler(f, opts))
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &teeHandler{handlers: handlers}
	}

	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}
	l.slog = slog.New(handler)
	return l
}

// Slog returns the underlying slog.Logger, suitable for
// slog.SetDefault.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Close syncs and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("sync log file: %w", err)
	}
	return l.file.Close()
}

func openLogFile(dir, service string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	if service == "" {
		service = "kodiakview"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
}

// teeHandler fans each record out to every underlying handler, so a
// single slog.Logger can write text to stderr and JSON to a file.
type teeHandler struct {
	handlers []slog.Handler
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, r.Level) {
			if err := hh.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithAttrs(attrs)
	}
	return &teeHandler{handlers: next}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithGroup(name)
	}
	return &teeHandler{handlers: next}
}
