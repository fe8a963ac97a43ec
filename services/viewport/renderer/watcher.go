// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package renderer

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// LadderSetter is the subset of a renderer the watcher needs: both
// Preview and Remote satisfy it.
type LadderSetter interface {
	SetLadder(Ladder) error
}

// WatchLadder watches the ladder config file and applies changes to the
// renderer. Writes are debounced: editors produce bursts of events per
// save, and partial writes must not be parsed. A reload only affects
// generations started after it lands.
//
// WatchLadder blocks until ctx is done. It returns an error only if the
// watcher itself cannot be established; reload failures are logged and
// the previous ladder stays in effect.
func WatchLadder(ctx context.Context, path string, target LadderSetter) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory, not the file: editors replace files by
	// rename, which drops a file-level watch.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}

	const debounce = 250 * time.Millisecond
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				fire = timer.C
			} else {
				timer.Reset(debounce)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("ladder watcher error", "error", err)

		case <-fire:
			timer, fire = nil, nil
			ladder, err := LoadLadder(path)
			if err != nil {
				slog.Error("ladder reload failed, keeping previous ladder",
					"path", path, "error", err)
				continue
			}
			if err := target.SetLadder(ladder); err != nil {
				slog.Error("ladder rejected by renderer", "path", path, "error", err)
				continue
			}
			slog.Info("quality ladder reloaded", "path", path, "levels", len(ladder))
		}
	}
}
