// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kodiakviz/kodiakview/services/viewport/datatypes"
	"github.com/kodiakviz/kodiakview/services/viewport/observability"
	"github.com/kodiakviz/kodiakview/services/viewport/renderer"
)

// worker is the single render loop of a queue. It repeatedly takes the
// newest pose from the store, walks the quality ladder from the bottom,
// and offers each completed pass to the arbiter.
//
// A render pass is opaque and non-interruptible; supersession is
// checked only between passes. A pass that completes just after a newer
// pose arrived is still offered: the image is real and the arbiter
// will keep it exactly as long as nothing fresher is visible.
type worker struct {
	store    *poseStore
	arbiter  *resultArbiter
	renderer renderer.PassRenderer
	metrics  *observability.QueueMetrics
	done     chan struct{}
}

// run loops until the store closes. Each iteration handles exactly one
// generation; await blocks while no new generation exists, so an idle
// queue burns no CPU.
func (w *worker) run(ctx context.Context) {
	defer close(w.done)

	var last uint64
	for {
		gen, pose, ok := w.store.await(last)
		if !ok {
			return
		}
		last = gen
		w.renderGeneration(ctx, gen, pose)
		if ctx.Err() != nil {
			return
		}
	}
}

// renderGeneration walks the ladder for one generation. It returns when
// the ladder is exhausted, the renderer reports convergence, the
// generation is superseded, or a publish is rejected.
func (w *worker) renderGeneration(ctx context.Context, gen uint64, pose datatypes.CameraPose) {
	for level := 0; level < w.renderer.Levels(); level++ {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		img, err := w.renderer.RenderPass(ctx, pose, level)
		elapsed := time.Since(start).Seconds()

		if errors.Is(err, renderer.ErrConverged) {
			w.metrics.RecordPass(level, "converged", elapsed)
			slog.Debug("generation converged", "generation", gen, "quality", level)
			return
		}
		if err != nil {
			// A failed pass never kills the worker; log it and try the
			// next quality level.
			w.metrics.RecordPass(level, "error", elapsed)
			slog.Error("render pass failed",
				"generation", gen, "quality", level, "error", err)
			continue
		}
		w.metrics.RecordPass(level, "ok", elapsed)

		// Pass boundary: the only place supersession takes effect. The
		// completed image is still offered below either way.
		superseded := w.store.current() > gen

		accepted := w.arbiter.publish(datatypes.RenderResult{
			Generation: gen,
			Quality:    level,
			Image:      img,
		})
		w.metrics.RecordPublish(accepted)

		if superseded {
			if level < w.renderer.Levels()-1 {
				w.metrics.RecordSupersession()
				slog.Debug("generation superseded",
					"generation", gen, "last_quality", level)
			}
			return
		}
		if !accepted {
			// Something at least as fresh is already visible; further
			// refinement of this generation cannot win.
			return
		}
	}
}
