// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package queue implements the progressive render queue: the component
// that keeps an asynchronous renderer always working on the freshest
// camera pose while guaranteeing that consumers polling for images
// never observe time going backwards.
//
// # Architecture
//
// Three pieces per queue instance, composed by RenderQueue:
//
//	producers ──► poseStore ──► worker ──► PassRenderer
//	                                │
//	                                ▼
//	consumers ◄──────────── resultArbiter
//
//   - poseStore: capacity-one overwrite mailbox for the latest pose,
//     with a strictly increasing generation counter.
//   - worker: one goroutine walking the quality ladder per generation,
//     checking for newer poses only between passes.
//   - resultArbiter: the single visible result slot plus a delivery
//     high-watermark enforcing monotonic generations.
//
// # Guarantees
//
//   - UpdateCamera and GetImage never block on rendering.
//   - Non-empty GetImage results have non-decreasing generations.
//   - Once generation G has been delivered, nothing older than G is
//     ever delivered, even if it finishes rendering later.
//   - Two consecutive GetImage calls with no publish in between return
//     a result and then nothing (consume-once).
//   - At most one unconsumed image buffer is retained at a time.
//
// Each RenderQueue serves one camera stream; run several instances for
// several streams.
package queue

import (
	"context"
	"fmt"

	"github.com/kodiakviz/kodiakview/pkg/validation"
	"github.com/kodiakviz/kodiakview/services/viewport/datatypes"
	"github.com/kodiakviz/kodiakview/services/viewport/observability"
	"github.com/kodiakviz/kodiakview/services/viewport/renderer"
)

// Options configures a RenderQueue.
type Options struct {
	// Renderer produces the actual pixels. Required.
	Renderer renderer.PassRenderer

	// Metrics receives queue observability events. Optional; nil
	// disables recording.
	Metrics *observability.QueueMetrics
}

// RenderQueue composes the pose store, render worker and result arbiter
// behind the two operations the transport layer needs. Safe for
// concurrent use.
type RenderQueue struct {
	store   *poseStore
	arbiter *resultArbiter
	worker  *worker
	metrics *observability.QueueMetrics
	cancel  context.CancelFunc
}

// New builds a queue and starts its render worker.
func New(opts Options) (*RenderQueue, error) {
	if opts.Renderer == nil {
		return nil, fmt.Errorf("queue: Renderer is required")
	}

	q := &RenderQueue{
		store:   newPoseStore(),
		arbiter: newResultArbiter(),
		metrics: opts.Metrics,
	}
	q.worker = &worker{
		store:    q.store,
		arbiter:  q.arbiter,
		renderer: opts.Renderer,
		metrics:  opts.Metrics,
		done:     make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go q.worker.run(ctx)
	return q, nil
}

// UpdateCamera validates and installs a new camera pose, returning the
// generation it was assigned. On a validation error no state changes
// and the generation counter is untouched. A pose identical to the
// current one is a no-op that returns the current generation, so
// clients reasserting their camera state do not trigger re-renders.
// Never blocks on rendering.
func (q *RenderQueue) UpdateCamera(position, rotation [3]float64) (uint64, error) {
	if err := validation.ValidatePose(position, rotation); err != nil {
		q.metrics.RecordPoseRejection()
		return 0, err
	}
	gen, changed := q.store.update(datatypes.CameraPose{Position: position, Rotation: rotation})
	if changed {
		q.metrics.RecordPoseUpdate(gen)
	}
	return gen, nil
}

// GetImage consumes the current result, if any. ok=false means no new
// image since the last retrieval, a normal outcome rather than an error. On
// ok=true the caller owns the returned buffer exclusively. Never blocks
// on rendering.
func (q *RenderQueue) GetImage() (datatypes.RenderResult, bool) {
	res, ok := q.arbiter.take()
	q.metrics.RecordDelivery(res.Generation, ok)
	return res, ok
}

// Stats is a point-in-time snapshot of queue state, used by debug
// endpoints and tests.
type Stats struct {
	// CurrentGeneration is the newest accepted pose generation.
	CurrentGeneration uint64 `json:"currentGeneration"`

	// DeliveredGeneration is the highest generation ever returned by
	// GetImage (0 if none).
	DeliveredGeneration uint64 `json:"deliveredGeneration"`

	// ResultPending is true when an unconsumed image is waiting.
	ResultPending bool `json:"resultPending"`
}

// Stats returns a consistent-enough snapshot for monitoring. The two
// counters are read under separate locks, so a concurrent update may
// skew them by one; consumers must not treat this as linearizable.
func (q *RenderQueue) Stats() Stats {
	return Stats{
		CurrentGeneration:   q.store.current(),
		DeliveredGeneration: q.arbiter.watermark(),
		ResultPending:       q.arbiter.pending(),
	}
}

// Close stops the render worker and waits for it to exit. An in-flight
// render pass finishes first; passes are not interruptible. The queue
// must not be used after Close.
func (q *RenderQueue) Close() {
	q.cancel()
	q.store.close()
	<-q.worker.done
}
