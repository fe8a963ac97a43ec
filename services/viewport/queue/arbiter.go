// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package queue

import (
	"sync"

	"github.com/kodiakviz/kodiakview/services/viewport/datatypes"
)

// resultArbiter owns the single visible result slot and the delivery
// high-watermark. It decides whether each completed render pass becomes
// "the" current image.
//
// The slot retains at most one image buffer; a rejected candidate is
// simply dropped, so unconsumed memory is bounded to one frame no
// matter how fast passes complete.
//
// Invariant: whenever ready is true, slot.generation >= highWater.
// take enforces the other direction by folding the consumed generation
// into highWater, so a consumer can never observe generations moving
// backwards.
//
// publish is a single check-and-install under one mutex, so the
// acceptance rule stays correct even with concurrent publishers,
// although the queue only ever runs one worker.
type resultArbiter struct {
	mu sync.Mutex

	// Last installed result. generation/quality stay meaningful after
	// consumption (ready=false) so same-generation candidates are still
	// ordered by quality; image is released on take.
	generation uint64
	quality    int
	image      *datatypes.ImageBuffer
	ready      bool
	installed  bool // false until the first accept

	// highWater is the highest generation ever handed to a consumer.
	// 0 means none; real generations start at 1.
	highWater uint64
}

func newResultArbiter() *resultArbiter {
	return &resultArbiter{}
}

// publish offers a candidate result. It accepts iff the candidate is at
// least as new as anything already delivered, and strictly fresher than
// the last installed result: a newer generation, or the same generation
// at a higher quality. Returns whether the candidate was installed.
func (a *resultArbiter) publish(res datatypes.RenderResult) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if res.Generation < a.highWater {
		return false
	}
	if a.installed {
		newer := res.Generation > a.generation ||
			(res.Generation == a.generation && res.Quality > a.quality)
		if !newer {
			return false
		}
	}

	a.generation = res.Generation
	a.quality = res.Quality
	a.image = res.Image
	a.ready = true
	a.installed = true
	return true
}

// take consumes the slot. On success the buffer ownership transfers to
// the caller, the slot stops referencing it, and the high-watermark
// advances to the consumed generation. Returns ok=false when nothing
// new is available; that is the normal idle outcome, not an error.
func (a *resultArbiter) take() (datatypes.RenderResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ready {
		return datatypes.RenderResult{}, false
	}
	res := datatypes.RenderResult{
		Generation: a.generation,
		Quality:    a.quality,
		Image:      a.image,
	}
	a.ready = false
	a.image = nil
	if a.generation > a.highWater {
		a.highWater = a.generation
	}
	return res, true
}

// watermark returns the highest generation ever delivered (0 if none).
func (a *resultArbiter) watermark() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.highWater
}

// pending reports whether an unconsumed result is waiting.
func (a *resultArbiter) pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}
