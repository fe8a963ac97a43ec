// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package queue

import (
	"testing"

	"github.com/kodiakviz/kodiakview/services/viewport/datatypes"
)

func result(gen uint64, quality int) datatypes.RenderResult {
	return datatypes.RenderResult{
		Generation: gen,
		Quality:    quality,
		Image:      &datatypes.ImageBuffer{Width: 1, Height: 1, Pixels: []byte{0, 0, 0, 255}},
	}
}

func TestArbiter_FirstPublishAccepted(t *testing.T) {
	a := newResultArbiter()
	if !a.publish(result(1, 0)) {
		t.Fatal("first candidate must be accepted")
	}
	if !a.pending() {
		t.Error("slot should be ready after accept")
	}
}

func TestArbiter_QualityOrdering(t *testing.T) {
	a := newResultArbiter()
	a.publish(result(1, 0))

	t.Run("higher quality same generation accepted", func(t *testing.T) {
		if !a.publish(result(1, 1)) {
			t.Error("quality 1 should replace quality 0")
		}
	})
	t.Run("equal quality rejected", func(t *testing.T) {
		if a.publish(result(1, 1)) {
			t.Error("same (generation, quality) must be rejected")
		}
	})
	t.Run("lower quality rejected", func(t *testing.T) {
		if a.publish(result(1, 0)) {
			t.Error("quality regression must be rejected")
		}
	})
	t.Run("quality ordering survives consumption", func(t *testing.T) {
		if _, ok := a.take(); !ok {
			t.Fatal("expected a pending result")
		}
		if a.publish(result(1, 1)) {
			t.Error("already-seen quality must stay rejected after consume")
		}
		if !a.publish(result(1, 2)) {
			t.Error("higher quality must be accepted after consume")
		}
	})
}

func TestArbiter_GenerationOrdering(t *testing.T) {
	a := newResultArbiter()
	a.publish(result(2, 3))

	if a.publish(result(1, 5)) {
		t.Error("older generation must lose regardless of quality")
	}
	if !a.publish(result(3, 0)) {
		t.Error("newer generation must win regardless of quality")
	}
}

func TestArbiter_HighWatermarkNoWayBack(t *testing.T) {
	a := newResultArbiter()
	a.publish(result(5, 0))

	res, ok := a.take()
	if !ok || res.Generation != 5 {
		t.Fatalf("take = %+v, %v", res, ok)
	}

	// A slow pass for an older generation completes now. It must be
	// discarded: generation 5 already left the system.
	if a.publish(result(4, 4)) {
		t.Error("generation below the high-watermark must be rejected")
	}
	if a.watermark() != 5 {
		t.Errorf("watermark = %d, want 5", a.watermark())
	}

	// Same generation refining further is still fine.
	if !a.publish(result(5, 1)) {
		t.Error("same generation, higher quality should still be accepted")
	}
}

func TestArbiter_ConsumeOnce(t *testing.T) {
	a := newResultArbiter()
	a.publish(result(1, 0))

	if _, ok := a.take(); !ok {
		t.Fatal("first take should deliver")
	}
	if _, ok := a.take(); ok {
		t.Fatal("second take without a publish must be empty")
	}
}

func TestArbiter_TakeReleasesBuffer(t *testing.T) {
	a := newResultArbiter()
	a.publish(result(1, 0))

	res, _ := a.take()
	if res.Image == nil {
		t.Fatal("consumer must receive the buffer")
	}
	if a.image != nil {
		t.Error("slot must not retain the buffer after take")
	}
}

func TestArbiter_EmptyTake(t *testing.T) {
	a := newResultArbiter()
	if _, ok := a.take(); ok {
		t.Error("take on a fresh arbiter must be empty")
	}
	if a.watermark() != 0 {
		t.Error("watermark must stay 0 before any delivery")
	}
}
