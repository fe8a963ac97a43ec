// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package queue

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kodiakviz/kodiakview/pkg/validation"
	"github.com/kodiakviz/kodiakview/services/viewport/renderer"
)

func TestNew_RequiresRenderer(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestUpdateCamera_Validation(t *testing.T) {
	q, _ := newStepQueue(t, 1)

	t.Run("non-finite rotation rejected, generation untouched", func(t *testing.T) {
		_, err := q.UpdateCamera([3]float64{0, 0, 0}, [3]float64{0, math.NaN(), 0})
		require.ErrorIs(t, err, validation.ErrNotFinite)
		assert.Equal(t, uint64(0), q.Stats().CurrentGeneration,
			"a rejected update must not increment the generation")
	})

	t.Run("non-finite position rejected", func(t *testing.T) {
		_, err := q.UpdateCamera([3]float64{math.Inf(1), 0, 0}, [3]float64{})
		require.ErrorIs(t, err, validation.ErrNotFinite)
	})

	t.Run("valid pose assigned generation 1", func(t *testing.T) {
		gen, err := q.UpdateCamera([3]float64{1, 2, 3}, [3]float64{0, 90, 0})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), gen)
	})

	t.Run("identical pose keeps the current generation", func(t *testing.T) {
		gen, err := q.UpdateCamera([3]float64{1, 2, 3}, [3]float64{0, 90, 0})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), gen)
		assert.Equal(t, uint64(1), q.Stats().CurrentGeneration)
	})
}

func TestGetImage_EmptyBeforeAnyRender(t *testing.T) {
	q, _ := newStepQueue(t, 1)
	_, ok := q.GetImage()
	assert.False(t, ok, "empty queue must report no image, not an error")
}

func TestStats(t *testing.T) {
	q, r := newStepQueue(t, 1)

	s := q.Stats()
	assert.Equal(t, uint64(0), s.CurrentGeneration)
	assert.Equal(t, uint64(0), s.DeliveredGeneration)
	assert.False(t, s.ResultPending)

	p, rr := pose(1)
	q.UpdateCamera(p, rr)
	awaitPass(t, r)
	releasePass(t, r, nil)

	res := awaitGeneration(t, q, 1)
	require.Equal(t, uint64(1), res.Generation)

	s = q.Stats()
	assert.Equal(t, uint64(1), s.CurrentGeneration)
	assert.Equal(t, uint64(1), s.DeliveredGeneration)
	assert.False(t, s.ResultPending, "take must clear the slot")
}

func TestClose_StopsIdleWorker(t *testing.T) {
	r := newStepRenderer(1)
	q, err := New(Options{Renderer: r})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		q.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not stop an idle worker")
	}
}

// TestMonotonicDeliveryUnderChurn drives the queue with the preview
// renderer and a fast-moving camera while a consumer polls, and checks
// the two core delivery guarantees end to end: generations never
// regress, and quality never regresses within a generation.
func TestMonotonicDeliveryUnderChurn(t *testing.T) {
	q, err := New(Options{
		Renderer: renderer.NewPreview(renderer.Ladder{
			{Width: 8, Height: 4, FOV: 36},
			{Width: 16, Height: 9, FOV: 36},
			{Width: 32, Height: 18, FOV: 36},
		}, time.Millisecond),
	})
	require.NoError(t, err)
	defer q.Close()

	stop := make(chan struct{})
	go func() {
		x := 0.0
		for {
			select {
			case <-stop:
				return
			default:
				x++
				q.UpdateCamera([3]float64{x, 0, 0}, [3]float64{0, x, 0})
				time.Sleep(2 * time.Millisecond)
			}
		}
	}()

	var (
		lastGen     uint64
		lastQuality = -1
		deliveries  int
	)
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		res, ok := q.GetImage()
		if !ok {
			time.Sleep(500 * time.Microsecond)
			continue
		}
		deliveries++
		require.GreaterOrEqual(t, res.Generation, lastGen,
			"generation regressed under churn")
		if res.Generation == lastGen {
			require.Greater(t, res.Quality, lastQuality,
				"quality regressed within generation %d", res.Generation)
		}
		lastGen = res.Generation
		lastQuality = res.Quality
		require.NotNil(t, res.Image)
		require.Len(t, res.Image.Pixels, res.Image.Width*res.Image.Height*4)
	}
	close(stop)

	assert.Greater(t, deliveries, 0, "churn test delivered nothing")
}
