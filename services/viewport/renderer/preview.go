// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package renderer

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/kodiakviz/kodiakview/services/viewport/datatypes"
)

// Preview is a deterministic synthetic renderer. It shades a horizon
// gradient whose hue and tilt follow the camera pose, which makes pose
// changes visible in a viewer without any trained scene model. It also
// lets the whole service run and be load-tested with zero GPU
// dependencies.
//
// PassDelay emulates the cost of a real pass; the delay grows linearly
// with the level ordinal so higher qualities are slower, as they are in
// a real renderer.
type Preview struct {
	mu        sync.RWMutex
	ladder    Ladder
	passDelay time.Duration
}

// NewPreview builds a Preview over the given ladder. A nil ladder gets
// DefaultLadder. passDelay is the simulated cost of a level-0 pass;
// zero means render at full speed (useful in tests).
func NewPreview(ladder Ladder, passDelay time.Duration) *Preview {
	if ladder == nil {
		ladder = DefaultLadder()
	}
	return &Preview{ladder: ladder, passDelay: passDelay}
}

// Levels implements PassRenderer.
func (p *Preview) Levels() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.ladder)
}

// SetLadder replaces the quality ladder. The swap applies from the next
// pass; an in-flight pass keeps the level it started with.
func (p *Preview) SetLadder(ladder Ladder) error {
	if err := ladder.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.ladder = ladder
	p.mu.Unlock()
	return nil
}

// RenderPass implements PassRenderer. The output is a function of the
// pose and the level's dimensions only, so tests can assert on exact
// pixels.
func (p *Preview) RenderPass(ctx context.Context, pose datatypes.CameraPose, level int) (*datatypes.ImageBuffer, error) {
	p.mu.RLock()
	if level < 0 || level >= len(p.ladder) {
		p.mu.RUnlock()
		return nil, &PassError{Level: level, Err: ErrConverged}
	}
	lv := p.ladder[level]
	delay := p.passDelay * time.Duration(level+1)
	p.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &PassError{Level: level, Err: ctx.Err()}
		}
	}

	buf := &datatypes.ImageBuffer{
		Width:  lv.Width,
		Height: lv.Height,
		Pixels: make([]byte, lv.Width*lv.Height*4),
	}

	// Horizon line from pitch, hue from yaw, brightness from position.
	pitch := pose.Rotation[0] * math.Pi / 180
	yaw := pose.Rotation[1] * math.Pi / 180
	horizon := float64(lv.Height) * (0.5 + 0.4*math.Sin(pitch))
	hue := 0.5 + 0.5*math.Sin(yaw)
	dist := math.Sqrt(pose.Position[0]*pose.Position[0] +
		pose.Position[1]*pose.Position[1] +
		pose.Position[2]*pose.Position[2])
	bright := 0.6 + 0.4*math.Exp(-dist/100)

	for y := 0; y < lv.Height; y++ {
		var r, g, b float64
		if float64(y) < horizon {
			t := float64(y) / math.Max(horizon, 1)
			r, g, b = hue*t, 0.4+0.4*t, 0.9-0.3*t
		} else {
			t := (float64(y) - horizon) / math.Max(float64(lv.Height)-horizon, 1)
			r, g, b = 0.3+0.3*t, 0.5-0.2*t, hue*0.3
		}
		for x := 0; x < lv.Width; x++ {
			i := (y*lv.Width + x) * 4
			buf.Pixels[i+0] = clamp8(r * bright)
			buf.Pixels[i+1] = clamp8(g * bright)
			buf.Pixels[i+2] = clamp8(b * bright)
			buf.Pixels[i+3] = 0xff
		}
	}
	return buf, nil
}

func clamp8(v float64) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xff
	default:
		return byte(v * 255)
	}
}

var _ PassRenderer = (*Preview)(nil)
