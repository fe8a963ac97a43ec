// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package renderer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Level describes one rung of the quality ladder: the camera intrinsics
// a pass at this quality renders with.
type Level struct {
	// Width and Height are the rendered image size in pixels.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// FOV is the vertical field of view in degrees.
	FOV float64 `yaml:"fov"`
}

// Ladder is an ordered list of quality levels, lowest quality first.
type Ladder []Level

// defaultFOV matches a 60 degree horizontal FoV at 16:9.
const defaultFOV = 35.98339777135764

// DefaultLadder returns the stock five-level ladder: a 0.05x estimate
// up to the full 1280x720 display resolution, all at the same FoV so
// passes differ only in convergence, not in framing.
func DefaultLadder() Ladder {
	return Ladder{
		{Width: 64, Height: 36, FOV: defaultFOV},
		{Width: 128, Height: 72, FOV: defaultFOV},
		{Width: 320, Height: 180, FOV: defaultFOV},
		{Width: 640, Height: 360, FOV: defaultFOV},
		{Width: 1280, Height: 720, FOV: defaultFOV},
	}
}

// LoadLadder reads a quality ladder from a yaml file:
//
//	levels:
//	  - {width: 64, height: 36, fov: 35.98}
//	  - {width: 1280, height: 720, fov: 35.98}
//
// An empty path returns DefaultLadder.
func LoadLadder(path string) (Ladder, error) {
	if path == "" {
		return DefaultLadder(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ladder config: %w", err)
	}
	var doc struct {
		Levels Ladder `yaml:"levels"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse ladder config %s: %w", path, err)
	}
	if err := doc.Levels.Validate(); err != nil {
		return nil, fmt.Errorf("ladder config %s: %w", path, err)
	}
	return doc.Levels, nil
}

// Validate checks that the ladder is non-empty, every level has positive
// dimensions, and resolution is non-decreasing from level to level.
func (l Ladder) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("ladder has no levels")
	}
	prev := 0
	for i, lv := range l {
		if lv.Width <= 0 || lv.Height <= 0 {
			return fmt.Errorf("level %d: non-positive dimensions %dx%d", i, lv.Width, lv.Height)
		}
		if lv.FOV <= 0 || lv.FOV >= 180 {
			return fmt.Errorf("level %d: fov %v out of range", i, lv.FOV)
		}
		if px := lv.Width * lv.Height; px < prev {
			return fmt.Errorf("level %d: resolution decreases", i)
		} else {
			prev = px
		}
	}
	return nil
}
