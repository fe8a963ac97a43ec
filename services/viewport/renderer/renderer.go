// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package renderer defines the contract between the render queue and the
// image-synthesis collaborator, plus the two backends shipped with the
// server: a deterministic preview renderer for development and tests,
// and an HTTP client for a remote neural renderer sidecar.
//
// # Contract
//
// A PassRenderer produces one image per (pose, quality level) call. The
// call may be arbitrarily slow and cannot be interrupted mid-pass; the
// queue checks for cancellation only between passes. A renderer reports
// convergence for a pose by returning ErrConverged, which tells the
// queue to stop refining that generation early.
//
// # Quality levels
//
// Levels are ordinals into the renderer's quality ladder, lowest first.
// The ladder is configured per deployment (see Ladder); by convention
// level 0 is a fast low-resolution estimate and the last level is the
// full display resolution.
package renderer

import (
	"context"
	"errors"
	"fmt"

	"github.com/kodiakviz/kodiakview/services/viewport/datatypes"
)

// ErrConverged is returned by RenderPass when the renderer determines
// that further refinement of this pose would not improve the image.
// It is a control signal, not a failure.
var ErrConverged = errors.New("renderer: converged")

// PassRenderer produces progressively refined images for camera poses.
//
// Implementations must be safe for use from a single goroutine at a
// time; the render queue never issues concurrent passes to one
// renderer instance.
type PassRenderer interface {
	// RenderPass synchronously renders one image of the scene from pose
	// at the given quality level. It honors ctx only between internal
	// units of work; callers must expect the call to outlive short
	// deadlines.
	RenderPass(ctx context.Context, pose datatypes.CameraPose, level int) (*datatypes.ImageBuffer, error)

	// Levels returns the current number of quality levels. Level
	// arguments to RenderPass must be in [0, Levels()).
	Levels() int
}

// PassError wraps a failed render pass with the level it failed at, so
// the worker can log a precise record while treating all pass failures
// uniformly.
type PassError struct {
	Level int
	Err   error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("render pass at quality %d: %v", e.Level, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }
