// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared data structures for the viewport
// service: camera poses, render results, and the JSON payloads exchanged
// with viewer clients over HTTP and WebSocket.
package datatypes

// Vec3 is a 3-component vector of finite float64 values.
type Vec3 [3]float64

// CameraPose is an immutable camera pose snapshot. A stored pose is never
// mutated in place; pose updates replace the whole value.
type CameraPose struct {
	// Position is the camera position in world coordinates.
	Position Vec3

	// Rotation is the camera orientation as Euler angles, in degrees.
	Rotation Vec3
}

// ImageBuffer holds one rendered frame. Pixels is tightly packed RGBA,
// 4 bytes per pixel, row-major.
type ImageBuffer struct {
	Width  int
	Height int
	Pixels []byte
}

// RenderResult is one completed render pass: which camera update episode
// it belongs to, how refined it is, and the pixels.
//
// Generation identifies the camera update episode (strictly increasing,
// starting at 1). Quality is the ordinal refinement level within that
// generation; higher is more converged.
type RenderResult struct {
	Generation uint64
	Quality    int
	Image      *ImageBuffer
}

// =============================================================================
// Transport payloads
// =============================================================================

// CameraUpdateRequest is the body of POST /v1/viewport/camera.
//
// Both vectors must have exactly three finite components. The "finite"
// rule is a custom validator registered at service startup; it rejects
// NaN and +/-Inf before the pose reaches the queue.
type CameraUpdateRequest struct {
	Position []float64 `json:"position" binding:"required,len=3,dive,finite"`
	Rotation []float64 `json:"rotation" binding:"required,len=3,dive,finite"`
}

// CameraUpdateResponse acknowledges an accepted pose update with the
// generation it was assigned.
type CameraUpdateResponse struct {
	Generation uint64 `json:"generation"`
}

// ErrorResponse is the uniform error body for the viewport API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WSEnvelope is a message received on the viewport WebSocket. Type
// selects the action; the remaining fields are action-specific.
type WSEnvelope struct {
	// Type is "camera" for a pose update.
	Type     string    `json:"type"`
	Position []float64 `json:"position,omitempty"`
	Rotation []float64 `json:"rotation,omitempty"`
}

// WSFrame is an outbound WebSocket message carrying one rendered frame.
// Data is base64-encoded RGBA pixels.
type WSFrame struct {
	Type       string `json:"type"` // always "frame"
	Generation uint64 `json:"generation"`
	Quality    int    `json:"quality"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Data       string `json:"data"`
}

// WSAck is an outbound WebSocket acknowledgement, used for the initial
// session handshake and for pose-update errors.
type WSAck struct {
	Type       string `json:"type"` // "session_created" | "camera_ack" | "error"
	SessionID  string `json:"sessionId,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
	Error      string `json:"error,omitempty"`
}
