// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package renderer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kodiakviz/kodiakview/services/viewport/datatypes"
)

// Remote renders by calling a neural renderer sidecar over HTTP. One
// POST per pass, plain request/response; no object references ever
// cross the process boundary.
//
// The sidecar contract:
//
//	POST {base}/render
//	{"position":[x,y,z],"rotation":[rx,ry,rz],
//	 "width":W,"height":H,"fov":F,"level":L}
//
//	200 -> {"width":W,"height":H,"pixels":"<base64 RGBA>"}
//	409 -> pose converged, no further refinement useful
//	anything else -> pass failure
type Remote struct {
	baseURL string
	client  *http.Client

	mu     sync.RWMutex
	ladder Ladder
}

// remoteRequest is the wire form of one render pass request.
type remoteRequest struct {
	Position [3]float64 `json:"position"`
	Rotation [3]float64 `json:"rotation"`
	Width    int        `json:"width"`
	Height   int        `json:"height"`
	FOV      float64    `json:"fov"`
	Level    int        `json:"level"`
}

// remoteResponse is the wire form of a successful pass.
type remoteResponse struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pixels string `json:"pixels"`
}

// NewRemote builds a Remote against baseURL. A nil ladder gets
// DefaultLadder. timeout bounds a single pass end to end; zero means
// no client-side timeout (a stuck sidecar is then visible only through
// metrics).
func NewRemote(baseURL string, ladder Ladder, timeout time.Duration) *Remote {
	if ladder == nil {
		ladder = DefaultLadder()
	}
	return &Remote{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		ladder:  ladder,
	}
}

// Levels implements PassRenderer.
func (r *Remote) Levels() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ladder)
}

// SetLadder replaces the quality ladder, applying from the next pass.
func (r *Remote) SetLadder(ladder Ladder) error {
	if err := ladder.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.ladder = ladder
	r.mu.Unlock()
	return nil
}

// RenderPass implements PassRenderer.
func (r *Remote) RenderPass(ctx context.Context, pose datatypes.CameraPose, level int) (*datatypes.ImageBuffer, error) {
	r.mu.RLock()
	if level < 0 || level >= len(r.ladder) {
		r.mu.RUnlock()
		return nil, &PassError{Level: level, Err: ErrConverged}
	}
	lv := r.ladder[level]
	r.mu.RUnlock()

	body, err := json.Marshal(remoteRequest{
		Position: pose.Position,
		Rotation: pose.Rotation,
		Width:    lv.Width,
		Height:   lv.Height,
		FOV:      lv.FOV,
		Level:    level,
	})
	if err != nil {
		return nil, &PassError{Level: level, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return nil, &PassError{Level: level, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, &PassError{Level: level, Err: fmt.Errorf("renderer sidecar: %w", err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusConflict:
		io.Copy(io.Discard, resp.Body)
		return nil, ErrConverged
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &PassError{Level: level,
			Err: fmt.Errorf("renderer sidecar returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))}
	}

	var wire remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &PassError{Level: level, Err: fmt.Errorf("decode sidecar response: %w", err)}
	}
	pixels, err := base64.StdEncoding.DecodeString(wire.Pixels)
	if err != nil {
		return nil, &PassError{Level: level, Err: fmt.Errorf("decode sidecar pixels: %w", err)}
	}
	if want := wire.Width * wire.Height * 4; len(pixels) != want {
		return nil, &PassError{Level: level,
			Err: fmt.Errorf("sidecar pixel payload is %d bytes, want %d", len(pixels), want)}
	}
	return &datatypes.ImageBuffer{Width: wire.Width, Height: wire.Height, Pixels: pixels}, nil
}

var _ PassRenderer = (*Remote)(nil)
