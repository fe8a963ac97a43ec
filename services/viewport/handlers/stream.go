// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kodiakviz/kodiakview/pkg/validation"
	"github.com/kodiakviz/kodiakview/services/viewport/datatypes"
	"github.com/kodiakviz/kodiakview/services/viewport/observability"
	"github.com/kodiakviz/kodiakview/services/viewport/queue"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	// A full 1280x720 RGBA frame is ~3.5MB base64'd.
	WriteBufferSize: 4 * 1024 * 1024,
	ReadBufferSize:  8 * 1024,
}

// DefaultFrameInterval is how often an idle-free session polls the
// queue for a fresh frame. 30Hz is plenty: frames only exist when a
// pass completes.
const DefaultFrameInterval = 33 * time.Millisecond

// HandleViewportStream runs an interactive viewer session over one
// WebSocket: pose updates flow in as JSON, frames flow out as JSON with
// base64 pixels. Delivery goes through the same consume-once queue as
// the poll endpoint, so a session inherits every ordering guarantee.
//
// All writes happen on one goroutine; the read loop forwards its acks
// through a channel, per gorilla's single-writer requirement.
func HandleViewportStream(q *queue.RenderQueue, metrics *observability.QueueMetrics, frameInterval time.Duration) gin.HandlerFunc {
	if frameInterval <= 0 {
		frameInterval = DefaultFrameInterval
	}

	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}
		defer ws.Close()

		metrics.StreamOpened()
		defer metrics.StreamClosed()

		sessionID := uuid.New().String()
		slog.Info("viewer session started", "sessionID", sessionID)

		acks := make(chan datatypes.WSAck, 16)
		closed := make(chan struct{})

		// Read loop: pose updates in.
		go func() {
			defer close(closed)
			for {
				var env datatypes.WSEnvelope
				if err := ws.ReadJSON(&env); err != nil {
					slog.Info("viewer session ended", "sessionID", sessionID, "error", err.Error())
					return
				}
				if env.Type != "camera" {
					sendAck(acks, datatypes.WSAck{Type: "error", Error: "unknown message type: " + env.Type})
					continue
				}
				sendAck(acks, applyPose(q, env))
			}
		}()

		// Write loop: acks and frames out.
		ticker := time.NewTicker(frameInterval)
		defer ticker.Stop()

		if err := ws.WriteJSON(datatypes.WSAck{Type: "session_created", SessionID: sessionID}); err != nil {
			return
		}

		for {
			select {
			case <-closed:
				return
			case ack := <-acks:
				if err := ws.WriteJSON(ack); err != nil {
					return
				}
			case <-ticker.C:
				res, ok := q.GetImage()
				if !ok {
					continue
				}
				frame := datatypes.WSFrame{
					Type:       "frame",
					Generation: res.Generation,
					Quality:    res.Quality,
					Width:      res.Image.Width,
					Height:     res.Image.Height,
					Data:       base64.StdEncoding.EncodeToString(res.Image.Pixels),
				}
				if err := ws.WriteJSON(frame); err != nil {
					slog.Warn("frame write failed", "sessionID", sessionID, "error", err)
					return
				}
			}
		}
	}
}

// applyPose validates and applies one inbound camera message.
func applyPose(q *queue.RenderQueue, env datatypes.WSEnvelope) datatypes.WSAck {
	pos, err := validation.Vec3FromSlice(env.Position)
	if err != nil {
		return datatypes.WSAck{Type: "error", Error: "position: " + err.Error()}
	}
	rot, err := validation.Vec3FromSlice(env.Rotation)
	if err != nil {
		return datatypes.WSAck{Type: "error", Error: "rotation: " + err.Error()}
	}
	gen, err := q.UpdateCamera(pos, rot)
	if err != nil {
		return datatypes.WSAck{Type: "error", Error: err.Error()}
	}
	return datatypes.WSAck{Type: "camera_ack", Generation: gen}
}

// sendAck drops acks rather than blocking the read loop when the
// writer is saturated with frames.
func sendAck(acks chan datatypes.WSAck, ack datatypes.WSAck) {
	select {
	case acks <- ack:
	default:
	}
}
